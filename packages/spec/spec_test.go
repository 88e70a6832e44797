package spec

import (
	"context"
	"errors"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/tentspec/packages/assertions"
	"github.com/abdul-hamid-achik/tentspec/packages/correlator"
	"github.com/abdul-hamid-achik/tentspec/packages/http"
	"github.com/abdul-hamid-achik/tentspec/packages/match"
	"github.com/abdul-hamid-achik/tentspec/packages/results"
)

// stubDoer answers every request with a fixed response.
type stubDoer struct {
	status int
	body   string
	err    error
	calls  int
}

func (s *stubDoer) Do(_ context.Context, _ *http.Request) (*http.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &http.Response{StatusCode: s.status, Headers: map[string]string{}, Body: []byte(s.body)}, nil
}

func get(url string) Builder {
	return func(*Call) (*http.Request, error) {
		return http.NewRequest("GET", url), nil
	}
}

func records(t *testing.T, tree *results.Node) []*results.Record {
	t.Helper()
	var out []*results.Record
	tree.Walk(func(_ []string, r *results.Record) { out = append(out, r) })
	return out
}

func TestBuilderCalledOnce(t *testing.T) {
	calls := 0
	v := NewValidator("once")
	v.Describe("node").Expect("many assertions", func(*Call) (*http.Request, error) {
		calls++
		return http.NewRequest("GET", "http://server/"), nil
	}, Status(200), Body("ok"), PropertiesAbsent("/error"), Headers(map[string]any{"X-None": match.Absent}))

	_, err := v.Run(context.Background(), &Env{Client: &stubDoer{status: 200, body: "ok"}})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestHelloWorld(t *testing.T) {
	build := func(doer *stubDoer) *Validator {
		v := NewValidator("hello")
		v.Describe("GET /").Expect("says hello", get("http://server/"), Status(200), Body("hello world"))
		return v
	}

	t.Run("match", func(t *testing.T) {
		doer := &stubDoer{status: 200, body: "hello world"}
		tree, err := build(doer).Run(context.Background(), &Env{Client: doer})
		require.NoError(t, err)

		recs := records(t, tree)
		require.Len(t, recs, 1)
		require.NotNil(t, recs[0].Valid)
		assert.True(t, *recs[0].Valid)
	})

	t.Run("mismatch", func(t *testing.T) {
		doer := &stubDoer{status: 200, body: "goodbye"}
		tree, err := build(doer).Run(context.Background(), &Env{Client: doer})
		require.NoError(t, err)

		recs := records(t, tree)
		require.Len(t, recs, 1)
		require.NotNil(t, recs[0].Valid)
		assert.False(t, *recs[0].Valid)

		body := recs[0].Expected[1]
		require.Len(t, body.Diff, 1)
		assert.Equal(t, "/body", body.Diff[0].Path)
		assert.Equal(t, "hello world", body.Diff[0].Expected)
		assert.Equal(t, "goodbye", body.Diff[0].Actual)
	})
}

func TestRecordsPlacedAtNodePath(t *testing.T) {
	v := NewValidator("tree")
	v.Describe("outer").Context("inner", func(n *Node) {
		n.Expect("leaf", get("http://server/"), Status(200))
	})

	tree, err := v.Run(context.Background(), &Env{Client: &stubDoer{status: 200}})
	require.NoError(t, err)

	node, ok := tree.Get("tree")
	require.True(t, ok)
	node, ok = node.Get("outer")
	require.True(t, ok)
	node, ok = node.Get("inner")
	require.True(t, ok)
	assert.Len(t, node.Results, 1)
}

func TestUnstructuredSetupFailureSkipsRemaining(t *testing.T) {
	v := NewValidator("abort")
	first := v.Describe("first")
	first.Expect("fails setup", get("http://server/"), Status(200)).
		After(func(resp *http.Response, _ []*assertions.Result, _ *Scope) error {
			return NewSetupFailure("fixture not created", resp)
		})
	first.Expect("second", get("http://server/"))
	v.Describe("later").Context("nested", func(n *Node) {
		n.Expect("third", get("http://server/"))
		n.Expect("fourth", get("http://server/"))
	})

	doer := &stubDoer{status: 500, body: `{"error":"boom"}`}
	tree, err := v.Run(context.Background(), &Env{Client: doer})

	var sf *SetupFailure
	require.ErrorAs(t, err, &sf)
	assert.False(t, sf.Structured())
	assert.Equal(t, "abort", sf.Validator)
	assert.Equal(t, []string{"abort", "first"}, sf.Path)
	assert.Equal(t, 500, sf.Response.StatusCode)
	assert.Empty(t, records(t, tree))
	assert.Equal(t, 3, v.Pending())
	assert.Equal(t, 1, doer.calls)

	res := results.New()
	res.Merge(tree)
	res.Skipped(v)
	assert.Equal(t, 3, res.NumSkipped())
}

func TestStructuredSetupFailureCarriesResults(t *testing.T) {
	v := NewValidator("structured")
	v.Describe("node").Expect("update", get("http://server/"), Status(200)).
		After(func(resp *http.Response, scored []*assertions.Result, _ *Scope) error {
			if !scored[0].Passed() {
				return NewSetupFailure("update failed", resp).WithResults(scored)
			}
			return nil
		})

	_, err := v.Run(context.Background(), &Env{Client: &stubDoer{status: 404}})
	var sf *SetupFailure
	require.ErrorAs(t, err, &sf)
	assert.True(t, sf.Structured())
	assert.Len(t, sf.Results, 1)
	assert.Zero(t, v.Pending())
}

func TestBuilderSetupFailureAborts(t *testing.T) {
	v := NewValidator("builder")
	n := v.Describe("node")
	n.Expect("cannot build", func(*Call) (*http.Request, error) {
		return nil, Failf(nil, "missing fixture %q", "post")
	})
	n.Expect("never", get("http://server/"))

	doer := &stubDoer{status: 200}
	_, err := v.Run(context.Background(), &Env{Client: doer})
	var sf *SetupFailure
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, `missing fixture "post"`, sf.Message)
	assert.Equal(t, 1, v.Pending())
	assert.Zero(t, doer.calls)
}

func TestConnectionFailureIsScored(t *testing.T) {
	v := NewValidator("conn")
	n := v.Describe("node")
	n.Expect("unreachable", get("http://server/"), Status(200))
	n.Expect("still runs", get("http://server/"), Status(200))

	doer := &stubDoer{err: errors.New("connection refused")}
	tree, err := v.Run(context.Background(), &Env{Client: doer})
	require.NoError(t, err)

	recs := records(t, tree)
	require.Len(t, recs, 2)
	assert.False(t, recs[0].Passed())
	assert.Equal(t, "connection refused", recs[0].Error)
	assert.Equal(t, "connection", recs[0].Expected[0].Key)
	assert.Equal(t, 0, recs[0].Actual.ResponseStatus)
}

func TestBeforeHooksRunAncestorsFirst(t *testing.T) {
	var order []string
	v := NewValidator("hooks")
	v.Hook("outer", func(_ context.Context, _ *Env, s *Scope) error {
		order = append(order, "outer")
		s.Set("post_id", "abc")
		return nil
	})

	outer := v.Describe("outer", Before("outer"))
	outer.Context("inner", func(n *Node) {
		n.Expect("uses fixture", func(c *Call) (*http.Request, error) {
			id, _ := Lookup[string](c.Scope(), "post_id")
			order = append(order, "request "+id)
			return http.NewRequest("GET", "http://server/posts/"+id), nil
		})
	}, Setup(func(_ context.Context, _ *Env, _ *Scope) error {
		order = append(order, "inner")
		return nil
	}))

	_, err := v.Run(context.Background(), &Env{Client: &stubDoer{status: 200}})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner", "request abc"}, order)
}

func TestDependsOnOrdersSiblings(t *testing.T) {
	var order []string
	record := func(name string) Builder {
		return func(*Call) (*http.Request, error) {
			order = append(order, name)
			return http.NewRequest("GET", "http://server/"), nil
		}
	}

	v := NewValidator("deps")
	root := v.Describe("root")
	read := root.Context("read", nil)
	create := root.Context("create", func(n *Node) {
		n.Expect("create", record("create"))
	})
	DependsOn(create)(read)
	read.Expect("read", record("read"))

	_, err := v.Run(context.Background(), &Env{Client: &stubDoer{status: 200}})
	require.NoError(t, err)
	assert.Equal(t, []string{"create", "read"}, order)
}

func TestDependsOnIncompleteSkips(t *testing.T) {
	v := NewValidator("skip")
	x := v.Describe("x")
	later := v.Root().Context("later", nil)
	x.Context("blocked", func(n *Node) {
		n.Expect("dependent", get("http://server/"))
	}, DependsOn(later))
	x.Expect("independent", get("http://server/"))
	later.Expect("runs after", get("http://server/"))

	doer := &stubDoer{status: 200}
	tree, err := v.Run(context.Background(), &Env{Client: doer})
	require.NoError(t, err)
	assert.Len(t, records(t, tree), 2)
	assert.Equal(t, 1, v.Pending())
	assert.Equal(t, 2, doer.calls)
}

func TestAfterHookErrorAborts(t *testing.T) {
	v := NewValidator("after")
	n := v.Describe("node")
	n.Expect("aborts", get("http://server/")).
		After(func(*http.Response, []*assertions.Result, *Scope) error {
			return errors.New("plain error")
		})
	n.Expect("never", get("http://server/"))

	_, err := v.Run(context.Background(), &Env{Client: &stubDoer{status: 200}})
	var sf *SetupFailure
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, "plain error", sf.Message)
	assert.Equal(t, 1, v.Pending())
}

func TestCallDeclaresDynamicAssertions(t *testing.T) {
	v := NewValidator("dynamic")
	v.Describe("node").Expect("status from scope", func(c *Call) (*http.Request, error) {
		c.Expect(assertions.Status(201))
		return http.NewRequest("POST", "http://server/posts"), nil
	})

	tree, err := v.Run(context.Background(), &Env{Client: &stubDoer{status: 200}})
	require.NoError(t, err)
	recs := records(t, tree)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Passed())
}

func TestCallExpectRequestRegistersOnCorrelator(t *testing.T) {
	corr := correlator.New()
	v := NewValidator("proxy")
	v.Describe("GET post").Context("uncached", func(n *Node) {
		n.Expect("fetches from peer", func(c *Call) (*http.Request, error) {
			c.Watch("alice")
			assert.True(t, corr.Watching("alice"))
			c.ExpectRequest(correlator.RequestMatcher{Method: "GET", Path: "/posts/abc"})
			return http.NewRequest("GET", "http://server/posts/abc"), nil
		})
	})

	_, err := v.Run(context.Background(), &Env{Client: &stubDoer{status: 200}, Correlator: corr})
	require.NoError(t, err)
	assert.Equal(t, 1, corr.Outstanding())
	assert.False(t, corr.Watching("alice"))
}

func TestSharedExamples(t *testing.T) {
	v := NewValidator("shared")
	v.SharedExample("cached post", func(n *Node) {
		n.Expect("get post", get("http://server/"), Status(200))
		n.Expect("get post again", get("http://server/"), Status(200))
	})
	v.Describe("no-cache").BehavesAs("cached post")
	v.Describe("proxy-if-miss").BehavesAs("cached post")
	v.Describe("broken").BehavesAs("missing")

	assert.Equal(t, 4, v.Count())
	assert.Error(t, v.Err())
}

func TestCheck(t *testing.T) {
	schemas := schemaSet{"post": true}

	t.Run("valid", func(t *testing.T) {
		v := NewValidator("ok")
		v.Hook("h", func(context.Context, *Env, *Scope) error { return nil })
		v.Describe("n", Before("h")).Expect("x", get("http://server/"), Schema("post", "/"))
		assert.NoError(t, v.Check(schemas))
	})

	t.Run("unknown hook and schema", func(t *testing.T) {
		v := NewValidator("bad")
		v.Describe("n", Before("missing")).Expect("x", get("http://server/"), Schema("nope", "/"))
		err := v.Check(schemas)
		assert.ErrorIs(t, err, ErrUnknownHook)
		assert.ErrorIs(t, err, ErrUnknownSchema)
	})

	t.Run("cycle", func(t *testing.T) {
		v := NewValidator("cycle")
		a := v.Describe("a")
		b := v.Describe("b", DependsOn(a))
		DependsOn(b)(a)
		assert.ErrorIs(t, v.Check(nil), ErrDependencyCycle)
	})
}

type schemaSet map[string]bool

func (s schemaSet) Has(name string) bool { return s[name] }

func TestScopeLayering(t *testing.T) {
	parent := NewScope(nil)
	child := NewScope(parent)
	parent.Set("entity", "https://alice.example")
	child.Set("post", 1)

	v, ok := child.Get("entity")
	assert.True(t, ok)
	assert.Equal(t, "https://alice.example", v)

	_, ok = parent.Get("post")
	assert.False(t, ok)

	child.Set("entity", "https://bob.example")
	assert.Equal(t, "https://bob.example", MustLookup[string](child, "entity"))
	assert.Equal(t, "https://alice.example", MustLookup[string](parent, "entity"))

	_, ok = Lookup[int](child, "entity")
	assert.False(t, ok)
}

func TestRunAgainstHTTPServer(t *testing.T) {
	srv := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"type":"a"},{"type":"b"}]}`))
	}))
	defer srv.Close()

	v := NewValidator("feed")
	n := v.Describe("GET posts_feed")
	n.Expect("partial array", get(srv.URL), Properties("/data", []any{map[string]any{"type": "a"}}))
	n.Expect("pinned length", get(srv.URL),
		Properties("/data", []any{map[string]any{"type": "a"}}),
		PropertyLength("/data", 1))

	tree, err := v.Run(context.Background(), &Env{Client: http.NewClient()})
	require.NoError(t, err)
	recs := records(t, tree)
	require.Len(t, recs, 2)
	assert.True(t, recs[0].Passed())
	assert.False(t, recs[1].Passed())
}
