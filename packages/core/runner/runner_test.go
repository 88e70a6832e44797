package runner

import (
	"context"
	"errors"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/tentspec/packages/assertions"
	"github.com/abdul-hamid-achik/tentspec/packages/correlator"
	"github.com/abdul-hamid-achik/tentspec/packages/http"
	"github.com/abdul-hamid-achik/tentspec/packages/results"
	"github.com/abdul-hamid-achik/tentspec/packages/spec"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		switch r.URL.Path {
		case "/hello":
			_, _ = w.Write([]byte("hello world"))
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status": "ok", "items": [1, 2, 3]}`))
		default:
			w.WriteHeader(stdhttp.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func get(url string) spec.Builder {
	return func(*spec.Call) (*http.Request, error) {
		return http.NewRequest("GET", url), nil
	}
}

func newRunner(srv *httptest.Server, cfg *Config) *Runner {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Env = &spec.Env{Client: http.NewClient(), Server: srv.URL}
	return NewRunner(cfg)
}

func TestNewRunner(t *testing.T) {
	t.Run("with nil config", func(t *testing.T) {
		r := NewRunner(nil)
		assert.NotNil(t, r)
		assert.NotNil(t, r.config.Env)
		assert.NotNil(t, r.logger)
	})

	t.Run("logger reaches env", func(t *testing.T) {
		r := NewRunner(&Config{Env: &spec.Env{}})
		assert.NotNil(t, r.config.Env.Logger)
	})
}

func TestRunner_Run(t *testing.T) {
	srv := newServer(t)

	v := spec.NewValidator("hello")
	v.Describe("GET /hello").Expect("says hello", get(srv.URL+"/hello"), spec.Status(200), spec.Body("hello world"))
	v.Describe("GET /json").Expect("lists items", get(srv.URL+"/json"),
		spec.Properties("/status", "ok"), spec.PropertyLength("/items", 3))

	var marks int
	r := newRunner(srv, &Config{OnRecord: func([]string, *results.Record) { marks++ }})
	result, err := r.Run(context.Background(), []*spec.Validator{v})
	require.NoError(t, err)

	summary := result.Results.Summary()
	assert.Equal(t, 2, summary.Passed)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 2, marks)
	assert.Equal(t, []string{"hello"}, result.Validators)
	assert.Equal(t, int64(2), result.Latency.Overall().Count)
}

func TestRunner_Run_WithFailingAssertion(t *testing.T) {
	srv := newServer(t)

	v := spec.NewValidator("goodbye")
	v.Describe("GET /hello").Expect("says goodbye", get(srv.URL+"/hello"), spec.Body("goodbye"))

	result, err := newRunner(srv, nil).Run(context.Background(), []*spec.Validator{v})
	require.NoError(t, err)
	assert.True(t, result.Results.Failed())

	node, ok := result.Results.Tree().Get("goodbye")
	require.True(t, ok)
	node, ok = node.Get("GET /hello")
	require.True(t, ok)
	require.Len(t, node.Results, 1)
	diff := node.Results[0].Expected[0].Diff
	require.Len(t, diff, 1)
	assert.Equal(t, "/body", diff[0].Path)
	assert.Equal(t, "hello world", diff[0].Actual)
}

func TestRunner_SetupFailure(t *testing.T) {
	srv := newServer(t)

	t.Run("unstructured is reported and skipped", func(t *testing.T) {
		v := spec.NewValidator("broken")
		n := v.Describe("setup", spec.Setup(func(context.Context, *spec.Env, *spec.Scope) error {
			return errors.New("could not create fixture")
		}))
		n.Expect("never runs", get(srv.URL+"/hello"))
		n.Expect("never runs either", get(srv.URL+"/hello"))

		var reported *spec.SetupFailure
		r := newRunner(srv, &Config{OnSetupFailure: func(sf *spec.SetupFailure) { reported = sf }})
		result, err := r.Run(context.Background(), []*spec.Validator{v})
		require.NoError(t, err)

		require.NotNil(t, reported)
		assert.Equal(t, "broken", reported.Validator)
		assert.Contains(t, reported.Message, "could not create fixture")
		assert.Equal(t, 2, result.Results.NumSkipped())
	})

	t.Run("structured is recorded", func(t *testing.T) {
		v := spec.NewValidator("structured")
		n := v.Describe("update")
		n.Expect("update profile", get(srv.URL+"/json"), spec.Status(200)).
			After(func(resp *http.Response, _ []*assertions.Result, _ *spec.Scope) error {
				scored := assertions.EvaluateAll(resp, []*assertions.Assertion{assertions.PropertyLength("/items", 5)})
				return spec.Failf(resp, "profile not updated").WithResults(scored)
			})
		n.Expect("skipped", get(srv.URL+"/json"))

		result, err := newRunner(srv, nil).Run(context.Background(), []*spec.Validator{v})
		require.NoError(t, err)

		summary := result.Results.Summary()
		assert.Equal(t, 1, summary.Failed)
		assert.Equal(t, 1, summary.Skipped)
	})
}

func TestRunner_IncompleteDependencyCountsAsSkipped(t *testing.T) {
	srv := newServer(t)

	v := spec.NewValidator("ordering")
	feed := v.Describe("feed")
	later := v.Root().Context("later", nil)
	feed.Context("blocked", func(n *spec.Node) {
		n.Expect("never runs", get(srv.URL+"/hello"))
	}, spec.DependsOn(later))
	feed.Expect("runs", get(srv.URL+"/hello"), spec.Status(200))
	later.Expect("runs after", get(srv.URL+"/hello"), spec.Status(200))

	result, err := newRunner(srv, nil).Run(context.Background(), []*spec.Validator{v})
	require.NoError(t, err)

	summary := result.Results.Summary()
	assert.Equal(t, 2, summary.Passed)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)
}

func TestRunner_CheckFailsFast(t *testing.T) {
	srv := newServer(t)

	v := spec.NewValidator("bad")
	v.Describe("node", spec.Before("missing")).Expect("x", get(srv.URL+"/hello"))

	_, err := newRunner(srv, nil).Run(context.Background(), []*spec.Validator{v})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValidators)
	assert.ErrorIs(t, err, spec.ErrUnknownHook)
}

func TestRunner_Select(t *testing.T) {
	names := []string{"PostsFeedValidator", "NewPostValidator", "MetaProfileValidator"}
	var validators []*spec.Validator
	for _, n := range names {
		validators = append(validators, spec.NewValidator(n))
	}

	tests := []struct {
		filter []string
		want   []string
	}{
		{nil, names},
		{[]string{"NewPostValidator"}, []string{"NewPostValidator"}},
		{[]string{"*Post*"}, []string{"PostsFeedValidator", "NewPostValidator"}},
		{[]string{"Meta*", "*Feed*"}, []string{"PostsFeedValidator", "MetaProfileValidator"}},
	}
	for _, tt := range tests {
		r := NewRunner(&Config{NameFilter: tt.filter})
		var got []string
		for _, v := range r.Select(validators) {
			got = append(got, v.Name())
		}
		assert.Equal(t, tt.want, got, "filter %v", tt.filter)
	}
}

func TestRunner_DrainsCorrelator(t *testing.T) {
	srv := newServer(t)
	c := correlator.New(correlator.WithTimeout(50*time.Millisecond), correlator.WithTick(10*time.Millisecond))

	v := spec.NewValidator("async")
	v.Describe("notify").Expect("server calls back", func(call *spec.Call) (*http.Request, error) {
		call.ExpectRequest(correlator.RequestMatcher{Method: "HEAD", Path: "/"})
		return http.NewRequest("GET", srv.URL+"/hello"), nil
	})

	r := newRunner(srv, nil)
	r.config.Env.Correlator = c
	result, err := r.Run(context.Background(), []*spec.Validator{v})
	require.NoError(t, err)

	summary := result.Results.Summary()
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, c.Outstanding())
}

func TestWaitForServer(t *testing.T) {
	srv := newServer(t)

	t.Run("ready", func(t *testing.T) {
		r := newRunner(srv, &Config{WaitFor: time.Second, WaitInterval: 10 * time.Millisecond})
		assert.NoError(t, r.waitForServer(context.Background(), srv.URL+"/hello"))
	})

	t.Run("never ready", func(t *testing.T) {
		failing := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, _ *stdhttp.Request) {
			w.WriteHeader(stdhttp.StatusServiceUnavailable)
		}))
		defer failing.Close()

		r := newRunner(failing, &Config{WaitFor: 50 * time.Millisecond, WaitInterval: 10 * time.Millisecond})
		err := r.waitForServer(context.Background(), failing.URL)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrServerUnavailable)
		assert.Contains(t, err.Error(), "got status 503")
	})
}

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		want    bool
	}{
		{"PostsFeedValidator", "", true},
		{"PostsFeedValidator", "PostsFeedValidator", true},
		{"PostsFeedValidator", "Posts*", true},
		{"PostsFeedValidator", "*Validator", true},
		{"PostsFeedValidator", "*Feed*", true},
		{"PostsFeedValidator", "*Meta*", false},
		{"PostsFeedValidator", "NewPost*", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchesPattern(tt.name, tt.pattern), "%s ~ %s", tt.name, tt.pattern)
	}
}
