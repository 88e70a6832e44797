package validators

import (
	"context"
	"errors"
	"regexp"

	"github.com/abdul-hamid-achik/tentspec/packages/assertions"
	"github.com/abdul-hamid-achik/tentspec/packages/correlator"
	"github.com/abdul-hamid-achik/tentspec/packages/db"
	"github.com/abdul-hamid-achik/tentspec/packages/http"
	"github.com/abdul-hamid-achik/tentspec/packages/match"
	"github.com/abdul-hamid-achik/tentspec/packages/peer"
	"github.com/abdul-hamid-achik/tentspec/packages/spec"
	"github.com/abdul-hamid-achik/tentspec/packages/tent"
	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

// ErrNoPeer is recorded when the request proxy validator is built without
// an embedded peer.
var ErrNoPeer = errors.New("embedded peer required")

// Client kinds stored under "client" in scope.
const (
	appAuth = "app_auth"
	noAuth  = "no_auth"
)

type proxyState struct {
	user     *db.User
	uncached *value.Object
	cached   *value.Object
	// post is the latest remote post referencing a local one.
	post *value.Object
}

// RequestProxy checks that the server under test fetches posts of a
// foreign entity, hosted by the embedded peer, according to Cache-Control.
func RequestProxy(d Deps) *spec.Validator {
	v := spec.NewValidator("RequestProxyValidator")
	if d.Peer == nil {
		v.AddError(ErrNoPeer)
		return v
	}
	p := d.Peer
	status := generator(v, d.Fixtures, "post", "status")
	profile := generator(v, d.Fixtures, "profile", "default")
	st := &proxyState{}

	registerProxyExamples(v, p, st)

	root := v.Describe("foreign entity", spec.Setup(func(ctx context.Context, _ *spec.Env, _ *spec.Scope) error {
		u, err := p.CreateUser(ctx, "")
		if err != nil {
			return spec.Failf(nil, "failed to create local user: %v", err)
		}
		st.user = u
		return nil
	}))

	dataOK := []spec.ExpectOption{spec.Status(200), spec.Schema("data", "")}

	root.Expect("updates local meta profile", func(c *spec.Call) (*http.Request, error) {
		meta, err := p.Post(c.Context(), st.user.Entity, st.user.MetaPostID)
		if err != nil {
			return nil, spec.Failf(nil, "loading local meta post: %v", err)
		}
		data := value.Clone(meta).(*value.Object)
		data.Set("version", value.NewObject(value.O("parents", value.Array{value.NewObject(
			value.O("version", value.String(str(meta, "/version/id"))),
			value.O("post", value.String(str(meta, "/id"))),
		)})))
		setAt(data, "/content/profile", profile())

		expected := value.ToGo(data).(map[string]any)
		expected["version"] = map[string]any{"parents": []any{map[string]any{
			"version": str(meta, "/version/id"),
			"post":    match.Absent,
		}}}
		expected["permissions"] = match.Absent
		delete(expected, "published_at")
		expected["attachments"] = expectedAttachments([]*http.Attachment{avatar})
		c.Expect(assertions.Properties("/post", expected))

		return local(st.user).UpdatePost(st.user.Entity, st.user.MetaPostID, typeOf(meta), data, avatar)
	}, append(dataOK, spec.Schema("post", "/post"), spec.Schema("post_meta", "/post/content"))...)

	createLocal := func(desc string, keep func(*value.Object)) {
		root.Expect(desc, func(c *spec.Call) (*http.Request, error) {
			data := status()
			expected := value.Clone(data).(*value.Object)
			expected.Delete("permissions")
			c.Expect(assertions.Properties("/post", expected))
			return local(st.user).NewPost(typeOf(data), data)
		}, dataOK...).After(func(resp *http.Response, scored []*assertions.Result, _ *spec.Scope) error {
			if err := failIfInvalid(resp, scored, "Failed to create post on local server"); err != nil {
				return err
			}
			post, ok := postOf(resp)
			if !ok {
				return spec.Failf(resp, "local server returned no post")
			}
			post.Delete("received_at")
			if ver, ok := post.Get("version"); ok {
				if vo, ok := ver.(*value.Object); ok {
					vo.Delete("received_at")
				}
			}
			keep(post)
			return nil
		})
	}
	createLocal("creates uncached local post", func(post *value.Object) { st.uncached = post })
	createLocal("creates cached local post", func(post *value.Object) { st.cached = post })

	root.Expect("delivers cached post to remote", func(c *spec.Call) (*http.Request, error) {
		post := st.cached
		return remote(c.Env()).ImportPost(str(post, "/entity"), str(post, "/id"), typeOf(post), post)
	}, dataOK...).After(func(resp *http.Response, scored []*assertions.Result, _ *spec.Scope) error {
		return failIfInvalid(resp, scored, "Failed to deliver post notification on remote server")
	})

	getPostScenario(root, st)
	refsScenario(root, st, status)
	profilesScenario(root, st)

	return v
}

// local addresses the peer as user. Its requests carry the marker header so
// the correlator ignores them.
func local(u *db.User) tent.Server {
	return tent.Server{
		Base:    u.Entity,
		Headers: map[string]string{correlator.DefaultMarkerHeader: "1"},
	}
}

// with sets key in the node's scope when it starts.
func with(key string, v any) spec.NodeOption {
	return spec.Setup(func(_ context.Context, _ *spec.Env, s *spec.Scope) error {
		s.Set(key, v)
		return nil
	})
}

// client is the remote server as the scope's client kind, sending the
// scope's Cache-Control.
func client(c *spec.Call) tent.Server {
	srv := remote(c.Env())
	if kind, _ := spec.Lookup[string](c.Scope(), "client"); kind == noAuth {
		srv = srv.WithoutAuth()
	}
	if cc, _ := spec.Lookup[string](c.Scope(), "cache_control"); cc != "" {
		srv.Headers = map[string]string{"Cache-Control": cc}
	}
	return srv
}

func cacheControl(cc string) string {
	return "with `Cache-Control: " + cc + "`"
}

// expectProxied declares the requests a proxying server makes to the
// peer: discovery of u followed by a GET of each post.
func expectProxied(c *spec.Call, u *db.User, meta *value.Object, posts ...*value.Object) {
	c.Watch(u.Name)

	origin := regexp.MustCompile(`\A` + regexp.QuoteMeta(u.Entity))
	accept := map[string]any{"Accept": regexp.MustCompile(`\A` + regexp.QuoteMeta(tent.PostMIME))}
	postPath := func(id string) *regexp.Regexp {
		return regexp.MustCompile(`(?i)\A` + regexp.QuoteMeta(tent.PostPath(u.Entity, id)) + `\z`)
	}

	c.ExpectRequest(correlator.RequestMatcher{Method: "HEAD", URL: origin, Path: "/"})
	for _, post := range append([]*value.Object{meta}, posts...) {
		c.ExpectRequest(correlator.RequestMatcher{
			Method:  "GET",
			URL:     origin,
			Path:    postPath(str(post, "/id")),
			Headers: accept,
		}).ExpectResponse(
			assertions.Status(200),
			assertions.Schema("data", ""),
			assertions.Properties("/post", post),
		)
	}
}

// profileOf is the profile a server returns for meta, including the
// avatar digest.
func profileOf(meta *value.Object) map[string]any {
	out := map[string]any{}
	if p, ok := value.Lookup(meta, "/content/profile"); ok {
		if m, ok := value.ToGo(p).(map[string]any); ok {
			out = m
		}
	}
	if atts, ok := value.Lookup(meta, "/attachments"); ok {
		if list, ok := atts.(value.Array); ok {
			for _, a := range list {
				if str(a, "/category") == "avatar" {
					out["avatar_digest"] = str(a, "/digest")
				}
			}
		}
	}
	return out
}

// withoutReceivedAt is post as seen by a client that is not an app.
func withoutReceivedAt(post *value.Object) map[string]any {
	m := value.ToGo(post).(map[string]any)
	m["received_at"] = match.Absent
	if ver, ok := m["version"].(map[string]any); ok {
		ver["received_at"] = match.Absent
	}
	return m
}

func feedPost(c *spec.Call, post *value.Object) any {
	if isApp, _ := spec.Lookup[bool](c.Scope(), "is_app"); isApp {
		return post
	}
	return withoutReceivedAt(post)
}

func registerProxyExamples(v *spec.Validator, p *peer.Server, st *proxyState) {
	metaOf := func(c *spec.Call) (*value.Object, error) {
		meta, err := p.Post(c.Context(), st.user.Entity, st.user.MetaPostID)
		if err != nil {
			return nil, spec.Failf(nil, "loading local meta post: %v", err)
		}
		return meta, nil
	}
	dataOK := []spec.ExpectOption{spec.Status(200), spec.Schema("data", "")}

	v.SharedExample("get_post_via_proxy", func(n *spec.Node) {
		n.Expect("fetches post via proxy", func(c *spec.Call) (*http.Request, error) {
			post, err := need[*value.Object](c.Scope(), "post")
			if err != nil {
				return nil, err
			}
			meta, err := metaOf(c)
			if err != nil {
				return nil, err
			}
			c.Expect(assertions.Properties("/post", post))
			expectProxied(c, st.user, meta, post)
			return client(c).GetPost(str(post, "/entity"), str(post, "/id"), ""), nil
		}, dataOK...)
	})

	v.SharedExample("get_post_without_proxy", func(n *spec.Node) {
		n.Expect("fetches cached post", func(c *spec.Call) (*http.Request, error) {
			post, err := need[*value.Object](c.Scope(), "post")
			if err != nil {
				return nil, err
			}
			c.Expect(assertions.Properties("/post", post))
			return client(c).GetPost(str(post, "/entity"), str(post, "/id"), ""), nil
		}, dataOK...)
	})

	v.SharedExample("get_post_not_found", func(n *spec.Node) {
		n.Expect("does not find post", getScopePost, spec.Status(404), spec.Schema("error", ""))
	})

	refs := func(c *spec.Call) (*value.Object, *value.Object, error) {
		reffed, err := need[*value.Object](c.Scope(), "reffed_post")
		if err != nil {
			return nil, nil, err
		}
		if st.post == nil {
			return nil, nil, spec.Failf(nil, "no remote post referencing %s", str(reffed, "/id"))
		}
		return st.post, reffed, nil
	}
	refsFeed := func(c *spec.Call) *http.Request {
		return client(c).PostsFeed(tent.FeedParams{Limit: 1, MaxRefs: 1})
	}

	v.SharedExample("refs_via_proxy", func(n *spec.Node) {
		n.Expect("fetches reffed post via proxy", func(c *spec.Call) (*http.Request, error) {
			post, reffed, err := refs(c)
			if err != nil {
				return nil, err
			}
			meta, err := metaOf(c)
			if err != nil {
				return nil, err
			}
			c.Expect(
				assertions.Properties("/posts", []any{feedPost(c, post)}),
				assertions.Properties("/refs", []any{reffed}),
			)
			expectProxied(c, st.user, meta, reffed)
			return refsFeed(c), nil
		}, dataOK...)
	})

	v.SharedExample("refs_without_proxy", func(n *spec.Node) {
		n.Expect("returns cached reffed post", func(c *spec.Call) (*http.Request, error) {
			post, reffed, err := refs(c)
			if err != nil {
				return nil, err
			}
			c.Expect(
				assertions.Properties("/posts", []any{feedPost(c, post)}),
				assertions.Properties("/refs", []any{withoutReceivedAt(reffed)}),
			)
			return refsFeed(c), nil
		}, dataOK...)
	})

	v.SharedExample("refs_none", func(n *spec.Node) {
		n.Expect("returns no refs", func(c *spec.Call) (*http.Request, error) {
			post, _, err := refs(c)
			if err != nil {
				return nil, err
			}
			c.Expect(
				assertions.Properties("/posts", []any{feedPost(c, post)}),
				assertions.Properties("/refs", []any{}),
			)
			return refsFeed(c), nil
		}, dataOK...)
	})

	profilesFeed := func(c *spec.Call) *http.Request {
		return client(c).PostsFeed(tent.FeedParams{Limit: 1, Profiles: "entity", Entities: []string{st.user.Entity}})
	}
	profiles := func(proxied bool) func(n *spec.Node) {
		return func(n *spec.Node) {
			n.Expect("returns entity profile", func(c *spec.Call) (*http.Request, error) {
				post, err := need[*value.Object](c.Scope(), "post")
				if err != nil {
					return nil, err
				}
				meta, err := metaOf(c)
				if err != nil {
					return nil, err
				}
				c.Expect(
					assertions.Properties("/posts", []any{feedPost(c, post)}),
					assertions.Properties("/profiles", map[string]any{st.user.Entity: profileOf(meta)}),
				)
				if proxied {
					expectProxied(c, st.user, meta)
				}
				return profilesFeed(c), nil
			}, dataOK...)
		}
	}
	v.SharedExample("profiles_via_proxy", profiles(true))
	v.SharedExample("profiles_without_proxy", profiles(false))

	v.SharedExample("profiles_none", func(n *spec.Node) {
		n.Expect("returns no profiles", func(c *spec.Call) (*http.Request, error) {
			post, err := need[*value.Object](c.Scope(), "post")
			if err != nil {
				return nil, err
			}
			posts := []any{}
			if isApp, _ := spec.Lookup[bool](c.Scope(), "is_app"); isApp {
				posts = []any{post}
			}
			c.Expect(
				assertions.Properties("/posts", posts),
				assertions.Properties("/profiles", map[string]any{}),
			)
			return profilesFeed(c), nil
		}, dataOK...)
	})
}

func getScopePost(c *spec.Call) (*http.Request, error) {
	post, err := need[*value.Object](c.Scope(), "post")
	if err != nil {
		return nil, err
	}
	return client(c).GetPost(str(post, "/entity"), str(post, "/id"), ""), nil
}

// cacheMatrix expands one shared example per Cache-Control value for an
// app authorized client, and the none example for an unauthenticated one.
func cacheMatrix(n *spec.Node, noCache, proxyIfMiss, onlyIfCached, none string) {
	n.Context("when app authorized", func(n *spec.Node) {
		n.Context(cacheControl(tent.NoCache), func(n *spec.Node) { n.BehavesAs(noCache) }, with("cache_control", tent.NoCache))
		n.Context(cacheControl(tent.ProxyIfMiss), func(n *spec.Node) { n.BehavesAs(proxyIfMiss) }, with("cache_control", tent.ProxyIfMiss))
		n.Context(cacheControl(tent.OnlyIfCached), func(n *spec.Node) { n.BehavesAs(onlyIfCached) }, with("cache_control", tent.OnlyIfCached))
	}, with("client", appAuth), with("is_app", true))

	n.Context("when not authenticated", func(n *spec.Node) {
		for _, cc := range []string{tent.NoCache, tent.ProxyIfMiss, tent.OnlyIfCached} {
			n.Context(cacheControl(cc), func(n *spec.Node) { n.BehavesAs(none) }, with("cache_control", cc))
		}
	}, with("client", noAuth), with("is_app", false))
}

func getPostScenario(root *spec.Node, st *proxyState) {
	g := root.Describe("GET post when foreign entity")
	notFound := []spec.ExpectOption{spec.Status(404), spec.Schema("error", "")}

	g.Context("when post not cached", func(n *spec.Node) {
		n.Context("when app authorized", func(n *spec.Node) {
			n.Context(cacheControl(tent.NoCache), func(n *spec.Node) {
				n.BehavesAs("get_post_via_proxy")
			}, with("cache_control", tent.NoCache))
			n.Context(cacheControl(tent.ProxyIfMiss), func(n *spec.Node) {
				n.BehavesAs("get_post_via_proxy")
			}, with("cache_control", tent.ProxyIfMiss))
			n.Context(cacheControl(tent.OnlyIfCached)+" (default)", func(n *spec.Node) {
				n.Expect("does not find post", getScopePost, notFound...)
			}, with("cache_control", tent.OnlyIfCached))
			n.Context("without `Cache-Control`", func(n *spec.Node) {
				n.Expect("does not find post", getScopePost, notFound...)
			})
		}, with("client", appAuth))

		n.Context("without authentication", func(n *spec.Node) {
			n.Expect("does not find post", getScopePost, notFound...)
			n.Context(cacheControl(tent.NoCache), func(n *spec.Node) {
				n.Expect("does not find post", getScopePost, notFound...)
			}, with("cache_control", tent.NoCache))
		}, with("client", noAuth))
	}, spec.Setup(func(_ context.Context, _ *spec.Env, s *spec.Scope) error {
		s.Set("post", st.uncached)
		return nil
	}))

	g.Context("when post cached", func(n *spec.Node) {
		n.Context("when app authorized", func(n *spec.Node) {
			n.Context(cacheControl(tent.NoCache), func(n *spec.Node) {
				n.BehavesAs("get_post_via_proxy")
			}, with("cache_control", tent.NoCache))
			n.Context(cacheControl(tent.ProxyIfMiss), func(n *spec.Node) {
				n.BehavesAs("get_post_without_proxy")
			}, with("cache_control", tent.ProxyIfMiss))
			n.Context(cacheControl(tent.OnlyIfCached)+" (default)", func(n *spec.Node) {
				n.BehavesAs("get_post_without_proxy")
			}, with("cache_control", tent.OnlyIfCached))
		}, with("client", appAuth))

		n.Context("when not authenticated", func(n *spec.Node) {
			n.BehavesAs("get_post_not_found")
		}, with("client", noAuth))
	}, spec.Setup(func(_ context.Context, _ *spec.Env, s *spec.Scope) error {
		s.Set("post", st.cached)
		return nil
	}))
}

func refsScenario(root *spec.Node, st *proxyState, status func() *value.Object) {
	r := root.Describe("GET posts_feed refs")

	reffing := func(n *spec.Node) {
		n.Expect("creates post referencing local post", func(c *spec.Call) (*http.Request, error) {
			reffed, err := need[*value.Object](c.Scope(), "reffed_post")
			if err != nil {
				return nil, err
			}
			data := status()
			data.Set("refs", value.Array{value.NewObject(
				value.O("entity", value.String(str(reffed, "/entity"))),
				value.O("post", value.String(str(reffed, "/id"))),
				value.O("type", value.String(str(reffed, "/type"))),
			)})
			expected := value.Clone(data).(*value.Object)
			expected.Delete("permissions")
			c.Expect(assertions.Properties("/post", expected))
			return remote(c.Env()).NewPost(typeOf(data), data)
		}, spec.Status(200), spec.Schema("data", "")).
			After(func(resp *http.Response, scored []*assertions.Result, _ *spec.Scope) error {
				if err := failIfInvalid(resp, scored, "Failed to create post on remote server"); err != nil {
					return err
				}
				st.post, _ = postOf(resp)
				return nil
			})
	}
	reffedPost := func(pick func() *value.Object) spec.NodeOption {
		return spec.Setup(func(_ context.Context, _ *spec.Env, s *spec.Scope) error {
			s.Set("reffed_post", pick())
			return nil
		})
	}

	r.Context("when not cached", func(n *spec.Node) {
		reffing(n)
		cacheMatrix(n, "refs_via_proxy", "refs_via_proxy", "refs_none", "refs_none")
	}, reffedPost(func() *value.Object { return st.uncached }))

	r.Context("when cached", func(n *spec.Node) {
		reffing(n)
		cacheMatrix(n, "refs_via_proxy", "refs_without_proxy", "refs_without_proxy", "refs_none")
	}, reffedPost(func() *value.Object { return st.cached }))
}

func profilesScenario(root *spec.Node, st *proxyState) {
	p := root.Describe("GET posts_feed profiles", spec.Setup(func(_ context.Context, _ *spec.Env, s *spec.Scope) error {
		s.Set("post", st.cached)
		return nil
	}))

	p.Context("when not cached", func(n *spec.Node) {
		cacheMatrix(n, "profiles_via_proxy", "profiles_via_proxy", "profiles_none", "profiles_none")
	})

	p.Context("when cached", func(n *spec.Node) {
		n.Expect("delivers local meta post to remote", func(c *spec.Call) (*http.Request, error) {
			meta, err := c.Env().Client.Do(c.Context(), local(st.user).GetPost(st.user.Entity, st.user.MetaPostID, ""))
			if err != nil {
				return nil, spec.Failf(nil, "loading local meta post: %v", err)
			}
			post, ok := postOf(meta)
			if !ok {
				return nil, spec.Failf(meta, "local meta post has no post")
			}
			// Keep it below the other posts in the feed.
			post.Set("received_at", value.Number(0))
			setAt(post, "/version/received_at", value.Number(0))
			return remote(c.Env()).ImportPost(st.user.Entity, st.user.MetaPostID, typeOf(post), post, avatar)
		}, spec.Status(200), spec.Schema("data", "")).
			After(func(resp *http.Response, scored []*assertions.Result, _ *spec.Scope) error {
				return failIfInvalid(resp, scored, "Failed to deliver post notification on remote server")
			})

		cacheMatrix(n, "profiles_via_proxy", "profiles_without_proxy", "profiles_without_proxy", "profiles_none")
	})
}
