package validators

import (
	"context"

	"github.com/abdul-hamid-achik/tentspec/packages/assertions"
	"github.com/abdul-hamid-achik/tentspec/packages/http"
	"github.com/abdul-hamid-achik/tentspec/packages/match"
	"github.com/abdul-hamid-achik/tentspec/packages/spec"
	"github.com/abdul-hamid-achik/tentspec/packages/tent"
	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

// metaState is shared by every node of the validator. Later expectations
// read what earlier ones stored.
type metaState struct {
	meta       *value.Object
	expected   map[string]any
	profile    map[string]any
	post       *value.Object
	parentPost *value.Object
}

var avatar = &http.Attachment{
	Category:    "avatar",
	Name:        "fictitious.png",
	ContentType: "image/png",
	Data:        []byte("Fake image data"),
}

// MetaProfile updates the remote meta post with a profile and checks that
// the profile is expanded by the profiles query parameter.
func MetaProfile(d Deps) *spec.Validator {
	v := spec.NewValidator("MetaProfileValidator")
	profile := generator(v, d.Fixtures, "profile", "default")
	status := generator(v, d.Fixtures, "post", "status")

	st := &metaState{}
	dataOK := []spec.ExpectOption{spec.Status(200), spec.Schema("data", "")}
	postOK := append(dataOK, spec.Schema("post", "/post"), spec.Schema("post_status", "/post/content"))

	root := v.Describe("Meta profile", spec.Setup(func(ctx context.Context, env *spec.Env, _ *spec.Scope) error {
		req, err := discover(ctx, env, remote(env).WithoutAuth())
		if err != nil {
			return spec.Failf(nil, "%v", err)
		}
		meta, err := send(ctx, env, req, "fetch meta post")
		if err != nil {
			return err
		}
		st.meta = meta
		return nil
	}))

	update := root.Context("profile update", func(n *spec.Node) {
		n.Expect("updates meta post", func(c *spec.Call) (*http.Request, error) {
			meta := st.meta
			if meta == nil {
				return nil, spec.Failf(nil, "remote meta post unknown")
			}
			parent := value.NewObject(
				value.O("version", value.String(str(meta, "/version/id"))),
				value.O("post", value.String(str(meta, "/id"))),
			)
			data := value.Clone(meta).(*value.Object)
			data.Set("version", value.NewObject(value.O("parents", value.Array{parent})))
			p := profile()
			setAt(data, "/content/profile", p)

			expected := value.ToGo(data).(map[string]any)
			expected["version"] = map[string]any{"parents": []any{map[string]any{
				"version": str(meta, "/version/id"),
				"post":    match.Absent,
			}}}
			expected["permissions"] = match.Absent
			delete(expected, "published_at")
			expected["attachments"] = expectedAttachments([]*http.Attachment{avatar})
			st.expected = expected

			st.profile = value.ToGo(p).(map[string]any)
			st.profile["avatar_digest"] = tent.Digest(avatar.Data)

			c.Expect(assertions.Properties("/post", expected))
			return remote(c.Env()).UpdatePost(str(meta, "/entity"), str(meta, "/id"), typeOf(meta), data, avatar)
		}, append(dataOK, spec.Schema("post", "/post"), spec.Schema("post_meta", "/post/content"))...).
			After(func(resp *http.Response, _ []*assertions.Result, _ *spec.Scope) error {
				if resp.StatusCode == 200 {
					if post, ok := postOf(resp); ok {
						st.meta = post
					}
				}
				return nil
			})

		n.Expect("discovers updated meta post", func(c *spec.Call) (*http.Request, error) {
			if st.expected == nil {
				return nil, spec.Failf(nil, "meta post was not updated")
			}
			c.Expect(assertions.Properties("/post", st.expected))
			return discover(c.Context(), c.Env(), remote(c.Env()).WithoutAuth())
		}, append(dataOK, spec.Schema("post", "/post"), spec.Schema("post_meta", "/post/content"))...)
	})

	root.Context("GET post", func(n *spec.Node) {
		get := func(srv tent.Server, post *value.Object, profiles string) *http.Request {
			return srv.GetPost(str(post, "/entity"), str(post, "/id"), profiles)
		}
		profileScenario(n, st, status, get, postOK)

		n.Context("with children accept header", func(n *spec.Node) {
			n.Expect("expands entity profile", func(c *spec.Call) (*http.Request, error) {
				parent := st.parentPost
				if parent == nil {
					return nil, spec.Failf(nil, "no parent post")
				}
				c.Expect(
					assertions.Properties("/profiles", map[string]any{str(parent, "/entity"): st.profile}),
					assertions.PropertyLength("/versions", 1),
				)
				return remote(c.Env()).Children(str(parent, "/entity"), str(parent, "/id"), str(parent, "/version/id"), "entity"), nil
			}, dataOK...)
		})

		n.Context("with mentions accept header", func(n *spec.Node) {
			n.Expect("creates post mentioning post", func(c *spec.Call) (*http.Request, error) {
				post, err := current(st)
				if err != nil {
					return nil, err
				}
				data := status()
				data.Set("mentions", value.Array{value.NewObject(
					value.O("entity", value.String(str(post, "/entity"))),
					value.O("post", value.String(str(post, "/id"))),
				)})
				expected := value.ToGo(data).(map[string]any)
				expected["permissions"] = match.Absent
				expected["mentions"] = []any{map[string]any{"post": str(post, "/id")}}
				c.Expect(assertions.Properties("/post", expected))
				return remote(c.Env()).NewPost(typeOf(data), data)
			}, postOK...)

			n.Expect("expands entity profile", func(c *spec.Call) (*http.Request, error) {
				post, err := current(st)
				if err != nil {
					return nil, err
				}
				c.Expect(
					assertions.Properties("/profiles", map[string]any{str(post, "/entity"): st.profile}),
					assertions.PropertyLength("/mentions", 1),
				)
				return remote(c.Env()).Mentions(str(post, "/entity"), str(post, "/id"), "entity"), nil
			}, dataOK...)
		})

		n.Context("with versions accept header", func(n *spec.Node) {
			n.Expect("expands entity profile", func(c *spec.Call) (*http.Request, error) {
				post, err := current(st)
				if err != nil {
					return nil, err
				}
				c.Expect(
					assertions.Properties("/profiles", map[string]any{str(post, "/entity"): st.profile}),
					assertions.PropertyLength("/versions", 2),
				)
				return remote(c.Env()).Versions(str(post, "/entity"), str(post, "/id"), "entity"), nil
			}, dataOK...)
		})
	}, spec.DependsOn(update))

	root.Context("GET posts_feed", func(n *spec.Node) {
		list := func(srv tent.Server, _ *value.Object, profiles string) *http.Request {
			return srv.PostsFeed(tent.FeedParams{Profiles: profiles, Limit: 1})
		}
		profileScenario(n, st, status, list, dataOK)
	}, spec.DependsOn(update))

	return v
}

func current(st *metaState) (*value.Object, error) {
	if st.post == nil {
		return nil, spec.Failf(nil, "no post created")
	}
	return st.post, nil
}

// profileScenario creates a post mentioning and referencing the remote
// entity, then a version without either, checking which profiles query
// values expand the author's profile each time.
func profileScenario(n *spec.Node, st *metaState, status func() *value.Object,
	get func(srv tent.Server, post *value.Object, profiles string) *http.Request, ok []spec.ExpectOption) {

	createOK := []spec.ExpectOption{spec.Status(200), spec.Schema("data", ""),
		spec.Schema("post", "/post"), spec.Schema("post_status", "/post/content")}

	expandsProfile := func(profiles string, expand bool) {
		desc := "omits profile with profiles=" + profiles
		if expand {
			desc = "expands profile with profiles=" + profiles
		}
		n.Expect(desc, func(c *spec.Call) (*http.Request, error) {
			post, err := current(st)
			if err != nil {
				return nil, err
			}
			expected := map[string]any{}
			if expand {
				expected[str(post, "/entity")] = st.profile
			}
			c.Expect(assertions.Properties("/profiles", expected))
			return get(remote(c.Env()), post, profiles), nil
		}, ok...)
	}
	keep := func(msg string) spec.AfterFunc {
		return func(resp *http.Response, scored []*assertions.Result, _ *spec.Scope) error {
			if err := failIfInvalid(resp, scored, msg); err != nil {
				return err
			}
			st.post, _ = postOf(resp)
			return nil
		}
	}

	n.Expect("creates post with mentions and refs", func(c *spec.Call) (*http.Request, error) {
		if st.meta == nil {
			return nil, spec.Failf(nil, "remote meta post unknown")
		}
		entity := str(st.meta, "/content/entity")
		data := status()
		data.Set("mentions", value.Array{value.NewObject(value.O("entity", value.String(entity)))})
		data.Set("refs", value.Array{value.NewObject(
			value.O("entity", value.String(entity)),
			value.O("post", value.String(str(st.meta, "/id"))),
		)})

		expected := value.ToGo(data).(map[string]any)
		expected["permissions"] = match.Absent
		expected["mentions"] = []any{map[string]any{}}
		expected["refs"] = []any{map[string]any{"post": str(st.meta, "/id")}}
		c.Expect(assertions.Properties("/post", expected))
		return remote(c.Env()).NewPost(typeOf(data), data)
	}, createOK...).After(keep("Failed to create post"))

	expandsProfile("entity", true)
	expandsProfile("mentions", true)
	expandsProfile("refs", true)
	expandsProfile("permissions", false)
	expandsProfile("parents", false)

	n.Expect("creates version without mentions or refs", func(c *spec.Call) (*http.Request, error) {
		parent, err := current(st)
		if err != nil {
			return nil, err
		}
		st.parentPost = parent

		data := status()
		data.Set("version", value.NewObject(value.O("parents", value.Array{value.NewObject(
			value.O("version", value.String(str(parent, "/version/id"))),
			value.O("post", value.String(str(parent, "/id"))),
		)})))
		expected := value.ToGo(data).(map[string]any)
		expected["permissions"] = match.Absent
		expected["version"] = map[string]any{"parents": []any{map[string]any{
			"version": str(parent, "/version/id"),
		}}}
		c.Expect(assertions.Properties("/post", expected))
		return remote(c.Env()).UpdatePost(str(parent, "/entity"), str(parent, "/id"), typeOf(data), data)
	}, createOK...).After(keep("Failed to create version of post"))

	expandsProfile("parents", true)
	expandsProfile("mentions", false)
	expandsProfile("refs", false)
}
