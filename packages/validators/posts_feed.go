package validators

import (
	"context"
	"strings"

	"github.com/abdul-hamid-achik/tentspec/packages/assertions"
	"github.com/abdul-hamid-achik/tentspec/packages/http"
	"github.com/abdul-hamid-achik/tentspec/packages/spec"
	"github.com/abdul-hamid-achik/tentspec/packages/tent"
	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

// PostsFeed checks the posts_feed endpoint and its filters.
func PostsFeed(d Deps) *spec.Validator {
	v := spec.NewValidator("PostsFeedValidator")

	status := generator(v, d.Fixtures, "post", "status")
	random := generator(v, d.Fixtures, "post", "random")
	reply := generator(v, d.Fixtures, "post", "status_reply")

	v.Hook("create_posts", func(ctx context.Context, env *spec.Env, s *spec.Scope) error {
		docs := []*value.Object{status(), random(), reply(), status()}
		posts := make([]*value.Object, 0, len(docs))
		types := make([]string, len(docs))
		for i, doc := range docs {
			post, err := createPost(ctx, env, doc)
			if err != nil {
				return err
			}
			posts = append(posts, post)
			// newest first
			types[len(docs)-1-i] = typeOf(doc)
		}
		s.Set("posts", posts)
		s.Set("post_types", types)
		return nil
	})

	v.Hook("create_posts_with_mentions", func(ctx context.Context, env *spec.Env, s *spec.Scope) error {
		var posts []*value.Object
		for n := 0; n < 2; n++ {
			ref, err := createPost(ctx, env, status())
			if err != nil {
				return err
			}
			doc := reply()
			doc.Set("mentions", value.Array{value.NewObject(
				value.O("entity", value.String(str(ref, "/entity"))),
				value.O("post", value.String(str(ref, "/id"))),
			)})
			mention, err := createPost(ctx, env, doc)
			if err != nil {
				return err
			}
			posts = append(posts, ref, mention)
		}
		s.Set("posts", posts)
		return nil
	})

	list := func(p tent.FeedParams) spec.Builder {
		return func(c *spec.Call) (*http.Request, error) {
			return remote(c.Env()).PostsFeed(p), nil
		}
	}
	ok := []spec.ExpectOption{spec.Status(200), spec.Schema("data", "")}

	feed := v.Describe("GET posts_feed", spec.Before("create_posts"))

	feed.Context("without params", func(n *spec.Node) {
		n.Expect("lists posts newest first", func(c *spec.Call) (*http.Request, error) {
			types, err := need[[]string](c.Scope(), "post_types")
			if err != nil {
				return nil, err
			}
			c.Expect(assertions.Properties("/posts", typeMatchers(types)))
			return list(tent.FeedParams{})(c)
		}, ok...)
	})

	feed.Context("with type param", func(n *spec.Node) {
		n.Expect("filters by type", func(c *spec.Call) (*http.Request, error) {
			types, err := need[[]string](c.Scope(), "post_types")
			if err != nil {
				return nil, err
			}
			types = []string{types[0], types[len(types)-1]}
			c.Expect(assertions.Properties("/posts", typeMatchers(types)))
			return list(tent.FeedParams{Types: types})(c)
		}, ok...)

		n.Context("when using fragment wildcard", func(n *spec.Node) {
			n.Expect("matches every fragment", func(c *spec.Call) (*http.Request, error) {
				types, err := need[[]string](c.Scope(), "post_types")
				if err != nil {
					return nil, err
				}
				base := tent.TypeBase(typeOf(status()))
				var expected []string
				for _, t := range types {
					if tent.TypeBase(t) == base {
						expected = append(expected, t)
					}
				}
				c.Expect(assertions.Properties("/posts", typeMatchers(expected)))
				return list(tent.FeedParams{Types: []string{base}})(c)
			}, ok...)
		})
	})

	feed.Context("with entities param", func(n *spec.Node) {
		n.Context("when no matching entities", func(n *spec.Node) {
			n.Expect("is empty", list(tent.FeedParams{Entities: []string{fictitiousEntity}}),
				append(ok, spec.Properties("/posts", []any{}))...)
		})

		n.Context("when matching entities", func(n *spec.Node) {
			n.Expect("filters by entity", func(c *spec.Call) (*http.Request, error) {
				posts, err := need[[]*value.Object](c.Scope(), "posts")
				if err != nil {
					return nil, err
				}
				var expected []any
				seen := map[string]bool{}
				var entities []string
				for _, p := range posts {
					e := str(p, "/entity")
					expected = append(expected, map[string]any{"entity": e})
					if !seen[e] {
						seen[e] = true
						entities = append(entities, e)
					}
				}
				c.Expect(assertions.Properties("/posts", expected))
				return list(tent.FeedParams{Entities: entities})(c)
			}, ok...)
		})
	})

	feed.Context("with limit param", func(n *spec.Node) {
		n.Expect("returns limit posts", list(tent.FeedParams{Limit: 2}), append(ok, spec.PropertyLength("/posts", 2))...)
	})

	// Four posts already exist; six more rounds exceed the default page.
	feed.Context("when using default limit", func(n *spec.Node) {
		n.Expect("returns 25 posts", list(tent.FeedParams{}), append(ok, spec.PropertyLength("/posts", 25))...)
	}, spec.Before(repeat("create_posts", 6)...))

	feed.Context("with mentions param", func(n *spec.Node) {
		mentionsFeed(n, list, ok)
	}, spec.Before("create_posts_with_mentions"))

	return v
}

func mentionsFeed(n *spec.Node, list func(tent.FeedParams) spec.Builder, ok []spec.ExpectOption) {
	// posts is [status, reply, status, reply]; each reply mentions the
	// status before it.
	mentions := func(build func(posts []*value.Object) ([]string, []any)) spec.Builder {
		return func(c *spec.Call) (*http.Request, error) {
			posts, err := need[[]*value.Object](c.Scope(), "posts")
			if err != nil {
				return nil, err
			}
			params, expected := build(posts)
			if expected != nil {
				c.Expect(assertions.Properties("/posts", expected))
			}
			return list(tent.FeedParams{Mentions: params})(c)
		}
	}
	entity := func(p []*value.Object) string { return str(p[0], "/entity") }
	withPost := func(p []*value.Object) string { return entity(p) + " " + str(p[0], "/id") }
	either := func(entities ...string) string { return strings.Join(entities, ",") }
	const other = "https://other.fictitious.entity.example.com"

	firstReply := func(p []*value.Object) []any {
		return []any{map[string]any{"mentions": []any{map[string]any{
			"entity": str(p[1], "/mentions/0/entity"),
			"post":   str(p[1], "/mentions/0/post"),
		}}}}
	}
	mentioning := func(p []*value.Object) []any {
		var out []any
		for _, post := range p {
			if e := str(post, "/mentions/0/entity"); e == entity(p) {
				out = append(out, map[string]any{"mentions": []any{map[string]any{"entity": e}}})
			}
		}
		return out
	}
	// Conjunctions are checked for shape only.
	only := func(params func(p []*value.Object) []string) spec.Builder {
		return mentions(func(p []*value.Object) ([]string, []any) { return params(p), nil })
	}

	n.Context("when single param", func(n *spec.Node) {
		n.Context("entity", func(n *spec.Node) {
			n.Expect("returns posts mentioning entity", mentions(func(p []*value.Object) ([]string, []any) {
				return []string{entity(p)}, mentioning(p)
			}), ok...)
		})
		n.Context("entity with post", func(n *spec.Node) {
			n.Expect("returns posts mentioning the post", mentions(func(p []*value.Object) ([]string, []any) {
				return []string{withPost(p)}, firstReply(p)
			}), ok...)
		})
		n.Context("entity OR entity", func(n *spec.Node) {
			n.Expect("returns posts mentioning either", mentions(func(p []*value.Object) ([]string, []any) {
				return []string{either(entity(p), fictitiousEntity)}, mentioning(p)
			}), ok...)
		})
		n.Context("entity OR entity with post", func(n *spec.Node) {
			n.Expect("returns posts mentioning either", mentions(func(p []*value.Object) ([]string, []any) {
				return []string{either(fictitiousEntity, withPost(p))}, firstReply(p)
			}), ok...)
		})
	})

	n.Context("when multiple params", func(n *spec.Node) {
		n.Context("entity AND entity", func(n *spec.Node) {
			n.Expect("requires every mention", only(func(p []*value.Object) []string {
				return []string{fictitiousEntity, entity(p)}
			}), ok...)
		})
		n.Context("entity AND entity with post", func(n *spec.Node) {
			n.Expect("matches both", only(func(p []*value.Object) []string {
				return []string{entity(p), withPost(p)}
			}), ok...)
			n.Expect("matches one", only(func(p []*value.Object) []string {
				return []string{fictitiousEntity, withPost(p)}
			}), ok...)
		})
		n.Context("(entity OR entity) AND entity", func(n *spec.Node) {
			n.Expect("matches both", only(func(p []*value.Object) []string {
				return []string{either(fictitiousEntity, entity(p)), entity(p)}
			}), ok...)
			n.Expect("matches one", only(func(p []*value.Object) []string {
				return []string{either(fictitiousEntity, other), entity(p)}
			}), ok...)
		})
		n.Context("(entity OR entity) AND (entity OR entity)", func(n *spec.Node) {
			n.Expect("matches both", only(func(p []*value.Object) []string {
				return []string{either(fictitiousEntity, entity(p)), either(fictitiousEntity, entity(p))}
			}), ok...)
			n.Expect("matches one", only(func(p []*value.Object) []string {
				return []string{either(fictitiousEntity, other), either(fictitiousEntity, entity(p))}
			}), ok...)
		})
		n.Context("(entity OR entity) AND entity with post", func(n *spec.Node) {
			n.Expect("matches one", only(func(p []*value.Object) []string {
				return []string{either(fictitiousEntity, other), withPost(p)}
			}), ok...)
			n.Expect("matches both", only(func(p []*value.Object) []string {
				return []string{either(fictitiousEntity, entity(p)), withPost(p)}
			}), ok...)
		})
	})
}

func typeMatchers(types []string) []any {
	out := make([]any, len(types))
	for i, t := range types {
		out[i] = map[string]any{"type": t}
	}
	return out
}

func repeat(name string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = name
	}
	return out
}
