package validators

import (
	"context"
	"fmt"
	"regexp"

	"github.com/abdul-hamid-achik/tentspec/packages/assertions"
	"github.com/abdul-hamid-achik/tentspec/packages/fixtures"
	"github.com/abdul-hamid-achik/tentspec/packages/http"
	"github.com/abdul-hamid-achik/tentspec/packages/peer"
	"github.com/abdul-hamid-achik/tentspec/packages/schema"
	"github.com/abdul-hamid-achik/tentspec/packages/spec"
	"github.com/abdul-hamid-achik/tentspec/packages/tent"
	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

// Deps are the build-time dependencies of the validators.
type Deps struct {
	Fixtures *fixtures.Registry
	Schemas  *schema.Registry
	// Peer hosts local users. RequestProxyValidator records a build error
	// without it.
	Peer *peer.Server
}

// All builds every validator in run order.
func All(d Deps) []*spec.Validator {
	return []*spec.Validator{
		PostsFeed(d),
		NewPost(d),
		MetaProfile(d),
		RequestProxy(d),
	}
}

var (
	tentHeaders  = map[string]any{"Content-Type": regexp.MustCompile(`\A` + regexp.QuoteMeta(tent.PostMIME))}
	errorHeaders = map[string]any{"Content-Type": regexp.MustCompile(`\A` + regexp.QuoteMeta(tent.ErrorMIME))}
)

const fictitiousEntity = "https://fictitious.entity.example.org"

func remote(env *spec.Env) tent.Server {
	return tent.Server{Base: env.Server, Credentials: env.Credentials}
}

// generator resolves a fixture at declaration time so an unknown name is
// reported before anything runs.
func generator(v *spec.Validator, reg *fixtures.Registry, name, variant string) func() *value.Object {
	if reg == nil {
		reg = fixtures.Default()
	}
	if !reg.Has(name, variant) {
		v.AddError(fmt.Errorf("%w: %s(%s)", fixtures.ErrGeneratorNotFound, name, variant))
		return func() *value.Object { return value.NewObject() }
	}
	return func() *value.Object { return reg.MustGenerate(name, variant) }
}

func need[T any](s *spec.Scope, key string) (T, error) {
	t, ok := spec.Lookup[T](s, key)
	if !ok {
		return t, spec.Failf(nil, "missing %q in scope", key)
	}
	return t, nil
}

func typeOf(doc *value.Object) string {
	if t, ok := doc.Get("type"); ok {
		if s, ok := t.(value.String); ok {
			return string(s)
		}
	}
	return ""
}

func str(doc value.Value, pointer string) string {
	v, ok := value.Lookup(doc, pointer)
	if !ok {
		return ""
	}
	s, _ := v.(value.String)
	return string(s)
}

// postOf extracts the post document from a single-post response.
func postOf(resp *http.Response) (*value.Object, bool) {
	body, ok := resp.JSON()
	if !ok {
		return nil, false
	}
	v, ok := value.Lookup(body, "/post")
	if !ok {
		return nil, false
	}
	post, ok := v.(*value.Object)
	return post, ok
}

// send performs a setup request and requires a 2xx response with a post.
func send(ctx context.Context, env *spec.Env, req *http.Request, what string) (*value.Object, error) {
	resp, err := env.Client.Do(ctx, req)
	if err != nil {
		return nil, spec.Failf(nil, "failed to %s: %v", what, err)
	}
	if !resp.IsSuccess() {
		return nil, spec.Failf(resp, "failed to %s: %d", what, resp.StatusCode)
	}
	post, ok := postOf(resp)
	if !ok {
		return nil, spec.Failf(resp, "failed to %s: response has no post", what)
	}
	return post, nil
}

// discover resolves the meta post of srv, returning the request for it.
func discover(ctx context.Context, env *spec.Env, srv tent.Server) (*http.Request, error) {
	resp, err := env.Client.Do(ctx, srv.Discover())
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}
	u, ok := tent.MetaPostURL(resp, srv.Base)
	if !ok {
		return nil, fmt.Errorf("discovery: no meta post link in %d response", resp.StatusCode)
	}
	return http.NewRequest("GET", u).SetHeader("Accept", tent.PostMIME), nil
}

func createPost(ctx context.Context, env *spec.Env, doc *value.Object) (*value.Object, error) {
	req, err := remote(env).NewPost(typeOf(doc), doc)
	if err != nil {
		return nil, err
	}
	return send(ctx, env, req, "create post")
}

// failIfInvalid turns a failed expectation into a setup failure carrying
// its results.
func failIfInvalid(resp *http.Response, scored []*assertions.Result, msg string) error {
	for _, r := range scored {
		if !r.Passed() {
			return spec.Failf(resp, "%s", msg).WithResults(scored)
		}
	}
	return nil
}

func schemas(v *spec.Validator, reg *schema.Registry) *schema.Registry {
	if reg != nil {
		return reg
	}
	reg, err := schema.Default()
	if err != nil {
		v.AddError(err)
		return schema.NewRegistry()
	}
	return reg
}

func schemaDoc(v *spec.Validator, reg *schema.Registry, name string) map[string]any {
	doc, err := reg.Lookup(name)
	if err != nil {
		v.AddError(err)
		return nil
	}
	return doc
}
