package fixtures

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

// ErrGeneratorNotFound is returned for unknown generator names or variants.
var ErrGeneratorNotFound = errors.New("generator not found")

// Func produces a fresh document on every call.
type Func func() *value.Object

// Generator groups the variants of one document kind.
type Generator map[string]Func

type Registry struct {
	mu   sync.RWMutex
	gens map[string]Generator
}

func NewRegistry() *Registry {
	return &Registry{gens: make(map[string]Generator)}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry with the built-in post, profile and app
// generators.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		defaultRegistry.Register("post", Generator{
			"status":       StatusPost,
			"status_reply": StatusReplyPost,
			"random":       RandomPost,
		})
		defaultRegistry.Register("profile", Generator{"default": Profile})
		defaultRegistry.Register("app", Generator{
			"default":   App,
			"with_auth": AppWithAuth,
		})
	})
	return defaultRegistry
}

func (r *Registry) Register(name string, g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gens[name] = g
}

// Has reports whether name (and variant, when given) exist.
func (r *Registry) Has(name, variant string) bool {
	_, err := r.lookup(name, variant)
	return err == nil
}

func (r *Registry) lookup(name, variant string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gens[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGeneratorNotFound, name)
	}
	if variant == "" {
		variant = "default"
	}
	fn, ok := g[variant]
	if !ok {
		return nil, fmt.Errorf("%w: %s(%s)", ErrGeneratorNotFound, name, variant)
	}
	return fn, nil
}

// Generate builds a new document.
func (r *Registry) Generate(name, variant string) (*value.Object, error) {
	fn, err := r.lookup(name, variant)
	if err != nil {
		return nil, err
	}
	return fn(), nil
}

// MustGenerate is Generate that panics on unknown generators.
func (r *Registry) MustGenerate(name, variant string) *value.Object {
	doc, err := r.Generate(name, variant)
	if err != nil {
		panic(err)
	}
	return doc
}

var callPattern = regexp.MustCompile(`^(\w+)(?:\((\w*)\))?$`)

// Call evaluates an expression of the form name or name(variant).
func (r *Registry) Call(expr string) (*value.Object, error) {
	m := callPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return nil, fmt.Errorf("%w: invalid expression %q", ErrGeneratorNotFound, expr)
	}
	return r.Generate(m[1], m[2])
}

// Names lists every name(variant) pair, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name, g := range r.gens {
		for variant := range g {
			out = append(out, name+"("+variant+")")
		}
	}
	sort.Strings(out)
	return out
}
