package schema

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

//go:embed schemas/*.yaml
var embedded embed.FS

// ErrSchemaNotFound is returned when a name has no registered schema.
var ErrSchemaNotFound = errors.New("schema not found")

// Violation is one schema keyword failure.
type Violation struct {
	Pointer     string
	Type        string
	Description string
	Value       any
}

// Registry maps schema names to compiled schemas.
type Registry struct {
	mu       sync.RWMutex
	docs     map[string]map[string]any
	compiled map[string]*gojsonschema.Schema
}

func NewRegistry() *Registry {
	return &Registry{
		docs:     make(map[string]map[string]any),
		compiled: make(map[string]*gojsonschema.Schema),
	}
}

// Default returns a registry preloaded with the embedded Tent schemas.
func Default() (*Registry, error) {
	r := NewRegistry()
	entries, err := embedded.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		data, err := embedded.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, err
		}
		if err := r.LoadYAML(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())), data); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadYAML parses and registers a YAML (or JSON) schema document.
func (r *Registry) LoadYAML(name string, data []byte) error {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse schema %s: %w", name, err)
	}
	return r.Register(name, doc)
}

// LoadDir registers every *.yaml, *.yml and *.json file in dir, named after
// the file without its extension. Existing names are replaced.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read schema directory: %w", err)
	}
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml" && ext != ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		if err := r.LoadYAML(strings.TrimSuffix(e.Name(), ext), data); err != nil {
			return err
		}
	}
	return nil
}

// Register compiles doc and stores it under name.
func (r *Registry) Register(name string, doc map[string]any) error {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("invalid schema %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[name] = doc
	r.compiled[name] = compiled
	return nil
}

// Lookup returns the schema document registered under name.
func (r *Registry) Lookup(name string) (map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
	}
	return doc, nil
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.docs[name]
	return ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.docs))
	for name := range r.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks doc against the named schema. Violation pointers are
// relative to doc.
func (r *Registry) Validate(name string, doc value.Value) ([]Violation, error) {
	r.mu.RLock()
	compiled, ok := r.compiled[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
	}

	result, err := compiled.Validate(gojsonschema.NewGoLoader(value.ToGo(doc)))
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	violations := make([]Violation, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		pointer := contextPointer(desc.Context())
		if desc.Type() == "required" {
			if prop, ok := desc.Details()["property"].(string); ok {
				pointer = value.JoinPointer(pointer, prop)
			}
		}
		violations = append(violations, Violation{
			Pointer:     pointer,
			Type:        desc.Type(),
			Description: desc.Description(),
			Value:       desc.Value(),
		})
	}
	return violations, nil
}

// contextPointer turns gojsonschema's "(root).post.id" into "/post/id".
func contextPointer(ctx *gojsonschema.JsonContext) string {
	if ctx == nil {
		return ""
	}
	parts := strings.Split(ctx.String("."), ".")
	if len(parts) > 0 && parts[0] == "(root)" {
		parts = parts[1:]
	}
	return value.JoinPointer("", parts...)
}

// Combinator reports whether a violation type only summarises nested
// violations (anyOf, oneOf, allOf and conditional branches).
func Combinator(violationType string) bool {
	switch violationType {
	case "number_any_of", "number_one_of", "number_all_of", "condition_then", "condition_else":
		return true
	}
	return false
}
