package validators

import (
	"sort"
	"strconv"
	"time"

	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

// setAt writes v at pointer inside doc, creating containers along the
// way. A "-" token appends to an array.
func setAt(doc *value.Object, pointer string, v value.Value) {
	tokens := value.SplitPointer(pointer)
	if len(tokens) == 0 {
		return
	}
	setIn(doc, tokens, v)
}

func setIn(container value.Value, tokens []string, v value.Value) value.Value {
	if len(tokens) == 0 {
		return v
	}
	tok, rest := tokens[0], tokens[1:]
	switch c := container.(type) {
	case *value.Object:
		child, _ := c.Get(tok)
		c.Set(tok, setIn(child, rest, v))
		return c
	case value.Array:
		if tok == "-" {
			return append(c, setIn(nil, rest, v))
		}
		i, err := strconv.Atoi(tok)
		if err != nil || i < 0 || i >= len(c) {
			return c
		}
		c[i] = setIn(c[i], rest, v)
		return c
	default:
		if tok == "-" {
			return value.Array{setIn(nil, rest, v)}
		}
		return setIn(value.NewObject(), tokens, v)
	}
}

// property describes one member of a schema document.
type property struct {
	Name       string
	Type       string
	Format     string
	Properties []property
	Items      *property
}

// schemaProperties reads the members of an object schema, sorted by name.
func schemaProperties(doc map[string]any) []property {
	props, _ := doc["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]property, 0, len(names))
	for _, name := range names {
		def, _ := props[name].(map[string]any)
		out = append(out, propertyOf(name, def))
	}
	return out
}

func propertyOf(name string, def map[string]any) property {
	p := property{Name: name, Type: schemaType(def["type"])}
	p.Format, _ = def["format"].(string)
	if p.Type == "object" {
		p.Properties = schemaProperties(def)
	}
	if items, ok := def["items"].(map[string]any); ok && p.Type == "array" {
		it := propertyOf("-", items)
		p.Items = &it
	}
	return p
}

// schemaType returns the first non-null type of a type or type list.
func schemaType(t any) string {
	switch tv := t.(type) {
	case string:
		return tv
	case []any:
		for _, item := range tv {
			if s, ok := item.(string); ok && s != "null" {
				return s
			}
		}
	}
	return ""
}

// validValue is a value of the given schema type.
func validValue(typ, format string) value.Value {
	switch typ {
	case "string":
		if format == "uri" {
			return value.String("https://example.com")
		}
		return value.String("an-example-string")
	case "integer":
		return value.Number(float64(time.Now().UnixMilli()))
	case "number":
		return value.Number(12.5)
	case "boolean":
		return value.Bool(true)
	case "array":
		return value.Array{}
	case "object":
		return value.NewObject()
	}
	return value.Null{}
}

// invalidValue is a value that violates the given schema type.
func invalidValue(typ, format string) value.Value {
	switch typ {
	case "string":
		if format == "uri" {
			return value.String("I'm not a uri!")
		}
		return value.Number(421)
	case "integer", "number":
		return value.String("123")
	case "boolean":
		return value.String("true")
	case "array":
		return value.String("I should be an array")
	case "object":
		return value.Array{value.String("I should be an object")}
	}
	return value.Null{}
}

// lookupProperty finds the schema member at a document pointer.
func lookupProperty(props []property, pointer string) (property, bool) {
	var (
		cur   property
		found bool
	)
	for _, tok := range value.SplitPointer(pointer) {
		found = false
		for _, p := range props {
			if p.Name == tok {
				cur, found = p, true
				break
			}
		}
		if !found {
			return property{}, false
		}
		props = cur.Properties
	}
	return cur, found
}
