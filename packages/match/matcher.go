package match

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

// Matcher is a sealed interface implemented by the matcher variants below.
type Matcher interface {
	describe() any
}

// Literal matches values equal to Value.
type Literal struct {
	Value value.Value
}

func (l Literal) describe() any { return value.ToGo(l.Value) }

// Regex matches strings accepted by Pattern.
type Regex struct {
	Pattern *regexp.Regexp
}

func (r Regex) describe() any { return "/" + r.Pattern.String() + "/" }

type absent struct{}

func (absent) describe() any { return "<absent>" }

type present struct{}

func (present) describe() any { return "<present>" }

var (
	// Absent passes only when the addressed member does not exist.
	Absent Matcher = absent{}
	// Present passes when the addressed member exists, whatever its value.
	Present Matcher = present{}
)

// Fields is a partial object matcher.
type Fields struct {
	keys    []string
	members map[string]Matcher
}

func (f *Fields) describe() any {
	out := make(map[string]any, len(f.keys))
	for _, k := range f.keys {
		out[k] = f.members[k].describe()
	}
	return out
}

// Set adds or replaces the matcher for key.
func (f *Fields) Set(key string, m Matcher) *Fields {
	if f.members == nil {
		f.members = make(map[string]Matcher)
	}
	if _, ok := f.members[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.members[key] = m
	return f
}

// Delete drops key from the matcher so it is no longer compared.
func (f *Fields) Delete(key string) *Fields {
	if _, ok := f.members[key]; !ok {
		return f
	}
	delete(f.members, key)
	for i, k := range f.keys {
		if k == key {
			f.keys = append(f.keys[:i], f.keys[i+1:]...)
			break
		}
	}
	return f
}

// Get returns the matcher registered for key.
func (f *Fields) Get(key string) (Matcher, bool) {
	m, ok := f.members[key]
	return m, ok
}

func (f *Fields) Keys() []string {
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Items is a partial array matcher, compared by index.
type Items []Matcher

func (it Items) describe() any {
	out := make([]any, len(it))
	for i, m := range it {
		out[i] = m.describe()
	}
	return out
}

// Field is a key/matcher pair for Object.
type Field struct {
	Key     string
	Matcher Matcher
}

// F builds a Field; v is converted with From.
func F(key string, v any) Field {
	return Field{Key: key, Matcher: From(v)}
}

// Object builds a Fields matcher preserving the order of fields.
func Object(fields ...Field) *Fields {
	f := &Fields{members: make(map[string]Matcher, len(fields))}
	for _, field := range fields {
		f.Set(field.Key, field.Matcher)
	}
	return f
}

// Array builds an Items matcher; every element is converted with From.
func Array(elems ...any) Items {
	out := make(Items, len(elems))
	for i, e := range elems {
		out[i] = From(e)
	}
	return out
}

// Exact matches v by whole-value equality, without partial semantics.
func Exact(v any) Matcher {
	return Literal{Value: value.FromGo(v)}
}

// Pattern compiles expr into a Regex matcher. It panics on invalid
// expressions, like regexp.MustCompile.
func Pattern(expr string) Matcher {
	return Regex{Pattern: regexp.MustCompile(expr)}
}

// From converts a Go value into a Matcher. Objects and arrays become
// partial matchers recursively; *regexp.Regexp becomes Regex; Matchers are
// returned unchanged. Map keys are ordered alphabetically.
func From(v any) Matcher {
	switch tv := v.(type) {
	case Matcher:
		return tv
	case *regexp.Regexp:
		return Regex{Pattern: tv}
	case *value.Object:
		f := &Fields{members: make(map[string]Matcher, tv.Len())}
		for _, k := range tv.Keys() {
			member, _ := tv.Get(k)
			f.Set(k, From(member))
		}
		return f
	case value.Array:
		out := make(Items, len(tv))
		for i, item := range tv {
			out[i] = From(item)
		}
		return out
	case value.Value:
		return Literal{Value: tv}
	case map[string]any:
		keys := make([]string, 0, len(tv))
		for k := range tv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		f := &Fields{members: make(map[string]Matcher, len(tv))}
		for _, k := range keys {
			f.Set(k, From(tv[k]))
		}
		return f
	case []any:
		out := make(Items, len(tv))
		for i, item := range tv {
			out[i] = From(item)
		}
		return out
	case []Matcher:
		return Items(tv)
	case []map[string]any:
		out := make(Items, len(tv))
		for i, item := range tv {
			out[i] = From(item)
		}
		return out
	}
	return From(value.FromGo(v))
}

// Describe renders a matcher for reports.
func Describe(m Matcher) any {
	if m == nil {
		return nil
	}
	return m.describe()
}

// String renders a matcher as text.
func String(m Matcher) string {
	return fmt.Sprint(Describe(m))
}
