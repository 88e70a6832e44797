package assertions

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/abdul-hamid-achik/tentspec/packages/match"
)

type Kind string

const (
	KindStatus            Kind = "response_status"
	KindHeaders           Kind = "response_headers"
	KindBody              Kind = "response_body"
	KindSchema            Kind = "response_schema"
	KindProperties        Kind = "response_properties"
	KindPropertiesAbsent  Kind = "response_properties_absent"
	KindPropertiesPresent Kind = "response_properties_present"
	KindPropertyLength    Kind = "response_property_length"
)

// Assertion is one declared expectation about a response. Only the fields
// relevant to Kind are set.
type Assertion struct {
	Kind      Kind
	StatusMin int
	StatusMax int
	Headers   []HeaderMatch
	Schema    string
	Pointer   string
	Expected  match.Matcher
	Pointers  []string
	Length    int
}

// HeaderMatch pairs a header name with its matcher.
type HeaderMatch struct {
	Name    string
	Matcher match.Matcher
}

// Key names the assertion in reports.
func (a *Assertion) Key() string {
	switch a.Kind {
	case KindSchema:
		return fmt.Sprintf("%s(%s %s)", a.Kind, a.Schema, pointerLabel(a.Pointer))
	case KindProperties, KindPropertyLength:
		return fmt.Sprintf("%s(%s)", a.Kind, pointerLabel(a.Pointer))
	}
	return string(a.Kind)
}

func pointerLabel(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

func Status(code int) *Assertion {
	return &Assertion{Kind: KindStatus, StatusMin: code, StatusMax: code}
}

// StatusIn expects a status within [min, max].
func StatusIn(min, max int) *Assertion {
	return &Assertion{Kind: KindStatus, StatusMin: min, StatusMax: max}
}

// Headers expects each named header to match. Values may be strings,
// *regexp.Regexp or match.Matcher (match.Absent to forbid a header).
func Headers(headers map[string]any) *Assertion {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	a := &Assertion{Kind: KindHeaders}
	for _, name := range names {
		a.Headers = append(a.Headers, HeaderMatch{Name: name, Matcher: headerMatcher(headers[name])})
	}
	return a
}

func headerMatcher(v any) match.Matcher {
	switch tv := v.(type) {
	case match.Matcher:
		return tv
	case *regexp.Regexp:
		return match.Regex{Pattern: tv}
	case string:
		return match.Exact(tv)
	}
	return match.Exact(fmt.Sprint(v))
}

// Body expects the whole response body to match v.
func Body(v any) *Assertion {
	return &Assertion{Kind: KindBody, Expected: match.From(v)}
}

// Schema validates the sub-document at pointer against a named schema.
func Schema(name, pointer string) *Assertion {
	return &Assertion{Kind: KindSchema, Schema: name, Pointer: pointer}
}

// Properties deep-partially matches the sub-document at pointer.
func Properties(pointer string, expected any) *Assertion {
	return &Assertion{Kind: KindProperties, Pointer: pointer, Expected: match.From(expected)}
}

func PropertiesAbsent(pointers ...string) *Assertion {
	return &Assertion{Kind: KindPropertiesAbsent, Pointers: pointers}
}

func PropertiesPresent(pointers ...string) *Assertion {
	return &Assertion{Kind: KindPropertiesPresent, Pointers: pointers}
}

// PropertyLength pins the length of the array, object or string at pointer.
func PropertyLength(pointer string, n int) *Assertion {
	return &Assertion{Kind: KindPropertyLength, Pointer: pointer, Length: n}
}
