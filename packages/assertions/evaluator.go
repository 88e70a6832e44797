package assertions

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/abdul-hamid-achik/tentspec/packages/http"
	"github.com/abdul-hamid-achik/tentspec/packages/match"
	"github.com/abdul-hamid-achik/tentspec/packages/schema"
	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

type Result struct {
	Key     string        `json:"key"`
	Kind    Kind          `json:"kind"`
	Valid   *bool         `json:"valid"`
	Diff    []match.Entry `json:"diff"`
	Message string        `json:"message,omitempty"`
}

// Passed reports whether the result is not a hard failure.
func (r *Result) Passed() bool {
	return r.Valid == nil || *r.Valid
}

// SchemaValidator is the named-schema capability used by schema assertions.
type SchemaValidator interface {
	Validate(name string, doc value.Value) ([]schema.Violation, error)
}

type Evaluator struct {
	response *http.Response
	schemas  SchemaValidator
}

// EvaluatorOption is a functional option for configuring an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithSchemas sets the validator used for schema assertions.
func WithSchemas(s SchemaValidator) EvaluatorOption {
	return func(e *Evaluator) {
		e.schemas = s
	}
}

func NewEvaluator(resp *http.Response, opts ...EvaluatorOption) *Evaluator {
	if resp == nil {
		resp = http.EmptyResponse()
	}
	e := &Evaluator{response: resp}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Evaluator) Evaluate(a *Assertion) *Result {
	result := &Result{Key: a.Key(), Kind: a.Kind}

	switch a.Kind {
	case KindStatus:
		result.Diff = []match.Entry{e.status(a)}
	case KindHeaders:
		result.Diff = e.headers(a)
	case KindBody:
		result.Diff = match.DiffAt("/body", a.Expected, e.response.BodyValue(), true)
	case KindSchema:
		result.Diff, result.Message = e.schema(a)
	case KindProperties:
		doc, found := e.lookup(a.Pointer)
		result.Diff = match.DiffAt(a.Pointer, a.Expected, doc, found)
	case KindPropertiesAbsent:
		for _, p := range a.Pointers {
			doc, found := e.lookup(p)
			result.Diff = append(result.Diff, match.DiffAt(p, match.Absent, doc, found)...)
		}
	case KindPropertiesPresent:
		for _, p := range a.Pointers {
			doc, found := e.lookup(p)
			result.Diff = append(result.Diff, match.DiffAt(p, match.Present, doc, found)...)
		}
	case KindPropertyLength:
		result.Diff = []match.Entry{e.length(a)}
	default:
		result.Message = fmt.Sprintf("unknown assertion kind %q", a.Kind)
		result.Valid = match.Bool(false)
		return result
	}

	result.Valid = match.Valid(result.Diff)
	return result
}

func (e *Evaluator) lookup(pointer string) (value.Value, bool) {
	body, ok := e.response.JSON()
	if !ok {
		return nil, false
	}
	return value.Lookup(body, pointer)
}

func (e *Evaluator) status(a *Assertion) match.Entry {
	var expected any = a.StatusMin
	if a.StatusMax != a.StatusMin {
		expected = fmt.Sprintf("%d..%d", a.StatusMin, a.StatusMax)
	}
	code := e.response.StatusCode
	return match.Entry{
		Path:     "/status",
		Expected: expected,
		Actual:   code,
		Valid:    match.Bool(code >= a.StatusMin && code <= a.StatusMax),
	}
}

func (e *Evaluator) headers(a *Assertion) []match.Entry {
	var entries []match.Entry
	for _, h := range a.Headers {
		actual, found := e.header(h.Name)
		path := value.JoinPointer("/headers", h.Name)
		entries = append(entries, match.DiffAt(path, h.Matcher, value.String(actual), found)...)
	}
	return entries
}

func (e *Evaluator) header(name string) (string, bool) {
	for k, v := range e.response.Headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

func (e *Evaluator) schema(a *Assertion) ([]match.Entry, string) {
	failed := func(msg string) ([]match.Entry, string) {
		return []match.Entry{{
			Path:     a.Pointer,
			Expected: "schema " + a.Schema,
			Valid:    match.Bool(false),
			Message:  msg,
		}}, msg
	}

	if e.schemas == nil {
		return failed("no schema registry configured")
	}
	doc, found := e.lookup(a.Pointer)
	if !found {
		return failed("no JSON document at " + pointerLabel(a.Pointer))
	}

	violations, err := e.schemas.Validate(a.Schema, doc)
	if err != nil {
		return failed(err.Error())
	}

	entries := make([]match.Entry, 0, len(violations))
	for _, v := range violations {
		entry := match.Entry{
			Path:     a.Pointer + v.Pointer,
			Expected: v.Type,
			Actual:   v.Value,
			Valid:    match.Bool(false),
			Message:  v.Description,
		}
		if schema.Combinator(v.Type) {
			entry.Valid = nil
		}
		entries = append(entries, entry)
	}
	return entries, ""
}

func (e *Evaluator) length(a *Assertion) match.Entry {
	entry := match.Entry{Path: a.Pointer, Expected: a.Length, Valid: match.Bool(false)}

	doc, found := e.lookup(a.Pointer)
	if !found {
		entry.Message = "no member at " + pointerLabel(a.Pointer)
		return entry
	}

	n := -1
	switch v := doc.(type) {
	case value.Array:
		n = len(v)
	case *value.Object:
		n = v.Len()
	case value.String:
		n = utf8.RuneCountInString(string(v))
	default:
		entry.Actual = value.ToGo(doc)
		entry.Message = "length of " + value.TypeName(doc) + " is undefined"
		return entry
	}

	entry.Actual = n
	entry.Valid = match.Bool(n == a.Length)
	if n != a.Length {
		entry.Message = "expected length " + strconv.Itoa(a.Length) + ", got " + strconv.Itoa(n)
	}
	return entry
}

// EvaluateAll scores every assertion against resp, in order.
func EvaluateAll(resp *http.Response, list []*Assertion, opts ...EvaluatorOption) []*Result {
	e := NewEvaluator(resp, opts...)
	results := make([]*Result, 0, len(list))
	for _, a := range list {
		results = append(results, e.Evaluate(a))
	}
	return results
}

// Rollup combines the validity of results.
func Rollup(results []*Result) *bool {
	valids := make([]*bool, len(results))
	for i, r := range results {
		valids[i] = r.Valid
	}
	return match.Rollup(valids...)
}
