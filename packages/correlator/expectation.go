package correlator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/abdul-hamid-achik/tentspec/packages/assertions"
	"github.com/abdul-hamid-achik/tentspec/packages/http"
	"github.com/abdul-hamid-achik/tentspec/packages/match"
	"github.com/abdul-hamid-achik/tentspec/packages/results"
	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

// RequestMatcher describes the request an expectation waits for. Method
// and Path select candidates; URL and Headers are scored once bound.
// Each field may be a string, *regexp.Regexp or match.Matcher.
type RequestMatcher struct {
	Method  any
	Path    any
	URL     any
	Headers map[string]any
}

// Expectation is an outstanding expectation for a side-channel request.
type Expectation struct {
	validator string
	path      []string
	method    match.Matcher
	reqPath   match.Matcher
	url       match.Matcher
	headers   *assertions.Assertion
	response  []*assertions.Assertion
	schemas   assertions.SchemaValidator
}

func newExpectation(validator string, path []string, m RequestMatcher, schemas assertions.SchemaValidator) *Expectation {
	e := &Expectation{
		validator: validator,
		path:      path,
		method:    methodMatcher(m.Method),
		reqPath:   optionalMatcher(m.Path),
		url:       optionalMatcher(m.URL),
		schemas:   schemas,
	}
	if len(m.Headers) > 0 {
		e.headers = assertions.Headers(m.Headers)
	}
	return e
}

func methodMatcher(v any) match.Matcher {
	if s, ok := v.(string); ok {
		return match.Exact(strings.ToUpper(s))
	}
	return optionalMatcher(v)
}

func optionalMatcher(v any) match.Matcher {
	switch tv := v.(type) {
	case nil:
		return match.Present
	case *regexp.Regexp:
		return match.Regex{Pattern: tv}
	case match.Matcher:
		return tv
	}
	return match.Exact(v)
}

// ExpectResponse adds assertions on the response the peer returned.
func (e *Expectation) ExpectResponse(list ...*assertions.Assertion) *Expectation {
	e.response = append(e.response, list...)
	return e
}

// Validator names the validator that registered the expectation.
func (e *Expectation) Validator() string {
	return e.validator
}

// Path is the results path, validator name first.
func (e *Expectation) Path() []string {
	out := make([]string, len(e.path))
	copy(out, e.path)
	return out
}

// Description renders the request the expectation waits for.
func (e *Expectation) Description() string {
	return fmt.Sprintf("expect request %v %v", match.Describe(e.method), match.Describe(e.reqPath))
}

// accepts applies the method and path predicates.
func (e *Expectation) accepts(ex *Exchange) bool {
	return passes(match.Diff(e.method, value.String(ex.Method), true)) &&
		passes(match.Diff(e.reqPath, value.String(ex.Path), true))
}

func passes(entries []match.Entry) bool {
	v := match.Valid(entries)
	return v == nil || *v
}

// Score builds the record for ex: request predicates first, then the
// response assertions.
func (e *Expectation) Score(ex *Exchange) *results.Record {
	request := &assertions.Result{Key: "request", Kind: "request"}
	found := ex.Method != ""
	request.Diff = append(request.Diff, match.DiffAt("/request/method", e.method, value.String(ex.Method), found)...)
	request.Diff = append(request.Diff, match.DiffAt("/request/path", e.reqPath, value.String(ex.Path), found)...)
	request.Diff = append(request.Diff, match.DiffAt("/request/url", e.url, value.String(ex.URL), found)...)
	request.Valid = match.Valid(request.Diff)

	scored := []*assertions.Result{request}
	if e.headers != nil {
		reqView := &http.Response{Headers: ex.Headers}
		headers := assertions.NewEvaluator(reqView).Evaluate(e.headers)
		headers.Key = "request_headers"
		for i := range headers.Diff {
			headers.Diff[i].Path = "/request" + headers.Diff[i].Path
		}
		scored = append(scored, headers)
	}

	var opts []assertions.EvaluatorOption
	if e.schemas != nil {
		opts = append(opts, assertions.WithSchemas(e.schemas))
	}
	scored = append(scored, assertions.EvaluateAll(ex.Response, e.response, opts...)...)

	rec := results.NewRecord(e.Description(), nil, ex.Response, scored, nil)
	rec.Actual.RequestMethod = ex.Method
	rec.Actual.RequestURL = ex.URL
	rec.Actual.RequestHeaders = ex.Headers
	rec.Actual.RequestBody = string(ex.Body)
	return rec
}
