package spec

import (
	"context"
	"errors"

	"github.com/abdul-hamid-achik/tentspec/packages/assertions"
	"github.com/abdul-hamid-achik/tentspec/packages/correlator"
	"github.com/abdul-hamid-achik/tentspec/packages/http"
	"github.com/abdul-hamid-achik/tentspec/packages/match"
	"github.com/abdul-hamid-achik/tentspec/packages/results"
)

// Builder produces the request for one execution of an Expectation.
// It may declare further assertions and side-channel expectations on c.
type Builder func(c *Call) (*http.Request, error)

// AfterFunc runs after scoring. Returning a *SetupFailure (or any error)
// aborts the rest of the validator.
type AfterFunc func(resp *http.Response, results []*assertions.Result, s *Scope) error

// ExpectOption declares an assertion on an Expectation.
type ExpectOption func(*Expectation)

// Assert adds prebuilt assertions.
func Assert(list ...*assertions.Assertion) ExpectOption {
	return func(x *Expectation) {
		x.assertions = append(x.assertions, list...)
	}
}

func Status(code int) ExpectOption {
	return Assert(assertions.Status(code))
}

func StatusIn(min, max int) ExpectOption {
	return Assert(assertions.StatusIn(min, max))
}

// Headers expects headers by name; values are strings, *regexp.Regexp or
// match.Matcher.
func Headers(headers map[string]any) ExpectOption {
	return Assert(assertions.Headers(headers))
}

func Body(v any) ExpectOption {
	return Assert(assertions.Body(v))
}

// Schema validates the document at pointer against a named schema.
func Schema(name, pointer string) ExpectOption {
	return Assert(assertions.Schema(name, pointer))
}

// Properties partially matches the document at pointer.
func Properties(pointer string, expected any) ExpectOption {
	return Assert(assertions.Properties(pointer, expected))
}

func PropertiesAbsent(pointers ...string) ExpectOption {
	return Assert(assertions.PropertiesAbsent(pointers...))
}

func PropertiesPresent(pointers ...string) ExpectOption {
	return Assert(assertions.PropertiesPresent(pointers...))
}

func PropertyLength(pointer string, n int) ExpectOption {
	return Assert(assertions.PropertyLength(pointer, n))
}

// Expectation is one request/response check.
type Expectation struct {
	description string
	node        *Node
	build       Builder
	assertions  []*assertions.Assertion
	after       []AfterFunc
	executed    bool
}

// After appends an after hook.
func (x *Expectation) After(fn AfterFunc) *Expectation {
	x.after = append(x.after, fn)
	return x
}

func (x *Expectation) Description() string {
	return x.description
}

func (x *Expectation) Node() *Node {
	return x.node
}

// Assertions returns the statically declared assertions.
func (x *Expectation) Assertions() []*assertions.Assertion {
	return x.assertions
}

// Executed reports whether the expectation ran in the current run.
func (x *Expectation) Executed() bool {
	return x.executed
}

// Call is the builder's view of one execution.
type Call struct {
	ctx      context.Context
	env      *Env
	exp      *Expectation
	extra    []*assertions.Assertion
	watching []string
	frozen   bool
}

func (c *Call) Context() context.Context {
	return c.ctx
}

func (c *Call) Env() *Env {
	return c.env
}

// Scope is the declaring node's scope.
func (c *Call) Scope() *Scope {
	return c.exp.node.scope
}

func (c *Call) Get(key string) (any, bool) {
	return c.Scope().Get(key)
}

func (c *Call) Set(key string, value any) {
	c.Scope().Set(key, value)
}

// Expect declares assertions that depend on values only known at run
// time. Calls after the builder returns are ignored.
func (c *Call) Expect(list ...*assertions.Assertion) {
	if c.frozen {
		c.env.logger().Warn("assertion declared after request was sent", "expectation", c.exp.description)
		return
	}
	c.extra = append(c.extra, list...)
}

// Watch captures peer requests for key until the response is scored.
func (c *Call) Watch(key string) {
	if c.env.Correlator == nil {
		return
	}
	c.env.Correlator.Watch(key, true)
	c.watching = append(c.watching, key)
}

// ExpectRequest registers an expectation for a request the server under
// test makes to the embedded peer.
func (c *Call) ExpectRequest(m correlator.RequestMatcher) *correlator.Expectation {
	path := c.exp.node.Path()
	corr := c.env.Correlator
	if corr == nil {
		c.env.logger().Warn("no correlator configured, side-channel expectation is detached",
			"expectation", c.exp.description)
		corr = correlator.New(correlator.WithLogger(c.env.logger()))
	}
	return corr.Expect(path[0], path[1:], m)
}

func (c *Call) unwatch() {
	for _, key := range c.watching {
		c.env.Correlator.Watch(key, false)
	}
	c.watching = nil
}

// execute runs the expectation once. A nil record with a non-nil error
// means the builder aborted the validator.
func (x *Expectation) execute(ctx context.Context, env *Env) (*results.Record, *http.Response, []*assertions.Result, error) {
	x.executed = true
	call := &Call{ctx: ctx, env: env, exp: x}
	defer call.unwatch()

	log := env.logger().With("validator", x.node.validator.name, "expectation", x.description)

	req, err := x.build(call)
	call.frozen = true
	var sf *SetupFailure
	if errors.As(err, &sf) {
		return nil, nil, nil, sf
	}

	var (
		resp    *http.Response
		sendErr = err
	)
	if sendErr == nil && req == nil {
		sendErr = errNoRequest
	}
	if sendErr == nil {
		resp, sendErr = env.Client.Do(ctx, req)
	}
	if sendErr != nil {
		log.Warn("request failed", "error", sendErr)
		resp = http.EmptyResponse()
	} else {
		log.Debug("response received", "status", resp.StatusCode, "duration", resp.Duration)
	}

	list := append(append([]*assertions.Assertion{}, x.assertions...), call.extra...)
	var opts []assertions.EvaluatorOption
	if env.Schemas != nil {
		opts = append(opts, assertions.WithSchemas(env.Schemas))
	}
	scored := assertions.EvaluateAll(resp, list, opts...)
	if sendErr != nil {
		scored = append([]*assertions.Result{connectionResult(sendErr)}, scored...)
	}

	return results.NewRecord(x.description, req, resp, scored, sendErr), resp, scored, nil
}

func connectionResult(err error) *assertions.Result {
	return &assertions.Result{
		Key:     "connection",
		Kind:    "connection",
		Valid:   match.Bool(false),
		Message: err.Error(),
		Diff: []match.Entry{{
			Path:     "/connection",
			Expected: "response",
			Actual:   err.Error(),
			Valid:    match.Bool(false),
		}},
	}
}
