package spec

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/abdul-hamid-achik/tentspec/packages/assertions"
	"github.com/abdul-hamid-achik/tentspec/packages/correlator"
	"github.com/abdul-hamid-achik/tentspec/packages/http"
)

// Env is what a run needs from the outside world.
type Env struct {
	Client     http.Doer
	Schemas    assertions.SchemaValidator
	Correlator *correlator.Correlator
	Logger     *slog.Logger

	// Server is the base URL of the server under test.
	Server string
	// Local is the base URL of the embedded peer.
	Local       string
	Credentials *http.MACCredentials
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// Hook is a before hook. It runs once when its node starts.
type Hook func(ctx context.Context, env *Env, s *Scope) error

type hookRef struct {
	name string
	fn   Hook
}

// NodeOption configures a node at declaration time.
type NodeOption func(*Node)

// Before runs the named validator hooks when the node starts.
func Before(names ...string) NodeOption {
	return func(n *Node) {
		for _, name := range names {
			n.before = append(n.before, hookRef{name: name})
		}
	}
}

// Setup runs fn when the node starts, after any hooks declared before it.
func Setup(fn Hook) NodeOption {
	return func(n *Node) {
		n.before = append(n.before, hookRef{fn: fn})
	}
}

// DependsOn skips the node unless every expectation under deps executed.
func DependsOn(deps ...*Node) NodeOption {
	return func(n *Node) {
		n.deps = append(n.deps, deps...)
	}
}

// Validator is the root of one scenario tree.
type Validator struct {
	name   string
	root   *Node
	hooks  map[string]Hook
	shared map[string]func(*Node)
	errs   []error
}

func NewValidator(name string) *Validator {
	v := &Validator{
		name:   name,
		hooks:  make(map[string]Hook),
		shared: make(map[string]func(*Node)),
	}
	v.root = &Node{name: name, validator: v, scope: NewScope(nil)}
	return v
}

func (v *Validator) Name() string {
	return v.name
}

// Root is the validator's top node. Its path is the validator name.
func (v *Validator) Root() *Node {
	return v.root
}

// Scope is the validator-wide scope every node inherits from.
func (v *Validator) Scope() *Scope {
	return v.root.scope
}

// Hook registers a named before hook.
func (v *Validator) Hook(name string, fn Hook) *Validator {
	v.hooks[name] = fn
	return v
}

// SharedExample registers a reusable block of declarations.
func (v *Validator) SharedExample(name string, fn func(*Node)) *Validator {
	v.shared[name] = fn
	return v
}

// Describe declares a top-level node.
func (v *Validator) Describe(name string, opts ...NodeOption) *Node {
	return v.root.Context(name, nil, opts...)
}

// Err returns the errors recorded while the tree was declared.
func (v *Validator) Err() error {
	return joinErrors(v.errs)
}

// AddError records a declaration error, such as an unknown fixture
// generator, to be reported by Err and Check.
func (v *Validator) AddError(err error) {
	if err != nil {
		v.errs = append(v.errs, fmt.Errorf("%s: %w", v.name, err))
	}
}

func (v *Validator) fail(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf("%s: "+format, append([]any{v.name}, args...)...))
}

// Node is a named context in the scenario tree.
type Node struct {
	name      string
	parent    *Node
	validator *Validator
	items     []item
	deps      []*Node
	before    []hookRef
	scope     *Scope
}

// item is either a child node or an expectation, in declaration order.
type item struct {
	node *Node
	exp  *Expectation
}

// Context declares a child node and runs body against it.
func (n *Node) Context(name string, body func(*Node), opts ...NodeOption) *Node {
	child := &Node{
		name:      name,
		parent:    n,
		validator: n.validator,
		scope:     NewScope(n.scope),
	}
	for _, opt := range opts {
		opt(child)
	}
	n.items = append(n.items, item{node: child})
	if body != nil {
		body(child)
	}
	return child
}

// Describe is Context without a body.
func (n *Node) Describe(name string, opts ...NodeOption) *Node {
	return n.Context(name, nil, opts...)
}

// BehavesAs expands the named shared example into n.
func (n *Node) BehavesAs(name string) *Node {
	fn, ok := n.validator.shared[name]
	if !ok {
		n.validator.fail("unknown shared example %q in %s", name, n.PathString())
		return n
	}
	fn(n)
	return n
}

// Expect declares an expectation. build runs once per execution.
func (n *Node) Expect(description string, build Builder, opts ...ExpectOption) *Expectation {
	x := &Expectation{description: description, node: n, build: build}
	for _, opt := range opts {
		opt(x)
	}
	n.items = append(n.items, item{exp: x})
	return x
}

// Get reads from the node's scope chain.
func (n *Node) Get(key string) (any, bool) {
	return n.scope.Get(key)
}

// Set writes to the node's own scope.
func (n *Node) Set(key string, value any) {
	n.scope.Set(key, value)
}

func (n *Node) Scope() *Scope {
	return n.scope
}

func (n *Node) Name() string {
	return n.name
}

func (n *Node) Parent() *Node {
	return n.parent
}

func (n *Node) Validator() *Validator {
	return n.validator
}

// Path lists node names from the validator down to n.
func (n *Node) Path() []string {
	var path []string
	for cur := n; cur != nil; cur = cur.parent {
		path = append([]string{cur.name}, path...)
	}
	return path
}

// PathString joins Path with spaces, the way failures are reported.
func (n *Node) PathString() string {
	return strings.Join(n.Path(), " ")
}

// Children returns child nodes in declaration order.
func (n *Node) Children() []*Node {
	var out []*Node
	for _, it := range n.items {
		if it.node != nil {
			out = append(out, it.node)
		}
	}
	return out
}

// Expectations returns the node's own expectations in declaration order.
func (n *Node) Expectations() []*Expectation {
	var out []*Expectation
	for _, it := range n.items {
		if it.exp != nil {
			out = append(out, it.exp)
		}
	}
	return out
}

// Count is the number of expectations declared under n.
func (n *Node) Count() int {
	total := 0
	n.eachExpectation(func(*Expectation) { total++ })
	return total
}

// Pending is the number of expectations under n that have not executed
// in the current run.
func (n *Node) Pending() int {
	total := 0
	n.eachExpectation(func(x *Expectation) {
		if !x.executed {
			total++
		}
	})
	return total
}

// complete reports whether every expectation under n executed.
func (n *Node) complete() bool {
	return n.Pending() == 0
}

func (n *Node) eachExpectation(fn func(*Expectation)) {
	for _, it := range n.items {
		if it.exp != nil {
			fn(it.exp)
			continue
		}
		it.node.eachExpectation(fn)
	}
}

func (n *Node) eachNode(fn func(*Node)) {
	fn(n)
	for _, it := range n.items {
		if it.node != nil {
			it.node.eachNode(fn)
		}
	}
}

// Pending is the number of expectations the last run did not execute.
func (v *Validator) Pending() int {
	return v.root.Pending()
}

// Count is the number of declared expectations.
func (v *Validator) Count() int {
	return v.root.Count()
}
