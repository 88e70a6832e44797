package spec

import (
	"context"
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/tentspec/packages/results"
)

var errNoRequest = errors.New("builder returned no request")

// Run executes the validator's tree once. The returned tree holds the
// records produced so far even when err is a *SetupFailure; expectations
// that did not execute are reported by Pending.
func (v *Validator) Run(ctx context.Context, env *Env) (*results.Node, error) {
	v.root.eachExpectation(func(x *Expectation) { x.executed = false })

	tree := results.NewNode()
	err := v.runNode(ctx, env, v.root, tree)
	return tree, err
}

func (v *Validator) runNode(ctx context.Context, env *Env, n *Node, tree *results.Node) error {
	log := env.logger()
	for _, dep := range n.deps {
		if !dep.complete() {
			log.Info("skipping node with incomplete dependency",
				"node", n.PathString(), "depends_on", dep.PathString())
			return nil
		}
	}

	for _, h := range n.before {
		fn := h.fn
		if fn == nil {
			fn = v.hooks[h.name]
		}
		if fn == nil {
			return v.abort(n.Path(), NewSetupFailure(fmt.Sprintf("unknown hook %q", h.name), nil))
		}
		if err := fn(ctx, env, n.scope); err != nil {
			return v.abort(n.Path(), AsSetupFailure(err, nil))
		}
	}

	items, err := orderItems(n)
	if err != nil {
		return v.abort(n.Path(), NewSetupFailure(err.Error(), nil))
	}

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if it.node != nil {
			if err := v.runNode(ctx, env, it.node, tree); err != nil {
				return err
			}
			continue
		}

		x := it.exp
		rec, resp, scored, err := x.execute(ctx, env)
		if err != nil {
			return v.abort(n.Path(), AsSetupFailure(err, resp))
		}
		for _, after := range x.after {
			if err := after(resp, scored, n.scope); err != nil {
				return v.abort(n.Path(), AsSetupFailure(err, resp))
			}
		}
		tree.Merge(results.At([]*results.Record{rec}, n.Path()...))
	}
	return nil
}

func (v *Validator) abort(path []string, sf *SetupFailure) *SetupFailure {
	sf.Validator = v.name
	if sf.Path == nil {
		sf.Path = path
	}
	return sf
}

// orderItems keeps expectations in place and sorts child nodes among the
// child slots so that sibling dependencies run first.
func orderItems(n *Node) ([]item, error) {
	children := n.Children()
	if len(children) < 2 {
		return n.items, nil
	}
	sorted, err := sortSiblings(children)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", n.PathString(), err)
	}

	out := make([]item, 0, len(n.items))
	next := 0
	for _, it := range n.items {
		if it.node != nil {
			out = append(out, item{node: sorted[next]})
			next++
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

// ErrDependencyCycle is returned when sibling nodes depend on each other.
var ErrDependencyCycle = errors.New("circular dependency detected")

// sortSiblings orders nodes so that dependencies between siblings are
// respected, keeping declaration order otherwise.
func sortSiblings(nodes []*Node) ([]*Node, error) {
	index := make(map[*Node]int, len(nodes))
	for i, n := range nodes {
		index[n] = i
	}

	inDegree := make([]int, len(nodes))
	adjacency := make([][]int, len(nodes))
	for i, n := range nodes {
		for _, dep := range n.deps {
			j, ok := index[siblingOf(dep, n.parent)]
			if !ok || j == i {
				continue
			}
			adjacency[j] = append(adjacency[j], i)
			inDegree[i]++
		}
	}

	// Kahn's algorithm, always taking the earliest declared ready node.
	done := make([]bool, len(nodes))
	sorted := make([]*Node, 0, len(nodes))
	for len(sorted) < len(nodes) {
		picked := -1
		for i := range nodes {
			if !done[i] && inDegree[i] == 0 {
				picked = i
				break
			}
		}
		if picked < 0 {
			return nil, ErrDependencyCycle
		}
		done[picked] = true
		sorted = append(sorted, nodes[picked])
		for _, next := range adjacency[picked] {
			inDegree[next]--
		}
	}
	return sorted, nil
}

// siblingOf returns the ancestor of n (or n itself) whose parent is parent.
func siblingOf(n, parent *Node) *Node {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.parent == parent {
			return cur
		}
	}
	return nil
}
