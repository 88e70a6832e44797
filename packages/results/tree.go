package results

import (
	"bytes"
	"encoding/json"
	"sync"
)

// Node is one level of the results tree.
type Node struct {
	Results  []*Record
	children map[string]*Node
	order    []string
}

func NewNode() *Node {
	return &Node{children: make(map[string]*Node)}
}

// At builds a tree holding records under the nested path of names.
func At(records []*Record, names ...string) *Node {
	root := NewNode()
	n := root
	for _, name := range names {
		n = n.Child(name)
	}
	n.Results = append(n.Results, records...)
	return root
}

// Child returns the named child, creating it if needed.
func (n *Node) Child(name string) *Node {
	if n.children == nil {
		n.children = make(map[string]*Node)
	}
	c, ok := n.children[name]
	if !ok {
		c = NewNode()
		n.children[name] = c
		n.order = append(n.order, name)
	}
	return c
}

// Get returns the named child if it exists.
func (n *Node) Get(name string) (*Node, bool) {
	c, ok := n.children[name]
	return c, ok
}

// Names returns child names in insertion order.
func (n *Node) Names() []string {
	out := make([]string, len(n.order))
	copy(out, n.order)
	return out
}

// Merge folds other into n: result sequences are concatenated and
// children merged recursively. other is left untouched.
func (n *Node) Merge(other *Node) *Node {
	if other == nil {
		return n
	}
	n.Results = append(n.Results, other.Results...)
	for _, name := range other.order {
		n.Child(name).Merge(other.children[name])
	}
	return n
}

// Walk visits every record depth-first, parents before children. path
// holds the names from the root down to the record's node.
func (n *Node) Walk(fn func(path []string, r *Record)) {
	n.walk(nil, fn)
}

func (n *Node) walk(path []string, fn func([]string, *Record)) {
	for _, r := range n.Results {
		fn(path, r)
	}
	for _, name := range n.order {
		childPath := make([]string, len(path)+1)
		copy(childPath, path)
		childPath[len(path)] = name
		n.children[name].walk(childPath, fn)
	}
}

// MarshalJSON writes {"results": [...], "<child>": {...}} in insertion order.
// The root node has no results of its own and omits the key.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	if len(n.Results) > 0 {
		data, err := json.Marshal(n.Results)
		if err != nil {
			return nil, err
		}
		buf.WriteString(`"results":`)
		buf.Write(data)
		first = false
	}
	for _, name := range n.order {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		key, _ := json.Marshal(name)
		buf.Write(key)
		buf.WriteByte(':')
		data, err := json.Marshal(n.children[name])
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Pending is implemented by scenario nodes that can report how many of
// their declared expectations have not executed.
type Pending interface {
	Pending() int
}

// Results is the accumulated outcome of a run.
type Results struct {
	mu         sync.Mutex
	tree       *Node
	numSkipped int
}

func New() *Results {
	return &Results{tree: NewNode()}
}

// Merge folds a validator's tree into the accumulated results.
func (r *Results) Merge(other *Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tree.Merge(other)
}

// Skipped counts p's unexecuted expectations as skipped.
func (r *Results) Skipped(p Pending) {
	n := p.Pending()
	r.mu.Lock()
	r.numSkipped += n
	r.mu.Unlock()
}

func (r *Results) NumSkipped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.numSkipped
}

// Tree returns the accumulated tree.
func (r *Results) Tree() *Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tree
}

// Summary counts leaf records.
type Summary struct {
	Passed        int
	Failed        int
	Indeterminate int
	Skipped       int
}

func (r *Results) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Summary{Skipped: r.numSkipped}
	r.tree.Walk(func(_ []string, rec *Record) {
		switch {
		case rec.Valid == nil:
			s.Indeterminate++
		case *rec.Valid:
			s.Passed++
		default:
			s.Failed++
		}
	})
	return s
}

// Failed reports whether any leaf record is a hard failure.
func (r *Results) Failed() bool {
	return r.Summary().Failed > 0
}

// MarshalJSON writes the tree view.
func (r *Results) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Tree())
}
