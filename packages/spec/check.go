package spec

import (
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/tentspec/packages/assertions"
)

// ErrUnknownHook is returned by Check for a Before name with no Hook.
var ErrUnknownHook = errors.New("unknown hook")

// ErrUnknownSchema is returned by Check for a static schema assertion
// naming a schema the registry does not have.
var ErrUnknownSchema = errors.New("unknown schema")

// SchemaSet reports whether a named schema exists.
type SchemaSet interface {
	Has(name string) bool
}

// Check validates the declared tree before anything runs: declaration
// errors, hook names, schema names and sibling dependency cycles. schemas
// may be nil to skip schema checks.
func (v *Validator) Check(schemas SchemaSet) error {
	errs := append([]error{}, v.errs...)

	v.root.eachNode(func(n *Node) {
		for _, h := range n.before {
			if h.fn == nil {
				if _, ok := v.hooks[h.name]; !ok {
					errs = append(errs, fmt.Errorf("%s: %w %q", n.PathString(), ErrUnknownHook, h.name))
				}
			}
		}
		for _, dep := range n.deps {
			if dep == nil || dep.validator != v {
				errs = append(errs, fmt.Errorf("%s: dependency outside validator %s", n.PathString(), v.name))
			}
		}
		if _, err := orderItems(n); err != nil {
			errs = append(errs, err)
		}
		if schemas == nil {
			return
		}
		for _, x := range n.Expectations() {
			for _, a := range x.assertions {
				if a.Kind == assertions.KindSchema && !schemas.Has(a.Schema) {
					errs = append(errs, fmt.Errorf("%s %q: %w %q", n.PathString(), x.description, ErrUnknownSchema, a.Schema))
				}
			}
		}
	})

	return joinErrors(errs)
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
