package spec

import "sync"

// Scope is a layered key/value store. Reads fall through to the parent
// scope; writes stay local.
type Scope struct {
	mu     sync.RWMutex
	parent *Scope
	values map[string]any
}

// NewScope returns a scope layered on parent, which may be nil.
func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent, values: make(map[string]any)}
}

// Get returns the value for key from the nearest scope defining it.
func (s *Scope) Get(key string) (any, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		v, ok := cur.values[key]
		cur.mu.RUnlock()
		if ok {
			return v, true
		}
	}
	return nil, false
}

// Set stores value in this scope, shadowing any ancestor value.
func (s *Scope) Set(key string, value any) {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
}

// Parent returns the enclosing scope.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// Lookup returns the value for key if it exists and has type T.
func Lookup[T any](s *Scope, key string) (T, bool) {
	var zero T
	v, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// MustLookup is Lookup returning the zero value when key is missing.
func MustLookup[T any](s *Scope, key string) T {
	t, _ := Lookup[T](s, key)
	return t
}
