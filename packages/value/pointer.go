package value

import (
	"strconv"
	"strings"
)

// Lookup resolves an RFC 6901 pointer. The empty pointer addresses the root.
// The second result is false when any token along the way is missing.
func Lookup(root Value, pointer string) (Value, bool) {
	if root == nil {
		return nil, false
	}
	if pointer == "" {
		return root, true
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, false
	}

	current := root
	for _, token := range SplitPointer(pointer) {
		switch node := current.(type) {
		case *Object:
			next, ok := node.Get(token)
			if !ok {
				return nil, false
			}
			current = next
		case Array:
			idx, err := strconv.Atoi(token)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// SplitPointer returns the unescaped tokens of a pointer.
func SplitPointer(pointer string) []string {
	if pointer == "" {
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(pointer, "/"), "/")
	for i, p := range parts {
		parts[i] = UnescapeToken(p)
	}
	return parts
}

// JoinPointer appends escaped tokens to a base pointer.
func JoinPointer(base string, tokens ...string) string {
	var b strings.Builder
	b.WriteString(base)
	for _, t := range tokens {
		b.WriteByte('/')
		b.WriteString(EscapeToken(t))
	}
	return b.String()
}

func EscapeToken(token string) string {
	return strings.ReplaceAll(strings.ReplaceAll(token, "~", "~0"), "/", "~1")
}

func UnescapeToken(token string) string {
	return strings.ReplaceAll(strings.ReplaceAll(token, "~1", "/"), "~0", "~")
}
