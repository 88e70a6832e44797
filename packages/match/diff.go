package match

import (
	"strconv"

	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

// Entry is the outcome of one leaf comparison. Valid is nil for
// indeterminate entries, which count as passing but are reported.
type Entry struct {
	Path     string `json:"path"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
	Valid    *bool  `json:"valid"`
	Message  string `json:"message,omitempty"`
}

// Passed reports whether the entry is not a hard failure.
func (e Entry) Passed() bool {
	return e.Valid == nil || *e.Valid
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}

// Diff compares expected against actual rooted at the empty pointer.
// found is false when actual does not exist at all.
func Diff(expected Matcher, actual value.Value, found bool) []Entry {
	return DiffAt("", expected, actual, found)
}

// DiffAt compares expected against actual, reporting paths under base.
func DiffAt(base string, expected Matcher, actual value.Value, found bool) []Entry {
	var entries []Entry
	walk(&entries, base, expected, actual, found)
	return entries
}

func walk(entries *[]Entry, path string, expected Matcher, actual value.Value, found bool) {
	leaf := func(ok bool, msg string) {
		var act any
		if found {
			act = value.ToGo(actual)
		}
		*entries = append(*entries, Entry{
			Path:     path,
			Expected: expected.describe(),
			Actual:   act,
			Valid:    Bool(ok),
			Message:  msg,
		})
	}

	switch m := expected.(type) {
	case absent:
		if found {
			leaf(false, "expected member to be absent")
			return
		}
		leaf(true, "")

	case present:
		if !found {
			leaf(false, "expected member to be present")
			return
		}
		leaf(true, "")

	case Regex:
		s, ok := actual.(value.String)
		if !found || !ok {
			leaf(false, "expected a string matching "+m.Pattern.String())
			return
		}
		leaf(m.Pattern.MatchString(string(s)), "")

	case *Fields:
		obj, ok := actual.(*value.Object)
		if !found || !ok {
			leaf(false, "expected an object, got "+typeName(actual, found))
			return
		}
		for _, key := range m.keys {
			member, exists := obj.Get(key)
			walk(entries, value.JoinPointer(path, key), m.members[key], member, exists)
		}

	case Items:
		arr, ok := actual.(value.Array)
		if !found || !ok {
			leaf(false, "expected an array, got "+typeName(actual, found))
			return
		}
		for i, item := range m {
			childPath := path + "/" + strconv.Itoa(i)
			if i < len(arr) {
				walk(entries, childPath, item, arr[i], true)
			} else {
				walk(entries, childPath, item, nil, false)
			}
		}

	case Literal:
		if !found {
			leaf(false, "expected member to be present")
			return
		}
		leaf(value.Equal(m.Value, actual), "")

	default:
		leaf(false, "unsupported matcher")
	}
}

func typeName(v value.Value, found bool) string {
	if !found {
		return "undefined"
	}
	return value.TypeName(v)
}

// Valid rolls up entries: any hard failure gives false, otherwise any
// indeterminate entry gives nil, otherwise true.
func Valid(entries []Entry) *bool {
	valids := make([]*bool, len(entries))
	for i, e := range entries {
		valids[i] = e.Valid
	}
	return Rollup(valids...)
}

// Rollup combines tri-state validity values. A false is never overridden;
// nil survives only while nothing is false.
func Rollup(valids ...*bool) *bool {
	memo := Bool(true)
	for _, v := range valids {
		switch {
		case v != nil && !*v:
			return Bool(false)
		case v == nil:
			memo = nil
		}
	}
	return memo
}

// Failures returns the entries that are hard failures.
func Failures(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if !e.Passed() {
			out = append(out, e)
		}
	}
	return out
}
