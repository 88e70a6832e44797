package output

import (
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/tentspec/packages/match"
	"github.com/abdul-hamid-achik/tentspec/packages/results"
	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

type leaf struct {
	path   []string
	record *results.Record
}

func (l leaf) name() string {
	if l.record.Description == "" {
		return strings.Join(l.path, " ")
	}
	return strings.Join(append(append([]string{}, l.path...), l.record.Description), " ")
}

func leaves(tree *results.Node) []leaf {
	var out []leaf
	tree.Walk(func(path []string, rec *results.Record) {
		out = append(out, leaf{path: path, record: rec})
	})
	return out
}

// failureLines describes every failing diff entry of rec, one per line.
func failureLines(rec *results.Record) []string {
	var lines []string
	for _, r := range rec.Expected {
		if r.Passed() {
			continue
		}
		if r.Message != "" && len(match.Failures(r.Diff)) == 0 {
			lines = append(lines, fmt.Sprintf("%s: %s", r.Key, r.Message))
		}
		for _, e := range match.Failures(r.Diff) {
			line := fmt.Sprintf("%s %s: expected %s, actual %s", r.Key, pointer(e.Path),
				formatValue(e.Expected, 100), formatValue(e.Actual, 100))
			if e.Message != "" {
				line += " (" + e.Message + ")"
			}
			lines = append(lines, line)
		}
	}
	return lines
}

func pointer(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

// formatValue formats a value for display, truncating large values
func formatValue(v any, maxLen int) string {
	var str string
	switch val := v.(type) {
	case nil:
		return "<undefined>"
	case string:
		str = fmt.Sprintf("%q", val)
	default:
		str = value.Format(value.FromGo(v))
	}
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}
