package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/tentspec/packages/core/runner"
	"github.com/abdul-hamid-achik/tentspec/packages/results"
	"github.com/abdul-hamid-achik/tentspec/packages/spec"
)

// TAPFormatter formats results in TAP (Test Anything Protocol) format
type TAPFormatter struct {
	writer    io.Writer
	testCount int
	results   []tapResult
	skipped   int
}

type tapResult struct {
	number     int
	name       string
	passed     bool
	todo       bool
	error      string
	assertions []string
}

type TAPOption func(*TAPFormatter)

func NewTAPFormatter(opts ...TAPOption) *TAPFormatter {
	f := &TAPFormatter{
		writer:  os.Stdout,
		results: make([]tapResult, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func TAPWithWriter(w io.Writer) TAPOption {
	return func(f *TAPFormatter) {
		f.writer = w
	}
}

func (f *TAPFormatter) FormatHeader(version string) {
	// Header is written in Flush
}

func (f *TAPFormatter) FormatRecord([]string, *results.Record) {}

func (f *TAPFormatter) FormatSetupFailure(sf *spec.SetupFailure) {
	f.testCount++
	f.results = append(f.results, tapResult{
		number: f.testCount,
		name:   strings.Join(sf.Path, " "),
		error:  sf.Message,
	})
}

func (f *TAPFormatter) FormatResult(result *runner.RunResult) {
	for _, l := range leaves(result.Results.Tree()) {
		f.testCount++
		rec := l.record
		tr := tapResult{
			number: f.testCount,
			name:   l.name(),
			passed: rec.Passed(),
			todo:   rec.Valid == nil,
			error:  rec.Error,
		}
		if !rec.Passed() {
			tr.assertions = failureLines(rec)
		}
		f.results = append(f.results, tr)
	}
	f.skipped += result.Results.NumSkipped()
}

func (f *TAPFormatter) FormatError(err error) {
	// Errors are included in individual test results
}

// Flush writes the accumulated TAP output
func (f *TAPFormatter) Flush(totalDuration time.Duration) error {
	fmt.Fprintf(f.writer, "TAP version 13\n")
	fmt.Fprintf(f.writer, "1..%d\n", f.testCount)

	for _, r := range f.results {
		if r.error != "" {
			fmt.Fprintf(f.writer, "not ok %d - %s\n", r.number, r.name)
			fmt.Fprintf(f.writer, "  ---\n")
			fmt.Fprintf(f.writer, "  message: %s\n", escapeYAML(r.error))
			fmt.Fprintf(f.writer, "  severity: error\n")
			if len(r.assertions) > 0 {
				fmt.Fprintf(f.writer, "  failures:\n")
				for _, a := range r.assertions {
					fmt.Fprintf(f.writer, "    - %s\n", escapeYAML(a))
				}
			}
			fmt.Fprintf(f.writer, "  ...\n")
			continue
		}

		switch {
		case r.todo:
			fmt.Fprintf(f.writer, "ok %d - %s # TODO indeterminate\n", r.number, r.name)
		case r.passed:
			fmt.Fprintf(f.writer, "ok %d - %s\n", r.number, r.name)
		default:
			fmt.Fprintf(f.writer, "not ok %d - %s\n", r.number, r.name)
			if len(r.assertions) > 0 {
				fmt.Fprintf(f.writer, "  ---\n")
				fmt.Fprintf(f.writer, "  failures:\n")
				for _, a := range r.assertions {
					fmt.Fprintf(f.writer, "    - %s\n", escapeYAML(a))
				}
				fmt.Fprintf(f.writer, "  ...\n")
			}
		}
	}

	if f.skipped > 0 {
		fmt.Fprintf(f.writer, "# skipped %d\n", f.skipped)
	}
	fmt.Fprintln(f.writer)

	return nil
}

func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":\n\"'[]{}#&*!|>%@`") {
		s = strings.ReplaceAll(s, "\"", "\\\"")
		return "\"" + s + "\""
	}
	return s
}
