package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/abdul-hamid-achik/tentspec/packages/core/runner"
	"github.com/abdul-hamid-achik/tentspec/packages/results"
	"github.com/abdul-hamid-achik/tentspec/packages/spec"
)

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	if f.verbose {
		fmt.Fprintf(f.writer, "%s %s\n", bold("tentspec"), version)
	}
	fmt.Fprintln(f.writer, "Running Protocol Validations...")
}

// FormatRecord prints one progress mark. Indeterminate records print
// nothing.
func (f *ConsoleFormatter) FormatRecord(_ []string, rec *results.Record) {
	switch {
	case rec.Valid == nil:
	case *rec.Valid:
		fmt.Fprint(f.writer, color.GreenString("."))
	default:
		fmt.Fprint(f.writer, color.RedString("F"))
	}
}

func (f *ConsoleFormatter) FormatSetupFailure(sf *spec.SetupFailure) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "\n\n%s %s\n", red("Setup failed:"), strings.Join(sf.Path, " "))
	fmt.Fprintf(f.writer, "  %s\n", sf.Message)
	if sf.Response != nil {
		fmt.Fprintf(f.writer, "  status: %d\n", sf.Response.StatusCode)
		if len(sf.Response.Body) > 0 {
			fmt.Fprintf(f.writer, "  body: %s\n", indent(prettyJSON(sf.Response.BodyString()), "  "))
		}
	}
	if f.verbose && len(sf.Stack) > 0 {
		fmt.Fprintf(f.writer, "%s\n", indent(string(sf.Stack), "  "))
	}
	fmt.Fprintln(f.writer)
}

func (f *ConsoleFormatter) FormatResult(result *runner.RunResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprint(f.writer, "\n\n")

	for _, l := range leaves(result.Results.Tree()) {
		if l.record.Passed() {
			continue
		}
		rec := l.record
		fmt.Fprintf(f.writer, "%s:\n", bold(l.name()))

		fmt.Fprintf(f.writer, "  %s\n", cyan("REQUEST:"))
		fmt.Fprintf(f.writer, "    %s %s\n", rec.Actual.RequestMethod, rec.Actual.RequestURL)
		f.headers(rec.Actual.RequestHeaders)
		if rec.Actual.RequestBody != "" {
			fmt.Fprintf(f.writer, "    %s\n", indent(prettyJSON(rec.Actual.RequestBody), "    "))
		}

		fmt.Fprintf(f.writer, "  %s\n", cyan("RESPONSE:"))
		fmt.Fprintf(f.writer, "    %d\n", rec.Actual.ResponseStatus)
		f.headers(rec.Actual.ResponseHeaders)
		if body := bodyString(rec.Actual.ResponseBody); body != "" {
			fmt.Fprintf(f.writer, "    %s\n", indent(body, "    "))
		}
		if rec.Error != "" {
			fmt.Fprintf(f.writer, "  %s %s\n", red("ERROR:"), rec.Error)
		}

		fmt.Fprintf(f.writer, "  %s\n", cyan("DIFF:"))
		for _, line := range failureLines(rec) {
			fmt.Fprintf(f.writer, "    %s %s\n", red("→"), line)
		}
		fmt.Fprintln(f.writer)
	}

	s := result.Results.Summary()
	fmt.Fprintf(f.writer, "%s\t%s\t%s\t%.2fs\n",
		green(fmt.Sprintf("%d validations passed", s.Passed)),
		red(fmt.Sprintf("%d failed", s.Failed)),
		yellow(fmt.Sprintf("%d skipped", s.Skipped)),
		result.Duration.Seconds())
	if s.Indeterminate > 0 {
		fmt.Fprintf(f.writer, "%d indeterminate\n", s.Indeterminate)
	}

	if f.verbose && result.Latency != nil {
		overall := result.Latency.Overall()
		if overall.Count > 0 {
			fmt.Fprintf(f.writer, "\nLatency: p50 %s  p95 %s  p99 %s  max %s\n",
				overall.P50, overall.P95, overall.P99, overall.Max)
			for _, g := range result.Latency.Groups() {
				fmt.Fprintf(f.writer, "  %-28s %4d req  p50 %s  p95 %s  failures %d\n",
					g.Group, g.Count, g.P50, g.P95, g.Failures)
			}
		}
	}
	fmt.Fprintln(f.writer)
}

func (f *ConsoleFormatter) headers(h map[string]string) {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(f.writer, "    %s: %s\n", k, h[k])
	}
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func prettyJSON(s string) string {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return bodyString(v)
}

func bodyString(v any) string {
	switch b := v.(type) {
	case nil:
		return ""
	case string:
		return b
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func indent(s, prefix string) string {
	return strings.ReplaceAll(s, "\n", "\n"+prefix)
}
