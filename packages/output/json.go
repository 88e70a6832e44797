package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/tentspec/packages/core/runner"
	"github.com/abdul-hamid-achik/tentspec/packages/results"
	"github.com/abdul-hamid-achik/tentspec/packages/spec"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	Summary       JSONSummary        `json:"summary"`
	Validators    []string           `json:"validators"`
	Results       *results.Node      `json:"results"`
	SetupFailures []JSONSetupFailure `json:"setupFailures,omitempty"`
	Latency       *JSONLatency       `json:"latency,omitempty"`
	Duration      float64            `json:"duration"`
	Time          string             `json:"time"`
}

// JSONSummary represents the run summary
type JSONSummary struct {
	Total         int `json:"total"`
	Passed        int `json:"passed"`
	Failed        int `json:"failed"`
	Indeterminate int `json:"indeterminate"`
	Skipped       int `json:"skipped"`
}

// JSONSetupFailure is an unstructured setup failure.
type JSONSetupFailure struct {
	Validator string   `json:"validator"`
	Path      []string `json:"path"`
	Message   string   `json:"message"`
	Status    int      `json:"status,omitempty"`
	Body      string   `json:"body,omitempty"`
}

// JSONLatency holds response time percentiles in milliseconds.
type JSONLatency struct {
	Count int64   `json:"count"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Max   float64 `json:"max"`
}

// JSONFormatter formats results as JSON
type JSONFormatter struct {
	writer        io.Writer
	result        *runner.RunResult
	setupFailures []JSONSetupFailure
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) FormatHeader(version string) {}

func (f *JSONFormatter) FormatRecord([]string, *results.Record) {}

func (f *JSONFormatter) FormatSetupFailure(sf *spec.SetupFailure) {
	jf := JSONSetupFailure{Validator: sf.Validator, Path: sf.Path, Message: sf.Message}
	if sf.Response != nil {
		jf.Status = sf.Response.StatusCode
		jf.Body = sf.Response.BodyString()
	}
	f.setupFailures = append(f.setupFailures, jf)
}

func (f *JSONFormatter) FormatResult(result *runner.RunResult) {
	f.result = result
}

func (f *JSONFormatter) FormatError(err error) {
	// Errors are included in individual records
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	output := JSONOutput{
		Results:       results.NewNode(),
		SetupFailures: f.setupFailures,
		Duration:      float64(totalDuration.Milliseconds()),
		Time:          time.Now().Format(time.RFC3339),
	}
	if r := f.result; r != nil {
		s := r.Results.Summary()
		output.Summary = JSONSummary{
			Total:         s.Passed + s.Failed + s.Indeterminate + s.Skipped,
			Passed:        s.Passed,
			Failed:        s.Failed,
			Indeterminate: s.Indeterminate,
			Skipped:       s.Skipped,
		}
		output.Validators = r.Validators
		output.Results = r.Results.Tree()
		if r.Latency != nil {
			if o := r.Latency.Overall(); o.Count > 0 {
				output.Latency = &JSONLatency{
					Count: o.Count,
					P50:   millis(o.P50),
					P95:   millis(o.P95),
					P99:   millis(o.P99),
					Max:   millis(o.Max),
				}
			}
		}
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
