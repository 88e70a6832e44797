package spec

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/abdul-hamid-achik/tentspec/packages/assertions"
	"github.com/abdul-hamid-achik/tentspec/packages/http"
)

// SetupFailure aborts the rest of a validator's scenario. With Results
// set it is reported as a scored record; without, the message and
// response are printed and the remaining expectations count as skipped.
type SetupFailure struct {
	Message   string
	Response  *http.Response
	Results   []*assertions.Result
	Validator string
	// Path is the node path of the expectation or hook that failed,
	// validator name first.
	Path  []string
	Stack []byte
}

// NewSetupFailure creates an unstructured failure for resp.
func NewSetupFailure(msg string, resp *http.Response) *SetupFailure {
	return &SetupFailure{Message: msg, Response: resp, Stack: debug.Stack()}
}

// Failf is NewSetupFailure with a formatted message.
func Failf(resp *http.Response, format string, args ...any) *SetupFailure {
	return NewSetupFailure(fmt.Sprintf(format, args...), resp)
}

// WithResults attaches scored results and returns sf.
func (sf *SetupFailure) WithResults(results []*assertions.Result) *SetupFailure {
	sf.Results = results
	return sf
}

func (sf *SetupFailure) Error() string {
	if sf.Response != nil && sf.Response.StatusCode != 0 {
		return fmt.Sprintf("setup failure: %s (status %d)", sf.Message, sf.Response.StatusCode)
	}
	return "setup failure: " + sf.Message
}

// Structured reports whether the failure carries scored results.
func (sf *SetupFailure) Structured() bool {
	return len(sf.Results) > 0
}

// AsSetupFailure converts err into a SetupFailure. Errors that are not
// already one are wrapped as unstructured failures.
func AsSetupFailure(err error, resp *http.Response) *SetupFailure {
	var sf *SetupFailure
	if errors.As(err, &sf) {
		if sf.Response == nil {
			sf.Response = resp
		}
		return sf
	}
	return NewSetupFailure(err.Error(), resp)
}
