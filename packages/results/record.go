package results

import (
	"time"

	"github.com/abdul-hamid-achik/tentspec/packages/assertions"
	"github.com/abdul-hamid-achik/tentspec/packages/http"
	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

// Record is one executed expectation with its request, response and scores.
type Record struct {
	Description string               `json:"description"`
	Valid       *bool                `json:"valid"`
	Expected    []*assertions.Result `json:"expected"`
	Actual      Exchange             `json:"actual"`
	Error       string               `json:"error,omitempty"`
	Duration    time.Duration        `json:"duration"`
}

// Exchange is the reportable view of a request and its response.
type Exchange struct {
	RequestMethod   string            `json:"request_method"`
	RequestURL      string            `json:"request_url"`
	RequestHeaders  map[string]string `json:"request_headers"`
	RequestBody     string            `json:"request_body,omitempty"`
	ResponseStatus  int               `json:"response_status"`
	ResponseHeaders map[string]string `json:"response_headers"`
	ResponseBody    any               `json:"response_body"`
}

// NewRecord builds a record and rolls up its validity. req may be nil when
// the request could not be built.
func NewRecord(description string, req *http.Request, resp *http.Response, scored []*assertions.Result, err error) *Record {
	if resp == nil {
		resp = http.EmptyResponse()
	}
	r := &Record{
		Description: description,
		Valid:       assertions.Rollup(scored),
		Expected:    scored,
		Actual:      ExchangeOf(req, resp),
		Duration:    resp.Duration,
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// ExchangeOf summarises req and resp for reports.
func ExchangeOf(req *http.Request, resp *http.Response) Exchange {
	ex := Exchange{
		ResponseStatus:  resp.StatusCode,
		ResponseHeaders: resp.Headers,
		ResponseBody:    value.ToGo(resp.BodyValue()),
	}
	if req != nil {
		ex.RequestMethod = req.Method
		ex.RequestURL = req.BuildURL()
		ex.RequestHeaders = req.Headers
		ex.RequestBody = req.Body
	}
	return ex
}

// Passed reports whether the record is not a hard failure.
func (r *Record) Passed() bool {
	return r.Valid == nil || *r.Valid
}
