package http

import (
	"strings"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/tentspec/packages/value"
)

type Response struct {
	StatusCode int
	Status     string
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration

	parseOnce sync.Once
	parsed    value.Value
	parsedOK  bool
}

// EmptyResponse is the stand-in scored when no response could be obtained.
func EmptyResponse() *Response {
	return &Response{Headers: make(map[string]string)}
}

func (r *Response) BodyString() string {
	return string(r.Body)
}

// JSON decodes the body once. The second result is false when the body is
// empty or not valid JSON.
func (r *Response) JSON() (value.Value, bool) {
	r.parseOnce.Do(func() {
		if len(r.Body) == 0 {
			return
		}
		v, err := value.Parse(r.Body)
		if err != nil {
			return
		}
		r.parsed, r.parsedOK = v, true
	})
	return r.parsed, r.parsedOK
}

// BodyValue returns the decoded body, falling back to the raw body as a
// string when it is not JSON.
func (r *Response) BodyValue() value.Value {
	if v, ok := r.JSON(); ok {
		return v
	}
	return value.String(r.BodyString())
}

func (r *Response) Header(key string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (r *Response) ContentType() string {
	return r.Header("Content-Type")
}

func (r *Response) IsJSON() bool {
	return strings.Contains(r.ContentType(), "json")
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) DurationMs() int64 {
	return r.Duration.Milliseconds()
}
