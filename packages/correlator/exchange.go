package correlator

import (
	"bytes"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/abdul-hamid-achik/tentspec/packages/http"
)

// Exchange is a captured request to the embedded peer and its response.
type Exchange struct {
	Key      string
	Method   string
	Path     string
	URL      string
	Headers  map[string]string
	Body     []byte
	Received time.Time
	Response *http.Response
}

// emptyExchange is scored against expectations nothing arrived for.
func emptyExchange() *Exchange {
	return &Exchange{Headers: map[string]string{}, Response: http.EmptyResponse()}
}

// KeyFunc maps a request to its correlation key and the path relative to
// the watched resource. ok is false for requests that are never captured.
type KeyFunc func(r *stdhttp.Request) (key, path string, ok bool)

// Middleware captures exchanges handled by next and hands them to Observe.
// Responses are passed through unchanged.
func (c *Correlator) Middleware(keyFn KeyFunc, next stdhttp.Handler) stdhttp.Handler {
	return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, req *stdhttp.Request) {
		key, path, ok := keyFn(req)
		if !ok || req.Header.Get(c.marker) != "" {
			next.ServeHTTP(w, req)
			return
		}

		start := time.Now()

		var bodyBytes []byte
		if req.Body != nil {
			bodyBytes, _ = io.ReadAll(req.Body)
			req.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		}

		headers := make(map[string]string, len(req.Header))
		for k := range req.Header {
			headers[k] = req.Header.Get(k)
		}

		scheme := "http"
		if req.TLS != nil {
			scheme = "https"
		}

		rec := &captureWriter{ResponseWriter: w, status: stdhttp.StatusOK}
		next.ServeHTTP(rec, req)

		respHeaders := make(map[string]string, len(w.Header()))
		for k := range w.Header() {
			respHeaders[k] = w.Header().Get(k)
		}

		c.Observe(&Exchange{
			Key:      key,
			Method:   req.Method,
			Path:     path,
			URL:      scheme + "://" + req.Host + req.URL.RequestURI(),
			Headers:  headers,
			Body:     bodyBytes,
			Received: start,
			Response: &http.Response{
				StatusCode: rec.status,
				Status:     stdhttp.StatusText(rec.status),
				Headers:    respHeaders,
				Body:       rec.body.Bytes(),
				Duration:   time.Since(start),
			},
		})
	})
}

type captureWriter struct {
	stdhttp.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *captureWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	w.body.Write(p)
	return w.ResponseWriter.Write(p)
}
