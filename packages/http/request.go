package http

import (
	"net/url"
	"sort"
	"strings"
	"time"
)

type Request struct {
	Method      string
	URL         string
	Headers     map[string]string
	Body        string
	Timeout     time.Duration
	Query       url.Values
	Attachments []*Attachment
	MAC         *MACCredentials
}

// Attachment is a file sent alongside a post in a multipart body.
type Attachment struct {
	Category    string
	Name        string
	ContentType string
	Data        []byte
	Headers     map[string]string
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method:  method,
		URL:     requestURL,
		Headers: make(map[string]string),
		Query:   make(url.Values),
	}
}

func (r *Request) SetHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

// Header returns the value of a request header, matched case-insensitively.
func (r *Request) Header(key string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (r *Request) SetBody(body string) *Request {
	r.Body = body
	return r
}

func (r *Request) SetTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

func (r *Request) SetQueryParam(key, value string) *Request {
	if r.Query == nil {
		r.Query = make(url.Values)
	}
	r.Query.Set(key, value)
	return r
}

// AddQueryParam appends a value, producing repeated keys.
func (r *Request) AddQueryParam(key, value string) *Request {
	if r.Query == nil {
		r.Query = make(url.Values)
	}
	r.Query.Add(key, value)
	return r
}

// WithMAC signs the request with creds when it is sent.
func (r *Request) WithMAC(creds *MACCredentials) *Request {
	r.MAC = creds
	return r
}

func (r *Request) Attach(a *Attachment) *Request {
	r.Attachments = append(r.Attachments, a)
	return r
}

func (r *Request) BuildURL() string {
	if len(r.Query) == 0 {
		return r.URL
	}

	u, err := url.Parse(r.URL)
	if err != nil {
		return r.URL
	}

	q := u.Query()
	keys := make([]string, 0, len(r.Query))
	for k := range r.Query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range r.Query[k] {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
