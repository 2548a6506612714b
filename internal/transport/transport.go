// Package transport is the send-request/get-response primitive the archive
// client is built on.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Credentials are sent as HTTP basic auth on authenticated requests.
type Credentials struct {
	User     string
	Password string
}

// Request describes one exchange with the archive.
type Request struct {
	Method        string
	URL           string
	Params        url.Values // appended to the query string, repeated keys keep their order
	Form          url.Values // sent as an urlencoded body
	Authenticated bool
	Cache         bool          // GET only
	Timeout       time.Duration // overrides the client default when > 0
}

// Response is what the archive answered after redirects were followed.
type Response struct {
	StatusCode int
	FinalURL   string
	Header     http.Header
	Body       []byte
}

// Sender is implemented by HTTP and by test doubles.
type Sender interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// StatusError is returned for non-2xx answers.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	snippet := string(e.Body)
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, snippet)
}

func (r Request) fullURL() (string, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", r.URL, err)
	}
	if len(r.Params) > 0 {
		q := u.Query()
		for k, vs := range r.Params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (r Request) cacheKey(full string) string {
	return r.Method + " " + full
}
