package driven

import (
	"context"
	"net/http"
	"time"
)

// HTTPRequest is one proxied call. Timeout applies to each attempt.
type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
}

// HTTPResponse is the final response of a (possibly retried) call.
type HTTPResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
	Elapsed    time.Duration
}

// HTTPExecutor executes a proxied call with the adapter's retry policy.
// When retries are exhausted it returns both the last response and a
// *model.TransientHTTPError.
type HTTPExecutor interface {
	Execute(ctx context.Context, req HTTPRequest) (*HTTPResponse, error)
}
