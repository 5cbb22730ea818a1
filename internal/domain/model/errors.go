package model

import (
	"errors"
	"fmt"
)

// ErrNotFound is the sentinel matched by errors.Is for any unresolved
// endpoint, service, credential, trace, or task reference.
var ErrNotFound = errors.New("not found")

// ErrEndpointInactive is returned when an archived endpoint is invoked.
var ErrEndpointInactive = errors.New("endpoint is inactive")

// ErrorKind classifies pipeline failures for callers that only see a
// serialized task result.
type ErrorKind string

const (
	ErrorKindNotFound  ErrorKind = "not_found"
	ErrorKindInactive  ErrorKind = "endpoint_inactive"
	ErrorKindAuthFlow  ErrorKind = "auth_flow"
	ErrorKindTransient ErrorKind = "transient_http"
	ErrorKindUpstream  ErrorKind = "upstream_status"
	ErrorKindParse     ErrorKind = "parse"
	ErrorKindInternal  ErrorKind = "internal"
)

// NotFoundError reports an unresolved reference.
type NotFoundError struct {
	Resource string // "endpoint", "service", "credential", "trace", "task".
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// Unwrap lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// AuthFlowError reports a failure to obtain authentication headers, most
// often an unreachable or non-2xx token endpoint.
type AuthFlowError struct {
	Flow         AuthFlow
	CredentialID string
	StatusCode   int // Token endpoint status, 0 when no response was received.
	Err          error
}

func (e *AuthFlowError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("auth flow %s for credential %q: token endpoint returned %d: %v", e.Flow, e.CredentialID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("auth flow %s for credential %q: %v", e.Flow, e.CredentialID, e.Err)
}

func (e *AuthFlowError) Unwrap() error { return e.Err }

// TransientHTTPError is returned once the retry budget is exhausted on a
// retryable status, or when the target could not be reached at all
// (StatusCode 0).
type TransientHTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *TransientHTTPError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Method, e.URL, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s %s returned %d after %d attempt(s)", e.Method, e.URL, e.StatusCode, e.Attempts)
}

func (e *TransientHTTPError) Unwrap() error { return e.Err }

// UpstreamStatusError reports a non-retryable, non-2xx response from the
// target. Body is truncated by the caller.
type UpstreamStatusError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// ParseError reports a response body that does not match the endpoint's
// declared response type.
type ParseError struct {
	ResponseType ResponseType
	Err          error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s response: %v", e.ResponseType, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NewTaskError converts a pipeline error into its serializable form.
func NewTaskError(err error) *TaskError {
	if err == nil {
		return nil
	}

	te := &TaskError{Kind: ErrorKindInternal, Message: err.Error()}

	var (
		authErr      *AuthFlowError
		transientErr *TransientHTTPError
		upstreamErr  *UpstreamStatusError
		parseErr     *ParseError
	)
	switch {
	case errors.Is(err, ErrNotFound):
		te.Kind = ErrorKindNotFound
	case errors.Is(err, ErrEndpointInactive):
		te.Kind = ErrorKindInactive
	case errors.As(err, &authErr):
		te.Kind = ErrorKindAuthFlow
		te.StatusCode = authErr.StatusCode
	case errors.As(err, &transientErr):
		te.Kind = ErrorKindTransient
		te.StatusCode = transientErr.StatusCode
	case errors.As(err, &upstreamErr):
		te.Kind = ErrorKindUpstream
		te.StatusCode = upstreamErr.StatusCode
	case errors.As(err, &parseErr):
		te.Kind = ErrorKindParse
	}

	return te
}

// Error lets a TaskError read back from a queue be returned as an error.
func (e *TaskError) Error() string {
	return e.Message
}
