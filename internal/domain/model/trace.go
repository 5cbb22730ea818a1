package model

import (
	"net/http"
	"time"
)

// Trace is the audit record of one proxied call. StatusCode and CompletedAt
// stay nil while the call is in flight, or if the process died during it.
type Trace struct {
	ID           string
	EndpointID   string
	CredentialID string // Empty for unauthenticated calls.
	Method       HTTPMethod
	URL          string
	Headers      map[string]string
	Payload      []byte
	Params       map[string]string
	StatusCode   *int
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// StatusType is the class of a response status code.
type StatusType string

const (
	StatusTypeInformational StatusType = "INFORMATIONAL"
	StatusTypeSuccess       StatusType = "SUCCESS"
	StatusTypeRedirect      StatusType = "REDIRECT"
	StatusTypeClientError   StatusType = "CLIENT_ERROR"
	StatusTypeServerError   StatusType = "SERVER_ERROR"
)

// Completed reports whether the trace has been finalized.
func (t *Trace) Completed() bool {
	return t.CompletedAt != nil
}

// Status returns the reason phrase for StatusCode, or "" when there is no
// status or the code is not a registered one.
func (t *Trace) Status() string {
	if t.StatusCode == nil {
		return ""
	}
	return http.StatusText(*t.StatusCode)
}

// StatusType classifies StatusCode. It returns "" when there is no status
// or the code falls outside 100-599.
func (t *Trace) StatusType() StatusType {
	if t.StatusCode == nil {
		return ""
	}
	switch code := *t.StatusCode; {
	case code >= 100 && code < 200:
		return StatusTypeInformational
	case code >= 200 && code < 300:
		return StatusTypeSuccess
	case code >= 300 && code < 400:
		return StatusTypeRedirect
	case code >= 400 && code < 500:
		return StatusTypeClientError
	case code >= 500 && code < 600:
		return StatusTypeServerError
	default:
		return ""
	}
}
