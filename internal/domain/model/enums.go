package model

import (
	"fmt"
	"net/http"
	"strings"
)

// AuthFlow selects the algorithm that produces authenticated request headers
// for every endpoint of a service.
type AuthFlow string

const (
	AuthFlowNone                    AuthFlow = "none"
	AuthFlowAPIKey                  AuthFlow = "api_key"
	AuthFlowOAuth2ClientCredentials AuthFlow = "oauth2_client_credentials"
	AuthFlowOAuth2AuthorizationCode AuthFlow = "oauth2_authorization_code" // Declared, not implemented.
	AuthFlowBasic                   AuthFlow = "basic"                     // Declared, not implemented.
)

// Valid reports whether f is one of the declared flows. The empty value is
// treated as AuthFlowNone.
func (f AuthFlow) Valid() bool {
	switch f {
	case "", AuthFlowNone, AuthFlowAPIKey, AuthFlowOAuth2ClientCredentials,
		AuthFlowOAuth2AuthorizationCode, AuthFlowBasic:
		return true
	}
	return false
}

// HTTPMethod is the verb an endpoint is requested with. Values are stored
// lowercase.
type HTTPMethod string

const (
	MethodGet    HTTPMethod = "get"
	MethodPost   HTTPMethod = "post"
	MethodPut    HTTPMethod = "put"
	MethodPatch  HTTPMethod = "patch"
	MethodDelete HTTPMethod = "delete"
)

// methodVerbs maps stored methods to their net/http verbs.
var methodVerbs = map[HTTPMethod]string{
	MethodGet:    http.MethodGet,
	MethodPost:   http.MethodPost,
	MethodPut:    http.MethodPut,
	MethodPatch:  http.MethodPatch,
	MethodDelete: http.MethodDelete,
}

// Verb returns the net/http verb for m, or an error for an unsupported method.
func (m HTTPMethod) Verb() (string, error) {
	verb, ok := methodVerbs[HTTPMethod(strings.ToLower(string(m)))]
	if !ok {
		return "", fmt.Errorf("unsupported http method %q", string(m))
	}
	return verb, nil
}

// ResponseType declares how an endpoint's response body is interpreted.
type ResponseType string

const (
	ResponseTypeJSON ResponseType = "json"
	ResponseTypeXML  ResponseType = "xml"
	ResponseTypeRaw  ResponseType = "raw"
)

// TaskState is the lifecycle state of a submitted invocation.
type TaskState string

const (
	TaskStatePending   TaskState = "pending"
	TaskStateRunning   TaskState = "running"
	TaskStateSucceeded TaskState = "succeeded"
	TaskStateFailed    TaskState = "failed"
)

// Done reports whether the task reached a terminal state.
func (s TaskState) Done() bool {
	return s == TaskStateSucceeded || s == TaskStateFailed
}
