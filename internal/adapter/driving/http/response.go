package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/relaygate/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// InvokeRequest is the JSON body of the invoke endpoint. Body is forwarded
// to the target as-is; Timeout is a Go duration string applied per attempt.
type InvokeRequest struct {
	CredentialID string            `json:"credential_id"`
	Params       map[string]string `json:"params"`
	Headers      map[string]string `json:"headers"`
	Body         json.RawMessage   `json:"body"`
	Timeout      string            `json:"timeout"`
}

// InvokeResponse is returned when an invocation is accepted.
type InvokeResponse struct {
	TaskID    string `json:"task_id"`
	StatusURL string `json:"status_url"`
}

// TaskResponse is the JSON representation of a task.
type TaskResponse struct {
	ID          string             `json:"id"`
	State       string             `json:"state"`
	SubmittedAt string             `json:"submitted_at"`
	StartedAt   string             `json:"started_at,omitempty"`
	FinishedAt  string             `json:"finished_at,omitempty"`
	Result      *ResultResponse    `json:"result,omitempty"`
	Error       *TaskErrorResponse `json:"error,omitempty"`
}

// ResultResponse is the parsed upstream response. Body holds the decoded
// JSON value for json endpoints and the body text otherwise.
type ResultResponse struct {
	TraceID      string `json:"trace_id"`
	StatusCode   int    `json:"status_code"`
	ResponseType string `json:"response_type"`
	Body         any    `json:"body"`
}

// TaskErrorResponse is the JSON representation of a failed task's error.
type TaskErrorResponse struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
}

// TraceResponse is the JSON representation of an audit trace.
type TraceResponse struct {
	ID           string            `json:"id"`
	EndpointID   string            `json:"endpoint_id"`
	CredentialID string            `json:"credential_id,omitempty"`
	Method       string            `json:"method"`
	URL          string            `json:"url"`
	Headers      map[string]string `json:"headers"`
	Params       map[string]string `json:"params"`
	Payload      string            `json:"payload,omitempty"`
	StatusCode   *int              `json:"status_code"`
	Status       *string           `json:"status"`
	StatusType   *string           `json:"status_type"`
	StartedAt    string            `json:"started_at"`
	CompletedAt  string            `json:"completed_at,omitempty"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status        string `json:"status"`
	Time          string `json:"time"`
	StalledTraces int    `json:"stalled_traces"`
}

// toTaskResponse converts a domain Task to its JSON response representation.
func toTaskResponse(t *model.Task) TaskResponse {
	resp := TaskResponse{
		ID:          t.ID,
		State:       string(t.State),
		SubmittedAt: formatTime(t.SubmittedAt),
		StartedAt:   formatOptionalTime(t.StartedAt),
		FinishedAt:  formatOptionalTime(t.FinishedAt),
	}

	if t.Result != nil {
		var body any = t.Result.JSON
		if t.Result.ResponseType != model.ResponseTypeJSON {
			body = string(t.Result.Raw)
		}
		resp.Result = &ResultResponse{
			TraceID:      t.Result.TraceID,
			StatusCode:   t.Result.StatusCode,
			ResponseType: string(t.Result.ResponseType),
			Body:         body,
		}
	}

	if t.Error != nil {
		resp.Error = &TaskErrorResponse{
			Kind:       string(t.Error.Kind),
			Message:    t.Error.Message,
			StatusCode: t.Error.StatusCode,
		}
	}

	return resp
}

// toTraceResponse converts a domain Trace to its JSON response representation.
func toTraceResponse(t *model.Trace) TraceResponse {
	headers := t.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	params := t.Params
	if params == nil {
		params = map[string]string{}
	}

	resp := TraceResponse{
		ID:           t.ID,
		EndpointID:   t.EndpointID,
		CredentialID: t.CredentialID,
		Method:       string(t.Method),
		URL:          t.URL,
		Headers:      headers,
		Params:       params,
		Payload:      string(t.Payload),
		StatusCode:   t.StatusCode,
		StartedAt:    formatTime(t.StartedAt),
		CompletedAt:  formatOptionalTime(t.CompletedAt),
	}
	if status := t.Status(); status != "" {
		resp.Status = &status
	}
	if statusType := string(t.StatusType()); statusType != "" {
		resp.StatusType = &statusType
	}

	return resp
}

// taskErrorStatus maps a failed task's error kind to the status returned
// when a caller waits for the task.
func taskErrorStatus(kind model.ErrorKind) int {
	switch kind {
	case model.ErrorKindNotFound:
		return http.StatusNotFound
	case model.ErrorKindInactive:
		return http.StatusConflict
	case model.ErrorKindTransient:
		return http.StatusGatewayTimeout
	case model.ErrorKindAuthFlow, model.ErrorKindUpstream, model.ErrorKindParse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
