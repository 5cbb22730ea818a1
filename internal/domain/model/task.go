package model

import "time"

// Task is the caller-visible state of one submitted invocation.
type Task struct {
	ID          string
	State       TaskState
	Result      *Result
	Error       *TaskError
	SubmittedAt time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time
}

// TaskError is the serializable form of a pipeline failure.
type TaskError struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
}

// Result is the outcome of a successful invocation. JSON holds the decoded
// value for json endpoints; Raw holds the untouched body for xml and raw.
type Result struct {
	TraceID      string       `json:"trace_id"`
	StatusCode   int          `json:"status_code"`
	ResponseType ResponseType `json:"response_type"`
	JSON         any          `json:"json,omitempty"`
	Raw          []byte       `json:"raw,omitempty"`
}

// Body returns the parsed response value for the declared response type.
func (r *Result) Body() any {
	if r.ResponseType == ResponseTypeJSON {
		return r.JSON
	}
	return r.Raw
}
