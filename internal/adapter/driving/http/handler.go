// Package httphandler is the HTTP driving adapter: it accepts invocations,
// serves task and trace state, and exposes health and metrics.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/relaygate/internal/application"
	"github.com/ericfisherdev/relaygate/internal/domain/model"
	"github.com/ericfisherdev/relaygate/internal/domain/port/driven"
)

// maxInvokeBody bounds the JSON body accepted by the invoke endpoint.
const maxInvokeBody = 1 << 20

// Invoker submits invocations and reports their progress.
type Invoker interface {
	Invoke(ctx context.Context, inv driven.Invocation) (string, error)
	Status(ctx context.Context, taskID string) (*model.Task, error)
	Await(ctx context.Context, taskID string) (*model.Task, error)
}

// TraceReader reads stored audit traces.
type TraceReader interface {
	Get(ctx context.Context, id string) (*model.Trace, error)
}

// HealthReporter summarizes gateway health.
type HealthReporter interface {
	Summary(ctx context.Context) (*application.HealthSummary, error)
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	invoker Invoker
	traces  TraceReader
	health  HealthReporter
	logger  *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(invoker Invoker, traces TraceReader, health HealthReporter, logger *slog.Logger) *Handler {
	return &Handler{
		invoker: invoker,
		traces:  traces,
		health:  health,
		logger:  logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/endpoints/{id}/invoke", h.Invoke)
	mux.HandleFunc("GET /api/v1/tasks/{id}", h.GetTask)
	mux.HandleFunc("GET /api/v1/traces/{id}", h.GetTrace)
	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Invoke accepts an invocation of an endpoint and returns 202 with the task
// ID. With ?wait=true it blocks until the task finishes and returns the task.
func (h *Handler) Invoke(w http.ResponseWriter, r *http.Request) {
	endpointID := r.PathValue("id")

	// An empty body invokes the endpoint with no params, headers or payload.
	var req InvokeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInvokeBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inv := driven.Invocation{
		EndpointID:   endpointID,
		CredentialID: req.CredentialID,
		Params:       req.Params,
		Headers:      req.Headers,
	}
	if len(req.Body) > 0 && string(req.Body) != "null" {
		inv.Body = []byte(req.Body)
	}
	if req.Timeout != "" {
		timeout, err := time.ParseDuration(req.Timeout)
		if err != nil || timeout <= 0 {
			writeError(w, http.StatusBadRequest, "timeout must be a positive duration such as 5s")
			return
		}
		inv.Timeout = timeout
	}

	taskID, err := h.invoker.Invoke(r.Context(), inv)
	if err != nil {
		h.writeServiceError(w, "failed to submit invocation", err, "endpoint_id", endpointID)
		return
	}

	if r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusAccepted, InvokeResponse{
			TaskID:    taskID,
			StatusURL: "/api/v1/tasks/" + taskID,
		})
		return
	}

	task, err := h.invoker.Await(r.Context(), taskID)
	if err != nil {
		h.writeServiceError(w, "failed to await task", err, "task_id", taskID)
		return
	}

	status := http.StatusOK
	if task.Error != nil {
		status = taskErrorStatus(task.Error.Kind)
	}
	writeJSON(w, status, toTaskResponse(task))
}

// GetTask returns the state of a submitted task.
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	task, err := h.invoker.Status(r.Context(), taskID)
	if err != nil {
		h.writeServiceError(w, "failed to get task", err, "task_id", taskID)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

// GetTrace returns a stored audit trace.
func (h *Handler) GetTrace(w http.ResponseWriter, r *http.Request) {
	traceID := r.PathValue("id")

	trace, err := h.traces.Get(r.Context(), traceID)
	if err != nil {
		h.writeServiceError(w, "failed to get trace", err, "trace_id", traceID)
		return
	}

	writeJSON(w, http.StatusOK, toTraceResponse(trace))
}

// Health returns the gateway health summary. A degraded gateway still
// answers 200; storage failures answer 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	summary, err := h.health.Summary(r.Context())
	if err != nil {
		h.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unavailable",
			Time:   time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        summary.Status,
		Time:          time.Now().UTC().Format(time.RFC3339),
		StalledTraces: summary.StalledTraces,
	})
}

// writeServiceError maps application errors to HTTP statuses. Unexpected
// errors are logged and reported without detail.
func (h *Handler) writeServiceError(w http.ResponseWriter, msg string, err error, args ...any) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, driven.ErrQueueFull), errors.Is(err, driven.ErrQueueClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request canceled before the task finished")
	default:
		h.logger.Error(msg, append(args, "error", err)...)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
