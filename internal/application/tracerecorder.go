package application

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/relaygate/internal/domain/model"
	"github.com/ericfisherdev/relaygate/internal/domain/port/driven"
)

const redactedValue = "[redacted]"

// sensitiveHeaders are stored redacted in traces.
var sensitiveHeaders = []string{"Authorization", "Proxy-Authorization", "Cookie", "X-Api-Key"}

// TraceInput describes a call about to be made.
type TraceInput struct {
	EndpointID   string
	CredentialID string
	Method       model.HTTPMethod
	URL          string
	Headers      map[string]string
	Payload      []byte
	Params       map[string]string
}

// TraceHandle identifies a pending trace returned by Begin.
type TraceHandle struct {
	ID        string
	StartedAt time.Time
}

// TraceRecorder writes the audit record of every proxied call: a pending
// record before the call and its finalization after.
type TraceRecorder struct {
	store driven.TraceStore
	now   func() time.Time
}

// NewTraceRecorder creates a TraceRecorder.
func NewTraceRecorder(store driven.TraceStore) *TraceRecorder {
	return &TraceRecorder{store: store, now: time.Now}
}

// Begin persists a pending trace with a fresh ID and StartedAt = now.
func (r *TraceRecorder) Begin(ctx context.Context, in TraceInput) (TraceHandle, error) {
	trace := model.Trace{
		ID:           uuid.NewString(),
		EndpointID:   in.EndpointID,
		CredentialID: in.CredentialID,
		Method:       in.Method,
		URL:          in.URL,
		Headers:      redactHeaders(in.Headers),
		Payload:      in.Payload,
		Params:       in.Params,
		StartedAt:    r.now().UTC(),
	}

	if err := r.store.Insert(ctx, trace); err != nil {
		return TraceHandle{}, fmt.Errorf("begin trace for endpoint %q: %w", in.EndpointID, err)
	}

	return TraceHandle{ID: trace.ID, StartedAt: trace.StartedAt}, nil
}

// Finish finalizes the trace. A zero statusCode is stored as no status.
// completedAt is clamped so it never precedes StartedAt.
func (r *TraceRecorder) Finish(ctx context.Context, h TraceHandle, statusCode int, completedAt time.Time) error {
	if completedAt.Before(h.StartedAt) {
		completedAt = h.StartedAt
	}

	var status *int
	if statusCode != 0 {
		status = &statusCode
	}

	if err := r.store.Complete(ctx, h.ID, status, completedAt); err != nil {
		return fmt.Errorf("finish trace %q: %w", h.ID, err)
	}
	return nil
}

// Get returns a stored trace.
func (r *TraceRecorder) Get(ctx context.Context, id string) (*model.Trace, error) {
	return r.store.Get(ctx, id)
}

func redactHeaders(headers map[string]string) map[string]string {
	out := maps.Clone(headers)
	if out == nil {
		return map[string]string{}
	}
	for k := range out {
		for _, s := range sensitiveHeaders {
			if http.CanonicalHeaderKey(k) == s {
				out[k] = redactedValue
			}
		}
	}
	return out
}
