package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/relaygate/internal/domain/model"
)

// TraceStore persists audit traces. Only the trace recorder writes to it.
type TraceStore interface {
	// Insert stores a pending trace (no status, no completion time).
	Insert(ctx context.Context, trace model.Trace) error

	// Complete sets the completion time and status of a pending trace.
	// statusCode nil stores NULL (no response was received).
	Complete(ctx context.Context, id string, statusCode *int, completedAt time.Time) error

	// Get returns the trace or a *model.NotFoundError.
	Get(ctx context.Context, id string) (*model.Trace, error)

	// ListByEndpoint returns traces for an endpoint ordered by started_at.
	ListByEndpoint(ctx context.Context, endpointID string) ([]model.Trace, error)

	// CountPending counts traces still pending that started before cutoff.
	CountPending(ctx context.Context, startedBefore time.Time) (int, error)
}
