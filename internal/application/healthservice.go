package application

import (
	"context"
	"time"

	"github.com/ericfisherdev/relaygate/internal/domain/port/driven"
)

// Health statuses reported by HealthService.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// HealthSummary is the gateway health view served by the HTTP API.
type HealthSummary struct {
	Status        string `json:"status"`
	StalledTraces int    `json:"stalled_traces"`
}

// HealthService reports gateway health from stored state. It depends only
// on port interfaces.
type HealthService struct {
	traces     driven.TraceStore
	stallAfter time.Duration
	now        func() time.Time
}

// NewHealthService creates a HealthService. A trace still pending after
// stallAfter counts as stalled.
func NewHealthService(traces driven.TraceStore, stallAfter time.Duration) *HealthService {
	return &HealthService{
		traces:     traces,
		stallAfter: stallAfter,
		now:        time.Now,
	}
}

// Summary checks that trace storage answers and counts stalled traces.
// Any stalled trace marks the gateway degraded: a worker died mid-call
// and left an unfinished audit record.
func (s *HealthService) Summary(ctx context.Context) (*HealthSummary, error) {
	stalled, err := s.traces.CountPending(ctx, s.now().Add(-s.stallAfter))
	if err != nil {
		return nil, err
	}

	status := HealthOK
	if stalled > 0 {
		status = HealthDegraded
	}

	return &HealthSummary{Status: status, StalledTraces: stalled}, nil
}
