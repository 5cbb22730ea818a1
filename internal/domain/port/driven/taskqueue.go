package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/relaygate/internal/domain/model"
)

// ErrQueueClosed is returned by Submit after the queue has been shut down.
var ErrQueueClosed = errors.New("task queue closed")

// ErrQueueFull is returned by Submit when the queue cannot accept more work.
var ErrQueueFull = errors.New("task queue full")

// Invocation is the unit of work the orchestrator dispatches. It is
// serializable so broker-backed queues can carry it.
type Invocation struct {
	EndpointID   string            `json:"endpoint_id"`
	CredentialID string            `json:"credential_id,omitempty"`
	Params       map[string]string `json:"params,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         []byte            `json:"body,omitempty"`
	Timeout      time.Duration     `json:"timeout,omitempty"`
}

// TaskHandler runs one invocation to completion on a worker.
type TaskHandler func(ctx context.Context, inv Invocation) (*model.Result, error)

// TaskQueue dispatches invocations to workers and keeps their outcome
// retrievable by task ID.
type TaskQueue interface {
	// Submit enqueues inv and returns its task ID without waiting.
	Submit(ctx context.Context, inv Invocation) (string, error)

	// Status returns the current task state or a *model.NotFoundError.
	Status(ctx context.Context, taskID string) (*model.Task, error)

	// Await blocks until the task reaches a terminal state or ctx is done.
	Await(ctx context.Context, taskID string) (*model.Task, error)
}
