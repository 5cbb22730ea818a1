// Package redisqueue implements the TaskQueue port on a Redis list so that
// several gateway processes can share one queue. Task records are JSON
// values that expire ttl after their last update.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/relaygate/internal/domain/model"
	"github.com/ericfisherdev/relaygate/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TaskQueue = (*Queue)(nil)

const (
	defaultKeyPrefix    = "relaygate:"
	defaultPollInterval = 100 * time.Millisecond
	popTimeout          = time.Second
)

// Options configures a Queue.
type Options struct {
	KeyPrefix    string
	Workers      int
	TTL          time.Duration
	PollInterval time.Duration // How often Await re-reads the task record.
}

// Queue dispatches invocations through Redis.
type Queue struct {
	client       *redis.Client
	prefix       string
	workers      int
	ttl          time.Duration
	pollInterval time.Duration

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Queue on client. The caller owns the client.
func New(client *redis.Client, opts Options) *Queue {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = defaultKeyPrefix
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Queue{
		client:       client,
		prefix:       opts.KeyPrefix,
		workers:      opts.Workers,
		ttl:          opts.TTL,
		pollInterval: opts.PollInterval,
	}
}

// jobMessage is the list element pushed by Submit.
type jobMessage struct {
	TaskID     string            `json:"task_id"`
	Invocation driven.Invocation `json:"invocation"`
}

// taskRecord is the stored form of a model.Task.
type taskRecord struct {
	ID          string           `json:"id"`
	State       model.TaskState  `json:"state"`
	Result      *model.Result    `json:"result,omitempty"`
	Error       *model.TaskError `json:"error,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
}

func (r taskRecord) toModel() *model.Task {
	return &model.Task{
		ID:          r.ID,
		State:       r.State,
		Result:      r.Result,
		Error:       r.Error,
		SubmittedAt: r.SubmittedAt,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
	}
}

func (q *Queue) jobsKey() string {
	return q.prefix + "jobs"
}

func (q *Queue) taskKey(id string) string {
	return q.prefix + "task:" + id
}

// Submit stores a pending task record and pushes the job.
func (q *Queue) Submit(ctx context.Context, inv driven.Invocation) (string, error) {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return "", driven.ErrQueueClosed
	}

	id := uuid.NewString()
	rec := taskRecord{ID: id, State: model.TaskStatePending, SubmittedAt: time.Now().UTC()}
	if err := q.save(ctx, rec); err != nil {
		return "", err
	}

	msg, err := json.Marshal(jobMessage{TaskID: id, Invocation: inv})
	if err != nil {
		return "", fmt.Errorf("marshal job %q: %w", id, err)
	}
	if err := q.client.LPush(ctx, q.jobsKey(), msg).Err(); err != nil {
		return "", fmt.Errorf("push job %q: %w", id, err)
	}

	return id, nil
}

// Status reads the task record.
func (q *Queue) Status(ctx context.Context, taskID string) (*model.Task, error) {
	rec, err := q.load(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

// Await polls the task record until it reaches a terminal state.
func (q *Queue) Await(ctx context.Context, taskID string) (*model.Task, error) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		rec, err := q.load(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if rec.State.Done() {
			return rec.toModel(), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("await task %q: %w", taskID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Start launches workers that pop jobs until ctx is canceled or Close is
// called.
func (q *Queue) Start(ctx context.Context, handler driven.TaskHandler) {
	ctx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.cancel = cancel
	q.mu.Unlock()

	for i := range q.workers {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.work(ctx, i, handler)
		}()
	}

	slog.Info("redis queue started", "workers", q.workers, "key", q.jobsKey())
}

// Close stops the workers after their current job and waits for them.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *Queue) work(ctx context.Context, worker int, handler driven.TaskHandler) {
	for {
		if ctx.Err() != nil {
			return
		}

		res, err := q.client.BRPop(ctx, popTimeout, q.jobsKey()).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("pop job failed", "worker", worker, "error", err)
			if !pause(ctx, popTimeout) {
				return
			}
			continue
		}

		// res is [key, value].
		var msg jobMessage
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			slog.Error("discarding malformed job", "worker", worker, "error", err)
			continue
		}

		// Run on a context that outlives shutdown so the task record and
		// trace are finalized.
		q.run(context.WithoutCancel(ctx), msg, handler)
	}
}

// pause waits for d and reports false if ctx ended first.
func pause(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (q *Queue) run(ctx context.Context, msg jobMessage, handler driven.TaskHandler) {
	rec, err := q.load(ctx, msg.TaskID)
	if err != nil {
		// The record expired before a worker got to it; rebuild it.
		rec = &taskRecord{ID: msg.TaskID, SubmittedAt: time.Now().UTC()}
	}

	started := time.Now().UTC()
	rec.State = model.TaskStateRunning
	rec.StartedAt = &started
	if err := q.save(ctx, *rec); err != nil {
		slog.Error("mark task running failed", "task_id", msg.TaskID, "error", err)
	}

	result, runErr := safeCall(ctx, handler, msg.Invocation)

	finished := time.Now().UTC()
	rec.FinishedAt = &finished
	if runErr != nil {
		rec.State = model.TaskStateFailed
		rec.Error = model.NewTaskError(runErr)
	} else {
		rec.State = model.TaskStateSucceeded
		rec.Result = result
	}
	if err := q.save(ctx, *rec); err != nil {
		slog.Error("store task result failed", "task_id", msg.TaskID, "error", err)
	}
}

func (q *Queue) save(ctx context.Context, rec taskRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal task %q: %w", rec.ID, err)
	}
	if err := q.client.Set(ctx, q.taskKey(rec.ID), data, q.ttl).Err(); err != nil {
		return fmt.Errorf("store task %q: %w", rec.ID, err)
	}
	return nil
}

func (q *Queue) load(ctx context.Context, id string) (*taskRecord, error) {
	data, err := q.client.Get(ctx, q.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, &model.NotFoundError{Resource: "task", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load task %q: %w", id, err)
	}

	var rec taskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode task %q: %w", id, err)
	}
	return &rec, nil
}

func safeCall(ctx context.Context, handler driven.TaskHandler, inv driven.Invocation) (result *model.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("task panicked", "endpoint_id", inv.EndpointID, "panic", r)
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return handler(ctx, inv)
}
