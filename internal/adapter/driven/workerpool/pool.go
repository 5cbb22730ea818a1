// Package workerpool implements the TaskQueue port with a bounded set of
// in-process worker goroutines. Task state lives in memory and is dropped
// ttl after the task finishes.
package workerpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/relaygate/internal/domain/model"
	"github.com/ericfisherdev/relaygate/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TaskQueue = (*Pool)(nil)

type job struct {
	id  string
	inv driven.Invocation
}

type entry struct {
	task model.Task
	done chan struct{}
}

// Pool runs invocations on a fixed number of workers.
type Pool struct {
	workers int
	ttl     time.Duration
	jobs    chan job
	stop    chan struct{}

	mu     sync.Mutex
	tasks  map[string]*entry
	closed bool

	wg sync.WaitGroup
}

// New creates a Pool with the given worker count and queue capacity.
// A zero ttl keeps finished tasks until the process exits.
func New(workers, capacity int, ttl time.Duration) *Pool {
	if workers < 1 {
		workers = 1
	}
	if capacity < 0 {
		capacity = 0
	}
	return &Pool{
		workers: workers,
		ttl:     ttl,
		jobs:    make(chan job, capacity),
		stop:    make(chan struct{}),
		tasks:   make(map[string]*entry),
	}
}

// Start launches the workers. They stop when ctx is canceled or Close is
// called.
func (p *Pool) Start(ctx context.Context, handler driven.TaskHandler) {
	for i := range p.workers {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.work(ctx, i, handler)
		}()
	}

	if p.ttl > 0 {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.evictLoop(ctx)
		}()
	}

	slog.Info("worker pool started", "workers", p.workers, "capacity", cap(p.jobs))
}

// Submit registers a pending task and enqueues it without blocking. A full
// queue returns driven.ErrQueueFull.
func (p *Pool) Submit(_ context.Context, inv driven.Invocation) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return "", driven.ErrQueueClosed
	}

	id := uuid.NewString()
	queuedGauge.Inc()
	select {
	case p.jobs <- job{id: id, inv: inv}:
	default:
		queuedGauge.Dec()
		rejectedTotal.Inc()
		return "", driven.ErrQueueFull
	}

	p.tasks[id] = &entry{
		task: model.Task{ID: id, State: model.TaskStatePending, SubmittedAt: time.Now().UTC()},
		done: make(chan struct{}),
	}

	return id, nil
}

// Status returns a snapshot of the task.
func (p *Pool) Status(_ context.Context, taskID string) (*model.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.tasks[taskID]
	if !ok {
		return nil, &model.NotFoundError{Resource: "task", ID: taskID}
	}
	task := e.task
	return &task, nil
}

// Await blocks until the task finishes or ctx is done.
func (p *Pool) Await(ctx context.Context, taskID string) (*model.Task, error) {
	p.mu.Lock()
	e, ok := p.tasks[taskID]
	p.mu.Unlock()
	if !ok {
		return nil, &model.NotFoundError{Resource: "task", ID: taskID}
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("await task %q: %w", taskID, ctx.Err())
	case <-e.done:
	}

	return p.Status(ctx, taskID)
}

// Close stops accepting work, lets workers drain the queue, and waits for
// them to exit. Canceling the Start context instead fails any task still
// queued.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
		close(p.stop)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) work(ctx context.Context, worker int, handler driven.TaskHandler) {
	for {
		if ctx.Err() != nil {
			p.abandon(ctx.Err())
			return
		}

		select {
		case <-ctx.Done():
			p.abandon(ctx.Err())
			return
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			queuedGauge.Dec()
			p.run(ctx, worker, j, handler)
		}
	}
}

func (p *Pool) run(ctx context.Context, worker int, j job, handler driven.TaskHandler) {
	started := time.Now().UTC()
	p.update(j.id, func(t *model.Task) {
		t.State = model.TaskStateRunning
		t.StartedAt = &started
	})

	result, err := safeCall(ctx, handler, j.inv)

	finished := time.Now().UTC()
	p.update(j.id, func(t *model.Task) {
		t.FinishedAt = &finished
		if err != nil {
			t.State = model.TaskStateFailed
			t.Error = model.NewTaskError(err)
			return
		}
		t.State = model.TaskStateSucceeded
		t.Result = result
	})

	p.mu.Lock()
	if e, ok := p.tasks[j.id]; ok {
		close(e.done)
	}
	p.mu.Unlock()

	slog.Debug("task finished", "task_id", j.id, "worker", worker, "failed", err != nil, "duration", finished.Sub(started))
}

// abandon refuses further submissions and fails every task still queued.
func (p *Pool) abandon(cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	finished := time.Now().UTC()
	for {
		select {
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			queuedGauge.Dec()
			e, found := p.tasks[j.id]
			if !found {
				continue
			}
			e.task.State = model.TaskStateFailed
			e.task.FinishedAt = &finished
			e.task.Error = model.NewTaskError(fmt.Errorf("worker pool stopped before task ran: %w", cause))
			close(e.done)
			slog.Warn("queued task dropped on shutdown", "task_id", j.id, "endpoint_id", j.inv.EndpointID)
		default:
			return
		}
	}
}

func (p *Pool) update(id string, fn func(*model.Task)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.tasks[id]; ok {
		fn(&e.task)
	}
}

func (p *Pool) evictLoop(ctx context.Context) {
	interval := p.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case now := <-ticker.C:
			p.evict(now)
		}
	}
}

// evict drops finished tasks older than ttl.
func (p *Pool) evict(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for id, e := range p.tasks {
		if e.task.FinishedAt != nil && now.Sub(*e.task.FinishedAt) > p.ttl {
			delete(p.tasks, id)
			n++
		}
	}
	return n
}

// safeCall turns a handler panic into a task failure.
func safeCall(ctx context.Context, handler driven.TaskHandler, inv driven.Invocation) (result *model.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("task panicked", "endpoint_id", inv.EndpointID, "panic", r)
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return handler(ctx, inv)
}
