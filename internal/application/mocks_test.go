package application_test

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/ericfisherdev/relaygate/internal/domain/model"
	"github.com/ericfisherdev/relaygate/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockServiceStore struct {
	services map[string]model.Service
}

func (m *mockServiceStore) Create(_ context.Context, svc model.Service) (model.Service, error) {
	m.services[svc.ID] = svc
	return svc, nil
}

func (m *mockServiceStore) Get(_ context.Context, id string) (*model.Service, error) {
	svc, ok := m.services[id]
	if !ok {
		return nil, &model.NotFoundError{Resource: "service", ID: id}
	}
	return &svc, nil
}

type mockEndpointStore struct {
	endpoints map[string]model.Endpoint
}

func (m *mockEndpointStore) Create(_ context.Context, ep model.Endpoint) (model.Endpoint, error) {
	m.endpoints[ep.ID] = ep
	return ep, nil
}

func (m *mockEndpointStore) Get(_ context.Context, id string) (*model.Endpoint, error) {
	ep, ok := m.endpoints[id]
	if !ok {
		return nil, &model.NotFoundError{Resource: "endpoint", ID: id}
	}
	return &ep, nil
}

// mockCredentialStore keeps credentials in memory and applies the same
// compare-and-swap on ExpiresAt as the SQLite repository.
type mockCredentialStore struct {
	mu      sync.Mutex
	creds   map[string]model.Credential
	updates int
}

func newMockCredentialStore(creds ...model.Credential) *mockCredentialStore {
	m := &mockCredentialStore{creds: make(map[string]model.Credential)}
	for _, c := range creds {
		m.creds[c.ID] = c
	}
	return m
}

func (m *mockCredentialStore) Create(_ context.Context, cred model.Credential) (model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[cred.ID] = cred
	return cred, nil
}

func (m *mockCredentialStore) Get(_ context.Context, id string) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[id]
	if !ok {
		return nil, &model.NotFoundError{Resource: "credential", ID: id}
	}
	if cred.ExpiresAt != nil {
		exp := *cred.ExpiresAt
		cred.ExpiresAt = &exp
	}
	return &cred, nil
}

func (m *mockCredentialStore) UpdateToken(_ context.Context, id string, prev *time.Time, update model.TokenUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[id]
	if !ok {
		return &model.NotFoundError{Resource: "credential", ID: id}
	}
	same := (prev == nil && cred.ExpiresAt == nil) ||
		(prev != nil && cred.ExpiresAt != nil && prev.Equal(*cred.ExpiresAt))
	if !same {
		return driven.ErrTokenConflict
	}
	exp := update.ExpiresAt
	cred.AccessToken = update.AccessToken
	cred.RefreshToken = update.RefreshToken
	cred.ExpiresAt = &exp
	m.creds[id] = cred
	m.updates++
	return nil
}

func (m *mockCredentialStore) snapshot(id string) model.Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds[id]
}

func (m *mockCredentialStore) updateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

type mockTokenClient struct {
	mu                sync.Mutex
	clientCredentials func(ctx context.Context, req driven.TokenRequest) (*driven.Token, error)
	refresh           func(ctx context.Context, req driven.TokenRequest) (*driven.Token, error)
	calls             []string
}

func (m *mockTokenClient) ClientCredentials(ctx context.Context, req driven.TokenRequest) (*driven.Token, error) {
	m.record("client_credentials")
	return m.clientCredentials(ctx, req)
}

func (m *mockTokenClient) Refresh(ctx context.Context, req driven.TokenRequest) (*driven.Token, error) {
	m.record("refresh_token")
	return m.refresh(ctx, req)
}

func (m *mockTokenClient) record(grant string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, grant)
}

func (m *mockTokenClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockTraceStore enforces the same completion rules as the traces table.
type mockTraceStore struct {
	mu     sync.Mutex
	traces map[string]model.Trace
	order  []string
}

func newMockTraceStore() *mockTraceStore {
	return &mockTraceStore{traces: make(map[string]model.Trace)}
}

func (m *mockTraceStore) Insert(_ context.Context, trace model.Trace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.traces[trace.ID] = trace
	m.order = append(m.order, trace.ID)
	return nil
}

func (m *mockTraceStore) Complete(_ context.Context, id string, statusCode *int, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	trace, ok := m.traces[id]
	if !ok {
		return &model.NotFoundError{Resource: "trace", ID: id}
	}
	if trace.CompletedAt != nil {
		return fmt.Errorf("trace %q already completed", id)
	}
	if completedAt.Before(trace.StartedAt) {
		return fmt.Errorf("trace %q completed before it started", id)
	}
	trace.StatusCode = statusCode
	trace.CompletedAt = &completedAt
	m.traces[id] = trace
	return nil
}

func (m *mockTraceStore) Get(_ context.Context, id string) (*model.Trace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trace, ok := m.traces[id]
	if !ok {
		return nil, &model.NotFoundError{Resource: "trace", ID: id}
	}
	return &trace, nil
}

func (m *mockTraceStore) ListByEndpoint(_ context.Context, endpointID string) ([]model.Trace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Trace
	for _, id := range m.order {
		if m.traces[id].EndpointID == endpointID {
			out = append(out, m.traces[id])
		}
	}
	return out, nil
}

func (m *mockTraceStore) CountPending(_ context.Context, startedBefore time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, trace := range m.traces {
		if trace.CompletedAt == nil && trace.StartedAt.Before(startedBefore) {
			n++
		}
	}
	return n, nil
}

func (m *mockTraceStore) all() []model.Trace {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Trace, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.traces[id])
	}
	return out
}

type mockExecutor struct {
	mu       sync.Mutex
	execute  func(ctx context.Context, req driven.HTTPRequest) (*driven.HTTPResponse, error)
	requests []driven.HTTPRequest
}

func (m *mockExecutor) Execute(ctx context.Context, req driven.HTTPRequest) (*driven.HTTPResponse, error) {
	m.mu.Lock()
	req.Headers = maps.Clone(req.Headers)
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.execute(ctx, req)
}

func (m *mockExecutor) calls() []driven.HTTPRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]driven.HTTPRequest(nil), m.requests...)
}

// syncQueue runs each submitted invocation inline.
type syncQueue struct {
	handler driven.TaskHandler
	tasks   map[string]*model.Task
}

func newSyncQueue() *syncQueue {
	return &syncQueue{tasks: make(map[string]*model.Task)}
}

func (q *syncQueue) Submit(ctx context.Context, inv driven.Invocation) (string, error) {
	id := fmt.Sprintf("task-%d", len(q.tasks)+1)
	now := time.Now()
	task := &model.Task{ID: id, State: model.TaskStateRunning, SubmittedAt: now, StartedAt: &now}

	result, err := q.handler(ctx, inv)
	finished := time.Now()
	task.FinishedAt = &finished
	if err != nil {
		task.State = model.TaskStateFailed
		task.Error = model.NewTaskError(err)
	} else {
		task.State = model.TaskStateSucceeded
		task.Result = result
	}

	q.tasks[id] = task
	return id, nil
}

func (q *syncQueue) Status(_ context.Context, id string) (*model.Task, error) {
	task, ok := q.tasks[id]
	if !ok {
		return nil, &model.NotFoundError{Resource: "task", ID: id}
	}
	return task, nil
}

func (q *syncQueue) Await(ctx context.Context, id string) (*model.Task, error) {
	return q.Status(ctx, id)
}
