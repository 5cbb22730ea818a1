package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/relaygate/internal/domain/model"
)

func newPendingTrace(endpointID string, startedAt time.Time) model.Trace {
	return model.Trace{
		ID:         "trace-" + startedAt.Format("150405.000000000"),
		EndpointID: endpointID,
		Method:     model.MethodGet,
		URL:        "https://api.example.com/v1/forecast?city=paris",
		Headers:    map[string]string{"Accept": "application/json"},
		Payload:    []byte(`{"days":3}`),
		Params:     map[string]string{"city": "paris"},
		StartedAt:  startedAt,
	}
}

func TestTraceRepo_InsertAndGetPending(t *testing.T) {
	db := setupTestDB(t)
	_, ep := seedEndpoint(t, db)
	repo := NewTraceRepo(db)
	ctx := context.Background()

	trace := newPendingTrace(ep.ID, time.Now().UTC())
	require.NoError(t, repo.Insert(ctx, trace))

	got, err := repo.Get(ctx, trace.ID)
	require.NoError(t, err)
	assert.Equal(t, ep.ID, got.EndpointID)
	assert.Empty(t, got.CredentialID)
	assert.Equal(t, model.MethodGet, got.Method)
	assert.Equal(t, trace.URL, got.URL)
	assert.Equal(t, trace.Headers, got.Headers)
	assert.Equal(t, trace.Params, got.Params)
	assert.Equal(t, trace.Payload, got.Payload)
	assert.Nil(t, got.StatusCode)
	assert.Nil(t, got.CompletedAt)
	assert.False(t, got.Completed())
	assert.True(t, trace.StartedAt.Equal(got.StartedAt))
}

func TestTraceRepo_Complete(t *testing.T) {
	db := setupTestDB(t)
	_, ep := seedEndpoint(t, db)
	repo := NewTraceRepo(db)
	ctx := context.Background()

	started := time.Now().UTC()
	trace := newPendingTrace(ep.ID, started)
	require.NoError(t, repo.Insert(ctx, trace))

	status := 201
	completed := started.Add(150 * time.Millisecond)
	require.NoError(t, repo.Complete(ctx, trace.ID, &status, completed))

	got, err := repo.Get(ctx, trace.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StatusCode)
	assert.Equal(t, 201, *got.StatusCode)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, completed.Equal(*got.CompletedAt))

	// Completed traces are immutable.
	require.Error(t, repo.Complete(ctx, trace.ID, &status, completed.Add(time.Second)))
}

func TestTraceRepo_CompleteWithoutStatus(t *testing.T) {
	db := setupTestDB(t)
	_, ep := seedEndpoint(t, db)
	repo := NewTraceRepo(db)
	ctx := context.Background()

	trace := newPendingTrace(ep.ID, time.Now().UTC())
	require.NoError(t, repo.Insert(ctx, trace))
	require.NoError(t, repo.Complete(ctx, trace.ID, nil, trace.StartedAt))

	got, err := repo.Get(ctx, trace.ID)
	require.NoError(t, err)
	assert.Nil(t, got.StatusCode)
	assert.True(t, got.Completed())
}

func TestTraceRepo_CompleteBeforeStartRejected(t *testing.T) {
	db := setupTestDB(t)
	_, ep := seedEndpoint(t, db)
	repo := NewTraceRepo(db)
	ctx := context.Background()

	trace := newPendingTrace(ep.ID, time.Now().UTC())
	require.NoError(t, repo.Insert(ctx, trace))

	err := repo.Complete(ctx, trace.ID, nil, trace.StartedAt.Add(-time.Second))
	require.Error(t, err)
}

func TestTraceRepo_CompleteMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTraceRepo(db)

	err := repo.Complete(context.Background(), "missing", nil, time.Now())
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestTraceRepo_ListByEndpoint(t *testing.T) {
	db := setupTestDB(t)
	_, ep := seedEndpoint(t, db)
	repo := NewTraceRepo(db)
	ctx := context.Background()

	empty, err := repo.ListByEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.Empty(t, empty)

	base := time.Now().UTC()
	second := newPendingTrace(ep.ID, base.Add(time.Second))
	first := newPendingTrace(ep.ID, base)
	require.NoError(t, repo.Insert(ctx, second))
	require.NoError(t, repo.Insert(ctx, first))

	traces, err := repo.ListByEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	require.Len(t, traces, 2)
	assert.Equal(t, first.ID, traces[0].ID)
	assert.Equal(t, second.ID, traces[1].ID)
}

func TestTraceRepo_CountPending(t *testing.T) {
	db := setupTestDB(t)
	_, ep := seedEndpoint(t, db)
	repo := NewTraceRepo(db)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	stale := newPendingTrace(ep.ID, base)
	done := newPendingTrace(ep.ID, base.Add(time.Second))
	fresh := newPendingTrace(ep.ID, time.Now().UTC())
	for _, tr := range []model.Trace{stale, done, fresh} {
		require.NoError(t, repo.Insert(ctx, tr))
	}
	require.NoError(t, repo.Complete(ctx, done.ID, nil, done.StartedAt))

	n, err := repo.CountPending(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
