package redisqueue

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/relaygate/internal/domain/model"
	"github.com/ericfisherdev/relaygate/internal/domain/port/driven"
)

// setupRedis connects to RELAYGATE_TEST_REDIS_ADDR and returns a key prefix
// unique to the test. Tests skip when the variable is unset.
func setupRedis(t *testing.T) (*redis.Client, string) {
	t.Helper()

	addr := os.Getenv("RELAYGATE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RELAYGATE_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())

	prefix := "relaygate-test:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			_ = client.Del(ctx, keys...).Err()
		}
		_ = client.Close()
	})

	return client, prefix
}

func TestNew_Defaults(t *testing.T) {
	q := New(nil, Options{})
	assert.Equal(t, defaultKeyPrefix, q.prefix)
	assert.Equal(t, 1, q.workers)
	assert.Equal(t, defaultPollInterval, q.pollInterval)
	assert.Equal(t, "relaygate:jobs", q.jobsKey())
	assert.Equal(t, "relaygate:task:abc", q.taskKey("abc"))
}

func TestQueue_SubmitAndAwait(t *testing.T) {
	client, prefix := setupRedis(t)
	q := New(client, Options{KeyPrefix: prefix, Workers: 2, TTL: time.Minute, PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx, func(_ context.Context, inv driven.Invocation) (*model.Result, error) {
		return &model.Result{
			TraceID:      "trace-1",
			StatusCode:   200,
			ResponseType: model.ResponseTypeJSON,
			JSON:         map[string]any{"endpoint": inv.EndpointID},
		}, nil
	})
	t.Cleanup(func() {
		cancel()
		q.Close()
	})

	id, err := q.Submit(context.Background(), driven.Invocation{EndpointID: "ep-1", Params: map[string]string{"a": "b"}})
	require.NoError(t, err)

	awaitCtx, awaitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer awaitCancel()
	task, err := q.Await(awaitCtx, id)
	require.NoError(t, err)

	assert.Equal(t, model.TaskStateSucceeded, task.State)
	require.NotNil(t, task.Result)
	assert.Equal(t, "trace-1", task.Result.TraceID)
	assert.Equal(t, map[string]any{"endpoint": "ep-1"}, task.Result.JSON)

	ttl, err := client.TTL(context.Background(), q.taskKey(id)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestQueue_FailedTask(t *testing.T) {
	client, prefix := setupRedis(t)
	q := New(client, Options{KeyPrefix: prefix, PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx, func(context.Context, driven.Invocation) (*model.Result, error) {
		return nil, &model.TransientHTTPError{Method: "GET", URL: "http://x", StatusCode: 503, Attempts: 3}
	})
	t.Cleanup(func() {
		cancel()
		q.Close()
	})

	id, err := q.Submit(context.Background(), driven.Invocation{EndpointID: "ep-1"})
	require.NoError(t, err)

	awaitCtx, awaitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer awaitCancel()
	task, err := q.Await(awaitCtx, id)
	require.NoError(t, err)

	assert.Equal(t, model.TaskStateFailed, task.State)
	require.NotNil(t, task.Error)
	assert.Equal(t, model.ErrorKindTransient, task.Error.Kind)
	assert.Equal(t, 503, task.Error.StatusCode)
}

func TestQueue_PendingWithoutWorkers(t *testing.T) {
	client, prefix := setupRedis(t)
	q := New(client, Options{KeyPrefix: prefix})

	id, err := q.Submit(context.Background(), driven.Invocation{EndpointID: "ep-1"})
	require.NoError(t, err)

	task, err := q.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatePending, task.State)

	n, err := client.LLen(context.Background(), q.jobsKey()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestQueue_UnknownTask(t *testing.T) {
	client, prefix := setupRedis(t)
	q := New(client, Options{KeyPrefix: prefix})

	_, err := q.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestQueue_SubmitAfterClose(t *testing.T) {
	q := New(nil, Options{})
	q.Close()

	_, err := q.Submit(context.Background(), driven.Invocation{})
	assert.ErrorIs(t, err, driven.ErrQueueClosed)
}

func TestQueue_CloseDuringPopBackoff(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })

	q := New(client, Options{})
	q.Start(context.Background(), func(context.Context, driven.Invocation) (*model.Result, error) {
		return nil, nil
	})

	// Let the worker fail its first pop and start waiting.
	time.Sleep(150 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(popTimeout / 2):
		t.Fatal("Close blocked on the pop retry wait")
	}
}
