package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/relaygate/internal/domain/model"
	"github.com/ericfisherdev/relaygate/internal/domain/port/driven"
	"github.com/ericfisherdev/relaygate/internal/domain/urlbuild"
)

// maxErrorBody bounds the upstream body kept in an UpstreamStatusError.
const maxErrorBody = 512

// Orchestrator is the entry point of the request pipeline. Invoke hands an
// invocation to the task queue; Execute is the unit of work a worker runs.
type Orchestrator struct {
	endpoints   driven.EndpointStore
	services    driven.ServiceStore
	credentials driven.CredentialStore
	auth        *AuthResolver
	traces      *TraceRecorder
	executor    driven.HTTPExecutor
	queue       driven.TaskQueue
	timeout     time.Duration
}

// NewOrchestrator creates an Orchestrator. timeout is the per-attempt
// timeout used when an invocation does not set one.
func NewOrchestrator(
	endpoints driven.EndpointStore,
	services driven.ServiceStore,
	credentials driven.CredentialStore,
	auth *AuthResolver,
	traces *TraceRecorder,
	executor driven.HTTPExecutor,
	queue driven.TaskQueue,
	timeout time.Duration,
) *Orchestrator {
	return &Orchestrator{
		endpoints:   endpoints,
		services:    services,
		credentials: credentials,
		auth:        auth,
		traces:      traces,
		executor:    executor,
		queue:       queue,
		timeout:     timeout,
	}
}

// Invoke submits inv for asynchronous execution and returns its task ID.
func (o *Orchestrator) Invoke(ctx context.Context, inv driven.Invocation) (string, error) {
	if inv.EndpointID == "" {
		return "", &model.NotFoundError{Resource: "endpoint", ID: ""}
	}

	taskID, err := o.queue.Submit(ctx, inv)
	if err != nil {
		return "", fmt.Errorf("submit invocation for endpoint %q: %w", inv.EndpointID, err)
	}

	slog.Debug("invocation submitted", "task_id", taskID, "endpoint_id", inv.EndpointID)
	return taskID, nil
}

// Status returns the current state of a submitted task.
func (o *Orchestrator) Status(ctx context.Context, taskID string) (*model.Task, error) {
	return o.queue.Status(ctx, taskID)
}

// Await blocks until the task finishes or ctx is done.
func (o *Orchestrator) Await(ctx context.Context, taskID string) (*model.Task, error) {
	return o.queue.Await(ctx, taskID)
}

// Execute runs one invocation to completion. Lookup and authentication
// failures return before any trace is written; once the call has been
// attempted the trace is always finalized.
func (o *Orchestrator) Execute(ctx context.Context, inv driven.Invocation) (*model.Result, error) {
	start := time.Now()

	result, err := o.execute(ctx, inv)

	outcome := "ok"
	if err != nil {
		outcome = string(model.NewTaskError(err).Kind)
		slog.Warn("invocation failed", "endpoint_id", inv.EndpointID, "kind", outcome, "error", err)
	}
	recordInvocation(outcome, time.Since(start).Seconds())

	return result, err
}

func (o *Orchestrator) execute(ctx context.Context, inv driven.Invocation) (*model.Result, error) {
	ep, err := o.endpoints.Get(ctx, inv.EndpointID)
	if err != nil {
		return nil, fmt.Errorf("resolve endpoint: %w", err)
	}
	if !ep.Active {
		return nil, fmt.Errorf("invoke endpoint %q: %w", ep.ID, model.ErrEndpointInactive)
	}

	var svc *model.Service
	if ep.ServiceID != "" {
		if svc, err = o.services.Get(ctx, ep.ServiceID); err != nil {
			return nil, fmt.Errorf("resolve service for endpoint %q: %w", ep.ID, err)
		}
	}

	var cred *model.Credential
	if inv.CredentialID != "" {
		if cred, err = o.credentials.Get(ctx, inv.CredentialID); err != nil {
			return nil, fmt.Errorf("resolve credential: %w", err)
		}
	}

	headers, err := o.auth.Resolve(ctx, svc, cred, inv.Headers)
	if err != nil {
		return nil, err
	}

	target, err := urlbuild.EndpointURL(ep, svc, inv.Params)
	if err != nil {
		return nil, fmt.Errorf("build url for endpoint %q: %w", ep.ID, err)
	}

	verb, err := ep.Method.Verb()
	if err != nil {
		return nil, fmt.Errorf("endpoint %q: %w", ep.ID, err)
	}

	in := TraceInput{
		EndpointID: ep.ID,
		Method:     ep.Method,
		URL:        target,
		Headers:    headers,
		Payload:    inv.Body,
		Params:     inv.Params,
	}
	if cred != nil {
		in.CredentialID = cred.ID
	}
	handle, err := o.traces.Begin(ctx, in)
	if err != nil {
		return nil, err
	}

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = o.timeout
	}

	resp, execErr := o.executor.Execute(ctx, driven.HTTPRequest{
		Method:  verb,
		URL:     target,
		Headers: headers,
		Body:    inv.Body,
		Timeout: timeout,
	})

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	// Finalize even when the worker is shutting down.
	if err := o.traces.Finish(context.WithoutCancel(ctx), handle, status, time.Now()); err != nil {
		return nil, errors.Join(execErr, err)
	}

	if execErr != nil {
		return nil, execErr
	}

	if status < 200 || status > 299 {
		body := resp.Body
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &model.UpstreamStatusError{StatusCode: status, Body: string(body)}
	}

	result, err := ParseResponse(ep.ResponseType, resp.Body)
	if err != nil {
		return nil, err
	}
	result.TraceID = handle.ID
	result.StatusCode = status

	return result, nil
}
