// Package httpclient implements the HTTPExecutor port: one proxied call with
// bounded retry, exponential backoff and jitter.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"slices"
	"time"

	"github.com/ericfisherdev/relaygate/internal/domain/model"
	"github.com/ericfisherdev/relaygate/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.HTTPExecutor = (*Client)(nil)

// RetryPolicy controls how a call is retried. Attempts counts the first try.
type RetryPolicy struct {
	Attempts      int
	Backoff       time.Duration // Delay before the first retry, doubled per retry.
	Jitter        time.Duration // Upper bound of the uniform random addition to each delay.
	RetryStatuses []int
}

// DefaultRetryPolicy returns 3 attempts, 0.5s doubling backoff, up to 0.5s
// jitter, retrying 500, 502, 503 and 504.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:      3,
		Backoff:       500 * time.Millisecond,
		Jitter:        500 * time.Millisecond,
		RetryStatuses: []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
	}
}

func (p RetryPolicy) retryable(status int) bool {
	return slices.Contains(p.RetryStatuses, status)
}

// delay returns the wait before retry number n (1-based).
func (p RetryPolicy) delay(n int, jitter func(time.Duration) time.Duration) time.Duration {
	d := p.Backoff << (n - 1)
	if p.Jitter > 0 {
		d += jitter(p.Jitter)
	}
	return d
}

// Client executes proxied calls. Each Execute builds its own http.Client so
// concurrent invocations share no connection state.
type Client struct {
	policy    RetryPolicy
	transport http.RoundTripper
	logger    *slog.Logger

	// Replaced in tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithTransport sets the round tripper used for every attempt.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.transport = rt }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a Client with the given policy. Attempts below 1 are raised to 1.
func New(policy RetryPolicy, opts ...Option) *Client {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	c := &Client{
		policy:    policy,
		transport: http.DefaultTransport,
		logger:    slog.Default(),
		sleep:     sleepContext,
		jitter:    func(max time.Duration) time.Duration { return rand.N(max) },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute performs req, retrying on the policy's statuses. On exhaustion it
// returns the last response together with a *model.TransientHTTPError. A
// transport failure is not retried and yields StatusCode 0 with a nil response.
func (c *Client) Execute(ctx context.Context, req driven.HTTPRequest) (*driven.HTTPResponse, error) {
	start := time.Now()
	httpClient := &http.Client{Transport: c.transport}

	var last *driven.HTTPResponse
	for attempt := 1; attempt <= c.policy.Attempts; attempt++ {
		if attempt > 1 {
			wait := c.policy.delay(attempt-1, c.jitter)
			c.logger.Debug("retrying upstream call",
				"method", req.Method, "url", req.URL, "attempt", attempt, "status", last.StatusCode, "wait", wait)
			if err := c.sleep(ctx, wait); err != nil {
				recordCall(req.Method, "canceled", time.Since(start).Seconds())
				return last, &model.TransientHTTPError{
					Method: req.Method, URL: req.URL, StatusCode: last.StatusCode, Attempts: attempt - 1, Err: err,
				}
			}
		}

		resp, err := c.attempt(ctx, httpClient, req)
		if err != nil {
			recordAttempt(req.Method, 0)
			recordCall(req.Method, "unreachable", time.Since(start).Seconds())
			return nil, &model.TransientHTTPError{
				Method: req.Method, URL: req.URL, Attempts: attempt, Err: err,
			}
		}
		recordAttempt(req.Method, resp.StatusCode)

		resp.Attempts = attempt
		resp.Elapsed = time.Since(start)
		last = resp

		if !c.policy.retryable(resp.StatusCode) {
			recordCall(req.Method, "completed", resp.Elapsed.Seconds())
			return resp, nil
		}
	}

	recordCall(req.Method, "exhausted", last.Elapsed.Seconds())
	return last, &model.TransientHTTPError{
		Method:     req.Method,
		URL:        req.URL,
		StatusCode: last.StatusCode,
		Attempts:   last.Attempts,
		Err:        fmt.Errorf("retryable status %d", last.StatusCode),
	}
}

func (c *Client) attempt(ctx context.Context, httpClient *http.Client, req driven.HTTPRequest) (*driven.HTTPResponse, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &driven.HTTPResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
