// Package http issues the timed HTTP calls a stress test is made of.
package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"stresstest/internal/core"
)

// StatusTransportFailure is recorded when no HTTP response was received.
const StatusTransportFailure = http.StatusInternalServerError

// Executor issues one request per call and times it. It holds no per-call
// state, so a single Executor is shared by every worker of a process.
type Executor struct {
	client  *http.Client
	timeout time.Duration
	debug   *DebugLogger
}

// NewExecutor creates an executor on client. A positive timeout bounds each
// call independently of the caller's context; debug may be nil.
func NewExecutor(client *http.Client, timeout time.Duration, debug *DebugLogger) *Executor {
	if client == nil {
		client = http.DefaultClient
	}
	return &Executor{client: client, timeout: timeout, debug: debug}
}

// Call dispatches entry according to its kind. Implements core.Caller.
func (e *Executor) Call(ctx context.Context, endpoint string, entry core.Entry, bearer string) core.Result {
	if entry.Kind == core.KindPayload {
		return e.CallPayload(ctx, endpoint, entry.Value, bearer)
	}
	return e.CallQuery(ctx, endpoint, entry.Value, bearer)
}

// CallQuery sends a GET to endpoint resolved against query as a relative
// reference.
func (e *Executor) CallQuery(ctx context.Context, endpoint, query, bearer string) core.Result {
	target, err := ResolveQuery(endpoint, query)
	if err != nil {
		return e.failed(ctx, endpoint, time.Now(), err)
	}
	return e.do(ctx, endpoint, http.MethodGet, target, nil, bearer)
}

// CallPayload sends body as a JSON entity in a POST to endpoint.
func (e *Executor) CallPayload(ctx context.Context, endpoint, body, bearer string) core.Result {
	return e.do(ctx, endpoint, http.MethodPost, endpoint, []byte(body), bearer)
}

// ResolveQuery resolves query against endpoint the way a browser resolves a
// relative link: "/a" replaces the path, "?q=1" replaces the query.
func ResolveQuery(endpoint, query string) (string, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint %q: %w", endpoint, err)
	}
	if !base.IsAbs() {
		return "", fmt.Errorf("endpoint %q is not an absolute URL", endpoint)
	}
	ref, err := url.Parse(query)
	if err != nil {
		return "", fmt.Errorf("parsing query %q: %w", query, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (e *Executor) do(ctx context.Context, endpoint, method, target string, body []byte, bearer string) core.Result {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return e.failed(ctx, endpoint, time.Now(), err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	workerID := core.WorkerIDFromContext(ctx)
	e.debug.LogRequest(workerID, req, body)

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return e.failed(ctx, endpoint, start, err)
	}
	// The call is complete once the body has been read off the wire.
	_, _ = io.Copy(io.Discard, resp.Body) // drain errors are ignorable
	resp.Body.Close()
	elapsed := time.Since(start)

	e.debug.LogResponse(workerID, resp, elapsed)

	return core.Result{
		Endpoint:   endpoint,
		StatusCode: resp.StatusCode,
		Elapsed:    elapsed,
		Timestamp:  start,
	}
}

func (e *Executor) failed(ctx context.Context, endpoint string, start time.Time, err error) core.Result {
	elapsed := time.Since(start)
	e.debug.LogError(core.WorkerIDFromContext(ctx), endpoint, err, elapsed)
	return core.Result{
		Endpoint:   endpoint,
		StatusCode: StatusTransportFailure,
		Elapsed:    elapsed,
		Err:        err.Error(),
		Timestamp:  start,
	}
}
