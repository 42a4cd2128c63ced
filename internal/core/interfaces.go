// Package core defines the types shared by the dispatch, call and aggregation
// stages of a stress test.
package core

import (
	"context"
	"time"
)

// Result is the outcome of a single call against an endpoint.
type Result struct {
	Endpoint   string
	StatusCode int // 500 when the transport failed
	Elapsed    time.Duration
	Err        string
	Timestamp  time.Time
}

// Reporter receives results from workers. Implementations must be safe for
// concurrent use.
type Reporter interface {
	Report(Result)
}

// Caller issues one call for a dispatch entry. A Caller never fails: transport
// errors are folded into the returned Result.
type Caller interface {
	Call(ctx context.Context, endpoint string, entry Entry, bearer string) Result
}

// TokenSource resolves the bearer token attached to a call. An empty string
// means the call is sent without an Authorization header.
type TokenSource interface {
	Bearer(ctx context.Context) string
}

// StaticToken is a bearer token supplied directly in configuration.
type StaticToken string

func (s StaticToken) Bearer(context.Context) string { return string(s) }

// Reporters fans one result out to several reporters, in order.
type Reporters []Reporter

func (rs Reporters) Report(r Result) {
	for _, rep := range rs {
		rep.Report(r)
	}
}
