// Package ratelimit caps the call rate of a single test.
package ratelimit

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// RateLimiter spaces calls issued by all workers of one test. A nil
// *RateLimiter never blocks, so an unlimited test needs no special casing.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter returns a limiter shared by the workers of a test, or nil
// when rps is not positive. Burst equals one second of traffic.
func NewRateLimiter(rps float64) *RateLimiter {
	if rps <= 0 {
		return nil
	}
	burst := int(math.Ceil(rps))
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Wait blocks until the next call may be issued or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

// Limit returns the configured calls per second, 0 when unlimited.
func (r *RateLimiter) Limit() float64 {
	if r == nil {
		return 0
	}
	return float64(r.limiter.Limit())
}
