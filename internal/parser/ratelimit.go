package parser

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces a sliding one-minute request window plus a minimum
// gap between consecutive requests. Generative APIs meter both ways:
// burst quota per minute and per-request pacing.
type RateLimiter struct {
	mu           sync.Mutex
	requests     []time.Time
	maxPerMinute int
	minInterval  time.Duration
	lastRequest  time.Time

	now func() time.Time
}

// NewRateLimiter returns a limiter allowing maxPerMinute requests per
// sliding minute with at least minInterval between requests. A
// maxPerMinute of zero or below disables the window check.
func NewRateLimiter(maxPerMinute int, minInterval time.Duration) *RateLimiter {
	return &RateLimiter{
		maxPerMinute: maxPerMinute,
		minInterval:  minInterval,
		now:          time.Now,
	}
}

// delay returns how long the caller must wait before the next request is
// admissible, recording the request when the answer is zero.
func (r *RateLimiter) delay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	if r.minInterval > 0 && !r.lastRequest.IsZero() {
		if gap := now.Sub(r.lastRequest); gap < r.minInterval {
			return r.minInterval - gap
		}
	}

	if r.maxPerMinute > 0 {
		cutoff := now.Add(-time.Minute)
		kept := r.requests[:0]
		for _, t := range r.requests {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		r.requests = kept
		if len(r.requests) >= r.maxPerMinute {
			return r.requests[0].Sub(cutoff)
		}
		r.requests = append(r.requests, now)
	}

	r.lastRequest = now
	return 0
}

// Wait blocks until the limiter admits a request or the context is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		d := r.delay()
		if d <= 0 {
			return nil
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Allow reports whether a request is admissible right now, without
// blocking. Callers that cannot wait use this to fail over immediately.
func (r *RateLimiter) Allow() bool {
	return r.delay() <= 0
}
