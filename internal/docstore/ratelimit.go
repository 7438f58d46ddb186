package docstore

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket that also backs off after the API reports
// rate limiting.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
	backoff time.Duration
}

func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 8
	}
	if burst <= 0 {
		burst = 10
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Wait blocks until a request may be sent or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if wait := time.Until(retryAt); wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return r.limiter.Wait(ctx)
}

// RecordRateLimitError doubles the backoff window, capped at one minute.
func (r *RateLimiter) RecordRateLimitError() {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.backoff == 0:
		r.backoff = time.Second
	case r.backoff < time.Minute:
		r.backoff = min(r.backoff*2, time.Minute)
	}
	r.retryAt = time.Now().Add(r.backoff)
}

// RecordSuccess clears any backoff.
func (r *RateLimiter) RecordSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backoff = 0
	r.retryAt = time.Time{}
}
