// Package middleware provides provider.Middleware implementations that wrap a
// model backend with per-model rate limiting and circuit breaking.
package middleware

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/johnayoung/ai-council/internal/provider"
)

type (
	// RateLimiter is a requests-per-minute token bucket for a single model.
	// The effective budget halves whenever the backend reports rate limiting
	// and recovers additively on success, never exceeding the configured rpm.
	RateLimiter struct {
		mu      sync.Mutex
		limiter *rate.Limiter
		current float64
		max     float64
		min     float64
		step    float64
	}

	limitedProvider struct {
		next    provider.Provider
		limiter *RateLimiter
	}
)

// NewRateLimiter returns a limiter allowing rpm requests per minute with a
// burst of one. rpm must be positive.
func NewRateLimiter(rpm float64) *RateLimiter {
	step := rpm / 10
	if step < 1 {
		step = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rpm/60.0), 1),
		current: rpm,
		max:     rpm,
		min:     1,
		step:    step,
	}
}

// RateLimit returns a middleware that gives every model its own limiter of
// rpm requests per minute. A non-positive rpm disables limiting.
func RateLimit(rpm int) provider.Middleware {
	return func(_ provider.ModelSpec, next provider.Provider) provider.Provider {
		if rpm <= 0 {
			return next
		}
		return &limitedProvider{next: next, limiter: NewRateLimiter(float64(rpm))}
	}
}

// Query waits for capacity then forwards the request. Waiting honors ctx, so
// a call blocked on the limiter still fails at the group deadline.
func (p *limitedProvider) Query(ctx context.Context, req provider.Request) (provider.Response, error) {
	if err := p.limiter.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return provider.Response{}, ctxErr
		}
		// Wait fails early when the deadline cannot be met.
		return provider.Response{}, context.DeadlineExceeded
	}
	resp, err := p.next.Query(ctx, req)
	p.limiter.observe(err)
	return resp, err
}

// Limit returns the current requests-per-minute budget.
func (l *RateLimiter) Limit() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

func (l *RateLimiter) observe(err error) {
	var apiErr *provider.APIError
	switch {
	case err == nil:
		l.adjust(l.step)
	case errors.As(err, &apiErr) && apiErr.Reason == "rate_limit":
		l.mu.Lock()
		half := l.current / 2
		l.mu.Unlock()
		l.adjust(-half)
	}
}

func (l *RateLimiter) adjust(delta float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next := l.current + delta
	if next > l.max {
		next = l.max
	}
	if next < l.min {
		next = l.min
	}
	if next == l.current {
		return
	}
	l.current = next
	l.limiter.SetLimit(rate.Limit(next / 60.0))
}
