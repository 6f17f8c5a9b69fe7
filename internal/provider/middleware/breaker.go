package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/johnayoung/ai-council/internal/provider"
	"github.com/johnayoung/ai-council/internal/telemetry"
)

// BreakerSettings configures CircuitBreaker.
type BreakerSettings struct {
	// Failures is the number of consecutive failures that opens the breaker.
	// Zero disables the breaker.
	Failures int
	// Cooldown is how long the breaker stays open before a probe is allowed.
	Cooldown time.Duration
	// Logger receives state changes. Optional.
	Logger telemetry.Logger
}

type breakerProvider struct {
	next     provider.Provider
	cb       *gobreaker.CircuitBreaker[provider.Response]
	name     string
	provider string
}

// CircuitBreaker returns a middleware that isolates a failing model behind its
// own breaker. While open, calls fail fast with a provider_overloaded
// APIError instead of reaching the backend.
func CircuitBreaker(s BreakerSettings) provider.Middleware {
	logger := s.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	cooldown := s.Cooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return func(spec provider.ModelSpec, next provider.Provider) provider.Provider {
		if s.Failures <= 0 {
			return next
		}
		threshold := uint32(s.Failures) //nolint:gosec // validated positive above
		name := "council-" + spec.CodeName
		cb := gobreaker.NewCircuitBreaker[provider.Response](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Info(context.Background(), "circuit breaker state change",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
			IsSuccessful: countsAsSuccess,
		})
		return &breakerProvider{next: next, cb: cb, name: name, provider: spec.Provider}
	}
}

func (p *breakerProvider) Query(ctx context.Context, req provider.Request) (provider.Response, error) {
	resp, err := p.cb.Execute(func() (provider.Response, error) {
		return p.next.Query(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return provider.Response{}, &provider.APIError{
			Provider: p.provider,
			Reason:   "provider_overloaded",
			Message:  fmt.Sprintf("circuit %s is %s", p.name, p.cb.State()),
		}
	}
	return resp, err
}

// countsAsSuccess keeps errors that say nothing about backend health out of
// the failure count.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Reason {
		case "auth_error", "bad_request":
			return true
		}
	}
	return false
}
