// Package runner fans a prompt out to the selected council members and
// collects their results under a shared group deadline.
package runner

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/johnayoung/ai-council/internal/councilerr"
	"github.com/johnayoung/ai-council/internal/provider"
	"github.com/johnayoung/ai-council/internal/telemetry"
)

// DefaultGrace is how long Run waits past the group deadline for cancelled
// calls to return before recording them as timeouts.
const DefaultGrace = 100 * time.Millisecond

// Callbacks observe the progress of a round. Both hooks may be called
// concurrently from different goroutines, and each model is reported complete
// exactly once.
type Callbacks struct {
	OnModelStart    func(spec provider.ModelSpec)
	OnModelComplete func(result provider.ModelResult)
}

// Runner orchestrates parallel model calls.
type Runner struct {
	registry  *provider.Registry
	grace     time.Duration
	callbacks Callbacks
	logger    telemetry.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithCallbacks installs progress hooks.
func WithCallbacks(cb Callbacks) Option {
	return func(r *Runner) { r.callbacks = cb }
}

// WithGrace overrides DefaultGrace.
func WithGrace(d time.Duration) Option {
	return func(r *Runner) { r.grace = d }
}

// WithLogger sets the logger.
func WithLogger(l telemetry.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New creates a runner dispatching through registry.
func New(registry *provider.Registry, opts ...Option) *Runner {
	r := &Runner{
		registry: registry,
		grace:    DefaultGrace,
		logger:   telemetry.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Select returns the enabled specs truncated to the first maxModels in
// configured order.
func Select(specs []provider.ModelSpec, maxModels int) ([]provider.ModelSpec, error) {
	if maxModels < 1 {
		return nil, councilerr.Configf("max_models must be at least 1, got %d", maxModels)
	}
	enabled := make([]provider.ModelSpec, 0, len(specs))
	for _, s := range specs {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	if len(enabled) == 0 {
		return nil, councilerr.Configf("no enabled models")
	}
	if len(enabled) > maxModels {
		enabled = enabled[:maxModels]
	}
	return enabled, nil
}

// Run sends prompt to every selected spec at once and returns one result per
// dispatched spec, in the order of the selection. Calls still running when
// timeout elapses are cancelled and recorded as timeouts; Run returns no later
// than timeout plus the grace period even if a backend ignores cancellation.
// Individual failures are never returned as errors.
func (r *Runner) Run(ctx context.Context, specs []provider.ModelSpec, maxModels int, prompt string, timeout time.Duration) ([]provider.ModelResult, error) {
	selected, err := Select(specs, maxModels)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	groupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		slots    = make([]provider.ModelResult, len(selected))
		done     = make([]chan struct{}, len(selected))
		reported = make([]atomic.Bool, len(selected))
		g        errgroup.Group
	)

	for i, spec := range selected {
		done[i] = make(chan struct{})
		g.Go(func() error {
			defer close(done[i])
			if r.callbacks.OnModelStart != nil {
				r.callbacks.OnModelStart(spec)
			}
			slots[i] = r.send(groupCtx, spec, prompt)
			r.complete(&reported[i], slots[i])
			return nil
		})
	}

	allDone := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(allDone)
	}()

	select {
	case <-allDone:
	case <-groupCtx.Done():
		cancel()
		grace := time.NewTimer(r.grace)
		select {
		case <-allDone:
		case <-grace.C:
		}
		grace.Stop()
	}

	results := make([]provider.ModelResult, len(selected))
	abandoned := 0
	for i, spec := range selected {
		select {
		case <-done[i]:
			results[i] = slots[i]
		default:
			abandoned++
			elapsed := time.Since(start)
			results[i] = provider.Failed(spec, provider.Timeout,
				fmt.Sprintf("no response before the group deadline (%s)", elapsed.Round(time.Millisecond)), elapsed)
			r.complete(&reported[i], results[i])
		}
	}
	if abandoned > 0 {
		r.logger.Warn(ctx, "abandoned calls that ignored cancellation", "count", abandoned)
	}
	return results, nil
}

func (r *Runner) send(ctx context.Context, spec provider.ModelSpec, prompt string) provider.ModelResult {
	e, err := r.registry.Get(spec.CodeName)
	if err != nil {
		return provider.Failed(spec, provider.ProviderError, err.Error(), 0)
	}
	return e.Send(ctx, prompt, 0)
}

func (r *Runner) complete(reported *atomic.Bool, result provider.ModelResult) {
	if r.callbacks.OnModelComplete == nil || !reported.CompareAndSwap(false, true) {
		return
	}
	r.callbacks.OnModelComplete(result)
}
