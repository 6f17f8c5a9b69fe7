// Package council runs a consultation: it dispatches a question to the
// configured models, anonymizes their answers and has one model synthesize
// the final response.
package council

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/johnayoung/ai-council/internal/consensus"
	"github.com/johnayoung/ai-council/internal/councilerr"
	"github.com/johnayoung/ai-council/internal/provider"
	"github.com/johnayoung/ai-council/internal/runner"
	"github.com/johnayoung/ai-council/internal/telemetry"
)

// Synthesis failure policies.
const (
	// OnSynthesisFailureFail aborts the consultation with a SynthesisFailedError.
	OnSynthesisFailureFail = "fail"
	// OnSynthesisFailureRaw returns the anonymized responses unsynthesized.
	OnSynthesisFailureRaw = "raw"
)

// ErrEmptyQuestion is returned by Consult when the question is blank.
var ErrEmptyQuestion = errors.New("question is required")

type (
	// Config is the resolved configuration of a council.
	Config struct {
		// Models in configured order. Code names must be unique.
		Models []provider.ModelSpec
		// MaxModels bounds how many enabled models are consulted.
		MaxModels int
		// ParallelTimeout is the group deadline of the consultation round.
		ParallelTimeout time.Duration
		// SynthesisTimeout bounds the synthesis call. Zero means ParallelTimeout.
		SynthesisTimeout time.Duration
		// Strategy is consensus.StrategyRandom or consensus.StrategyFirst.
		Strategy string
		// SynthesisModel, when set, always synthesizes and is never consulted.
		SynthesisModel *provider.ModelSpec
		// OnSynthesisFailure is OnSynthesisFailureFail (default) or
		// OnSynthesisFailureRaw.
		OnSynthesisFailure string
		// Seed makes random synthesizer selection reproducible.
		Seed *uint64
	}

	// Request is one consultation.
	Request struct {
		Context  string
		Question string
	}

	// Timing breaks down the duration of a consultation.
	Timing struct {
		Parallel  time.Duration
		Synthesis time.Duration
		Total     time.Duration
	}

	// Outcome is the result of a successful consultation.
	Outcome struct {
		RequestID             string
		FinalAnswer           string
		ContributingCodeNames []string
		SynthesizerCodeName   string
		// Synthesizer is the spec behind SynthesizerCodeName. It stays on the
		// caller's side of the anonymization boundary.
		Synthesizer provider.ModelSpec
		// Results holds every dispatched call in configured order.
		Results []provider.ModelResult
		Timing  Timing
		// Degraded is set when synthesis failed and the raw responses were
		// returned instead. SynthesisError then describes the failure.
		Degraded       bool
		SynthesisError string
	}

	// Council runs consultations. It is safe for concurrent use.
	Council struct {
		cfg      Config
		registry *provider.Registry
		runner   *runner.Runner
		selector *consensus.Selector
		judge    *consensus.Judge
		logger   telemetry.Logger
		metrics  telemetry.Metrics
		tracer   trace.Tracer
	}

	options struct {
		registry    *provider.Registry
		middlewares []provider.Middleware
		logger      telemetry.Logger
		metrics     telemetry.Metrics
		src         rand.Source
		callbacks   runner.Callbacks
		grace       time.Duration
	}

	// Option configures a Council.
	Option func(*options)
)

// WithRegistry uses registry instead of building providers from the model
// specs. Every consulted code name, and the synthesis model's, must be
// registered.
func WithRegistry(r *provider.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithMiddleware wraps every provider built from the model specs.
func WithMiddleware(mws ...provider.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}

// WithLogger sets the logger.
func WithLogger(l telemetry.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m telemetry.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithRandSource sets the random source of the synthesizer selector,
// overriding Config.Seed.
func WithRandSource(src rand.Source) Option {
	return func(o *options) { o.src = src }
}

// WithCallbacks installs progress hooks on the consultation round.
func WithCallbacks(cb runner.Callbacks) Option {
	return func(o *options) { o.callbacks = cb }
}

// WithGrace overrides how long the round waits past its deadline for
// cancelled calls.
func WithGrace(d time.Duration) Option {
	return func(o *options) { o.grace = d }
}

// Validate checks the settings that do not depend on the model list. An
// empty or fully disabled model list is reported by Consult.
func (c Config) Validate() error {
	if c.MaxModels < 1 {
		return councilerr.Configf("max_models must be at least 1, got %d", c.MaxModels)
	}
	if c.ParallelTimeout <= 0 {
		return councilerr.Configf("parallel_timeout must be positive, got %s", c.ParallelTimeout)
	}
	if c.SynthesisTimeout < 0 {
		return councilerr.Configf("synthesis_timeout must not be negative, got %s", c.SynthesisTimeout)
	}
	switch c.OnSynthesisFailure {
	case "", OnSynthesisFailureFail, OnSynthesisFailureRaw:
	default:
		return councilerr.Configf("unknown on_synthesis_failure policy %q", c.OnSynthesisFailure)
	}
	seen := make(map[string]bool, len(c.Models)+1)
	specs := c.Models
	if c.SynthesisModel != nil {
		specs = append(specs[:len(specs):len(specs)], *c.SynthesisModel)
	}
	for _, m := range specs {
		if m.CodeName == "" {
			return councilerr.Configf("model %q has no code name", m.Name)
		}
		if seen[m.CodeName] {
			return councilerr.Configf("duplicate code name %q", m.CodeName)
		}
		seen[m.CodeName] = true
	}
	return nil
}

// New creates a council from cfg.
func New(cfg Config, opts ...Option) (*Council, error) {
	o := options{
		logger:  telemetry.NewNoopLogger(),
		metrics: telemetry.NewNoopMetrics(),
		grace:   runner.DefaultGrace,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.Strategy == "" {
		cfg.Strategy = consensus.StrategyRandom
	}
	if cfg.OnSynthesisFailure == "" {
		cfg.OnSynthesisFailure = OnSynthesisFailureFail
	}
	if cfg.SynthesisTimeout == 0 {
		cfg.SynthesisTimeout = cfg.ParallelTimeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	src := o.src
	if src == nil && cfg.Seed != nil {
		src = rand.NewPCG(*cfg.Seed, *cfg.Seed)
	}
	selector, err := consensus.NewSelector(cfg.Strategy, src, cfg.SynthesisModel)
	if err != nil {
		return nil, err
	}

	registry := o.registry
	if registry == nil {
		registry = provider.NewRegistry(provider.WithLogger(o.logger), provider.WithMetrics(o.metrics))
		specs := cfg.Models
		if cfg.SynthesisModel != nil {
			specs = append(specs[:len(specs):len(specs)], *cfg.SynthesisModel)
		}
		for _, spec := range specs {
			if err := registry.RegisterSpec(spec, o.middlewares...); err != nil {
				return nil, councilerr.Configf("%v", err)
			}
		}
	}

	return &Council{
		cfg:      cfg,
		registry: registry,
		runner: runner.New(registry,
			runner.WithCallbacks(o.callbacks),
			runner.WithGrace(o.grace),
			runner.WithLogger(o.logger),
		),
		selector: selector,
		judge:    consensus.NewJudge(cfg.SynthesisTimeout),
		logger:   o.logger,
		metrics:  o.metrics,
		tracer:   telemetry.Tracer(),
	}, nil
}

// Config returns the council's effective configuration.
func (c *Council) Config() Config {
	return c.cfg
}

// Consult runs one consultation. The error is a *councilerr.ConfigurationError,
// *councilerr.AllModelsFailedError or *councilerr.SynthesisFailedError when
// the consultation is aborted, or the context error when ctx ends first.
// The question is required; the context may be empty.
func (c *Council) Consult(ctx context.Context, req Request) (*Outcome, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, ErrEmptyQuestion
	}

	start := time.Now()
	requestID := uuid.NewString()
	ctx, span := c.tracer.Start(ctx, "council.consult", trace.WithAttributes(
		attribute.String("council.request_id", requestID),
	))
	defer span.End()

	outcome, err := c.consult(ctx, requestID, req)
	status := "success"
	switch {
	case err != nil:
		status = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error(ctx, "consultation failed", "request_id", requestID, "err", err)
	case outcome.Degraded:
		status = "degraded"
	}
	c.metrics.IncCounter("council.consult", 1, "status", status)
	c.metrics.RecordTimer("council.consult.duration", time.Since(start), "status", status)
	return outcome, err
}

func (c *Council) consult(ctx context.Context, requestID string, req Request) (*Outcome, error) {
	start := time.Now()
	c.logger.Info(ctx, "consulting council",
		"request_id", requestID,
		"models", len(c.cfg.Models),
		"max_models", c.cfg.MaxModels,
		"timeout", c.cfg.ParallelTimeout,
	)

	results, err := c.runner.Run(ctx, c.cfg.Models, c.cfg.MaxModels,
		consensus.QuestionPrompt(req.Context, req.Question), c.cfg.ParallelTimeout)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parallel := time.Since(start)

	responses, contributors, err := consensus.Anonymize(results)
	if err != nil {
		return nil, err
	}
	c.logger.Info(ctx, "consultation round complete",
		"request_id", requestID,
		"succeeded", len(responses),
		"failed", len(results)-len(responses),
		"duration", parallel,
	)

	synthSpec, err := c.selector.Select(contributors)
	if err != nil {
		return nil, err
	}
	synthesizer, err := c.registry.Get(synthSpec.CodeName)
	if err != nil {
		return nil, &councilerr.SynthesisFailedError{
			CodeName: synthSpec.CodeName,
			Kind:     provider.ProviderError,
			Detail:   err.Error(),
			Results:  results,
		}
	}
	c.logger.Info(ctx, "synthesizing", "request_id", requestID, "synthesizer", synthSpec.CodeName)

	synthStart := time.Now()
	synthesis, err := c.judge.Synthesize(ctx, synthesizer, req.Context, req.Question, responses)
	synthDuration := time.Since(synthStart)

	outcome := &Outcome{
		RequestID:             requestID,
		ContributingCodeNames: consensus.CodeNames(responses),
		SynthesizerCodeName:   synthSpec.CodeName,
		Synthesizer:           synthSpec,
		Results:               results,
		Timing: Timing{
			Parallel:  parallel,
			Synthesis: synthDuration,
		},
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var synthErr *councilerr.SynthesisFailedError
		if errors.As(err, &synthErr) {
			synthErr.Results = results
		}
		if c.cfg.OnSynthesisFailure != OnSynthesisFailureRaw {
			return nil, err
		}
		c.logger.Warn(ctx, "synthesis failed, returning raw responses", "request_id", requestID, "err", err)
		outcome.Degraded = true
		outcome.SynthesisError = err.Error()
		outcome.FinalAnswer = RawAnswer(responses)
	} else {
		outcome.FinalAnswer = synthesis.Text
	}

	outcome.Timing.Total = time.Since(start)
	return outcome, nil
}

// RawAnswer renders the anonymized responses as the final answer of a
// degraded outcome.
func RawAnswer(responses []consensus.AnonymizedResponse) string {
	var b strings.Builder
	b.WriteString("Synthesis was unavailable. The council's individual responses follow.")
	for _, r := range responses {
		fmt.Fprintf(&b, "\n\n--- %s ---\n%s", r.CodeName, r.Text)
	}
	return b.String()
}
