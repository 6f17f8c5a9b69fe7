package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/johnayoung/ai-council/internal/telemetry"
)

// Endpoint is the model endpoint client for one configured backend. It turns
// every provider outcome, including panics, into a ModelResult.
type Endpoint struct {
	spec     ModelSpec
	provider Provider
	logger   telemetry.Logger
	metrics  telemetry.Metrics
	tracer   trace.Tracer
}

// EndpointOption configures an Endpoint.
type EndpointOption func(*Endpoint)

// WithLogger sets the endpoint logger.
func WithLogger(l telemetry.Logger) EndpointOption {
	return func(e *Endpoint) { e.logger = l }
}

// WithMetrics sets the endpoint metrics recorder.
func WithMetrics(m telemetry.Metrics) EndpointOption {
	return func(e *Endpoint) { e.metrics = m }
}

// NewEndpoint wraps p as the endpoint for spec.
func NewEndpoint(spec ModelSpec, p Provider, opts ...EndpointOption) *Endpoint {
	e := &Endpoint{
		spec:     spec,
		provider: p,
		logger:   telemetry.NewNoopLogger(),
		metrics:  telemetry.NewNoopMetrics(),
		tracer:   telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Spec returns the spec this endpoint serves.
func (e *Endpoint) Spec() ModelSpec {
	return e.spec
}

// Send issues one prompt under timeout (no extra bound when timeout <= 0) and
// returns the result. Send never fails: errors are recorded in the result.
func (e *Endpoint) Send(ctx context.Context, prompt string, timeout time.Duration) (result ModelResult) {
	start := time.Now()

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	callCtx, span := e.tracer.Start(callCtx, "council.model.send", trace.WithAttributes(
		attribute.String("council.code_name", e.spec.CodeName),
		attribute.String("council.provider", e.spec.Provider),
	))

	defer func() {
		if r := recover(); r != nil {
			result = Failed(e.spec, ProviderError, fmt.Sprintf("provider panic: %v", r), time.Since(start))
		}
		e.record(callCtx, span, result)
		span.End()
	}()

	e.logger.Debug(callCtx, "calling model", "code_name", e.spec.CodeName, "model", e.spec.Name)

	resp, err := e.provider.Query(callCtx, e.spec.request(prompt))
	latency := time.Since(start)
	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		kind := Classify(callCtx, err)
		detail := redact(err.Error(), e.spec.APIKey, e.spec.APISecret)
		if kind == Timeout && callCtx.Err() != nil {
			detail = fmt.Sprintf("call did not complete before the deadline (%s)", latency.Round(time.Millisecond))
		}
		return Failed(e.spec, kind, detail, latency)
	}
	return Succeeded(e.spec, resp.Content, latency)
}

func (e *Endpoint) record(ctx context.Context, span trace.Span, r ModelResult) {
	outcome := "success"
	if !r.OK() {
		outcome = string(r.Failure.Kind)
	}
	tags := []string{"provider", e.spec.Provider, "outcome", outcome}
	e.metrics.IncCounter("council.model.calls", 1, tags...)
	e.metrics.RecordTimer("council.model.latency", r.Latency, tags...)

	span.SetAttributes(attribute.String("council.outcome", outcome))
	if r.OK() {
		e.logger.Info(ctx, "model responded",
			"code_name", e.spec.CodeName,
			"model", e.spec.Name,
			"duration", r.Latency,
			"response_length", len(r.Text),
		)
		return
	}
	span.SetStatus(codes.Error, r.Failure.Detail)
	e.logger.Warn(ctx, "model call failed",
		"code_name", e.spec.CodeName,
		"model", e.spec.Name,
		"kind", string(r.Failure.Kind),
		"detail", r.Failure.Detail,
		"duration", r.Latency,
	)
}
