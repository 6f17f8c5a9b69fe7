// Package telemetry provides the logging, tracing and metrics facades used by
// the council. Logging delegates to goa.design/clue/log; tracing and metrics
// delegate to the global OpenTelemetry providers, which are no-ops unless the
// host process installs real ones.
package telemetry

import (
	"context"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"goa.design/clue/log"
)

const instrumentationName = "github.com/johnayoung/ai-council"

type (
	// Logger emits structured log messages with key-value pairs.
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records counters and timers.
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordTimer(name string, duration time.Duration, tags ...string)
	}

	// ClueLogger wraps goa.design/clue/log.
	ClueLogger struct{}

	// OTELMetrics wraps an OTEL meter.
	OTELMetrics struct {
		meter metric.Meter
	}

	noopLogger  struct{}
	noopMetrics struct{}
)

// LogOptions configures the logging context built by Context.
type LogOptions struct {
	// Output receives log lines. Defaults to stderr in the callers; stdout is
	// reserved for results and the MCP transport.
	Output io.Writer
	// JSON selects JSON formatting, otherwise terminal formatting is used.
	JSON bool
	// Debug enables debug level messages.
	Debug bool
}

// Context returns a context carrying a clue logger configured per opts.
func Context(ctx context.Context, opts LogOptions) context.Context {
	format := log.FormatTerminal
	if opts.JSON {
		format = log.FormatJSON
	}
	logOpts := []log.LogOption{log.WithFormat(format), log.WithDisableBuffering(unbuffered)}
	if opts.Output != nil {
		logOpts = append(logOpts, log.WithOutput(opts.Output))
	}
	if opts.Debug {
		logOpts = append(logOpts, log.WithDebug())
	}
	return log.Context(ctx, logOpts...)
}

// unbuffered disables clue's info buffering: a consult is short lived and its
// progress must be visible as it happens.
func unbuffered(context.Context) bool { return true }

// NewClueLogger constructs a Logger that delegates to goa.design/clue/log. The
// logger reads formatting and debug settings from the context.
func NewClueLogger() Logger {
	return ClueLogger{}
}

// NewNoopLogger returns a Logger that discards everything.
func NewNoopLogger() Logger {
	return noopLogger{}
}

// NewOTELMetrics constructs a Metrics recorder using the global MeterProvider.
func NewOTELMetrics() Metrics {
	return &OTELMetrics{meter: otel.Meter(instrumentationName)}
}

// NewNoopMetrics returns a Metrics recorder that discards everything.
func NewNoopMetrics() Metrics {
	return noopMetrics{}
}

// Tracer returns the council tracer from the global TracerProvider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

func (ClueLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	log.Debug(ctx, fielders(msg, keyvals)...)
}

func (ClueLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	log.Info(ctx, fielders(msg, keyvals)...)
}

func (ClueLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	log.Warn(ctx, fielders(msg, keyvals)...)
}

// Error logs at error level. A value stored under the "err" key is passed to
// clue as the error.
func (ClueLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	var err error
	for i := 0; i+1 < len(keyvals); i += 2 {
		if k, ok := keyvals[i].(string); ok && k == "err" {
			if e, ok := keyvals[i+1].(error); ok {
				err = e
			}
		}
	}
	log.Error(ctx, err, fielders(msg, keyvals)...)
}

func (noopLogger) Debug(context.Context, string, ...any) {}
func (noopLogger) Info(context.Context, string, ...any)  {}
func (noopLogger) Warn(context.Context, string, ...any)  {}
func (noopLogger) Error(context.Context, string, ...any) {}

// IncCounter increments a counter metric by the given value.
func (m *OTELMetrics) IncCounter(name string, value float64, tags ...string) {
	counter, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), value, metric.WithAttributes(tagsToAttrs(tags)...))
}

// RecordTimer records a duration histogram in seconds.
func (m *OTELMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	histogram, err := m.meter.Float64Histogram(name, metric.WithUnit("s"))
	if err != nil {
		return
	}
	histogram.Record(context.Background(), duration.Seconds(), metric.WithAttributes(tagsToAttrs(tags)...))
}

func (noopMetrics) IncCounter(string, float64, ...string)          {}
func (noopMetrics) RecordTimer(string, time.Duration, ...string) {}

// fielders converts msg and variadic key-value pairs into clue fielders.
// Non-string keys are skipped; an odd trailing key is paired with nil.
func fielders(msg string, keyvals []any) []log.Fielder {
	fs := make([]log.Fielder, 0, 1+len(keyvals)/2)
	fs = append(fs, log.KV{K: "msg", V: msg})
	for i := 0; i < len(keyvals); i += 2 {
		k, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		var v any
		if i+1 < len(keyvals) {
			v = keyvals[i+1]
		}
		if e, ok := v.(error); ok {
			v = e.Error()
		}
		fs = append(fs, log.KV{K: k, V: v})
	}
	return fs
}

// tagsToAttrs converts tag strings (k1, v1, k2, v2, ...) into OTEL attributes.
func tagsToAttrs(tags []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags)/2)
	for i := 0; i < len(tags); i += 2 {
		v := ""
		if i+1 < len(tags) {
			v = tags[i+1]
		}
		attrs = append(attrs, attribute.String(tags[i], v))
	}
	return attrs
}
