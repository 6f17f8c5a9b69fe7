package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"goa.design/clue/log"
)

func TestFielders(t *testing.T) {
	fs := fielders("model completed", []any{"code_name", "Alpha", 42, "skipped", "err", errors.New("boom"), "dangling"})

	require.Equal(t, []log.Fielder{
		log.KV{K: "msg", V: "model completed"},
		log.KV{K: "code_name", V: "Alpha"},
		log.KV{K: "err", V: "boom"},
		log.KV{K: "dangling", V: nil},
	}, fs)
}

func TestTagsToAttrs(t *testing.T) {
	attrs := tagsToAttrs([]string{"provider", "openai", "outcome"})
	require.Len(t, attrs, 2)
	require.Equal(t, "provider", string(attrs[0].Key))
	require.Equal(t, "openai", attrs[0].Value.AsString())
	require.Equal(t, "", attrs[1].Value.AsString())
}

func TestNoopImplementations(t *testing.T) {
	ctx := context.Background()
	logger := NewNoopLogger()
	logger.Info(ctx, "ignored", "k", "v")
	logger.Error(ctx, "ignored", "err", errors.New("boom"))

	m := NewNoopMetrics()
	m.IncCounter("council.model.calls", 1, "outcome", "success")
	m.RecordTimer("council.model.latency", time.Second)

	// The global meter provider is a no-op by default; recording must not panic.
	otelMetrics := NewOTELMetrics()
	otelMetrics.IncCounter("council.model.calls", 1, "outcome", "success")
	otelMetrics.RecordTimer("council.model.latency", time.Second)
	require.NotNil(t, Tracer())
}
