package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/freightsync/pkg/config"
)

func TestInitTracingExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(config.TracingConfig{Enabled: true, ServiceName: "freightsync-test", SampleRate: 1},
		WithWriter(&buf), WithSyncExport(), WithVersion("1.2.3"))
	require.NoError(t, err)

	ctx, span := otel.Tracer("test").Start(context.Background(), "engine.FetchData")

	core, logs := observer.New(zap.InfoLevel)
	Logger(ctx, zap.New(core)).Info("inside span")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "engine.FetchData")
	assert.Contains(t, buf.String(), "freightsync-test")

	entry := logs.All()[0]
	assert.Equal(t, span.SpanContext().TraceID().String(), entry.ContextMap()["trace_id"])
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(config.TracingConfig{Enabled: false})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	ctx, span := otel.Tracer("test").Start(context.Background(), "noop")
	defer span.End()
	assert.Empty(t, TraceFields(ctx))

	l := zap.NewNop()
	assert.Same(t, l, Logger(ctx, l))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(0).Description(), "AlwaysOff")
	assert.Contains(t, sampler(1).Description(), "AlwaysOn")
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}
