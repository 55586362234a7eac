package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitOTel_Disabled(t *testing.T) {
	telemetry, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, NopLogger())
	require.NoError(t, err)
	assert.Nil(t, telemetry)

	assert.NoError(t, telemetry.Shutdown(context.Background()))
}

func TestTelemetry_Shutdown(t *testing.T) {
	telemetry := &Telemetry{tracer: sdktrace.NewTracerProvider(), logger: NopLogger()}
	assert.NoError(t, telemetry.Shutdown(context.Background()))
}

func TestOTelConfig_Sampler(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
		want  string
	}{
		{name: "unset keeps every span", ratio: 0, want: "AlwaysOnSampler"},
		{name: "full ratio keeps every span", ratio: 1, want: "AlwaysOnSampler"},
		{name: "partial ratio", ratio: 0.25, want: "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, OTelConfig{SampleRatio: tt.ratio}.sampler().Description(), tt.want)
		})
	}
}

func TestUpdateLoggerWithTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	assert.Same(t, logger, UpdateLoggerWithTraceContext(context.Background(), logger))

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "search")
	defer span.End()

	UpdateLoggerWithTraceContext(ctx, logger).Info("traced")
	entry := decodeLine(t, &buf)
	assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])
}
