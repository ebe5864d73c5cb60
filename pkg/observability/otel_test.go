package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitOTel_Disabled(t *testing.T) {
	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, Discard())
	require.NoError(t, err)
	assert.Nil(t, providers)
}

func TestInitOTel_RequiresEndpoint(t *testing.T) {
	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: true}, Discard())
	require.Error(t, err)
	assert.Nil(t, providers)
	assert.Contains(t, err.Error(), "endpoint is required")
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
		want  string
	}{
		{"zero samples everything", 0, "AlwaysOnSampler"},
		{"one samples everything", 1, "AlwaysOnSampler"},
		{"fractional ratio", 0.25, "TraceIDRatioBased{0.25}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, samplerFor(tt.ratio).Description(), tt.want)
		})
	}
}

func TestOTelProviders_Shutdown(t *testing.T) {
	t.Run("nil providers", func(t *testing.T) {
		var p *OTelProviders
		assert.NoError(t, p.Shutdown(context.Background()))
	})

	t.Run("local providers", func(t *testing.T) {
		p := &OTelProviders{
			TracerProvider: sdktrace.NewTracerProvider(),
			MeterProvider:  metric.NewMeterProvider(),
		}
		assert.NoError(t, p.Shutdown(context.Background()))
	})
}

func TestWithTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("no span", func(t *testing.T) {
		assert.Same(t, logger, WithTraceContext(context.Background(), logger))
	})

	t.Run("active span", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		defer func() { _ = tp.Shutdown(context.Background()) }()

		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		defer span.End()

		buf.Reset()
		WithTraceContext(ctx, logger).Info("traced")

		entry := decodeEntry(t, &buf)
		assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
		assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])
	})
}
