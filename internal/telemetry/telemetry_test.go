package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.False(t, tel.IsEnabled())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_WithExporter(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	exp := tracetest.NewInMemoryExporter()

	tel, err := New(context.Background(), cfg, WithExporter(exp))
	require.NoError(t, err)
	assert.True(t, tel.IsEnabled())

	_, span := tel.Tracer("stackprobe.test").Start(context.Background(), "unit")
	span.End()
	require.NoError(t, tel.ForceFlush(context.Background()))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "unit", spans[0].Name)
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_WithMetricReader(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Metrics = true
	reader := sdkmetric.NewManualReader()

	tel, err := New(context.Background(), cfg,
		WithExporter(tracetest.NewInMemoryExporter()),
		WithMetricReader(reader))
	require.NoError(t, err)

	counter, err := tel.Meter("stackprobe.test").Int64Counter("stackprobe.test.requests")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)
	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)

	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = "collector.example.com:4317"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err, "insecure remote endpoint must be rejected")
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry
	assert.NotNil(t, tel.Tracer("x"))
	assert.Nil(t, tel.LoggerProvider())
	assert.NoError(t, tel.Shutdown(context.Background()))
	degraded, _ := tel.Degraded()
	assert.True(t, degraded)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"disabled skips validation", func(c *Config) { c.Endpoint = "" }, false},
		{"enabled local", func(c *Config) { c.Enabled = true }, false},
		{"enabled https scheme local", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "http://127.0.0.1:4318"
			c.Protocol = "http/protobuf"
		}, false},
		{"enabled ipv6 loopback", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "[::1]:4317"
		}, false},
		{"metrics without interval", func(c *Config) {
			c.Enabled = true
			c.Metrics = true
			c.MetricsInterval = 0
		}, true},
		{"bad protocol", func(c *Config) {
			c.Enabled = true
			c.Protocol = "thrift"
		}, true},
		{"bad rate", func(c *Config) {
			c.Enabled = true
			c.SampleRate = -0.5
		}, true},
		{"remote secure ok", func(c *Config) {
			c.Enabled = true
			c.Insecure = false
			c.Endpoint = "otel.example.com:4317"
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTestTelemetry_Assertions(t *testing.T) {
	tt := NewTestTelemetry()
	_, span := tt.Tracer("test").Start(context.Background(), "stackprobe.detect")
	span.SetAttributes(attribute.String("framework_primary", "react"), attribute.Int("matches", 2))
	span.End()

	tt.AssertSpanExists(t, "stackprobe.detect")
	tt.AssertSpanAttribute(t, "stackprobe.detect", "framework_primary", "react")
	tt.AssertSpanAttribute(t, "stackprobe.detect", "matches", int64(2))
}
