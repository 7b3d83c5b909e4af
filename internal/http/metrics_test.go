package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/stackprobe/internal/logging"
)

func collect(t *testing.T, reader sdkmetric.Reader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := NewHTTPMetrics(mp.Meter(InstrumentationName), logging.NewNop())

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST(detectRoute, func(c echo.Context) error {
		if c.QueryParam("fail") != "" {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid snapshot")
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/health", nil),
		httptest.NewRequest(http.MethodPost, detectRoute, strings.NewReader("globals: {}\n")),
		httptest.NewRequest(http.MethodPost, detectRoute+"?fail=1", strings.NewReader("::")),
	} {
		e.ServeHTTP(httptest.NewRecorder(), req)
	}

	metrics := collect(t, reader)

	requests, ok := metrics["stackprobe.http.requests_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok, "requests counter missing")
	statuses := map[int64]int64{}
	for _, dp := range requests.DataPoints {
		code, _ := dp.Attributes.Value(attribute.Key("http.response.status_code"))
		statuses[code.AsInt64()] += dp.Value
	}
	assert.Equal(t, map[int64]int64{200: 2, 400: 1}, statuses)

	duration, ok := metrics["stackprobe.http.request_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok, "duration histogram missing")
	var recorded uint64
	for _, dp := range duration.DataPoints {
		recorded += dp.Count
	}
	assert.Equal(t, uint64(3), recorded)

	sizes, ok := metrics["stackprobe.http.snapshot_size_bytes"].Data.(metricdata.Histogram[int64])
	require.True(t, ok, "snapshot size histogram missing")
	require.Len(t, sizes.DataPoints, 1)
	assert.Equal(t, uint64(2), sizes.DataPoints[0].Count)
	assert.Equal(t, int64(len("globals: {}\n")+len("::")), sizes.DataPoints[0].Sum)

	active, ok := metrics["stackprobe.http.active_requests"].Data.(metricdata.Sum[int64])
	require.True(t, ok, "active requests missing")
	for _, dp := range active.DataPoints {
		assert.Zero(t, dp.Value)
	}
}

func TestNewHTTPMetrics_Defaults(t *testing.T) {
	m := NewHTTPMetrics(nil, nil)
	require.NotNil(t, m)
	assert.NotNil(t, m.requests)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "unmatched"},
		{"/health", "/health"},
		{"/api/v1/catalog", "/api/v1/catalog"},
		{"/api/v1/catalog/:id", "/api/v1/catalog/:id"},
		{"/api/v1/detect", "/api/v1/detect"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, normalizePath(tt.input), tt.input)
	}
}
