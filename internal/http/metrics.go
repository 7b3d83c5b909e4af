package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/stackprobe/internal/logging"
)

// InstrumentationName is the meter name for HTTP server metrics.
const InstrumentationName = "github.com/fyrsmithlabs/stackprobe/internal/http"

const detectRoute = "/api/v1/detect"

// HTTPMetrics records OpenTelemetry metrics for the analysis API.
type HTTPMetrics struct {
	logger        *logging.Logger
	requests      metric.Int64Counter
	duration      metric.Float64Histogram
	snapshotBytes metric.Int64Histogram
	inFlight      metric.Int64UpDownCounter
}

// NewHTTPMetrics creates a new HTTPMetrics instance. A nil meter uses the
// global meter provider. Instruments that fail to register are skipped.
func NewHTTPMetrics(meter metric.Meter, logger *logging.Logger) *HTTPMetrics {
	if logger == nil {
		logger = logging.NewNop()
	}
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &HTTPMetrics{logger: logger}
	var err error

	m.requests, err = meter.Int64Counter(
		"stackprobe.http.requests_total",
		metric.WithDescription("HTTP requests by method, route and status code."),
		metric.WithUnit("{request}"),
	)
	m.warnOnError("stackprobe.http.requests_total", err)

	m.duration, err = meter.Float64Histogram(
		"stackprobe.http.request_duration_seconds",
		metric.WithDescription("HTTP request latency by method, route and status code."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)
	m.warnOnError("stackprobe.http.request_duration_seconds", err)

	m.snapshotBytes, err = meter.Int64Histogram(
		"stackprobe.http.snapshot_size_bytes",
		metric.WithDescription("Size of snapshots posted to the detect endpoint."),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304),
	)
	m.warnOnError("stackprobe.http.snapshot_size_bytes", err)

	m.inFlight, err = meter.Int64UpDownCounter(
		"stackprobe.http.active_requests",
		metric.WithDescription("HTTP requests currently being served."),
		metric.WithUnit("{request}"),
	)
	m.warnOnError("stackprobe.http.active_requests", err)

	return m
}

func (m *HTTPMetrics) warnOnError(name string, err error) {
	if err != nil {
		m.logger.Warn(context.Background(), "failed to create http instrument",
			zap.String("instrument", name), zap.Error(err))
	}
}

// MetricsMiddleware returns an Echo middleware that records HTTP metrics.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := req.Context()
			start := time.Now()

			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
				defer m.inFlight.Add(ctx, -1)
			}

			err := next(c)

			route := normalizePath(c.Path())
			attrs := metric.WithAttributes(
				attribute.String("http.request.method", req.Method),
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", statusOf(c, err)),
			)
			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.duration != nil {
				m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			if m.snapshotBytes != nil && route == detectRoute && req.ContentLength >= 0 {
				m.snapshotBytes.Record(ctx, req.ContentLength)
			}
			return err
		}
	}
}

// statusOf reports the status the client will see. Handler errors are
// rendered by Echo after the middleware chain returns, so the response
// status is still unset when err is non-nil.
func statusOf(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// normalizePath maps the matched route to a metric label. Routes are
// fixed, so only unmatched requests need folding.
func normalizePath(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
