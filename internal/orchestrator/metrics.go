package orchestrator

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Detection outcomes.
const (
	OutcomeDetected = "detected"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Metrics holds Prometheus metrics for detection runs.
type Metrics struct {
	DetectionsTotal        *prometheus.CounterVec
	DetectionDuration      prometheus.Histogram
	SignalMatchesTotal     *prometheus.CounterVec
	ProbePanicsTotal       *prometheus.CounterVec
	SinkDeliveriesTotal    *prometheus.CounterVec
	PersistenceErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers Prometheus metrics for detection.
//
// Registration happens once per process; later calls return the same
// instance.
//
// Metrics:
//   - stackprobe_detections_total{outcome} - detection passes by outcome
//   - stackprobe_detection_duration_seconds - scoring pass latency
//   - stackprobe_signal_matches_total{category} - matched signals
//   - stackprobe_probe_panics_total{signal} - recovered probe panics
//   - stackprobe_sink_deliveries_total{result} - sink send outcomes
//   - stackprobe_persistence_errors_total{op} - swallowed store failures
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			DetectionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stackprobe_detections_total",
					Help: "Total number of detection passes by outcome",
				},
				[]string{"outcome"}, // "detected", "skipped", "failed"
			),

			DetectionDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "stackprobe_detection_duration_seconds",
					Help:    "Duration of scoring passes in seconds",
					Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
				},
			),

			SignalMatchesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stackprobe_signal_matches_total",
					Help: "Total number of matched signals by category",
				},
				[]string{"category"},
			),

			ProbePanicsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stackprobe_probe_panics_total",
					Help: "Total number of recovered signal probe panics",
				},
				[]string{"signal"},
			),

			SinkDeliveriesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stackprobe_sink_deliveries_total",
					Help: "Total number of sink deliveries by result",
				},
				[]string{"result"}, // "sent", "not_ready", "error"
			),

			PersistenceErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stackprobe_persistence_errors_total",
					Help: "Total number of swallowed session persistence failures",
				},
				[]string{"op"},
			),
		}
	})

	return globalMetrics
}

// RecordDetection records a detection outcome.
func (m *Metrics) RecordDetection(outcome string) {
	m.DetectionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records a scoring pass duration.
func (m *Metrics) ObserveDuration(seconds float64) {
	m.DetectionDuration.Observe(seconds)
}

// RecordMatch implements scoring.Recorder.
func (m *Metrics) RecordMatch(category string) {
	m.SignalMatchesTotal.WithLabelValues(category).Inc()
}

// RecordProbePanic implements scoring.Recorder.
func (m *Metrics) RecordProbePanic(signalID string) {
	m.ProbePanicsTotal.WithLabelValues(signalID).Inc()
}

// RecordDelivery implements sink.DeliveryRecorder.
func (m *Metrics) RecordDelivery(result string) {
	m.SinkDeliveriesTotal.WithLabelValues(result).Inc()
}

// RecordPersistenceError implements dedup.ErrorRecorder.
func (m *Metrics) RecordPersistenceError(op string) {
	m.PersistenceErrorsTotal.WithLabelValues(op).Inc()
}
