package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the extraction pipeline.
type Metrics struct {
	// Extraction outcomes by result kind and card variant
	ExtractionOutcome *prometheus.CounterVec

	// QR decode attempts by scale and outcome
	QRAttempts *prometheus.CounterVec

	// Stage latencies (qr, direct, region, total)
	StageLatency *prometheus.HistogramVec

	// Jobs handled by the queue consumer, by final status
	JobsProcessed *prometheus.CounterVec
}

// New registers all pipeline metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ExtractionOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cccd_extraction_outcomes_total",
			Help: "Total extraction results by kind and card variant",
		}, []string{"kind", "variant"}),

		QRAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cccd_qr_attempts_total",
			Help: "QR decode attempts by upscale factor and outcome",
		}, []string{"scale", "outcome"}), // outcome: "found", "absent", "error"

		StageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cccd_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"stage"}),

		JobsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cccd_jobs_processed_total",
			Help: "Queue jobs processed by final status",
		}, []string{"status"}),
	}
}

// IncrementOutcome records an extraction result.
func (m *Metrics) IncrementOutcome(kind, variant string) {
	if m != nil {
		m.ExtractionOutcome.WithLabelValues(kind, variant).Inc()
	}
}

// IncrementQRAttempt records one decode attempt.
func (m *Metrics) IncrementQRAttempt(scale int, outcome string) {
	if m != nil {
		m.QRAttempts.WithLabelValues(strconv.Itoa(scale), outcome).Inc()
	}
}

// ObserveStage records the duration of a pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// IncrementJob records a processed queue job.
func (m *Metrics) IncrementJob(status string) {
	if m != nil {
		m.JobsProcessed.WithLabelValues(status).Inc()
	}
}
