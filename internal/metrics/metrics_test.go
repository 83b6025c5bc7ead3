package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementOutcome("qr_success", "modern_back")
	m.IncrementOutcome("qr_success", "modern_back")
	m.IncrementQRAttempt(2, "absent")
	m.IncrementQRAttempt(7, "found")
	m.ObserveStage("qr", 30*time.Millisecond)
	m.IncrementJob("completed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ExtractionOutcome.WithLabelValues("qr_success", "modern_back")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QRAttempts.WithLabelValues("2", "absent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QRAttempts.WithLabelValues("7", "found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsProcessed.WithLabelValues("completed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageLatency))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementOutcome("failure", "legacy_front")
		m.IncrementQRAttempt(1, "error")
		m.ObserveStage("total", time.Second)
		m.IncrementJob("failed")
	})
}
