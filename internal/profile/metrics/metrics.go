// Package metrics exposes profile store instrumentation to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements the store instrumentation sink.
type Metrics struct {
	OperationDuration *prometheus.HistogramVec
	OperationErrors   *prometheus.CounterVec
	ReadFailures      prometheus.Counter
	BridgeFailures    *prometheus.CounterVec
	Records           prometheus.Gauge
}

// New registers all profile store metrics with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bizprofile_operation_duration_seconds",
			Help:    "Duration of profile store operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}, []string{"operation"}),
		OperationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bizprofile_operation_errors_total",
			Help: "Profile store operations that returned an error",
		}, []string{"operation"}),
		ReadFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "bizprofile_storage_read_failures_total",
			Help: "Storage reads that failed or returned an undecodable blob",
		}),
		BridgeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bizprofile_bridge_failures_total",
			Help: "Autofill bridge calls that failed, panicked or timed out",
		}, []string{"operation"}),
		Records: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bizprofile_businesses",
			Help: "Number of businesses in the last persisted collection",
		}),
	}
}

func (m *Metrics) ObserveOperation(op string, err error, elapsed time.Duration) {
	m.OperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	if err != nil {
		m.OperationErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) IncReadFailure() {
	m.ReadFailures.Inc()
}

func (m *Metrics) IncBridgeFailure(op string) {
	m.BridgeFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) SetRecords(n int) {
	m.Records.Set(float64(n))
}
