package compliance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "ssot/pkg/platform/audit"
)

// Metrics tracks audit persistence. A nil *Metrics is a valid no-op collector.
type Metrics struct {
	eventsEmitted   *prometheus.CounterVec
	persistFailures prometheus.Counter
	persistDuration prometheus.Histogram
}

// NewMetrics registers audit metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		eventsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ssot_audit_entries_total",
			Help: "Audit entries appended, by action",
		}, []string{"action"}),
		persistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ssot_audit_persist_failures_total",
			Help: "Audit appends that failed and aborted their operation",
		}),
		persistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ssot_audit_persist_duration_seconds",
			Help:    "Duration of audit appends",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

func (m *Metrics) IncEventsEmitted(action audit.Action) {
	if m == nil {
		return
	}
	m.eventsEmitted.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) IncPersistFailures() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

func (m *Metrics) ObservePersistDuration(seconds float64) {
	if m == nil {
		return
	}
	m.persistDuration.Observe(seconds)
}
