package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks calibration changes. A nil *Metrics is a no-op.
type Metrics struct {
	Updates    *prometheus.CounterVec
	Rejections *prometheus.CounterVec
	Version    prometheus.Gauge
}

// New registers calibration metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Updates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ssot_calibration_updates_total",
			Help: "Committed calibration changes, by kind (update, initialize)",
		}, []string{"kind"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ssot_calibration_rejections_total",
			Help: "Calibration changes rejected, by error code",
		}, []string{"code"}),
		Version: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ssot_calibration_version",
			Help: "Version of the calibration snapshot currently served",
		}),
	}
}

func (m *Metrics) IncUpdate(kind string) {
	if m == nil {
		return
	}
	m.Updates.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncRejection(code string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(code).Inc()
}

func (m *Metrics) SetVersion(v int64) {
	if m == nil {
		return
	}
	m.Version.Set(float64(v))
}
