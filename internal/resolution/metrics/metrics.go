package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks submissions and their resolution. A nil *Metrics is a no-op.
type Metrics struct {
	Submissions     prometheus.Counter
	Candidates      *prometheus.CounterVec
	ScoringDuration prometheus.Histogram
	Resolutions     *prometheus.CounterVec
	Conflicts       prometheus.Counter
	AutoResolutions *prometheus.CounterVec
	Thresholds      *prometheus.GaugeVec
}

// New registers resolution metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Submissions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ssot_submissions_total",
			Help: "Identities placed in quarantine",
		}),
		Candidates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ssot_match_candidates_total",
			Help: "Match candidates produced, by classification",
		}, []string{"classification"}),
		ScoringDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ssot_candidate_generation_duration_seconds",
			Help:    "Time to block and score one submission",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ssot_resolutions_total",
			Help: "Resolution attempts, by decision and outcome (ok or error code)",
		}, []string{"decision", "outcome"}),
		Conflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "ssot_resolution_conflicts_total",
			Help: "Resolutions refused because the submission was resolved or locked by someone else",
		}),
		AutoResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ssot_auto_resolutions_total",
			Help: "Submissions resolved by the engine without an operator, by decision",
		}, []string{"decision"}),
		Thresholds: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ssot_decision_threshold",
			Help: "Decision thresholds in force, by bound (upper or lower)",
		}, []string{"bound"}),
	}
}

func (m *Metrics) IncSubmission() {
	if m == nil {
		return
	}
	m.Submissions.Inc()
}

func (m *Metrics) IncCandidate(classification string) {
	if m == nil {
		return
	}
	m.Candidates.WithLabelValues(classification).Inc()
}

func (m *Metrics) ObserveScoring(seconds float64) {
	if m == nil {
		return
	}
	m.ScoringDuration.Observe(seconds)
}

func (m *Metrics) IncResolution(decision, outcome string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(decision, outcome).Inc()
}

func (m *Metrics) IncConflict() {
	if m == nil {
		return
	}
	m.Conflicts.Inc()
}

func (m *Metrics) IncAutoResolution(decision string) {
	if m == nil {
		return
	}
	m.AutoResolutions.WithLabelValues(decision).Inc()
}

// SetThresholds publishes the thresholds currently in force.
func (m *Metrics) SetThresholds(upper, lower float64) {
	if m == nil {
		return
	}
	m.Thresholds.WithLabelValues("upper").Set(upper)
	m.Thresholds.WithLabelValues("lower").Set(lower)
}
