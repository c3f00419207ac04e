package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions  *prometheus.CounterVec
	Directives *prometheus.CounterVec
	Overrides  *prometheus.CounterVec
	CheckTime  prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaperone_policy_decisions_total",
			Help: "Authorization decisions by outcome and denial reason",
		}, []string{"outcome", "reason"}),
		Directives: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaperone_policy_directives_total",
			Help: "Guardian directives applied",
		}, []string{"directive"}),
		Overrides: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaperone_policy_overrides_total",
			Help: "Emergency override lifecycle events",
		}, []string{"event"}),
		CheckTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "chaperone_policy_authorize_seconds",
			Help:    "Time spent in Authorize",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
	}
}

// ObserveDecision records one Authorize outcome: allowed, overridden or denied.
func (m *Metrics) ObserveDecision(outcome, reason string, seconds float64) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(outcome, reason).Inc()
	m.CheckTime.Observe(seconds)
}

func (m *Metrics) IncDirective(directive string) {
	if m == nil {
		return
	}
	m.Directives.WithLabelValues(directive).Inc()
}

func (m *Metrics) IncOverride(event string) {
	if m == nil {
		return
	}
	m.Overrides.WithLabelValues(event).Inc()
}
