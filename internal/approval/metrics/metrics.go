package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Submitted    *prometheus.CounterVec
	Decisions    *prometheus.CounterVec
	Resolved     *prometheus.CounterVec
	CASConflicts prometheus.Counter
	EffectErrors *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		Submitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaperone_approval_submitted_total",
			Help: "Approval requests created by subject type",
		}, []string{"subject"}),
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaperone_approval_decisions_total",
			Help: "Approver decisions recorded",
		}, []string{"decision"}),
		Resolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaperone_approval_resolved_total",
			Help: "Requests reaching a resolution by subject and status",
		}, []string{"subject", "status"}),
		CASConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chaperone_approval_cas_conflicts_total",
			Help: "Decision writes that lost a version race and were re-applied",
		}),
		EffectErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaperone_approval_effect_errors_total",
			Help: "Resolution side effects that failed",
		}, []string{"subject"}),
	}
}

func (m *Metrics) IncSubmitted(subject string) {
	if m == nil {
		return
	}
	m.Submitted.WithLabelValues(subject).Inc()
}

func (m *Metrics) IncDecision(decision string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncResolved(subject, status string) {
	if m == nil {
		return
	}
	m.Resolved.WithLabelValues(subject, status).Inc()
}

func (m *Metrics) IncConflict() {
	if m == nil {
		return
	}
	m.CASConflicts.Inc()
}

func (m *Metrics) IncEffectError(subject string) {
	if m == nil {
		return
	}
	m.EffectErrors.WithLabelValues(subject).Inc()
}
