package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Committed       *prometheus.CounterVec
	CommitLatency   prometheus.Histogram
	FanoutOutcomes  *prometheus.CounterVec
	Receipts        *prometheus.CounterVec
	RefusedCommits  *prometheus.CounterVec
	ReviewsAttached prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Committed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaperone_delivery_committed_messages_total",
			Help: "Messages committed by verdict",
		}, []string{"verdict"}),
		CommitLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "chaperone_delivery_commit_duration_seconds",
			Help:    "Time from lock acquisition to fan-out completion",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		FanoutOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaperone_delivery_fanout_total",
			Help: "Per-viewer fan-out results",
		}, []string{"outcome"}),
		Receipts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaperone_delivery_receipts_total",
			Help: "Receipts that advanced at least one message",
		}, []string{"status"}),
		RefusedCommits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaperone_delivery_refused_commits_total",
			Help: "Commits refused before persistence",
		}, []string{"reason"}),
		ReviewsAttached: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chaperone_delivery_reviews_attached_total",
			Help: "Flagged messages committed with a review request",
		}),
	}
}

func (m *Metrics) ObserveCommit(verdict string, seconds float64) {
	if m == nil {
		return
	}
	m.Committed.WithLabelValues(verdict).Inc()
	m.CommitLatency.Observe(seconds)
}

func (m *Metrics) Fanout(outcome string) {
	if m == nil {
		return
	}
	m.FanoutOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Receipt(status string) {
	if m == nil {
		return
	}
	m.Receipts.WithLabelValues(status).Inc()
}

func (m *Metrics) Refused(reason string) {
	if m == nil {
		return
	}
	m.RefusedCommits.WithLabelValues(reason).Inc()
}

func (m *Metrics) ReviewAttached() {
	if m == nil {
		return
	}
	m.ReviewsAttached.Inc()
}
