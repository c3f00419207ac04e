package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Evaluations    *prometheus.CounterVec
	OracleLatency  prometheus.Histogram
	OracleFailures *prometheus.CounterVec
	CacheHits      prometheus.Counter
	Blocked        *prometheus.CounterVec
	BreakerOpen    prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		Evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaperone_moderation_evaluations_total",
			Help: "Draft evaluations by verdict",
		}, []string{"verdict"}),
		OracleLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "chaperone_moderation_oracle_duration_seconds",
			Help:    "Compliance oracle latency",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 0.8, 1, 2},
		}),
		OracleFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaperone_moderation_oracle_failures_total",
			Help: "Oracle calls that failed closed, by cause",
		}, []string{"cause"}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chaperone_moderation_cache_hits_total",
			Help: "Draft evaluations answered from the verdict cache",
		}),
		Blocked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaperone_moderation_blocked_total",
			Help: "Blocked send attempts by reason code",
		}, []string{"reason"}),
		BreakerOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chaperone_moderation_breaker_open",
			Help: "1 while the oracle circuit breaker is open",
		}),
	}
}

func (m *Metrics) Evaluated(verdict string) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(verdict).Inc()
}

func (m *Metrics) ObserveOracle(seconds float64) {
	if m == nil {
		return
	}
	m.OracleLatency.Observe(seconds)
}

func (m *Metrics) OracleFailed(cause string) {
	if m == nil {
		return
	}
	m.OracleFailures.WithLabelValues(cause).Inc()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

func (m *Metrics) BlockedSend(reason string) {
	if m == nil {
		return
	}
	m.Blocked.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}
