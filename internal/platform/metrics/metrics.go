// Package metrics holds transport-level Prometheus metrics. Module metrics live with
// their modules.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RequestLatency *prometheus.HistogramVec
	Upgrades       *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chaperone_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		Upgrades: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaperone_ws_upgrades_total",
			Help: "WebSocket upgrade attempts by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) ObserveRequest(route, method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestLatency.WithLabelValues(route, method, status).Observe(seconds)
}

func (m *Metrics) IncUpgrade(result string) {
	if m == nil {
		return
	}
	m.Upgrades.WithLabelValues(result).Inc()
}
