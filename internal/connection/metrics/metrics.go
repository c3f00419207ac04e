package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	LiveChannels  prometheus.Gauge
	Disconnects   *prometheus.CounterVec
	QueuedEvents  prometheus.Counter
	Overflows     prometheus.Counter
	FlushedEvents prometheus.Counter
	DroppedTyping prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		LiveChannels: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "chaperone_connection_live_channels",
			Help: "Live participant channels",
		}),
		Disconnects: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chaperone_connection_disconnects_total",
			Help: "Channel shutdowns by reason",
		}, []string{"reason"}),
		QueuedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chaperone_connection_queued_events_total",
			Help: "Events queued for offline participants",
		}),
		Overflows: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chaperone_connection_queue_overflows_total",
			Help: "Events refused because the offline queue was full",
		}),
		FlushedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chaperone_connection_flushed_events_total",
			Help: "Queued events flushed on reconnect",
		}),
		DroppedTyping: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chaperone_connection_expired_typing_total",
			Help: "Typing signals dropped past their liveness window",
		}),
	}
}

func (m *Metrics) ChannelOpened() {
	if m == nil {
		return
	}
	m.LiveChannels.Inc()
}

func (m *Metrics) ChannelClosed(reason string) {
	if m == nil {
		return
	}
	m.LiveChannels.Dec()
	m.Disconnects.WithLabelValues(reason).Inc()
}

func (m *Metrics) Queued() {
	if m == nil {
		return
	}
	m.QueuedEvents.Inc()
}

func (m *Metrics) Overflowed() {
	if m == nil {
		return
	}
	m.Overflows.Inc()
}

func (m *Metrics) Flushed(n int) {
	if m == nil {
		return
	}
	m.FlushedEvents.Add(float64(n))
}

func (m *Metrics) TypingExpired() {
	if m == nil {
		return
	}
	m.DroppedTyping.Inc()
}
