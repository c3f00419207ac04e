// Package compliance provides a fail-closed audit publisher.
//
// Emit blocks until the store accepts the event. An error means the calling operation must
// fail: an oversight decision that cannot be recorded is not taken.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "chaperone/pkg/platform/audit"
)

type Metrics struct {
	Emitted         prometheus.Counter
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		Emitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chaperone_audit_compliance_emitted_total",
			Help: "Compliance audit events persisted",
		}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chaperone_audit_compliance_persist_failures_total",
			Help: "Compliance audit events that could not be persisted",
		}),
		PersistDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "chaperone_audit_compliance_persist_seconds",
			Help:    "Time to persist a compliance audit event",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Action == "" {
		return errors.New("compliance event requires Action")
	}
	if event.ActorID.IsNil() {
		return errors.New("compliance event requires ActorID")
	}
	start := time.Now()
	if event.Timestamp.IsZero() {
		event.Timestamp = start
	}
	event.Category = audit.CategoryCompliance

	if err := p.store.Append(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.PersistFailures.Inc()
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "compliance audit failed",
				"action", event.Action,
				"actor_id", event.ActorID,
				"error", err,
			)
		}
		return fmt.Errorf("compliance audit persistence failed: %w", err)
	}
	if p.metrics != nil {
		p.metrics.PersistDuration.Observe(time.Since(start).Seconds())
		p.metrics.Emitted.Inc()
	}
	return nil
}
