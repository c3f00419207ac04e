// Package moderation is the pre-send compliance gate. Every draft goes through Evaluate, which
// fails closed: an unreachable or slow oracle yields a blocked verdict and
// moderation_unavailable, never an unchecked send.
package moderation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"chaperone/internal/domain"
	"chaperone/internal/moderation/metrics"
	dErrors "chaperone/pkg/domain-errors"
	"chaperone/pkg/platform/circuit"
)

// Reason codes the gate assigns itself.
const (
	ReasonOracleUnavailable = "oracle_unavailable"
	ReasonEmptyDraft        = "empty_draft"
)

const defaultTimeout = 800 * time.Millisecond

var tracer = otel.Tracer("chaperone/moderation")

type Gate struct {
	oracle  Oracle
	timeout time.Duration
	breaker *circuit.Breaker
	cache   *Cache
	counter Counter
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Gate)

// WithTimeout bounds each oracle call; exceeding it counts as an oracle failure.
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(g *Gate) { g.breaker = b }
}

func WithCache(c *Cache) Option {
	return func(g *Gate) { g.cache = c }
}

func WithCounter(c Counter) Option {
	return func(g *Gate) { g.counter = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func New(oracle Oracle, opts ...Option) (*Gate, error) {
	if oracle == nil {
		return nil, errors.New("oracle is required")
	}
	g := &Gate{
		oracle:  oracle,
		timeout: defaultTimeout,
		counter: NewMemoryCounter(),
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func unavailable(cause error) (domain.Verdict, error) {
	return domain.Verdict{Outcome: domain.OutcomeBlocked, ReasonCode: ReasonOracleUnavailable},
		dErrors.Wrap(cause, dErrors.CodeModerationUnavailable, "moderation is unavailable, try again")
}

// Evaluate classifies a draft. A blocked verdict from the oracle returns a nil error; callers
// decide whether that means refusing a send or disabling a button. Oracle failure returns a
// blocked verdict together with a moderation_unavailable error.
func (g *Gate) Evaluate(ctx context.Context, draft string) (domain.Verdict, error) {
	ctx, span := tracer.Start(ctx, "moderation.Evaluate")
	defer span.End()

	if strings.TrimSpace(draft) == "" {
		return domain.Verdict{Outcome: domain.OutcomeBlocked, ReasonCode: ReasonEmptyDraft}, nil
	}
	if v, ok := g.cache.Get(draft); ok {
		g.metrics.CacheHit()
		span.SetAttributes(attribute.Bool("moderation.cached", true), attribute.String("moderation.verdict", v.Outcome.String()))
		return v, nil
	}

	if g.breaker != nil && !g.breaker.Allow() {
		g.metrics.OracleFailed("breaker_open")
		span.SetStatus(codes.Error, "breaker open")
		return unavailable(errors.New("oracle circuit open"))
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	start := g.now()
	v, err := g.oracle.Classify(callCtx, draft)
	g.metrics.ObserveOracle(g.now().Sub(start).Seconds())
	if err == nil && callCtx.Err() != nil {
		err = callCtx.Err()
	}
	if err != nil {
		cause := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			cause = "timeout"
		}
		g.metrics.OracleFailed(cause)
		g.recordFailure(ctx)
		g.logger.WarnContext(ctx, "compliance oracle failed, failing closed", "cause", cause, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, cause)
		return unavailable(err)
	}
	g.recordSuccess(ctx)

	g.metrics.Evaluated(v.Outcome.String())
	span.SetAttributes(attribute.String("moderation.verdict", v.Outcome.String()), attribute.String("moderation.reason", v.ReasonCode))
	g.cache.Put(draft, v)
	return v, nil
}

func (g *Gate) recordFailure(ctx context.Context) {
	if g.breaker == nil {
		return
	}
	if _, change := g.breaker.RecordFailure(); change.Opened {
		g.metrics.SetBreakerOpen(true)
		g.logger.WarnContext(ctx, "compliance oracle breaker opened", "breaker", g.breaker.Name())
	}
}

func (g *Gate) recordSuccess(ctx context.Context) {
	if g.breaker == nil {
		return
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.metrics.SetBreakerOpen(false)
		g.logger.InfoContext(ctx, "compliance oracle breaker closed", "breaker", g.breaker.Name())
	}
}

// RecordBlocked counts a refused send. Only the reason and the UTC day are kept. Counter
// failures are logged; they never change the refusal.
func (g *Gate) RecordBlocked(ctx context.Context, v domain.Verdict) {
	reason := v.ReasonCode
	if reason == "" {
		reason = "unspecified"
	}
	g.metrics.BlockedSend(reason)
	if err := g.counter.Increment(ctx, g.now().UTC().Format(time.DateOnly), reason); err != nil {
		g.logger.WarnContext(ctx, "failed to count blocked draft", "reason", reason, "error", err)
	}
}

// BlockedCounts returns the anonymized tally for a UTC day (YYYY-MM-DD).
func (g *Gate) BlockedCounts(ctx context.Context, day string) (map[string]int64, error) {
	return g.counter.Counts(ctx, day)
}
