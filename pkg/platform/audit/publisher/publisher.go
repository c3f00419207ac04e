// Package publisher emits operational and security audit events without blocking the caller
// on storage failures.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	id "chaperone/pkg/domain"
	audit "chaperone/pkg/platform/audit"
)

var ErrBufferFull = errors.New("audit buffer full")

// Publisher writes synchronously by default. With WithAsyncBuffer it hands events to a
// background goroutine; Close drains what is buffered.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	buffer int
	inbox  chan audit.Event
	wg     sync.WaitGroup
	once   sync.Once
}

type Option func(*Publisher)

func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) { p.buffer = size }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer > 0 {
		p.inbox = make(chan audit.Event, p.buffer)
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Emit records an event. Store failures are logged, not returned; only a full async buffer
// or a cancelled context surfaces as an error.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if p.inbox == nil {
		p.persist(ctx, event)
		return nil
	}
	select {
	case p.inbox <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit buffer full, event dropped", "action", event.Action)
		}
		return ErrBufferFull
	}
}

func (p *Publisher) List(ctx context.Context, actor id.ParticipantID) ([]audit.Event, error) {
	return p.store.ListByActor(ctx, actor)
}

func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.inbox != nil {
			close(p.inbox)
			p.wg.Wait()
		}
	})
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for event := range p.inbox {
		p.persist(context.Background(), event)
	}
}

func (p *Publisher) persist(ctx context.Context, event audit.Event) {
	if err := p.store.Append(ctx, event); err != nil && p.logger != nil {
		p.logger.ErrorContext(ctx, "audit append failed",
			"action", event.Action,
			"actor_id", event.ActorID,
			"error", err,
		)
	}
}
