package notify

import (
	"context"
	"log/slog"
	"sync"
)

// LogPublisher records notifications in the log only.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, n Notification) error {
	p.logger.InfoContext(ctx, "notification",
		"id", n.ID,
		"kind", string(n.Kind),
		"subject", n.Subject,
		"recipients", len(n.Recipients),
	)
	return nil
}

// Recorder keeps published notifications in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
	Err  error
}

func (r *Recorder) Publish(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}

// OfKind returns the published notifications of kind, oldest first.
func (r *Recorder) OfKind(kind Kind) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}
