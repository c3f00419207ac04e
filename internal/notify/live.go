package notify

import (
	"context"
	"log/slog"

	"chaperone/internal/connection"
	id "chaperone/pkg/domain"
)

type deliverer interface {
	Deliver(participant id.ParticipantID, e connection.Event) (connection.Outcome, error)
}

// LivePublisher pushes each notification to the recipients' live channels (queued while they
// are offline) and then hands it to next.
type LivePublisher struct {
	out    deliverer
	next   Publisher
	logger *slog.Logger
}

func NewLivePublisher(out deliverer, next Publisher, logger *slog.Logger) *LivePublisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LivePublisher{out: out, next: next, logger: logger}
}

func (p *LivePublisher) Publish(ctx context.Context, n Notification) error {
	event := connection.Event{Type: connection.EventNotification, Payload: n, Timestamp: n.CreatedAt}
	for _, r := range n.Recipients {
		if _, err := p.out.Deliver(r, event); err != nil {
			p.logger.WarnContext(ctx, "notification not delivered to live channel",
				"kind", string(n.Kind),
				"participant_id", r.String(),
				"error", err,
			)
		}
	}
	if p.next == nil {
		return nil
	}
	return p.next.Publish(ctx, n)
}
