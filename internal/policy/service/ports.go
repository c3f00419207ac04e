package service

import (
	"context"
	"time"

	"chaperone/internal/connection"
	"chaperone/internal/domain"
	"chaperone/internal/notify"
	"chaperone/internal/policy/models"
	id "chaperone/pkg/domain"
	"chaperone/pkg/platform/audit"
)

// Limiter counts sends in a sliding window and holds cooldowns. Peek reports whether one
// more event fits without recording it; Allow records it.
type Limiter interface {
	Peek(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (models.WindowResult, error)
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (models.WindowResult, error)
	SetCooldown(ctx context.Context, key string, until, now time.Time) error
	Cooldown(ctx context.Context, key string, now time.Time) (time.Duration, error)
}

// UsageStore tracks active messaging minutes per ward and local day.
type UsageStore interface {
	Record(ctx context.Context, ward id.ParticipantID, day string, minute int) (int, error)
	Used(ctx context.Context, ward id.ParticipantID, day string, minute int) (int, bool, error)
}

type Notifier interface {
	Publish(ctx context.Context, n notify.Notification) error
}

// AuditPublisher records directives and overrides. SetPolicy fails when it returns an error.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// ConversationCloser tells live channels a conversation has ended.
type ConversationCloser interface {
	CloseConversation(ctx context.Context, participants []id.ParticipantID, cid id.ConversationID, reason string) []connection.Delivery
}

// ViewerResolver lists everyone who sees a conversation: both participants and their visible
// guardians.
type ViewerResolver interface {
	ConversationViewers(ctx context.Context, cid id.ConversationID) (*domain.Conversation, []id.ParticipantID, error)
}
