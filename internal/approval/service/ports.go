package service

import (
	"context"

	"chaperone/internal/domain"
	"chaperone/internal/notify"
	id "chaperone/pkg/domain"
	"chaperone/pkg/platform/audit"
)

// Notifier sends notifications to participants.
type Notifier interface {
	Publish(ctx context.Context, n notify.Notification) error
}

// AuditPublisher records decisions. Decide fails when it returns an error.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Annotator records the outcome of a guardian review on a committed message. AnnotationNone
// clears the pending indicator without marking the message.
type Annotator interface {
	ResolveReview(ctx context.Context, mid id.MessageID, annotation domain.Annotation, by id.ParticipantID) (*domain.Message, error)
}
