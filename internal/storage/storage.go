// Package storage holds the persistence implementations shared by the messaging services.
// Each service declares the subset of methods it needs; memory and postgres satisfy all of them.
package storage

import (
	"fmt"

	"chaperone/internal/domain"
	"chaperone/pkg/platform/sentinel"
)

var (
	ErrConversationPaused     = fmt.Errorf("conversation paused: %w", sentinel.ErrInvalidState)
	ErrConversationTerminated = fmt.Errorf("conversation terminated: %w", sentinel.ErrInvalidState)
)

// AppendOptions tunes AppendMessage.
type AppendOptions struct {
	// AllowPaused admits a paused conversation; set only under an active emergency override.
	AllowPaused bool
}

// StatusError maps a non-active conversation status to its storage error.
func StatusError(status domain.ConversationStatus) error {
	switch status {
	case domain.ConversationPaused:
		return ErrConversationPaused
	case domain.ConversationTerminated:
		return ErrConversationTerminated
	default:
		return nil
	}
}

// Admits reports whether a message may be appended to a conversation in status.
func (o AppendOptions) Admits(status domain.ConversationStatus) bool {
	return status == domain.ConversationActive || (status == domain.ConversationPaused && o.AllowPaused)
}

// LowerStatuses returns the delivery statuses a message may advance from to reach target.
func LowerStatuses(target domain.DeliveryStatus) []domain.DeliveryStatus {
	var out []domain.DeliveryStatus
	for _, s := range []domain.DeliveryStatus{domain.DeliveryQueued, domain.DeliverySent, domain.DeliveryDelivered} {
		if s.CanAdvanceTo(target) {
			out = append(out, s)
		}
	}
	return out
}
