// Package notify carries notifications out of the core: to a Kafka topic for the delivery
// services, to recipients' live channels, or to the log.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "chaperone/pkg/domain"
)

type Kind string

const (
	KindNewConversation        Kind = "new-conversation"
	KindApprovalNeeded         Kind = "approval-needed"
	KindApprovalResolved       Kind = "approval-resolved"
	KindChangesRequested       Kind = "changes-requested"
	KindMessageRejected        Kind = "message-rejected"
	KindMeetingScheduled       Kind = "meeting-scheduled"
	KindConversationPaused     Kind = "conversation-paused"
	KindConversationResumed    Kind = "conversation-resumed"
	KindConversationTerminated Kind = "conversation-terminated"
	KindEmergencyStop          Kind = "emergency-stop"
	KindEmergencyRequested     Kind = "emergency-requested"
	KindEmergencyGranted       Kind = "emergency-granted"
	KindEmergencyRevoked       Kind = "emergency-revoked"
)

// Notification is addressed to one or more participants. Subject names the entity it is about
// (an approval, conversation or override id); Data carries kind-specific detail.
type Notification struct {
	ID         string             `json:"id"`
	Kind       Kind               `json:"kind"`
	Recipients []id.ParticipantID `json:"recipients"`
	Subject    string             `json:"subject"`
	Data       map[string]any     `json:"data,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

func New(kind Kind, subject string, recipients []id.ParticipantID, data map[string]any, now time.Time) Notification {
	return Notification{
		ID:         uuid.NewString(),
		Kind:       kind,
		Recipients: recipients,
		Subject:    subject,
		Data:       data,
		CreatedAt:  now,
	}
}

type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}
