// Package audit records who did what to whom for guardian directives, overrides and
// approval decisions.
package audit

import (
	"context"
	"time"

	id "chaperone/pkg/domain"
)

// EventCategory classifies events for retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers oversight decisions that must be provable later.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers safety escalations.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine activity.
	CategoryOperations EventCategory = "operations"
)

type Event struct {
	Category  EventCategory
	Timestamp time.Time
	ActorID   id.ParticipantID
	Subject   string
	Action    string
	Decision  string
	Reason    string
	RequestID string
}

type AuditEvent string

const (
	EventApprovalSubmitted AuditEvent = "approval_submitted"
	EventApprovalDecided   AuditEvent = "approval_decided"
	EventApprovalResolved  AuditEvent = "approval_resolved"

	EventConversationPaused     AuditEvent = "conversation_paused"
	EventConversationResumed    AuditEvent = "conversation_resumed"
	EventConversationTerminated AuditEvent = "conversation_terminated"
	EventEmergencyStop          AuditEvent = "emergency_stop"

	EventOverrideRequested AuditEvent = "override_requested"
	EventOverrideGranted   AuditEvent = "override_granted"
	EventOverrideRevoked   AuditEvent = "override_revoked"

	EventPolicyUpdated   AuditEvent = "policy_updated"
	EventMessageRejected AuditEvent = "message_rejected"
	EventSendRateLimited AuditEvent = "send_rate_limited"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventApprovalDecided:        CategoryCompliance,
	EventApprovalResolved:       CategoryCompliance,
	EventConversationTerminated: CategoryCompliance,
	EventPolicyUpdated:          CategoryCompliance,
	EventMessageRejected:        CategoryCompliance,

	EventEmergencyStop:     CategorySecurity,
	EventOverrideRequested: CategorySecurity,
	EventOverrideGranted:   CategorySecurity,
	EventOverrideRevoked:   CategorySecurity,
	EventSendRateLimited:   CategorySecurity,

	EventApprovalSubmitted:   CategoryOperations,
	EventConversationPaused:  CategoryOperations,
	EventConversationResumed: CategoryOperations,
}

// Category returns the category for an event; unknown events are operational.
func (e AuditEvent) Category() EventCategory {
	if c, ok := eventCategories[e]; ok {
		return c
	}
	return CategoryOperations
}

// Store persists events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByActor(ctx context.Context, actor id.ParticipantID) ([]Event, error)
}

// Emitter is what services depend on.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
