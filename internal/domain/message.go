package domain

import (
	"encoding/json"
	"time"

	id "chaperone/pkg/domain"
)

type DeliveryStatus string

const (
	DeliveryQueued    DeliveryStatus = "queued"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRead      DeliveryStatus = "read"
)

func (s DeliveryStatus) rank() int {
	switch s {
	case DeliveryQueued:
		return 1
	case DeliverySent:
		return 2
	case DeliveryDelivered:
		return 3
	case DeliveryRead:
		return 4
	default:
		return 0
	}
}

func (s DeliveryStatus) IsValid() bool { return s.rank() > 0 }

// Precedes reports whether moving from s to next is a forward transition.
func (s DeliveryStatus) Precedes(next DeliveryStatus) bool { return s.rank() < next.rank() }

// IsReceipt reports whether s can only be set by the recipient's acknowledgement.
func (s DeliveryStatus) IsReceipt() bool {
	return s == DeliveryDelivered || s == DeliveryRead
}

// CanAdvanceTo reports whether a message in status s may move to next. A receipt never
// applies to a message still queued: the recipient cannot have seen it.
func (s DeliveryStatus) CanAdvanceTo(next DeliveryStatus) bool {
	if !s.Precedes(next) {
		return false
	}
	return !(s == DeliveryQueued && next.IsReceipt())
}

// Annotation is the only post-commit mark a message can receive.
type Annotation string

const (
	AnnotationNone               Annotation = ""
	AnnotationRejectedByGuardian Annotation = "rejected-by-guardian"
)

// Message is a committed chat message. Blocked drafts never become messages.
//
// Invariants:
//   - Sequence is unique and strictly increasing within ConversationID
//   - Content and Verdict are immutable after commit
//   - DeliveryStatus moves forward only; it tracks the counterpart recipient
//   - Annotation is written at most once
//   - ReviewResolvedAt is set once, when the guardian review of a flagged message resolves
type Message struct {
	ID             id.MessageID      `json:"id"`
	ConversationID id.ConversationID `json:"conversation_id"`
	SenderID       id.ParticipantID  `json:"sender_id"`
	Sequence       int64             `json:"sequence_number"`
	Content        string            `json:"content"`
	Verdict        Verdict           `json:"verdict"`
	DeliveryStatus DeliveryStatus    `json:"delivery_status"`
	ReviewID       id.ApprovalID     `json:"review_id,omitempty"`
	Annotation     Annotation        `json:"annotation,omitempty"`
	AnnotatedBy    id.ParticipantID  `json:"annotated_by,omitempty"`
	AnnotatedAt    *time.Time        `json:"annotated_at,omitempty"`
	// ReviewResolvedAt is when a guardian approved or rejected the flagged message.
	ReviewResolvedAt *time.Time `json:"review_resolved_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// MarshalJSON adds the derived pending_review indicator.
func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	return json.Marshal(struct {
		plain
		PendingReview bool `json:"pending_review"`
	}{plain: plain(m), PendingReview: m.PendingReview()})
}

// AdvanceDelivery applies a delivery step. It reports whether anything changed; repeating or
// regressing a status, or acknowledging a queued message, is a no-op.
func (m *Message) AdvanceDelivery(next DeliveryStatus) bool {
	if !m.DeliveryStatus.CanAdvanceTo(next) {
		return false
	}
	m.DeliveryStatus = next
	return true
}

// PendingReview reports whether the message awaits a guardian's review decision.
func (m *Message) PendingReview() bool {
	return m.Verdict.IsFlagged() && !m.ReviewID.IsNil() && m.ReviewResolvedAt == nil && m.Annotation == AnnotationNone
}

// ResolveReview closes the message's review. A rejection also carries annotation.
func (m *Message) ResolveReview(annotation Annotation, by id.ParticipantID, at time.Time) {
	t := at
	m.ReviewResolvedAt = &t
	if annotation != AnnotationNone {
		m.Annotation = annotation
		m.AnnotatedBy = by
		m.AnnotatedAt = &t
	}
}
