package connection

import (
	"encoding/json"
	"time"

	"chaperone/internal/domain"
	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
)

type EventType string

const (
	EventMessage            EventType = "message"
	EventTyping             EventType = "typing"
	EventReadReceipt        EventType = "read-receipt"
	EventConnectionStatus   EventType = "connection-status"
	EventNotification       EventType = "notification"
	EventConversationClosed EventType = "conversation-closed"
	EventReviewResolved     EventType = "review-resolved"
	EventError              EventType = "error"
)

// Ephemeral events are relayed to live channels only and never queued.
func (t EventType) Ephemeral() bool {
	return t == EventTyping || t == EventConnectionStatus
}

type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusReconnecting Status = "reconnecting"
)

// Event is one outbound frame. Expires, when set, is the liveness deadline of a typing signal.
type Event struct {
	Type      EventType `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Expires   time.Time `json:"-"`
}

func (e Event) expired(now time.Time) bool {
	return !e.Expires.IsZero() && !now.Before(e.Expires)
}

type MessagePayload struct {
	ConversationID id.ConversationID `json:"conversation_id"`
	SequenceNumber int64             `json:"sequence_number"`
	SenderID       id.ParticipantID  `json:"sender_id"`
	Content        string            `json:"content"`
	Verdict        domain.Outcome    `json:"verdict"`
	ReasonCode     string            `json:"reason_code,omitempty"`
	PendingReview  bool              `json:"pending_review,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

// NewMessageEvent renders a committed message for the live channel protocol.
func NewMessageEvent(m *domain.Message) Event {
	return Event{
		Type: EventMessage,
		Payload: MessagePayload{
			ConversationID: m.ConversationID,
			SequenceNumber: m.Sequence,
			SenderID:       m.SenderID,
			Content:        m.Content,
			Verdict:        m.Verdict.Outcome,
			ReasonCode:     m.Verdict.ReasonCode,
			PendingReview:  m.PendingReview(),
			Timestamp:      m.CreatedAt,
		},
		Timestamp: m.CreatedAt,
	}
}

// ReviewPayload clears the pending-review indicator of a message viewers already hold.
type ReviewPayload struct {
	ConversationID id.ConversationID `json:"conversation_id"`
	SequenceNumber int64             `json:"sequence_number"`
	MessageID      id.MessageID      `json:"message_id"`
	Annotation     domain.Annotation `json:"annotation,omitempty"`
	PendingReview  bool              `json:"pending_review"`
}

// NewReviewResolvedEvent tells viewers that m's review is closed.
func NewReviewResolvedEvent(m *domain.Message, now time.Time) Event {
	return Event{
		Type: EventReviewResolved,
		Payload: ReviewPayload{
			ConversationID: m.ConversationID,
			SequenceNumber: m.Sequence,
			MessageID:      m.ID,
			Annotation:     m.Annotation,
			PendingReview:  m.PendingReview(),
		},
		Timestamp: now,
	}
}

type TypingPayload struct {
	ConversationID id.ConversationID `json:"conversation_id"`
	ParticipantID  id.ParticipantID  `json:"participant_id"`
	Typing         bool              `json:"typing"`
}

type ReceiptPayload struct {
	ConversationID id.ConversationID     `json:"conversation_id"`
	ReaderID       id.ParticipantID      `json:"reader_id"`
	UptoSequence   int64                 `json:"upto_sequence"`
	Status         domain.DeliveryStatus `json:"status"`
}

type StatusPayload struct {
	ParticipantID id.ParticipantID `json:"participant_id"`
	Status        Status           `json:"status"`
	Reason        string           `json:"reason,omitempty"`
}

type ClosedPayload struct {
	ConversationID id.ConversationID `json:"conversation_id"`
	Reason         string            `json:"reason"`
}

type ErrorPayload struct {
	Code    dErrors.Code `json:"code"`
	Message string       `json:"message"`
	// Ref echoes the client's frame reference so it can match the failure to its draft.
	Ref string `json:"ref,omitempty"`
}

// NewErrorEvent renders err for the sender's channel.
func NewErrorEvent(err error, ref string, now time.Time) Event {
	code := dErrors.CodeOf(err)
	msg := dErrors.Description(err)
	if code == "" || code == dErrors.CodeInternal {
		code, msg = dErrors.CodeInternal, "internal error"
	}
	return Event{Type: EventError, Payload: ErrorPayload{Code: code, Message: msg, Ref: ref}, Timestamp: now}
}

// Inbound is a frame received from a client. Payload is decoded by the handler for Type.
type Inbound struct {
	Type    EventType       `json:"type"`
	Ref     string          `json:"ref,omitempty"`
	Payload json.RawMessage `json:"payload"`
}
