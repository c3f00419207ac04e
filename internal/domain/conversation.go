package domain

import (
	"time"

	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
)

type ConversationStatus string

const (
	ConversationActive     ConversationStatus = "active"
	ConversationPaused     ConversationStatus = "paused"
	ConversationTerminated ConversationStatus = "terminated"
)

// CanTransitionTo encodes the directive lifecycle: active and paused toggle, both may
// terminate, and terminated is final.
func (s ConversationStatus) CanTransitionTo(next ConversationStatus) bool {
	switch s {
	case ConversationActive:
		return next == ConversationPaused || next == ConversationTerminated
	case ConversationPaused:
		return next == ConversationActive || next == ConversationTerminated
	default:
		return false
	}
}

// Err returns the send-path error for a non-active status, or nil.
func (s ConversationStatus) Err() error {
	switch s {
	case ConversationPaused:
		return dErrors.New(dErrors.CodeConversationPaused, "conversation is paused by a guardian")
	case ConversationTerminated:
		return dErrors.New(dErrors.CodeConversationTerminated, "conversation has been terminated")
	default:
		return nil
	}
}

// Condition is a structured constraint an approver attached when approving.
type Condition struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

// Conversation is a two-party thread created when a match approval completes.
//
// Invariants:
//   - Participants holds two distinct ids
//   - LastSequence only grows, by exactly one per committed message
//   - Terminated is final; conversations are never deleted
type Conversation struct {
	ID             id.ConversationID   `json:"id"`
	Participants   [2]id.ParticipantID `json:"participants"`
	Status         ConversationStatus  `json:"status"`
	LastSequence   int64               `json:"last_sequence"`
	Conditions     []Condition         `json:"conditions,omitempty"`
	MatchRequestID id.ApprovalID       `json:"match_request_id,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// NewConversation validates the pair and returns an active conversation.
func NewConversation(a, b id.ParticipantID, matchRequest id.ApprovalID, conditions []Condition, now time.Time) (*Conversation, error) {
	if a.IsNil() || b.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "conversation requires two participants")
	}
	if a == b {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "conversation participants must differ")
	}
	return &Conversation{
		ID:             id.NewConversationID(),
		Participants:   [2]id.ParticipantID{a, b},
		Status:         ConversationActive,
		Conditions:     append([]Condition(nil), conditions...),
		MatchRequestID: matchRequest,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (c *Conversation) Has(p id.ParticipantID) bool {
	return c.Participants[0] == p || c.Participants[1] == p
}

// Counterpart returns the other participant.
func (c *Conversation) Counterpart(p id.ParticipantID) (id.ParticipantID, bool) {
	switch p {
	case c.Participants[0]:
		return c.Participants[1], true
	case c.Participants[1]:
		return c.Participants[0], true
	default:
		return id.ParticipantID{}, false
	}
}

func (c *Conversation) IsTerminated() bool { return c.Status == ConversationTerminated }

// Transition moves the conversation to next, rejecting moves out of terminated.
func (c *Conversation) Transition(next ConversationStatus, now time.Time) error {
	if c.Status == next {
		return nil
	}
	if c.Status == ConversationTerminated {
		return dErrors.New(dErrors.CodeConversationTerminated, "conversation has been terminated")
	}
	if !c.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvalidState, "cannot move conversation from "+string(c.Status)+" to "+string(next))
	}
	c.Status = next
	c.UpdatedAt = now
	return nil
}
