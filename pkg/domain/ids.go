// Package domain holds typed identifiers and small value objects shared across modules.
//
// Identifiers are distinct named types over uuid.UUID so that a ConversationID can never be
// passed where a ParticipantID is expected. Construct them from external input with the
// Parse* functions, which reject empty, malformed and nil UUIDs.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "chaperone/pkg/domain-errors"
)

type (
	// ParticipantID identifies a user or a guardian.
	ParticipantID uuid.UUID
	// ConversationID identifies a two-party conversation.
	ConversationID uuid.UUID
	// MessageID identifies a committed message.
	MessageID uuid.UUID
	// ApprovalID identifies an approval request.
	ApprovalID uuid.UUID
	// OverrideID identifies an emergency override.
	OverrideID uuid.UUID
)

func parseUUID(kind, s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	return u, nil
}

func ParseParticipantID(s string) (ParticipantID, error) {
	u, err := parseUUID("participant id", s)
	return ParticipantID(u), err
}

func ParseConversationID(s string) (ConversationID, error) {
	u, err := parseUUID("conversation id", s)
	return ConversationID(u), err
}

func ParseMessageID(s string) (MessageID, error) {
	u, err := parseUUID("message id", s)
	return MessageID(u), err
}

func ParseApprovalID(s string) (ApprovalID, error) {
	u, err := parseUUID("approval id", s)
	return ApprovalID(u), err
}

func ParseOverrideID(s string) (OverrideID, error) {
	u, err := parseUUID("override id", s)
	return OverrideID(u), err
}

func NewParticipantID() ParticipantID   { return ParticipantID(uuid.New()) }
func NewConversationID() ConversationID { return ConversationID(uuid.New()) }
func NewMessageID() MessageID           { return MessageID(uuid.New()) }
func NewApprovalID() ApprovalID         { return ApprovalID(uuid.New()) }
func NewOverrideID() OverrideID         { return OverrideID(uuid.New()) }

func (id ParticipantID) String() string  { return uuid.UUID(id).String() }
func (id ConversationID) String() string { return uuid.UUID(id).String() }
func (id MessageID) String() string      { return uuid.UUID(id).String() }
func (id ApprovalID) String() string     { return uuid.UUID(id).String() }
func (id OverrideID) String() string     { return uuid.UUID(id).String() }

func (id ParticipantID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ConversationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id MessageID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ApprovalID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id OverrideID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets typed IDs appear as plain UUID strings in JSON, including as map keys.
func (id ParticipantID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ConversationID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}
func (id MessageID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id ApprovalID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id OverrideID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *ParticipantID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *ConversationID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *MessageID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *ApprovalID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id *OverrideID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
