package models

import (
	"time"

	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
)

type SubjectType string

const (
	SubjectProfile       SubjectType = "profile"
	SubjectMatch         SubjectType = "match"
	SubjectConversation  SubjectType = "conversation"
	SubjectMeeting       SubjectType = "meeting"
	SubjectMessageReview SubjectType = "message-review"
)

func ParseSubjectType(s string) (SubjectType, error) {
	switch t := SubjectType(s); t {
	case SubjectProfile, SubjectMatch, SubjectConversation, SubjectMeeting, SubjectMessageReview:
		return t, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid subject type: "+s)
	}
}

type ProfilePayload struct {
	ParticipantID id.ParticipantID `json:"participant_id"`
	Summary       string           `json:"summary,omitempty"`
}

// MatchPayload asks to open a conversation between the requester and Counterpart.
type MatchPayload struct {
	Counterpart id.ParticipantID `json:"counterpart"`
}

// ConversationPayload asks to resume a paused conversation.
type ConversationPayload struct {
	ConversationID id.ConversationID `json:"conversation_id"`
}

type MeetingPayload struct {
	ConversationID id.ConversationID `json:"conversation_id"`
	ProposedAt     time.Time         `json:"proposed_at"`
	Place          string            `json:"place,omitempty"`
}

// ReviewPayload points at a flagged message that was already delivered.
type ReviewPayload struct {
	MessageID      id.MessageID      `json:"message_id"`
	ConversationID id.ConversationID `json:"conversation_id"`
	SenderID       id.ParticipantID  `json:"sender_id"`
	ReasonCode     string            `json:"reason_code,omitempty"`
}

// Subject is a tagged variant: Type selects which payload is set, and exactly that one is.
type Subject struct {
	Type         SubjectType          `json:"type"`
	Profile      *ProfilePayload      `json:"profile,omitempty"`
	Match        *MatchPayload        `json:"match,omitempty"`
	Conversation *ConversationPayload `json:"conversation,omitempty"`
	Meeting      *MeetingPayload      `json:"meeting,omitempty"`
	Review       *ReviewPayload       `json:"review,omitempty"`
}

// Key identifies the subject instance; at most one open request exists per key and requester.
func (s Subject) Key() string {
	switch s.Type {
	case SubjectProfile:
		if s.Profile != nil {
			return string(s.Type) + ":" + s.Profile.ParticipantID.String()
		}
	case SubjectMatch:
		if s.Match != nil {
			return string(s.Type) + ":" + s.Match.Counterpart.String()
		}
	case SubjectConversation:
		if s.Conversation != nil {
			return string(s.Type) + ":" + s.Conversation.ConversationID.String()
		}
	case SubjectMeeting:
		if s.Meeting != nil {
			return string(s.Type) + ":" + s.Meeting.ConversationID.String() + ":" + s.Meeting.ProposedAt.UTC().Format(time.RFC3339)
		}
	case SubjectMessageReview:
		if s.Review != nil {
			return string(s.Type) + ":" + s.Review.MessageID.String()
		}
	}
	return string(s.Type)
}

func (s Subject) payloadCount() int {
	n := 0
	for _, set := range []bool{s.Profile != nil, s.Match != nil, s.Conversation != nil, s.Meeting != nil, s.Review != nil} {
		if set {
			n++
		}
	}
	return n
}

func (s Subject) Validate() error {
	if s.payloadCount() != 1 {
		return dErrors.New(dErrors.CodeValidation, "subject must carry exactly one payload")
	}
	switch s.Type {
	case SubjectProfile:
		if s.Profile == nil || s.Profile.ParticipantID.IsNil() {
			return dErrors.New(dErrors.CodeValidation, "profile subject requires participant_id")
		}
	case SubjectMatch:
		if s.Match == nil || s.Match.Counterpart.IsNil() {
			return dErrors.New(dErrors.CodeValidation, "match subject requires counterpart")
		}
	case SubjectConversation:
		if s.Conversation == nil || s.Conversation.ConversationID.IsNil() {
			return dErrors.New(dErrors.CodeValidation, "conversation subject requires conversation_id")
		}
	case SubjectMeeting:
		if s.Meeting == nil || s.Meeting.ConversationID.IsNil() || s.Meeting.ProposedAt.IsZero() {
			return dErrors.New(dErrors.CodeValidation, "meeting subject requires conversation_id and proposed_at")
		}
	case SubjectMessageReview:
		if s.Review == nil || s.Review.MessageID.IsNil() || s.Review.ConversationID.IsNil() {
			return dErrors.New(dErrors.CodeValidation, "message-review subject requires message_id and conversation_id")
		}
	default:
		return dErrors.New(dErrors.CodeValidation, "unknown subject type")
	}
	return nil
}
