package chat

import (
	"context"

	"chaperone/internal/connection"
	"chaperone/internal/delivery"
	"chaperone/internal/domain"
	"chaperone/internal/policy/models"
	id "chaperone/pkg/domain"
)

// Authorizer checks a send before moderation and charges it once committed.
type Authorizer interface {
	Authorize(ctx context.Context, participant id.ParticipantID, action models.Action) (models.Decision, error)
	Consume(ctx context.Context, participant id.ParticipantID, d models.Decision) error
}

type Moderator interface {
	Evaluate(ctx context.Context, draft string) (domain.Verdict, error)
	RecordBlocked(ctx context.Context, v domain.Verdict)
}

// Committer persists and delivers messages and receipts.
type Committer interface {
	Commit(ctx context.Context, req delivery.CommitRequest) (*delivery.CommitResult, error)
	Acknowledge(ctx context.Context, viewer id.ParticipantID, cid id.ConversationID, uptoSeq int64, status domain.DeliveryStatus) (*delivery.AckResult, error)
}

type Conversations interface {
	GetConversation(ctx context.Context, cid id.ConversationID) (*domain.Conversation, error)
	ListConversations(ctx context.Context, participant id.ParticipantID) ([]*domain.Conversation, error)
}

// Relay delivers ephemeral events to live channels.
type Relay interface {
	Deliver(participant id.ParticipantID, e connection.Event) (connection.Outcome, error)
}
