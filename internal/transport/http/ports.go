package httptransport

import (
	"context"
	"time"

	approvalModels "chaperone/internal/approval/models"
	approvalService "chaperone/internal/approval/service"
	"chaperone/internal/chat"
	"chaperone/internal/connection"
	"chaperone/internal/delivery"
	"chaperone/internal/domain"
	policyModels "chaperone/internal/policy/models"
	id "chaperone/pkg/domain"
)

// ChatService is the send pipeline and the inbound side of live channels.
type ChatService interface {
	Send(ctx context.Context, req chat.SendRequest) (*chat.SendResult, error)
	EvaluateDraft(ctx context.Context, text string) chat.DraftFeedback
	Acknowledge(ctx context.Context, viewer id.ParticipantID, cid id.ConversationID, uptoSeq int64, status domain.DeliveryStatus) (*delivery.AckResult, error)
	HandleInbound(ctx context.Context, ch *connection.Channel, in connection.Inbound)
}

type HistoryReader interface {
	History(ctx context.Context, viewer id.ParticipantID, cid id.ConversationID, afterSeq int64, limit int) ([]*domain.Message, error)
}

type ApprovalService interface {
	Submit(ctx context.Context, in approvalService.SubmitRequest) (*approvalModels.ApprovalRequest, error)
	ListPending(ctx context.Context, approver id.ParticipantID) ([]*approvalModels.ApprovalRequest, error)
	Get(ctx context.Context, viewer id.ParticipantID, rid id.ApprovalID) (*approvalModels.ApprovalRequest, error)
	StartReview(ctx context.Context, actor id.ParticipantID, rid id.ApprovalID) (*approvalModels.ApprovalRequest, error)
	Decide(ctx context.Context, in approvalService.DecideRequest) (*approvalModels.ApprovalRequest, error)
	Resubmit(ctx context.Context, requester id.ParticipantID, rid id.ApprovalID, notes string) (*approvalModels.ApprovalRequest, error)
	Reapply(ctx context.Context, actor id.ParticipantID, rid id.ApprovalID) (*approvalModels.ApprovalRequest, error)
}

type PolicyService interface {
	GetPolicy(ctx context.Context, viewer, ward id.ParticipantID) (*policyModels.PermissionPolicy, error)
	SetPolicy(ctx context.Context, guardian id.ParticipantID, p policyModels.PermissionPolicy) (*policyModels.PermissionPolicy, error)
	Pause(ctx context.Context, guardian id.ParticipantID, cid id.ConversationID, reason string) (*domain.Conversation, error)
	Resume(ctx context.Context, guardian id.ParticipantID, cid id.ConversationID, reason string) (*domain.Conversation, error)
	Terminate(ctx context.Context, guardian id.ParticipantID, cid id.ConversationID, reason string) (*domain.Conversation, error)
	EmergencyStop(ctx context.Context, guardian id.ParticipantID, cid id.ConversationID, reason string) (*domain.Conversation, error)
	RequestOverride(ctx context.Context, ward id.ParticipantID, justification string) (*policyModels.EmergencyOverride, error)
	GrantOverride(ctx context.Context, guardian id.ParticipantID, oid id.OverrideID, duration time.Duration) (*policyModels.EmergencyOverride, error)
	RevokeOverride(ctx context.Context, actor id.ParticipantID, oid id.OverrideID) (*policyModels.EmergencyOverride, error)
	GetOverride(ctx context.Context, viewer id.ParticipantID, oid id.OverrideID) (*policyModels.EmergencyOverride, error)
	ListOverrides(ctx context.Context, viewer, ward id.ParticipantID) ([]*policyModels.EmergencyOverride, error)
}
