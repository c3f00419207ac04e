package delivery

import (
	"context"

	approvalmodels "chaperone/internal/approval/models"
	"chaperone/internal/domain"
)

// ReviewBuilder creates the review request that accompanies a flagged message. The request is
// persisted by the engine together with the message; ReviewCommitted runs afterwards.
type ReviewBuilder interface {
	NewMessageReview(ctx context.Context, msg *domain.Message) (*approvalmodels.ApprovalRequest, error)
	ReviewCommitted(ctx context.Context, req *approvalmodels.ApprovalRequest)
}
