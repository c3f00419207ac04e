package httptransport

import (
	"strings"
	"time"

	approvalModels "chaperone/internal/approval/models"
	"chaperone/internal/domain"
	policyModels "chaperone/internal/policy/models"
	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
)

type sendMessageRequest struct {
	Text     string `json:"text"`
	Location string `json:"location,omitempty"`
}

func (r *sendMessageRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return dErrors.New(dErrors.CodeValidation, "text is required")
	}
	r.Location = strings.TrimSpace(r.Location)
	return nil
}

type draftRequest struct {
	Text string `json:"text"`
}

func (r *draftRequest) Validate() error { return nil }

type receiptRequest struct {
	UptoSequence int64                 `json:"upto_sequence"`
	Status       domain.DeliveryStatus `json:"status"`
}

func (r *receiptRequest) Validate() error {
	if r.UptoSequence <= 0 {
		return dErrors.New(dErrors.CodeValidation, "upto_sequence must be positive")
	}
	switch r.Status {
	case domain.DeliveryDelivered, domain.DeliveryRead:
		return nil
	default:
		return dErrors.New(dErrors.CodeValidation, "status must be delivered or read")
	}
}

type directiveRequest struct {
	Reason string `json:"reason,omitempty"`
}

type submitApprovalRequest struct {
	Subject   approvalModels.Subject `json:"subject"`
	Approvers []id.ParticipantID     `json:"approvers,omitempty"`
	Notes     string                 `json:"notes,omitempty"`
}

func (r *submitApprovalRequest) Validate() error {
	r.Notes = strings.TrimSpace(r.Notes)
	return r.Subject.Validate()
}

type decideRequest struct {
	Decision   approvalModels.Decision `json:"decision"`
	Notes      string                  `json:"notes,omitempty"`
	Conditions []domain.Condition      `json:"conditions,omitempty"`
}

func (r *decideRequest) Validate() error {
	switch r.Decision {
	case approvalModels.DecisionApproved, approvalModels.DecisionRejected, approvalModels.DecisionChangesRequested:
	default:
		return dErrors.New(dErrors.CodeValidation, "decision must be approved, rejected or changes-requested")
	}
	r.Notes = strings.TrimSpace(r.Notes)
	return nil
}

type resubmitRequest struct {
	Notes string `json:"notes,omitempty"`
}

func (r *resubmitRequest) Validate() error {
	r.Notes = strings.TrimSpace(r.Notes)
	return nil
}

type policyRequest struct {
	Timezone           string                      `json:"timezone,omitempty"`
	Windows            []policyModels.TimeWindow   `json:"windows,omitempty"`
	LocationCheck      bool                        `json:"location_check"`
	Locations          []string                    `json:"locations,omitempty"`
	DailyBudgetMinutes int                         `json:"daily_budget_minutes"`
	Guardians          []policyModels.GuardianLink `json:"guardians,omitempty"`
}

// Validate only checks shape; the policy model validates the content once the ward is known.
func (r *policyRequest) Validate() error {
	if r.DailyBudgetMinutes < 0 {
		return dErrors.New(dErrors.CodeValidation, "daily_budget_minutes cannot be negative")
	}
	return nil
}

func (r *policyRequest) toModel(ward id.ParticipantID) policyModels.PermissionPolicy {
	return policyModels.PermissionPolicy{
		WardID:             ward,
		Timezone:           strings.TrimSpace(r.Timezone),
		Windows:            r.Windows,
		LocationCheck:      r.LocationCheck,
		Locations:          r.Locations,
		DailyBudgetMinutes: r.DailyBudgetMinutes,
		Guardians:          r.Guardians,
	}
}

type overrideRequest struct {
	Justification string `json:"justification"`
}

func (r *overrideRequest) Validate() error {
	r.Justification = strings.TrimSpace(r.Justification)
	if r.Justification == "" {
		return dErrors.New(dErrors.CodeValidation, "justification is required")
	}
	return nil
}

type grantRequest struct {
	DurationMinutes int `json:"duration_minutes"`
}

func (r *grantRequest) Validate() error {
	if r.DurationMinutes <= 0 {
		return dErrors.New(dErrors.CodeValidation, "duration_minutes must be positive")
	}
	if r.duration() > policyModels.MaxOverrideDuration {
		return dErrors.New(dErrors.CodeValidation, "override cannot last longer than "+policyModels.MaxOverrideDuration.String())
	}
	return nil
}

func (r *grantRequest) duration() time.Duration {
	return time.Duration(r.DurationMinutes) * time.Minute
}
