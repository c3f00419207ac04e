// Package models holds the approval request aggregate and its state machine.
package models

import (
	"slices"
	"time"

	"chaperone/internal/domain"
	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
)

type Status string

const (
	StatusPending          Status = "pending"
	StatusUnderReview      Status = "under-review"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
	StatusChangesRequested Status = "changes-requested"
)

// IsTerminal reports whether no further decision can change the request.
func (s Status) IsTerminal() bool { return s == StatusApproved || s == StatusRejected }

type Decision string

const (
	DecisionPending          Decision = "pending"
	DecisionApproved         Decision = "approved"
	DecisionRejected         Decision = "rejected"
	DecisionChangesRequested Decision = "changes-requested"
)

func ParseDecision(s string) (Decision, error) {
	switch d := Decision(s); d {
	case DecisionApproved, DecisionRejected, DecisionChangesRequested:
		return d, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "decision must be approved, rejected or changes-requested")
	}
}

// ApproverDecision is one approver's current position.
type ApproverDecision struct {
	Decision   Decision           `json:"decision"`
	Notes      string             `json:"notes,omitempty"`
	Conditions []domain.Condition `json:"conditions,omitempty"`
	DecidedAt  *time.Time         `json:"decided_at,omitempty"`
}

const MaxApprovers = 2

// ApprovalRequest is one instance of the shared approval state machine.
//
// Invariants:
//   - Approvers holds one or two distinct ids, fixed at creation
//   - Decisions has exactly one entry per approver
//   - Approved and rejected are terminal; no later write changes them
//   - Conditions are frozen when the request is approved
//   - Version increases by one on every persisted change
type ApprovalRequest struct {
	ID          id.ApprovalID                         `json:"id"`
	Subject     Subject                               `json:"subject"`
	RequesterID id.ParticipantID                      `json:"requester_id"`
	Approvers   []id.ParticipantID                    `json:"approvers"`
	Decisions   map[id.ParticipantID]ApproverDecision `json:"decisions"`
	Status      Status                                `json:"status"`
	Notes       string                                `json:"notes,omitempty"`
	Conditions  []domain.Condition                    `json:"conditions,omitempty"`
	Version     int64                                 `json:"version"`
	CreatedAt   time.Time                             `json:"created_at"`
	UpdatedAt   time.Time                             `json:"updated_at"`
	ResolvedAt  *time.Time                            `json:"resolved_at,omitempty"`
}

// NewRequest validates the subject and approver set and returns a pending request.
func NewRequest(subject Subject, requester id.ParticipantID, approvers []id.ParticipantID, notes string, now time.Time) (*ApprovalRequest, error) {
	if err := subject.Validate(); err != nil {
		return nil, err
	}
	if requester.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "requester is required")
	}
	if len(approvers) == 0 || len(approvers) > MaxApprovers {
		return nil, dErrors.New(dErrors.CodeValidation, "a request needs one or two approvers")
	}
	decisions := make(map[id.ParticipantID]ApproverDecision, len(approvers))
	for _, a := range approvers {
		if a.IsNil() {
			return nil, dErrors.New(dErrors.CodeValidation, "approver id is required")
		}
		if _, dup := decisions[a]; dup {
			return nil, dErrors.New(dErrors.CodeValidation, "approvers must be distinct")
		}
		decisions[a] = ApproverDecision{Decision: DecisionPending}
	}
	return &ApprovalRequest{
		ID:          id.NewApprovalID(),
		Subject:     subject,
		RequesterID: requester,
		Approvers:   slices.Clone(approvers),
		Decisions:   decisions,
		Status:      StatusPending,
		Notes:       notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (r *ApprovalRequest) IsApprover(p id.ParticipantID) bool {
	return slices.Contains(r.Approvers, p)
}

// Clone returns a deep copy so stores and callers never share decision maps.
func (r *ApprovalRequest) Clone() *ApprovalRequest {
	out := *r
	out.Approvers = slices.Clone(r.Approvers)
	out.Conditions = slices.Clone(r.Conditions)
	out.Decisions = make(map[id.ParticipantID]ApproverDecision, len(r.Decisions))
	for k, v := range r.Decisions {
		v.Conditions = slices.Clone(v.Conditions)
		out.Decisions[k] = v
	}
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		out.ResolvedAt = &t
	}
	return &out
}

// StartReview moves a pending request under review. Repeating it is a no-op.
func (r *ApprovalRequest) StartReview(actor id.ParticipantID, now time.Time) (bool, error) {
	if !r.IsApprover(actor) {
		return false, dErrors.New(dErrors.CodeForbidden, "only a required approver may review this request")
	}
	switch r.Status {
	case StatusPending:
		r.Status = StatusUnderReview
		r.UpdatedAt = now
		return true, nil
	case StatusUnderReview:
		return false, nil
	case StatusApproved, StatusRejected:
		return false, dErrors.New(dErrors.CodeAlreadyResolved, "request is already "+string(r.Status))
	default:
		return false, dErrors.New(dErrors.CodeInvalidState, "request awaits resubmission")
	}
}

// Decide records approver's decision and recomputes the aggregate status.
//
// Rejection dominates: a rejection from any approver before the request is approved
// resolves it as rejected, whatever the other approvers said or say later.
func (r *ApprovalRequest) Decide(approver id.ParticipantID, decision Decision, notes string, conditions []domain.Condition, now time.Time) error {
	if r.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeAlreadyResolved, "request is already "+string(r.Status))
	}
	if !r.IsApprover(approver) {
		return dErrors.New(dErrors.CodeForbidden, "only a required approver may decide this request")
	}
	switch decision {
	case DecisionApproved, DecisionRejected, DecisionChangesRequested:
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "decision must be approved, rejected or changes-requested")
	}
	if len(conditions) > 0 && decision != DecisionApproved {
		return dErrors.New(dErrors.CodeValidation, "conditions may only accompany an approval")
	}
	if r.Status == StatusChangesRequested && decision != DecisionRejected {
		return dErrors.New(dErrors.CodeInvalidState, "request awaits resubmission")
	}

	decidedAt := now
	r.Decisions[approver] = ApproverDecision{
		Decision:   decision,
		Notes:      notes,
		Conditions: slices.Clone(conditions),
		DecidedAt:  &decidedAt,
	}
	r.Status = Aggregate(r.Approvers, r.Decisions)
	r.UpdatedAt = now
	if r.Status.IsTerminal() {
		resolved := now
		r.ResolvedAt = &resolved
	}
	if r.Status == StatusApproved {
		r.Conditions = r.collectConditions()
	}
	return nil
}

// Resubmit returns a changes-requested request to review with every approver pending again.
func (r *ApprovalRequest) Resubmit(requester id.ParticipantID, notes string, now time.Time) error {
	if r.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeAlreadyResolved, "request is already "+string(r.Status))
	}
	if requester != r.RequesterID {
		return dErrors.New(dErrors.CodeForbidden, "only the requester may resubmit")
	}
	if r.Status != StatusChangesRequested {
		return dErrors.New(dErrors.CodeInvalidState, "only a request with changes requested can be resubmitted")
	}
	for _, a := range r.Approvers {
		r.Decisions[a] = ApproverDecision{Decision: DecisionPending}
	}
	if notes != "" {
		r.Notes = notes
	}
	r.Status = StatusUnderReview
	r.UpdatedAt = now
	return nil
}

func (r *ApprovalRequest) collectConditions() []domain.Condition {
	var out []domain.Condition
	seen := map[string]bool{}
	for _, a := range r.Approvers {
		for _, c := range r.Decisions[a].Conditions {
			if seen[c.Code] {
				continue
			}
			seen[c.Code] = true
			out = append(out, c)
		}
	}
	return out
}

// Aggregate folds per-approver decisions into the request status.
func Aggregate(approvers []id.ParticipantID, decisions map[id.ParticipantID]ApproverDecision) Status {
	approved, pending, changes := 0, 0, 0
	for _, a := range approvers {
		switch decisions[a].Decision {
		case DecisionRejected:
			return StatusRejected
		case DecisionApproved:
			approved++
		case DecisionChangesRequested:
			changes++
		default:
			pending++
		}
	}
	switch {
	case approved == len(approvers):
		return StatusApproved
	case pending == 0 && changes > 0:
		return StatusChangesRequested
	default:
		return StatusUnderReview
	}
}
