package models

import (
	"time"

	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
)

type OverrideStatus string

const (
	OverrideRequested OverrideStatus = "requested"
	OverrideGranted   OverrideStatus = "granted"
	OverrideExpired   OverrideStatus = "expired"
	OverrideRevoked   OverrideStatus = "revoked"
)

// MaxOverrideDuration caps a single grant.
const MaxOverrideDuration = 24 * time.Hour

// EmergencyOverride is a time-bounded bypass of a ward's standing restrictions.
// Expiry is computed from the wall clock on read; nothing needs to run for it to happen.
type EmergencyOverride struct {
	ID            id.OverrideID    `json:"id"`
	WardID        id.ParticipantID `json:"ward_id"`
	Justification string           `json:"justification"`
	Status        OverrideStatus   `json:"status"`
	GrantedBy     id.ParticipantID `json:"granted_by,omitempty"`
	Duration      time.Duration    `json:"duration"`
	RequestedAt   time.Time        `json:"requested_at"`
	GrantedAt     *time.Time       `json:"granted_at,omitempty"`
	RevokedAt     *time.Time       `json:"revoked_at,omitempty"`
}

func NewOverrideRequest(ward id.ParticipantID, justification string, now time.Time) (*EmergencyOverride, error) {
	if ward.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "ward is required")
	}
	if justification == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "justification is required")
	}
	return &EmergencyOverride{
		ID:            id.NewOverrideID(),
		WardID:        ward,
		Justification: justification,
		Status:        OverrideRequested,
		RequestedAt:   now,
	}, nil
}

// StatusAt resolves lazy expiry.
func (o *EmergencyOverride) StatusAt(now time.Time) OverrideStatus {
	if o.Status == OverrideGranted && o.GrantedAt != nil && !now.Before(o.GrantedAt.Add(o.Duration)) {
		return OverrideExpired
	}
	return o.Status
}

func (o *EmergencyOverride) ActiveAt(now time.Time) bool {
	return o.StatusAt(now) == OverrideGranted
}

// ExpiresAt is zero until granted.
func (o *EmergencyOverride) ExpiresAt() time.Time {
	if o.GrantedAt == nil {
		return time.Time{}
	}
	return o.GrantedAt.Add(o.Duration)
}

func (o *EmergencyOverride) Grant(guardian id.ParticipantID, duration time.Duration, now time.Time) error {
	if o.StatusAt(now) != OverrideRequested {
		return dErrors.New(dErrors.CodeInvalidState, "override is "+string(o.StatusAt(now)))
	}
	if duration <= 0 || duration > MaxOverrideDuration {
		return dErrors.New(dErrors.CodeValidation, "override duration must be positive and at most 24h")
	}
	granted := now
	o.Status = OverrideGranted
	o.GrantedBy = guardian
	o.Duration = duration
	o.GrantedAt = &granted
	return nil
}

func (o *EmergencyOverride) Revoke(now time.Time) error {
	switch o.StatusAt(now) {
	case OverrideRequested, OverrideGranted:
		revoked := now
		o.Status = OverrideRevoked
		o.RevokedAt = &revoked
		return nil
	default:
		return dErrors.New(dErrors.CodeInvalidState, "override is "+string(o.StatusAt(now)))
	}
}
