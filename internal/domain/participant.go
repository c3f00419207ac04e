// Package domain holds the entities every messaging module reads: participants,
// conversations, messages and moderation verdicts.
package domain

import (
	"slices"
	"time"

	id "chaperone/pkg/domain"
)

// Participant is a user or a guardian. Accounts are provisioned elsewhere; this core only
// reads them and the ward links of guardians.
type Participant struct {
	ID          id.ParticipantID   `json:"id"`
	Role        id.Role            `json:"role"`
	DisplayName string             `json:"display_name,omitempty"`
	Wards       []id.ParticipantID `json:"wards,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

func (p *Participant) IsGuardian() bool { return p.Role.IsGuardian() }

// Guards reports whether p is a guardian linked to ward.
func (p *Participant) Guards(ward id.ParticipantID) bool {
	return p.IsGuardian() && slices.Contains(p.Wards, ward)
}
