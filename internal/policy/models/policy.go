// Package models holds guardian permission policies, emergency overrides and the
// authorization decision type.
package models

import (
	"slices"
	"strings"
	"time"

	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
)

type GuardianRank string

const (
	RankPrimary   GuardianRank = "primary"
	RankSecondary GuardianRank = "secondary"
)

// GuardianLink records a guardian's standing in a ward's policy.
type GuardianLink struct {
	GuardianID id.ParticipantID `json:"guardian_id"`
	Rank       GuardianRank     `json:"rank"`
	Visible    bool             `json:"visible"`
}

// TimeWindow allows sending on Days between StartMinute (inclusive) and EndMinute
// (exclusive), in minutes after local midnight. End before start wraps past midnight and
// the window then belongs to the day it started on.
type TimeWindow struct {
	Days        []time.Weekday `json:"days"`
	StartMinute int            `json:"start_minute"`
	EndMinute   int            `json:"end_minute"`
}

func (w TimeWindow) Validate() error {
	if len(w.Days) == 0 {
		return dErrors.New(dErrors.CodeValidation, "time window needs at least one day")
	}
	for _, d := range w.Days {
		if d < time.Sunday || d > time.Saturday {
			return dErrors.New(dErrors.CodeValidation, "invalid weekday in time window")
		}
	}
	if w.StartMinute < 0 || w.StartMinute >= 24*60 || w.EndMinute < 0 || w.EndMinute > 24*60 {
		return dErrors.New(dErrors.CodeValidation, "time window bounds must fall within a day")
	}
	if w.StartMinute == w.EndMinute {
		return dErrors.New(dErrors.CodeValidation, "time window must not be empty")
	}
	return nil
}

// Contains reports whether local falls inside the window.
func (w TimeWindow) Contains(local time.Time) bool {
	minute := local.Hour()*60 + local.Minute()
	if w.StartMinute < w.EndMinute {
		return slices.Contains(w.Days, local.Weekday()) && minute >= w.StartMinute && minute < w.EndMinute
	}
	if minute >= w.StartMinute {
		return slices.Contains(w.Days, local.Weekday())
	}
	if minute < w.EndMinute {
		return slices.Contains(w.Days, local.AddDate(0, 0, -1).Weekday())
	}
	return false
}

// PermissionPolicy is a ward's standing restrictions, written only by linked guardians.
// Zero values mean unrestricted: no windows, no location check, no daily budget.
type PermissionPolicy struct {
	WardID             id.ParticipantID `json:"ward_id"`
	Timezone           string           `json:"timezone"`
	Windows            []TimeWindow     `json:"windows,omitempty"`
	LocationCheck      bool             `json:"location_check"`
	Locations          []string         `json:"locations,omitempty"`
	DailyBudgetMinutes int              `json:"daily_budget_minutes"`
	Guardians          []GuardianLink   `json:"guardians,omitempty"`
	UpdatedBy          id.ParticipantID `json:"updated_by"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Normalize trims and de-duplicates location fingerprints and orders guardians primary first.
func (p *PermissionPolicy) Normalize() {
	seen := make(map[string]struct{}, len(p.Locations))
	locs := make([]string, 0, len(p.Locations))
	for _, l := range p.Locations {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		locs = append(locs, l)
	}
	p.Locations = locs
	slices.SortStableFunc(p.Guardians, func(a, b GuardianLink) int {
		return rankOrder(a.Rank) - rankOrder(b.Rank)
	})
}

func rankOrder(r GuardianRank) int {
	if r == RankPrimary {
		return 0
	}
	return 1
}

func (p *PermissionPolicy) Validate() error {
	if p.WardID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "ward_id is required")
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return dErrors.New(dErrors.CodeValidation, "unknown timezone: "+p.Timezone)
	}
	for _, w := range p.Windows {
		if err := w.Validate(); err != nil {
			return err
		}
	}
	if p.LocationCheck && len(p.Locations) == 0 {
		return dErrors.New(dErrors.CodeValidation, "location check requires at least one allowed location")
	}
	if p.DailyBudgetMinutes < 0 || p.DailyBudgetMinutes > 24*60 {
		return dErrors.New(dErrors.CodeValidation, "daily budget must be between 0 and 1440 minutes")
	}
	primaries := 0
	seen := map[id.ParticipantID]bool{}
	for _, g := range p.Guardians {
		if g.GuardianID.IsNil() || seen[g.GuardianID] {
			return dErrors.New(dErrors.CodeValidation, "guardian links must be distinct and non-empty")
		}
		seen[g.GuardianID] = true
		switch g.Rank {
		case RankPrimary:
			primaries++
		case RankSecondary:
		default:
			return dErrors.New(dErrors.CodeValidation, "guardian rank must be primary or secondary")
		}
	}
	if primaries > 1 {
		return dErrors.New(dErrors.CodeValidation, "a ward has at most one primary guardian")
	}
	return nil
}

// Location returns the policy's time zone, defaulting to UTC.
func (p *PermissionPolicy) Location() *time.Location {
	if p == nil || p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WithinWindows reports whether now is an allowed sending time.
func (p *PermissionPolicy) WithinWindows(now time.Time) bool {
	if p == nil || len(p.Windows) == 0 {
		return true
	}
	local := now.In(p.Location())
	for _, w := range p.Windows {
		if w.Contains(local) {
			return true
		}
	}
	return false
}

// LocationAllowed reports whether fingerprint is allow-listed, or the check is off.
func (p *PermissionPolicy) LocationAllowed(fingerprint string) bool {
	if p == nil || !p.LocationCheck {
		return true
	}
	return slices.Contains(p.Locations, strings.ToLower(strings.TrimSpace(fingerprint)))
}

// Link returns the guardian's entry, if the policy lists one.
func (p *PermissionPolicy) Link(guardian id.ParticipantID) (GuardianLink, bool) {
	if p == nil {
		return GuardianLink{}, false
	}
	for _, g := range p.Guardians {
		if g.GuardianID == guardian {
			return g, true
		}
	}
	return GuardianLink{}, false
}

// Visible reports whether guardian sees the ward's conversations. Linked guardians the
// policy does not mention see them.
func (p *PermissionPolicy) Visible(guardian id.ParticipantID) bool {
	link, ok := p.Link(guardian)
	return !ok || link.Visible
}

// OrderGuardians sorts linked guardians primary first, then secondary, then those the
// policy does not rank, keeping input order within each group.
func (p *PermissionPolicy) OrderGuardians(linked []id.ParticipantID) []id.ParticipantID {
	out := slices.Clone(linked)
	order := func(g id.ParticipantID) int {
		link, ok := p.Link(g)
		if !ok {
			return 2
		}
		return rankOrder(link.Rank)
	}
	slices.SortStableFunc(out, func(a, b id.ParticipantID) int { return order(a) - order(b) })
	return out
}

// LocalDay returns the policy-local calendar day for now, as YYYY-MM-DD.
func (p *PermissionPolicy) LocalDay(now time.Time) string {
	return now.In(p.Location()).Format(time.DateOnly)
}
