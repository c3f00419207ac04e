package domain

import dErrors "chaperone/pkg/domain-errors"

// Role distinguishes the two kinds of participant.
// Invariant: the value must be one of RoleUser or RoleGuardian.
//
// Usage: construct via ParseRole at trust boundaries; direct casting bypasses validation.
type Role string

const (
	RoleUser     Role = "user"
	RoleGuardian Role = "guardian"
)

// ParseRole constructs a Role from external input.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleGuardian:
		return r, nil
	case "":
		return "", dErrors.New(dErrors.CodeInvalidInput, "role is required")
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role: "+s)
	}
}

func (r Role) String() string { return string(r) }

// IsGuardian reports whether the role carries oversight rights.
func (r Role) IsGuardian() bool { return r == RoleGuardian }
