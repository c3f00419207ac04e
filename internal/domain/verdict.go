package domain

import (
	"fmt"

	dErrors "chaperone/pkg/domain-errors"
)

// Outcome is the closed set of moderation results. The zero value is OutcomeBlocked so an
// unset verdict never permits a send.
type Outcome uint8

const (
	OutcomeBlocked Outcome = iota
	OutcomeFlagged
	OutcomeCompliant
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompliant:
		return "compliant"
	case OutcomeFlagged:
		return "flagged"
	default:
		return "blocked"
	}
}

func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "compliant":
		return OutcomeCompliant, nil
	case "flagged":
		return OutcomeFlagged, nil
	case "blocked":
		return OutcomeBlocked, nil
	default:
		return OutcomeBlocked, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown verdict %q", s))
	}
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(b []byte) error {
	v, err := ParseOutcome(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Verdict is a moderation classification with the oracle's reason code.
type Verdict struct {
	Outcome    Outcome `json:"verdict"`
	ReasonCode string  `json:"reason_code,omitempty"`
}

// SendEnabled reports whether the UI may offer the send action for this verdict.
func (v Verdict) SendEnabled() bool { return v.Outcome != OutcomeBlocked }

func (v Verdict) IsFlagged() bool { return v.Outcome == OutcomeFlagged }
