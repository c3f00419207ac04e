package models

import (
	"time"

	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
)

type ActionKind string

const (
	ActionSend ActionKind = "send"
)

// Action is what a participant is trying to do.
type Action struct {
	Kind           ActionKind
	ConversationID id.ConversationID
	// Location is the client-reported location fingerprint, if any.
	Location string
}

// Decision is the outcome of Authorize. Reason is empty when allowed.
type Decision struct {
	Allowed    bool
	Reason     dErrors.Code
	Message    string
	Override   *EmergencyOverride
	RetryAfter time.Duration
}

func Allow() Decision { return Decision{Allowed: true} }

func Deny(reason dErrors.Code, msg string) Decision {
	return Decision{Reason: reason, Message: msg}
}

// Overridden reports whether an emergency override produced this allow.
func (d Decision) Overridden() bool { return d.Allowed && d.Override != nil }

// Err converts a denial into the matching domain error.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return dErrors.New(d.Reason, d.Message)
}

// WindowResult is a sliding-window rate check.
type WindowResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}
