// Package domainerrors carries the coded error type every service returns.
//
// Codes are stable, snake_case wire identifiers. Transport layers map them to status
// codes; services only ever reason about the code, never the message text.
package domainerrors

import "errors"

type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_error"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvalidState       Code = "invalid_state"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"
	CodeInvariantViolation Code = "invariant_violation"

	// Send path.
	CodeModerationBlocked      Code = "moderation_blocked"
	CodeModerationUnavailable  Code = "moderation_unavailable"
	CodeRateLimited            Code = "rate_limited"
	CodeOutsideAllowedHours    Code = "outside_allowed_hours"
	CodeLocationNotApproved    Code = "location_not_approved"
	CodeDailyLimitExceeded     Code = "daily_limit_exceeded"
	CodeConversationPaused     Code = "conversation_paused"
	CodeConversationTerminated Code = "conversation_terminated"
	CodeQueueOverflow          Code = "queue_overflow"
	CodeConnectionTimeout      Code = "connection_timeout"

	// Approvals.
	CodeAlreadyResolved Code = "already_resolved"
)

// Error is a domain error with a stable code.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return string(e.Code) + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code to an underlying cause. A nil cause yields a plain coded error.
func Wrap(err error, code Code, msg string) error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the outermost domain code in the chain, or "" when none is present.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// HasCode reports whether any domain error in the chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool { return HasCode(err, code) }

// Description returns the message to expose to callers.
func Description(err error) string {
	var de *Error
	if errors.As(err, &de) {
		if de.Message != "" {
			return de.Message
		}
		return string(de.Code)
	}
	return ""
}
