// Package sentinel holds store-level facts. Stores return these (optionally wrapped)
// and services translate them into domain errors; callers outside the service layer
// should never see them.
package sentinel

import "errors"

var (
	// ErrNotFound: the entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict: an optimistic write lost against a concurrent writer.
	ErrConflict = errors.New("conflict")
	// ErrAlreadyExists: a uniqueness constraint rejected the write.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidState: the entity is in the wrong state for the requested write.
	ErrInvalidState = errors.New("invalid state")
	// ErrExpired: a time-bounded grant is past its end.
	ErrExpired = errors.New("expired")
	// ErrUnavailable: a backing service could not be reached.
	ErrUnavailable = errors.New("unavailable")
)
