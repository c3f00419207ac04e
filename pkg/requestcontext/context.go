// Package requestcontext provides HTTP-independent accessors for request-scoped values.
//
// Middleware sets the values; services read them. Keeping net/http out of this package lets
// services and workers import it freely.
//
//	participant := requestcontext.ParticipantID(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject a fixed clock with WithTime.
package requestcontext

import (
	"context"
	"time"

	id "chaperone/pkg/domain"
)

type (
	participantIDKey struct{}
	roleKey          struct{}
	requestIDKey     struct{}
	requestTimeKey   struct{}
	deviceKey        struct{}
)

// ParticipantID returns the authenticated participant, or the zero ID.
func ParticipantID(ctx context.Context) id.ParticipantID {
	if v, ok := ctx.Value(participantIDKey{}).(id.ParticipantID); ok {
		return v
	}
	return id.ParticipantID{}
}

// Role returns the authenticated participant's role, or "".
func Role(ctx context.Context) id.Role {
	if v, ok := ctx.Value(roleKey{}).(id.Role); ok {
		return v
	}
	return ""
}

// WithParticipant injects the authenticated identity.
func WithParticipant(ctx context.Context, participant id.ParticipantID, role id.Role) context.Context {
	ctx = context.WithValue(ctx, participantIDKey{}, participant)
	return context.WithValue(ctx, roleKey{}, role)
}

func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Device returns a short description of the client device, e.g. "Firefox on Linux".
func Device(ctx context.Context) string {
	if v, ok := ctx.Value(deviceKey{}).(string); ok {
		return v
	}
	return ""
}

func WithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, deviceKey{}, device)
}

// Now returns the request-scoped time, falling back to time.Now outside a request.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime pins the request clock. Workers use it for batch-consistent time; tests for
// deterministic windows.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
