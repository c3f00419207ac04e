// Package identity validates the session provider's HS256 tokens. The core trusts the
// participant and role a valid token asserts and performs no other credential checks.
package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
	"chaperone/pkg/platform/middleware/auth"
)

// Claims are the session provider's token claims.
type Claims struct {
	ParticipantID string `json:"participant_id"`
	Role          string `json:"role"`
	jwt.RegisteredClaims
}

// Validator checks signature, issuer and expiry.
type Validator struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

type Option func(*Validator)

func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

func NewValidator(signingKey, issuer string, opts ...Option) *Validator {
	v := &Validator{signingKey: []byte(signingKey), issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate implements auth.TokenValidator.
func (v *Validator) Validate(token string) (*auth.Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return v.signingKey, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	pid, err := id.ParseParticipantID(claims.ParticipantID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token carries no valid participant")
	}
	role, err := id.ParseRole(claims.Role)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token carries an unknown role")
	}
	return &auth.Claims{ParticipantID: pid, Role: role}, nil
}

// Issuer signs tokens the way the session provider does. Tests and local runs use it; in
// production tokens come from the provider.
type Issuer struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

func NewIssuer(signingKey, issuer string) *Issuer {
	return &Issuer{signingKey: []byte(signingKey), issuer: issuer, now: time.Now}
}

func (i *Issuer) Issue(participant id.ParticipantID, role id.Role, ttl time.Duration) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ParticipantID: participant.String(),
		Role:          string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(i.signingKey)
}
