package identity

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
)

const (
	key    = "test-signing-key"
	issuer = "session-provider"
)

func TestValidateRoundTrip(t *testing.T) {
	pid := id.NewParticipantID()
	token, err := NewIssuer(key, issuer).Issue(pid, id.RoleGuardian, time.Hour)
	require.NoError(t, err)

	claims, err := NewValidator(key, issuer).Validate(token)
	require.NoError(t, err)
	assert.Equal(t, pid, claims.ParticipantID)
	assert.Equal(t, id.RoleGuardian, claims.Role)
}

func TestValidateRejects(t *testing.T) {
	pid := id.NewParticipantID()
	valid, err := NewIssuer(key, issuer).Issue(pid, id.RoleUser, time.Hour)
	require.NoError(t, err)

	expired, err := NewIssuer(key, issuer).Issue(pid, id.RoleUser, time.Hour)
	require.NoError(t, err)
	later := NewValidator(key, issuer, WithClock(func() time.Time { return time.Now().Add(2 * time.Hour) }))
	_, err = later.Validate(expired)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Equal(t, "token has expired", dErrors.Description(err))

	cases := map[string]string{
		"wrong key":    mustSign(t, "other-key", Claims{ParticipantID: pid.String(), Role: "user", RegisteredClaims: registered(issuer)}),
		"wrong issuer": mustSign(t, key, Claims{ParticipantID: pid.String(), Role: "user", RegisteredClaims: registered("someone-else")}),
		"bad subject":  mustSign(t, key, Claims{ParticipantID: "not-a-uuid", Role: "user", RegisteredClaims: registered(issuer)}),
		"bad role":     mustSign(t, key, Claims{ParticipantID: pid.String(), Role: "admin", RegisteredClaims: registered(issuer)}),
		"no expiry":    mustSign(t, key, Claims{ParticipantID: pid.String(), Role: "user", RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer}}),
		"garbage":      "not.a.token",
		"tampered":     valid + "x",
	}
	v := NewValidator(key, issuer)
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Validate(token)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
		})
	}
}

func TestValidateRejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		ParticipantID:    id.NewParticipantID().String(),
		Role:             "user",
		RegisteredClaims: registered(issuer),
	})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = NewValidator(key, issuer).Validate(signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func registered(iss string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{Issuer: iss, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
}

func mustSign(t *testing.T, signingKey string, c Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(signingKey))
	require.NoError(t, err)
	return s
}
