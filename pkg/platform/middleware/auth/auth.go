// Package auth authenticates requests with a bearer token issued by the session provider.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
	"chaperone/pkg/platform/httputil"
	"chaperone/pkg/requestcontext"
)

// Claims is the identity a validated token asserts.
type Claims struct {
	ParticipantID id.ParticipantID
	Role          id.Role
}

type TokenValidator interface {
	Validate(token string) (*Claims, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the asserted identity
// in the context. Browsers cannot set headers on WebSocket upgrades, so the token may also
// arrive as the access_token query parameter.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := bearerToken(r)
			if token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}
			claims, err := validator.Validate(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}
			ctx = requestcontext.WithParticipant(ctx, claims.ParticipantID, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return r.URL.Query().Get("access_token")
}
