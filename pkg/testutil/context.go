package testutil

import (
	"net/http"

	id "chaperone/pkg/domain"
	"chaperone/pkg/requestcontext"
)

// WithParticipant simulates the auth middleware for handler tests.
func WithParticipant(req *http.Request, participant id.ParticipantID, role id.Role) *http.Request {
	return req.WithContext(requestcontext.WithParticipant(req.Context(), participant, role))
}
