package httptransport

import (
	"context"
	"net/http"

	"chaperone/internal/connection"
	"chaperone/pkg/requestcontext"
)

// handleWebSocket upgrades an authenticated request and serves the live channel until the
// socket closes. A newer connection from the same participant replaces this one.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	participant := requestcontext.ParticipantID(ctx)

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.metrics.IncUpgrade("failed")
		h.logger.WarnContext(ctx, "websocket upgrade failed",
			"request_id", requestcontext.RequestID(ctx),
			"participant_id", participant.String(),
			"error", err,
		)
		return
	}
	h.metrics.IncUpgrade("ok")
	h.logger.InfoContext(ctx, "live channel opened",
		"participant_id", participant.String(),
		"device", requestcontext.Device(ctx),
	)

	live := context.WithoutCancel(ctx)
	if err := connection.Serve(live, h.registry, participant, requestcontext.Role(ctx), ws, h.writeTimeout, h.chat.HandleInbound); err != nil {
		h.logger.WarnContext(ctx, "live channel refused",
			"participant_id", participant.String(),
			"error", err,
		)
	}
}
