package httptransport

import (
	"net/http"

	policyModels "chaperone/internal/policy/models"
	"chaperone/pkg/platform/httputil"
	"chaperone/pkg/requestcontext"
)

func (h *Handler) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ward, err := pathParticipant(r, "wardID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.policy.GetPolicy(ctx, requestcontext.ParticipantID(ctx), ward)
	if err != nil {
		h.fail(w, r, "policy read refused", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleSetPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ward, err := pathParticipant(r, "wardID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[policyRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	p, err := h.policy.SetPolicy(ctx, requestcontext.ParticipantID(ctx), req.toModel(ward))
	if err != nil {
		h.fail(w, r, "policy update refused", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

type overridesResponse struct {
	Overrides []*policyModels.EmergencyOverride `json:"overrides"`
}

func (h *Handler) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ward, err := pathParticipant(r, "wardID")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out, err := h.policy.ListOverrides(ctx, requestcontext.ParticipantID(ctx), ward)
	if err != nil {
		h.fail(w, r, "override list refused", err)
		return
	}
	if out == nil {
		out = []*policyModels.EmergencyOverride{}
	}
	httputil.WriteJSON(w, http.StatusOK, overridesResponse{Overrides: out})
}

func (h *Handler) handleRequestOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[overrideRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	o, err := h.policy.RequestOverride(ctx, requestcontext.ParticipantID(ctx), req.Justification)
	if err != nil {
		h.fail(w, r, "override request refused", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, o)
}

func (h *Handler) handleGetOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	oid, err := pathOverride(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	o, err := h.policy.GetOverride(ctx, requestcontext.ParticipantID(ctx), oid)
	if err != nil {
		h.fail(w, r, "override read refused", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) handleGrantOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	oid, err := pathOverride(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[grantRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	o, err := h.policy.GrantOverride(ctx, requestcontext.ParticipantID(ctx), oid, req.duration())
	if err != nil {
		h.fail(w, r, "override grant refused", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}

func (h *Handler) handleRevokeOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	oid, err := pathOverride(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	o, err := h.policy.RevokeOverride(ctx, requestcontext.ParticipantID(ctx), oid)
	if err != nil {
		h.fail(w, r, "override revoke refused", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, o)
}
