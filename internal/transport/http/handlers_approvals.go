package httptransport

import (
	"net/http"

	approvalModels "chaperone/internal/approval/models"
	approvalService "chaperone/internal/approval/service"
	"chaperone/pkg/platform/httputil"
	"chaperone/pkg/requestcontext"
)

func (h *Handler) handleSubmitApproval(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[submitApprovalRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	out, err := h.approvals.Submit(ctx, approvalService.SubmitRequest{
		RequesterID: requestcontext.ParticipantID(ctx),
		Subject:     req.Subject,
		Approvers:   req.Approvers,
		Notes:       req.Notes,
	})
	if err != nil {
		h.fail(w, r, "approval submission refused", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, out)
}

type pendingResponse struct {
	Requests []*approvalModels.ApprovalRequest `json:"requests"`
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqs, err := h.approvals.ListPending(ctx, requestcontext.ParticipantID(ctx))
	if err != nil {
		h.fail(w, r, "failed to list pending approvals", err)
		return
	}
	if reqs == nil {
		reqs = []*approvalModels.ApprovalRequest{}
	}
	httputil.WriteJSON(w, http.StatusOK, pendingResponse{Requests: reqs})
}

func (h *Handler) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rid, err := pathApproval(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out, err := h.approvals.Get(ctx, requestcontext.ParticipantID(ctx), rid)
	if err != nil {
		h.fail(w, r, "approval read refused", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleStartReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rid, err := pathApproval(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out, err := h.approvals.StartReview(ctx, requestcontext.ParticipantID(ctx), rid)
	if err != nil {
		h.fail(w, r, "review start refused", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rid, err := pathApproval(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[decideRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	out, err := h.approvals.Decide(ctx, approvalService.DecideRequest{
		RequestID:  rid,
		ApproverID: requestcontext.ParticipantID(ctx),
		Decision:   req.Decision,
		Notes:      req.Notes,
		Conditions: req.Conditions,
	})
	if err != nil {
		h.fail(w, r, "decision refused", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleResubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rid, err := pathApproval(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[resubmitRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	out, err := h.approvals.Resubmit(ctx, requestcontext.ParticipantID(ctx), rid, req.Notes)
	if err != nil {
		h.fail(w, r, "resubmission refused", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleReapply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rid, err := pathApproval(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out, err := h.approvals.Reapply(ctx, requestcontext.ParticipantID(ctx), rid)
	if err != nil {
		h.fail(w, r, "reapply failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
