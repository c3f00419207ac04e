package httptransport

import (
	"context"
	"net/http"
	"strconv"

	"chaperone/internal/chat"
	"chaperone/internal/domain"
	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
	"chaperone/pkg/platform/httputil"
	"chaperone/pkg/requestcontext"
)

func (h *Handler) handleEvaluateDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[draftRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.chat.EvaluateDraft(ctx, req.Text))
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cid, err := pathConversation(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[sendMessageRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.chat.Send(ctx, chat.SendRequest{
		ConversationID: cid,
		SenderID:       requestcontext.ParticipantID(ctx),
		Text:           req.Text,
		Location:       req.Location,
	})
	if err != nil {
		h.fail(w, r, "send refused", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

type historyResponse struct {
	Messages []*domain.Message `json:"messages"`
	// NextAfter is the cursor for the following page; zero when the page was empty.
	NextAfter int64 `json:"next_after,omitempty"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cid, err := pathConversation(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	after, err := queryInt(r, "after")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	msgs, err := h.history.History(ctx, requestcontext.ParticipantID(ctx), cid, after, int(limit))
	if err != nil {
		h.fail(w, r, "history read refused", err)
		return
	}
	resp := historyResponse{Messages: msgs}
	if resp.Messages == nil {
		resp.Messages = []*domain.Message{}
	}
	if n := len(msgs); n > 0 {
		resp.NextAfter = msgs[n-1].Sequence
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type receiptResponse struct {
	Advanced int `json:"advanced"`
}

func (h *Handler) handleReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cid, err := pathConversation(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[receiptRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.chat.Acknowledge(ctx, requestcontext.ParticipantID(ctx), cid, req.UptoSequence, req.Status)
	if err != nil {
		h.fail(w, r, "receipt refused", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, receiptResponse{Advanced: len(res.Advanced)})
}

func queryInt(r *http.Request, key string) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, key+" must be a non-negative integer")
	}
	return n, nil
}

// directive adapts a guardian directive to a handler. The body is optional.
func (h *Handler) directive(apply func(ctx context.Context, guardian id.ParticipantID, cid id.ConversationID, reason string) (*domain.Conversation, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		cid, err := pathConversation(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		var body directiveRequest
		if r.ContentLength != 0 {
			req, err := httputil.Decode[directiveRequest](r)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			body = *req
		}
		conv, err := apply(ctx, requestcontext.ParticipantID(ctx), cid, body.Reason)
		if err != nil {
			h.fail(w, r, "directive refused", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, conv)
	}
}
