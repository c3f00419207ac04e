package service

import (
	"context"
	"errors"
	"time"

	"chaperone/internal/approval/models"
	"chaperone/internal/domain"
	"chaperone/internal/notify"
	"chaperone/internal/storage"
	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
	"chaperone/pkg/platform/audit"
)

func (s *Service) applyEffects(ctx context.Context, req *models.ApprovalRequest) error {
	h, ok := s.handlers[req.Subject.Type]
	if !ok {
		return nil
	}
	if err := h(ctx, req); err != nil {
		s.metrics.IncEffectError(string(req.Subject.Type))
		return err
	}
	return nil
}

// openConversation starts the conversation of an approved match. The store keeps one
// conversation per match request, so running it twice is harmless.
func (s *Service) openConversation(ctx context.Context, req *models.ApprovalRequest) error {
	if req.Status != models.StatusApproved {
		return s.announceResolution(ctx, req)
	}
	conv, err := domain.NewConversation(req.RequesterID, req.Subject.Match.Counterpart, req.ID, req.Conditions, s.now())
	if err != nil {
		return err
	}
	conv, created, err := s.store.CreateConversation(ctx, conv)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create conversation")
	}
	if created {
		s.logger.InfoContext(ctx, "conversation opened",
			"conversation_id", conv.ID.String(),
			"approval_id", req.ID.String(),
			"conditions", len(conv.Conditions),
		)
	}
	return s.publishErr(ctx, notify.New(notify.KindNewConversation, conv.ID.String(),
		[]id.ParticipantID{conv.Participants[0], conv.Participants[1]},
		map[string]any{
			"conversation_id": conv.ID.String(),
			"approval_id":     req.ID.String(),
			"conditions":      req.Conditions,
		}, s.now()))
}

// resumeConversation reactivates a paused conversation. A conversation terminated in the
// meantime stays terminated.
func (s *Service) resumeConversation(ctx context.Context, req *models.ApprovalRequest) error {
	if req.Status != models.StatusApproved {
		return s.announceResolution(ctx, req)
	}
	cid := req.Subject.Conversation.ConversationID
	conv, err := s.store.SetConversationStatus(ctx, cid, domain.ConversationActive, s.now())
	if err != nil {
		if errors.Is(err, storage.ErrConversationTerminated) {
			s.logger.InfoContext(ctx, "approved resume of a terminated conversation ignored", "conversation_id", cid.String())
			return s.announceResolution(ctx, req)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resume conversation")
	}
	return s.publishErr(ctx, notify.New(notify.KindConversationResumed, cid.String(),
		[]id.ParticipantID{conv.Participants[0], conv.Participants[1]},
		map[string]any{"conversation_id": cid.String(), "approval_id": req.ID.String()}, s.now()))
}

func (s *Service) scheduleMeeting(ctx context.Context, req *models.ApprovalRequest) error {
	if req.Status != models.StatusApproved {
		return s.announceResolution(ctx, req)
	}
	m := req.Subject.Meeting
	conv, err := s.store.GetConversation(ctx, m.ConversationID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load conversation")
	}
	return s.publishErr(ctx, notify.New(notify.KindMeetingScheduled, req.ID.String(),
		[]id.ParticipantID{conv.Participants[0], conv.Participants[1]},
		map[string]any{
			"conversation_id": conv.ID.String(),
			"proposed_at":     m.ProposedAt.UTC().Format(time.RFC3339),
			"place":           m.Place,
			"conditions":      req.Conditions,
		}, s.now()))
}

func (s *Service) announceResolution(ctx context.Context, req *models.ApprovalRequest) error {
	return s.publishErr(ctx, notifyRequester(notify.KindApprovalResolved, req, s.now()))
}

// applyReview records the outcome of a message review on the message. An approval clears the
// pending indicator; a rejection also annotates the message and tells both participants. The
// message itself stays as it was delivered.
func (s *Service) applyReview(ctx context.Context, req *models.ApprovalRequest) error {
	var (
		annotation domain.Annotation
		decision   models.Decision
	)
	switch req.Status {
	case models.StatusApproved:
		annotation, decision = domain.AnnotationNone, models.DecisionApproved
	case models.StatusRejected:
		annotation, decision = domain.AnnotationRejectedByGuardian, models.DecisionRejected
	default:
		return nil
	}
	if s.annotator == nil {
		return errors.New("no message annotator configured")
	}
	review := req.Subject.Review
	by := decidedBy(req, decision)
	_, err := s.annotator.ResolveReview(ctx, review.MessageID, annotation, by)
	if err != nil && !dErrors.HasCode(err, dErrors.CodeConflict) {
		return err
	}
	if req.Status == models.StatusApproved {
		return nil
	}
	if err == nil {
		s.emitLogged(ctx, audit.EventMessageRejected, by, req, string(models.DecisionRejected), review.ReasonCode)
	}
	conv, err := s.store.GetConversation(ctx, review.ConversationID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load conversation")
	}
	return s.publishErr(ctx, notify.New(notify.KindMessageRejected, review.MessageID.String(),
		[]id.ParticipantID{conv.Participants[0], conv.Participants[1]},
		map[string]any{
			"conversation_id": review.ConversationID.String(),
			"message_id":      review.MessageID.String(),
			"annotation":      string(domain.AnnotationRejectedByGuardian),
		}, s.now()))
}

// decidedBy returns the approver whose decision settled the request: the latest one to decide
// d, or the first approver when none did.
func decidedBy(req *models.ApprovalRequest, d models.Decision) id.ParticipantID {
	by := req.Approvers[0]
	var at time.Time
	for _, a := range req.Approvers {
		dec := req.Decisions[a]
		if dec.Decision != d || dec.DecidedAt == nil {
			continue
		}
		if at.IsZero() || dec.DecidedAt.After(at) {
			by, at = a, *dec.DecidedAt
		}
	}
	return by
}

func notifyApprovers(req *models.ApprovalRequest, now time.Time) notify.Notification {
	return notify.New(notify.KindApprovalNeeded, req.ID.String(), req.Approvers, map[string]any{
		"approval_id":  req.ID.String(),
		"subject_type": string(req.Subject.Type),
		"requester_id": req.RequesterID.String(),
	}, now)
}

func notifyRequester(kind notify.Kind, req *models.ApprovalRequest, now time.Time) notify.Notification {
	return notify.New(kind, req.ID.String(), []id.ParticipantID{req.RequesterID}, map[string]any{
		"approval_id":  req.ID.String(),
		"subject_type": string(req.Subject.Type),
		"status":       string(req.Status),
		"notes":        latestNotes(req),
		"conditions":   req.Conditions,
	}, now)
}

func latestNotes(req *models.ApprovalRequest) string {
	var (
		notes  string
		latest time.Time
	)
	for _, d := range req.Decisions {
		if d.DecidedAt != nil && d.Notes != "" && d.DecidedAt.After(latest) {
			notes, latest = d.Notes, *d.DecidedAt
		}
	}
	return notes
}

func (s *Service) publishErr(ctx context.Context, n notify.Notification) error {
	if err := s.notifier.Publish(ctx, n); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to publish "+string(n.Kind))
	}
	return nil
}

// publish sends n and logs a failure; the caller's write already happened.
func (s *Service) publish(ctx context.Context, n notify.Notification) {
	if err := s.notifier.Publish(ctx, n); err != nil {
		s.logger.WarnContext(ctx, "failed to publish notification", "kind", string(n.Kind), "subject", n.Subject, "error", err)
	}
}
