// Package service runs the approval workflow shared by profiles, matches, conversations,
// meetings and flagged-message reviews, and applies the side effects of each resolution.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"chaperone/internal/approval/metrics"
	"chaperone/internal/approval/models"
	"chaperone/internal/domain"
	"chaperone/internal/notify"
	policymodels "chaperone/internal/policy/models"
	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
	"chaperone/pkg/platform/audit"
	"chaperone/pkg/platform/sentinel"
)

const defaultCASRetries = 5

var tracer = otel.Tracer("chaperone/approval")

type Store interface {
	CreateRequest(ctx context.Context, req *models.ApprovalRequest) error
	GetRequest(ctx context.Context, rid id.ApprovalID) (*models.ApprovalRequest, error)
	UpdateRequest(ctx context.Context, req *models.ApprovalRequest, expected int64) error
	ListPendingFor(ctx context.Context, approver id.ParticipantID) ([]*models.ApprovalRequest, error)
	FindOpenBySubject(ctx context.Context, requester id.ParticipantID, key string) (*models.ApprovalRequest, error)

	GetParticipant(ctx context.Context, pid id.ParticipantID) (*domain.Participant, error)
	GuardiansOf(ctx context.Context, ward id.ParticipantID) ([]id.ParticipantID, error)
	GetPolicy(ctx context.Context, ward id.ParticipantID) (*policymodels.PermissionPolicy, error)

	GetConversation(ctx context.Context, cid id.ConversationID) (*domain.Conversation, error)
	CreateConversation(ctx context.Context, c *domain.Conversation) (*domain.Conversation, bool, error)
	SetConversationStatus(ctx context.Context, cid id.ConversationID, status domain.ConversationStatus, now time.Time) (*domain.Conversation, error)
}

// Handler applies the side effects of a resolved request. Handlers must be idempotent:
// Reapply runs them again after a partial failure.
type Handler func(ctx context.Context, req *models.ApprovalRequest) error

type Service struct {
	store      Store
	notifier   Notifier
	audit      AuditPublisher
	annotator  Annotator
	handlers   map[models.SubjectType]Handler
	reviewers  []id.ParticipantID
	casRetries int
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

type Option func(*Service)

// WithReviewers sets the platform reviewers used for flagged messages from senders without
// guardians.
func WithReviewers(reviewers []id.ParticipantID) Option {
	return func(s *Service) { s.reviewers = reviewers }
}

func WithCASRetries(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.casRetries = n
		}
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.audit = p }
}

func WithAnnotator(a Annotator) Option {
	return func(s *Service) { s.annotator = a }
}

// WithHandler replaces the resolution handler for one subject type.
func WithHandler(t models.SubjectType, h Handler) Option {
	return func(s *Service) { s.handlers[t] = h }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Store, notifier Notifier, opts ...Option) (*Service, error) {
	if store == nil || notifier == nil {
		return nil, errors.New("store and notifier are required")
	}
	s := &Service{
		store:      store,
		notifier:   notifier,
		casRetries: defaultCASRetries,
		logger:     slog.New(slog.DiscardHandler),
		now:        time.Now,
	}
	s.handlers = map[models.SubjectType]Handler{
		models.SubjectMatch:         s.openConversation,
		models.SubjectConversation:  s.resumeConversation,
		models.SubjectMeeting:       s.scheduleMeeting,
		models.SubjectProfile:       s.announceResolution,
		models.SubjectMessageReview: s.applyReview,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type SubmitRequest struct {
	RequesterID id.ParticipantID
	Subject     models.Subject
	// Approvers overrides the requester's guardians when set.
	Approvers []id.ParticipantID
	Notes     string
}

// Submit opens a request. A second submission for the same subject while the first is still
// open returns the open request.
func (s *Service) Submit(ctx context.Context, in SubmitRequest) (*models.ApprovalRequest, error) {
	ctx, span := tracer.Start(ctx, "approval.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("approval.subject", string(in.Subject.Type)))

	if err := in.Subject.Validate(); err != nil {
		return nil, err
	}
	if in.Subject.Type == models.SubjectMessageReview {
		return nil, dErrors.New(dErrors.CodeValidation, "message reviews are opened by the delivery path")
	}
	if err := s.checkSubject(ctx, in.RequesterID, in.Subject); err != nil {
		return nil, err
	}

	existing, err := s.store.FindOpenBySubject(ctx, in.RequesterID, in.Subject.Key())
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up open requests")
	}

	approvers, err := s.resolveApprovers(ctx, in.RequesterID, in.Approvers)
	if err != nil {
		return nil, err
	}
	req, err := models.NewRequest(in.Subject, in.RequesterID, approvers, in.Notes, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateRequest(ctx, req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create approval request")
	}
	s.submitted(ctx, req)
	return req, nil
}

func (s *Service) submitted(ctx context.Context, req *models.ApprovalRequest) {
	s.metrics.IncSubmitted(string(req.Subject.Type))
	s.emitLogged(ctx, audit.EventApprovalSubmitted, req.RequesterID, req, "", req.Notes)
	s.publish(ctx, notifyApprovers(req, s.now()))
}

// checkSubject verifies the subject refers to things the requester may ask about.
func (s *Service) checkSubject(ctx context.Context, requester id.ParticipantID, subject models.Subject) error {
	if _, err := s.participant(ctx, requester); err != nil {
		return err
	}
	switch subject.Type {
	case models.SubjectProfile:
		if subject.Profile.ParticipantID != requester {
			return dErrors.New(dErrors.CodeForbidden, "a profile approval must be requested by its owner")
		}
	case models.SubjectMatch:
		if subject.Match.Counterpart == requester {
			return dErrors.New(dErrors.CodeValidation, "cannot match with yourself")
		}
		if _, err := s.participant(ctx, subject.Match.Counterpart); err != nil {
			return err
		}
	case models.SubjectConversation:
		conv, err := s.memberConversation(ctx, requester, subject.Conversation.ConversationID)
		if err != nil {
			return err
		}
		if conv.Status != domain.ConversationPaused {
			return dErrors.New(dErrors.CodeInvalidState, "only a paused conversation can be resumed")
		}
	case models.SubjectMeeting:
		conv, err := s.memberConversation(ctx, requester, subject.Meeting.ConversationID)
		if err != nil {
			return err
		}
		if conv.IsTerminated() {
			return conv.Status.Err()
		}
	}
	return nil
}

func (s *Service) participant(ctx context.Context, pid id.ParticipantID) (*domain.Participant, error) {
	p, err := s.store.GetParticipant(ctx, pid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "participant not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load participant")
	}
	return p, nil
}

func (s *Service) memberConversation(ctx context.Context, pid id.ParticipantID, cid id.ConversationID) (*domain.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, cid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "conversation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load conversation")
	}
	if !conv.Has(pid) {
		return nil, dErrors.New(dErrors.CodeForbidden, "not a participant of this conversation")
	}
	return conv, nil
}

// resolveApprovers returns the explicit approvers when given, each of whom must be a guardian
// of the requester, and otherwise the requester's guardians ordered by the ward's policy.
func (s *Service) resolveApprovers(ctx context.Context, requester id.ParticipantID, explicit []id.ParticipantID) ([]id.ParticipantID, error) {
	if len(explicit) > 0 {
		if len(explicit) > models.MaxApprovers {
			return nil, dErrors.New(dErrors.CodeValidation, "a request needs one or two approvers")
		}
		for _, a := range explicit {
			p, err := s.participant(ctx, a)
			if err != nil {
				return nil, err
			}
			if !p.Guards(requester) {
				return nil, dErrors.New(dErrors.CodeValidation, "approvers must be guardians of the requester")
			}
		}
		return explicit, nil
	}
	guardians, err := s.guardians(ctx, requester)
	if err != nil {
		return nil, err
	}
	if len(guardians) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidState, "no guardian is linked to approve this request")
	}
	return guardians, nil
}

// guardians lists up to two guardians of ward, primary first.
func (s *Service) guardians(ctx context.Context, ward id.ParticipantID) ([]id.ParticipantID, error) {
	linked, err := s.store.GuardiansOf(ctx, ward)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve guardians")
	}
	if len(linked) == 0 {
		return nil, nil
	}
	policy, err := s.store.GetPolicy(ctx, ward)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load permission policy")
	}
	ordered := policy.OrderGuardians(linked)
	if len(ordered) > models.MaxApprovers {
		ordered = ordered[:models.MaxApprovers]
	}
	return ordered, nil
}

// NewMessageReview builds the review request for a flagged message. The sender's guardians
// review it, or the platform reviewers when the sender has none. The request is not stored.
func (s *Service) NewMessageReview(ctx context.Context, msg *domain.Message) (*models.ApprovalRequest, error) {
	approvers, err := s.guardians(ctx, msg.SenderID)
	if err != nil {
		return nil, err
	}
	if len(approvers) == 0 {
		approvers = s.reviewers
		if len(approvers) > models.MaxApprovers {
			approvers = approvers[:models.MaxApprovers]
		}
	}
	if len(approvers) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidState, "no reviewer is available for a flagged message")
	}
	subject := models.Subject{
		Type: models.SubjectMessageReview,
		Review: &models.ReviewPayload{
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			ReasonCode:     msg.Verdict.ReasonCode,
		},
	}
	return models.NewRequest(subject, msg.SenderID, approvers, "", msg.CreatedAt)
}

// ReviewCommitted announces a review request that was stored with its message.
func (s *Service) ReviewCommitted(ctx context.Context, req *models.ApprovalRequest) {
	s.submitted(ctx, req)
}

// StartReview moves a pending request under review.
func (s *Service) StartReview(ctx context.Context, actor id.ParticipantID, rid id.ApprovalID) (*models.ApprovalRequest, error) {
	req, _, err := s.update(ctx, rid, func(r *models.ApprovalRequest) (bool, error) {
		return r.StartReview(actor, s.now())
	}, nil)
	return req, err
}

type DecideRequest struct {
	RequestID  id.ApprovalID
	ApproverID id.ParticipantID
	Decision   models.Decision
	Notes      string
	Conditions []domain.Condition
}

// Decide records one approver's decision. Concurrent decisions from different approvers are
// re-applied on top of each other; none is lost. The decision is audited before it is written
// and not written when the audit fails.
func (s *Service) Decide(ctx context.Context, in DecideRequest) (*models.ApprovalRequest, error) {
	ctx, span := tracer.Start(ctx, "approval.Decide")
	defer span.End()
	span.SetAttributes(
		attribute.String("approval.id", in.RequestID.String()),
		attribute.String("approval.decision", string(in.Decision)),
	)

	var before models.Status
	req, _, err := s.update(ctx, in.RequestID,
		func(r *models.ApprovalRequest) (bool, error) {
			before = r.Status
			return true, r.Decide(in.ApproverID, in.Decision, in.Notes, in.Conditions, s.now())
		},
		func(ctx context.Context, r *models.ApprovalRequest) error {
			return s.emit(ctx, audit.EventApprovalDecided, in.ApproverID, r, string(in.Decision), in.Notes)
		},
	)
	if err != nil {
		return nil, err
	}
	s.metrics.IncDecision(string(in.Decision))
	span.SetAttributes(attribute.String("approval.status", string(req.Status)))

	if req.Status != before {
		switch {
		case req.Status.IsTerminal():
			s.metrics.IncResolved(string(req.Subject.Type), string(req.Status))
			s.emitLogged(ctx, audit.EventApprovalResolved, in.ApproverID, req, string(req.Status), "")
			if err := s.applyEffects(ctx, req); err != nil {
				s.logger.ErrorContext(ctx, "approval side effects failed; reapply to retry",
					"approval_id", req.ID.String(),
					"subject", string(req.Subject.Type),
					"error", err,
				)
			}
		case req.Status == models.StatusChangesRequested:
			s.publish(ctx, notifyRequester(notify.KindChangesRequested, req, s.now()))
		}
	}
	return req, nil
}

// Resubmit returns a request with changes requested to review.
func (s *Service) Resubmit(ctx context.Context, requester id.ParticipantID, rid id.ApprovalID, notes string) (*models.ApprovalRequest, error) {
	req, _, err := s.update(ctx, rid, func(r *models.ApprovalRequest) (bool, error) {
		return true, r.Resubmit(requester, notes, s.now())
	}, nil)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, notifyApprovers(req, s.now()))
	return req, nil
}

// Get returns a request to its requester or one of its approvers.
func (s *Service) Get(ctx context.Context, viewer id.ParticipantID, rid id.ApprovalID) (*models.ApprovalRequest, error) {
	req, err := s.load(ctx, rid)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != viewer && !req.IsApprover(viewer) {
		return nil, dErrors.New(dErrors.CodeForbidden, "not a party to this request")
	}
	return req, nil
}

// ListPending returns the open requests still waiting on approver.
func (s *Service) ListPending(ctx context.Context, approver id.ParticipantID) ([]*models.ApprovalRequest, error) {
	reqs, err := s.store.ListPendingFor(ctx, approver)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending requests")
	}
	return reqs, nil
}

// Reapply re-runs the side effects of a resolved request.
func (s *Service) Reapply(ctx context.Context, actor id.ParticipantID, rid id.ApprovalID) (*models.ApprovalRequest, error) {
	req, err := s.Get(ctx, actor, rid)
	if err != nil {
		return nil, err
	}
	if !req.Status.IsTerminal() {
		return nil, dErrors.New(dErrors.CodeInvalidState, "request is not resolved")
	}
	if err := s.applyEffects(ctx, req); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to apply approval outcome")
	}
	return req, nil
}

func (s *Service) load(ctx context.Context, rid id.ApprovalID) (*models.ApprovalRequest, error) {
	req, err := s.store.GetRequest(ctx, rid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "approval request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load approval request")
	}
	return req, nil
}

// update applies mutate to the latest version and writes it with compare-and-swap, reloading
// and re-applying on conflict. beforeWrite runs once, before the first write attempt.
func (s *Service) update(
	ctx context.Context,
	rid id.ApprovalID,
	mutate func(*models.ApprovalRequest) (bool, error),
	beforeWrite func(context.Context, *models.ApprovalRequest) error,
) (*models.ApprovalRequest, bool, error) {
	prepared := false
	for attempt := 0; attempt < s.casRetries; attempt++ {
		current, err := s.load(ctx, rid)
		if err != nil {
			return nil, false, err
		}
		expected := current.Version
		changed, err := mutate(current)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return current, false, nil
		}
		if beforeWrite != nil && !prepared {
			if err := beforeWrite(ctx, current); err != nil {
				return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record decision")
			}
			prepared = true
		}
		err = s.store.UpdateRequest(ctx, current, expected)
		switch {
		case err == nil:
			return current, true, nil
		case errors.Is(err, sentinel.ErrConflict):
			s.metrics.IncConflict()
			continue
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, false, dErrors.New(dErrors.CodeNotFound, "approval request not found")
		default:
			return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update approval request")
		}
	}
	return nil, false, dErrors.New(dErrors.CodeConflict, "approval request is busy, try again")
}

func (s *Service) emit(ctx context.Context, event audit.AuditEvent, actor id.ParticipantID, req *models.ApprovalRequest, decision, reason string) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Emit(ctx, audit.Event{
		Category:  event.Category(),
		Timestamp: s.now(),
		ActorID:   actor,
		Subject:   "approval:" + req.ID.String(),
		Action:    string(event),
		Decision:  decision,
		Reason:    reason,
	})
}

func (s *Service) emitLogged(ctx context.Context, event audit.AuditEvent, actor id.ParticipantID, req *models.ApprovalRequest, decision, reason string) {
	if err := s.emit(ctx, event, actor, req, decision, reason); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "approval_id", req.ID.String(), "error", err)
	}
}
