package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"chaperone/internal/approval/models"
	"chaperone/internal/approval/service/mocks"
	"chaperone/internal/domain"
	"chaperone/internal/notify"
	policymodels "chaperone/internal/policy/models"
	"chaperone/internal/storage/memory"
	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
	"chaperone/pkg/platform/audit"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Notifier,AuditPublisher,Annotator

type ServiceSuite struct {
	suite.Suite
	ctx       context.Context
	store     *memory.Store
	notes     *notify.Recorder
	annotator *mocks.MockAnnotator
	svc       *Service

	ward, counterpart, stranger id.ParticipantID
	primary, secondary, extra   id.ParticipantID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.notes = &notify.Recorder{}
	ctrl := gomock.NewController(s.T())
	s.annotator = mocks.NewMockAnnotator(ctrl)

	s.ward, s.counterpart, s.stranger = id.NewParticipantID(), id.NewParticipantID(), id.NewParticipantID()
	s.primary, s.secondary, s.extra = id.NewParticipantID(), id.NewParticipantID(), id.NewParticipantID()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, p := range []*domain.Participant{
		{ID: s.ward, Role: id.RoleUser, CreatedAt: base},
		{ID: s.counterpart, Role: id.RoleUser, CreatedAt: base},
		{ID: s.stranger, Role: id.RoleUser, CreatedAt: base},
		// Linked oldest first, so only the policy puts the primary ahead.
		{ID: s.extra, Role: id.RoleGuardian, Wards: []id.ParticipantID{s.ward}, CreatedAt: base.Add(time.Minute)},
		{ID: s.secondary, Role: id.RoleGuardian, Wards: []id.ParticipantID{s.ward}, CreatedAt: base.Add(2 * time.Minute)},
		{ID: s.primary, Role: id.RoleGuardian, Wards: []id.ParticipantID{s.ward}, CreatedAt: base.Add(3 * time.Minute)},
	} {
		s.Require().NoError(s.store.SaveParticipant(s.ctx, p))
	}
	s.Require().NoError(s.store.PutPolicy(s.ctx, &policymodels.PermissionPolicy{
		WardID:   s.ward,
		Timezone: "UTC",
		Guardians: []policymodels.GuardianLink{
			{GuardianID: s.primary, Rank: policymodels.RankPrimary, Visible: true},
			{GuardianID: s.secondary, Rank: policymodels.RankSecondary, Visible: true},
		},
	}))
	s.svc = s.newService()
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	svc, err := New(s.store, s.notes, append([]Option{WithAnnotator(s.annotator)}, opts...)...)
	s.Require().NoError(err)
	return svc
}

func (s *ServiceSuite) submitMatch() *models.ApprovalRequest {
	req, err := s.svc.Submit(s.ctx, SubmitRequest{
		RequesterID: s.ward,
		Subject:     models.Subject{Type: models.SubjectMatch, Match: &models.MatchPayload{Counterpart: s.counterpart}},
	})
	s.Require().NoError(err)
	return req
}

func (s *ServiceSuite) decide(rid id.ApprovalID, approver id.ParticipantID, d models.Decision, conditions ...domain.Condition) (*models.ApprovalRequest, error) {
	return s.svc.Decide(s.ctx, DecideRequest{RequestID: rid, ApproverID: approver, Decision: d, Conditions: conditions})
}

func (s *ServiceSuite) conversation(status domain.ConversationStatus) *domain.Conversation {
	conv, err := domain.NewConversation(s.ward, s.counterpart, id.NewApprovalID(), nil, time.Now())
	s.Require().NoError(err)
	conv, _, err = s.store.CreateConversation(s.ctx, conv)
	s.Require().NoError(err)
	if status != domain.ConversationActive {
		conv, err = s.store.SetConversationStatus(s.ctx, conv.ID, status, time.Now())
		s.Require().NoError(err)
	}
	return conv
}

func (s *ServiceSuite) TestSubmitResolvesGuardiansPrimaryFirst() {
	req := s.submitMatch()
	s.Equal([]id.ParticipantID{s.primary, s.secondary}, req.Approvers)
	s.Equal(models.StatusPending, req.Status)

	needed := s.notes.OfKind(notify.KindApprovalNeeded)
	s.Require().Len(needed, 1)
	s.Equal([]id.ParticipantID{s.primary, s.secondary}, needed[0].Recipients)
}

func (s *ServiceSuite) TestSubmitIsIdempotentWhileOpen() {
	first := s.submitMatch()
	second := s.submitMatch()
	s.Equal(first.ID, second.ID)
	s.Len(s.notes.OfKind(notify.KindApprovalNeeded), 1)
}

func (s *ServiceSuite) TestSubmitValidation() {
	s.Run("no guardians", func() {
		_, err := s.svc.Submit(s.ctx, SubmitRequest{
			RequesterID: s.stranger,
			Subject:     models.Subject{Type: models.SubjectMatch, Match: &models.MatchPayload{Counterpart: s.ward}},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
	s.Run("self match", func() {
		_, err := s.svc.Submit(s.ctx, SubmitRequest{
			RequesterID: s.ward,
			Subject:     models.Subject{Type: models.SubjectMatch, Match: &models.MatchPayload{Counterpart: s.ward}},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("explicit approver must guard the requester", func() {
		_, err := s.svc.Submit(s.ctx, SubmitRequest{
			RequesterID: s.ward,
			Subject:     models.Subject{Type: models.SubjectMatch, Match: &models.MatchPayload{Counterpart: s.counterpart}},
			Approvers:   []id.ParticipantID{s.stranger},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("message review is not submitted directly", func() {
		_, err := s.svc.Submit(s.ctx, SubmitRequest{
			RequesterID: s.ward,
			Subject: models.Subject{Type: models.SubjectMessageReview, Review: &models.ReviewPayload{
				MessageID: id.NewMessageID(), ConversationID: id.NewConversationID(),
			}},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("resume requires a paused conversation", func() {
		conv := s.conversation(domain.ConversationActive)
		_, err := s.svc.Submit(s.ctx, SubmitRequest{
			RequesterID: s.ward,
			Subject:     models.Subject{Type: models.SubjectConversation, Conversation: &models.ConversationPayload{ConversationID: conv.ID}},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *ServiceSuite) TestApprovedMatchOpensConversationOnce() {
	req := s.submitMatch()
	chaperoned := domain.Condition{Code: "chaperoned-call", Description: "calls only with a guardian present"}

	_, err := s.decide(req.ID, s.primary, models.DecisionApproved, chaperoned)
	s.Require().NoError(err)
	s.Empty(s.notes.OfKind(notify.KindNewConversation))

	final, err := s.decide(req.ID, s.secondary, models.DecisionApproved)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, final.Status)
	s.Equal([]domain.Condition{chaperoned}, final.Conditions)

	convs, err := s.store.ListConversations(s.ctx, s.ward)
	s.Require().NoError(err)
	s.Require().Len(convs, 1)
	s.Equal(domain.ConversationActive, convs[0].Status)
	s.Equal([]domain.Condition{chaperoned}, convs[0].Conditions)
	s.Equal(req.ID, convs[0].MatchRequestID)

	opened := s.notes.OfKind(notify.KindNewConversation)
	s.Require().Len(opened, 1)
	s.ElementsMatch([]id.ParticipantID{s.ward, s.counterpart}, opened[0].Recipients)

	_, err = s.svc.Reapply(s.ctx, s.primary, req.ID)
	s.Require().NoError(err)
	convs, err = s.store.ListConversations(s.ctx, s.ward)
	s.Require().NoError(err)
	s.Len(convs, 1)
}

func (s *ServiceSuite) TestAnyRejectionResolves() {
	req := s.submitMatch()
	_, err := s.decide(req.ID, s.primary, models.DecisionApproved)
	s.Require().NoError(err)

	final, err := s.decide(req.ID, s.secondary, models.DecisionRejected)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, final.Status)

	_, err = s.decide(req.ID, s.primary, models.DecisionChangesRequested)
	s.True(dErrors.HasCode(err, dErrors.CodeAlreadyResolved))

	resolved := s.notes.OfKind(notify.KindApprovalResolved)
	s.Require().Len(resolved, 1)
	s.Equal([]id.ParticipantID{s.ward}, resolved[0].Recipients)
	s.Empty(s.notes.OfKind(notify.KindNewConversation))
}

func (s *ServiceSuite) TestChangesRequestedThenResubmit() {
	req := s.submitMatch()
	_, err := s.svc.Decide(s.ctx, DecideRequest{RequestID: req.ID, ApproverID: s.primary, Decision: models.DecisionChangesRequested, Notes: "introduce yourself first"})
	s.Require().NoError(err)
	got, err := s.decide(req.ID, s.secondary, models.DecisionApproved)
	s.Require().NoError(err)
	s.Equal(models.StatusChangesRequested, got.Status)

	changes := s.notes.OfKind(notify.KindChangesRequested)
	s.Require().Len(changes, 1)
	s.Equal("introduce yourself first", changes[0].Data["notes"])

	_, err = s.decide(req.ID, s.secondary, models.DecisionApproved)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "waits for resubmission")

	_, err = s.svc.Resubmit(s.ctx, s.counterpart, req.ID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	again, err := s.svc.Resubmit(s.ctx, s.ward, req.ID, "hello, I am the ward")
	s.Require().NoError(err)
	s.Equal(models.StatusUnderReview, again.Status)
	for _, d := range again.Decisions {
		s.Equal(models.DecisionPending, d.Decision)
	}

	_, err = s.decide(req.ID, s.primary, models.DecisionApproved)
	s.Require().NoError(err)
	final, err := s.decide(req.ID, s.secondary, models.DecisionApproved)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, final.Status)
}

func (s *ServiceSuite) TestConcurrentDecisionsAreNotLost() {
	for range 20 {
		req := s.submitMatch()
		var wg sync.WaitGroup
		for _, g := range []id.ParticipantID{s.primary, s.secondary} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.decide(req.ID, g, models.DecisionApproved)
				s.NoError(err)
			}()
		}
		wg.Wait()

		stored, err := s.store.GetRequest(s.ctx, req.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusApproved, stored.Status)
		s.EqualValues(3, stored.Version)

		// Next round needs a fresh counterpart so the subject key differs.
		next := id.NewParticipantID()
		s.Require().NoError(s.store.SaveParticipant(s.ctx, &domain.Participant{ID: next, Role: id.RoleUser}))
		s.counterpart = next
	}
}

func (s *ServiceSuite) TestDecisionIsNotWrittenWhenAuditFails() {
	ctrl := gomock.NewController(s.T())
	auditor := mocks.NewMockAuditPublisher(ctrl)
	auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		if e.Action == string(audit.EventApprovalDecided) {
			return errors.New("audit store down")
		}
		return nil
	}).AnyTimes()
	s.svc = s.newService(WithAuditPublisher(auditor))

	req := s.submitMatch()
	_, err := s.decide(req.ID, s.primary, models.DecisionApproved)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	stored, err := s.store.GetRequest(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.DecisionPending, stored.Decisions[s.primary].Decision)
	s.Equal(req.Version, stored.Version)
}

func (s *ServiceSuite) TestDecisionsAreAudited() {
	ctrl := gomock.NewController(s.T())
	auditor := mocks.NewMockAuditPublisher(ctrl)
	var actions []string
	auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		actions = append(actions, e.Action)
		return nil
	}).AnyTimes()
	s.svc = s.newService(WithAuditPublisher(auditor))

	req := s.submitMatch()
	_, err := s.decide(req.ID, s.primary, models.DecisionRejected)
	s.Require().NoError(err)
	s.Equal([]string{
		string(audit.EventApprovalSubmitted),
		string(audit.EventApprovalDecided),
		string(audit.EventApprovalResolved),
	}, actions)
}

func (s *ServiceSuite) TestRejectedReviewAnnotatesMessage() {
	conv := s.conversation(domain.ConversationActive)
	msg := &domain.Message{
		ID: id.NewMessageID(), ConversationID: conv.ID, SenderID: s.ward,
		Content: "I miss your touch", Verdict: domain.Verdict{Outcome: domain.OutcomeFlagged, ReasonCode: "intimacy"},
		CreatedAt: time.Now(),
	}
	review, err := s.svc.NewMessageReview(s.ctx, msg)
	s.Require().NoError(err)
	s.Equal([]id.ParticipantID{s.primary, s.secondary}, review.Approvers)
	s.Equal(s.ward, review.RequesterID)
	s.Require().NoError(s.store.CreateRequest(s.ctx, review))
	s.svc.ReviewCommitted(s.ctx, review)

	s.annotator.EXPECT().ResolveReview(gomock.Any(), msg.ID, domain.AnnotationRejectedByGuardian, s.secondary).
		Return(&domain.Message{ID: msg.ID, Annotation: domain.AnnotationRejectedByGuardian}, nil)

	final, err := s.decide(review.ID, s.secondary, models.DecisionRejected)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, final.Status)

	rejected := s.notes.OfKind(notify.KindMessageRejected)
	s.Require().Len(rejected, 1)
	s.ElementsMatch([]id.ParticipantID{s.ward, s.counterpart}, rejected[0].Recipients)

	// Reapply tolerates the annotation already being there.
	s.annotator.EXPECT().ResolveReview(gomock.Any(), msg.ID, domain.AnnotationRejectedByGuardian, s.secondary).
		Return(nil, dErrors.New(dErrors.CodeConflict, "message is already annotated"))
	_, err = s.svc.Reapply(s.ctx, s.primary, review.ID)
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestApprovedReviewClearsPendingIndicator() {
	clock := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s.svc = s.newService(WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	conv := s.conversation(domain.ConversationActive)
	msg := &domain.Message{ID: id.NewMessageID(), ConversationID: conv.ID, SenderID: s.ward, Verdict: domain.Verdict{Outcome: domain.OutcomeFlagged}, CreatedAt: time.Now()}
	review, err := s.svc.NewMessageReview(s.ctx, msg)
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreateRequest(s.ctx, review))
	msg.ReviewID = review.ID
	s.Require().True(msg.PendingReview())

	last := review.Approvers[len(review.Approvers)-1]
	s.annotator.EXPECT().ResolveReview(gomock.Any(), msg.ID, domain.AnnotationNone, last).
		DoAndReturn(func(_ context.Context, _ id.MessageID, a domain.Annotation, by id.ParticipantID) (*domain.Message, error) {
			msg.ResolveReview(a, by, clock)
			return msg, nil
		})

	for _, g := range review.Approvers {
		_, err = s.decide(review.ID, g, models.DecisionApproved)
		s.Require().NoError(err)
	}
	s.False(msg.PendingReview())
	s.Equal(domain.AnnotationNone, msg.Annotation)
	s.Empty(s.notes.OfKind(notify.KindMessageRejected))
}

func (s *ServiceSuite) TestReviewFallsBackToPlatformReviewers() {
	msg := &domain.Message{ID: id.NewMessageID(), ConversationID: id.NewConversationID(), SenderID: s.stranger, CreatedAt: time.Now()}

	_, err := s.svc.NewMessageReview(s.ctx, msg)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	reviewer := id.NewParticipantID()
	svc := s.newService(WithReviewers([]id.ParticipantID{reviewer}))
	review, err := svc.NewMessageReview(s.ctx, msg)
	s.Require().NoError(err)
	s.Equal([]id.ParticipantID{reviewer}, review.Approvers)
}

func (s *ServiceSuite) TestApprovedResumeReactivatesConversation() {
	conv := s.conversation(domain.ConversationPaused)
	req, err := s.svc.Submit(s.ctx, SubmitRequest{
		RequesterID: s.ward,
		Subject:     models.Subject{Type: models.SubjectConversation, Conversation: &models.ConversationPayload{ConversationID: conv.ID}},
		Approvers:   []id.ParticipantID{s.primary},
	})
	s.Require().NoError(err)

	_, err = s.decide(req.ID, s.primary, models.DecisionApproved)
	s.Require().NoError(err)

	got, err := s.store.GetConversation(s.ctx, conv.ID)
	s.Require().NoError(err)
	s.Equal(domain.ConversationActive, got.Status)
	s.Len(s.notes.OfKind(notify.KindConversationResumed), 1)
}

func (s *ServiceSuite) TestApprovedMeetingIsAnnounced() {
	conv := s.conversation(domain.ConversationActive)
	at := time.Date(2026, 5, 1, 17, 0, 0, 0, time.UTC)
	req, err := s.svc.Submit(s.ctx, SubmitRequest{
		RequesterID: s.ward,
		Subject: models.Subject{Type: models.SubjectMeeting, Meeting: &models.MeetingPayload{
			ConversationID: conv.ID, ProposedAt: at, Place: "family home",
		}},
		Approvers: []id.ParticipantID{s.primary},
	})
	s.Require().NoError(err)

	_, err = s.decide(req.ID, s.primary, models.DecisionApproved, domain.Condition{Code: "guardian-present"})
	s.Require().NoError(err)

	scheduled := s.notes.OfKind(notify.KindMeetingScheduled)
	s.Require().Len(scheduled, 1)
	s.Equal("family home", scheduled[0].Data["place"])
	s.Equal("2026-05-01T17:00:00Z", scheduled[0].Data["proposed_at"])
}

func (s *ServiceSuite) TestReviewLifecycle() {
	req := s.submitMatch()

	_, err := s.svc.StartReview(s.ctx, s.stranger, req.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	got, err := s.svc.StartReview(s.ctx, s.primary, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusUnderReview, got.Status)

	again, err := s.svc.StartReview(s.ctx, s.secondary, req.ID)
	s.Require().NoError(err)
	s.Equal(got.Version, again.Version)

	_, err = s.svc.Reapply(s.ctx, s.primary, req.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *ServiceSuite) TestReadAccess() {
	req := s.submitMatch()

	_, err := s.svc.Get(s.ctx, s.stranger, req.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	_, err = s.svc.Get(s.ctx, s.ward, id.NewApprovalID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.decide(req.ID, s.primary, models.DecisionApproved)
	s.Require().NoError(err)

	primaryInbox, err := s.svc.ListPending(s.ctx, s.primary)
	s.Require().NoError(err)
	s.Empty(primaryInbox)

	secondaryInbox, err := s.svc.ListPending(s.ctx, s.secondary)
	s.Require().NoError(err)
	s.Require().Len(secondaryInbox, 1)
	s.Equal(req.ID, secondaryInbox[0].ID)
}
