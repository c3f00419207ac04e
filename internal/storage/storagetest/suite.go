// Package storagetest runs one behavioural suite against every store implementation.
package storagetest

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	approvalmodels "chaperone/internal/approval/models"
	"chaperone/internal/domain"
	policymodels "chaperone/internal/policy/models"
	"chaperone/internal/storage"
	id "chaperone/pkg/domain"
	"chaperone/pkg/platform/sentinel"
)

// Store is the full method set the memory and postgres stores provide.
type Store interface {
	SaveParticipant(ctx context.Context, p *domain.Participant) error
	GetParticipant(ctx context.Context, pid id.ParticipantID) (*domain.Participant, error)
	GuardiansOf(ctx context.Context, ward id.ParticipantID) ([]id.ParticipantID, error)

	CreateConversation(ctx context.Context, c *domain.Conversation) (*domain.Conversation, bool, error)
	GetConversation(ctx context.Context, cid id.ConversationID) (*domain.Conversation, error)
	ListConversations(ctx context.Context, participant id.ParticipantID) ([]*domain.Conversation, error)
	SetConversationStatus(ctx context.Context, cid id.ConversationID, status domain.ConversationStatus, now time.Time) (*domain.Conversation, error)

	AppendMessage(ctx context.Context, msg *domain.Message, review *approvalmodels.ApprovalRequest, opts storage.AppendOptions) error
	GetMessage(ctx context.Context, mid id.MessageID) (*domain.Message, error)
	ListMessages(ctx context.Context, cid id.ConversationID, afterSeq int64, limit int) ([]*domain.Message, error)
	AdvanceDeliveryStatus(ctx context.Context, cid id.ConversationID, recipient id.ParticipantID, uptoSeq int64, status domain.DeliveryStatus) ([]*domain.Message, error)
	ResolveReview(ctx context.Context, mid id.MessageID, annotation domain.Annotation, by id.ParticipantID, at time.Time) (*domain.Message, error)

	CreateRequest(ctx context.Context, req *approvalmodels.ApprovalRequest) error
	GetRequest(ctx context.Context, rid id.ApprovalID) (*approvalmodels.ApprovalRequest, error)
	UpdateRequest(ctx context.Context, req *approvalmodels.ApprovalRequest, expected int64) error
	ListPendingFor(ctx context.Context, approver id.ParticipantID) ([]*approvalmodels.ApprovalRequest, error)
	FindOpenBySubject(ctx context.Context, requester id.ParticipantID, key string) (*approvalmodels.ApprovalRequest, error)

	GetPolicy(ctx context.Context, ward id.ParticipantID) (*policymodels.PermissionPolicy, error)
	PutPolicy(ctx context.Context, p *policymodels.PermissionPolicy) error

	CreateOverride(ctx context.Context, o *policymodels.EmergencyOverride) error
	UpdateOverride(ctx context.Context, o *policymodels.EmergencyOverride) error
	GetOverride(ctx context.Context, oid id.OverrideID) (*policymodels.EmergencyOverride, error)
	ListOverrides(ctx context.Context, ward id.ParticipantID) ([]*policymodels.EmergencyOverride, error)
}

// StoreSuite exercises a Store. Embedders set NewStore; it is called before every test.
type StoreSuite struct {
	suite.Suite
	NewStore func() Store

	ctx   context.Context
	store Store
	now   time.Time
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.NewStore()
	s.now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
}

func (s *StoreSuite) participant(role id.Role, wards ...id.ParticipantID) id.ParticipantID {
	p := &domain.Participant{ID: id.NewParticipantID(), Role: role, Wards: wards, CreatedAt: s.now}
	s.now = s.now.Add(time.Second)
	s.Require().NoError(s.store.SaveParticipant(s.ctx, p))
	return p.ID
}

func (s *StoreSuite) conversation() *domain.Conversation {
	a, b := s.participant(id.RoleUser), s.participant(id.RoleUser)
	c, err := domain.NewConversation(a, b, id.NewApprovalID(), []domain.Condition{{Code: "daytime-only"}}, s.now)
	s.Require().NoError(err)
	created, ok, err := s.store.CreateConversation(s.ctx, c)
	s.Require().NoError(err)
	s.Require().True(ok)
	return created
}

func (s *StoreSuite) message(c *domain.Conversation, sender id.ParticipantID, text string) *domain.Message {
	return &domain.Message{
		ID:             id.NewMessageID(),
		ConversationID: c.ID,
		SenderID:       sender,
		Content:        text,
		Verdict:        domain.Verdict{Outcome: domain.OutcomeCompliant},
		DeliveryStatus: domain.DeliveryQueued,
		CreatedAt:      s.now,
	}
}

func (s *StoreSuite) TestParticipants() {
	ward := s.participant(id.RoleUser)
	first := s.participant(id.RoleGuardian, ward)
	second := s.participant(id.RoleGuardian, ward)
	s.participant(id.RoleGuardian)

	got, err := s.store.GetParticipant(s.ctx, first)
	s.Require().NoError(err)
	s.Equal(id.RoleGuardian, got.Role)
	s.Equal([]id.ParticipantID{ward}, got.Wards)

	guardians, err := s.store.GuardiansOf(s.ctx, ward)
	s.Require().NoError(err)
	s.Equal([]id.ParticipantID{first, second}, guardians)

	_, err = s.store.GetParticipant(s.ctx, id.NewParticipantID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreSuite) TestConversationIdempotentPerMatchRequest() {
	c := s.conversation()

	dup, err := domain.NewConversation(c.Participants[0], c.Participants[1], c.MatchRequestID, nil, s.now)
	s.Require().NoError(err)
	got, created, err := s.store.CreateConversation(s.ctx, dup)
	s.Require().NoError(err)
	s.False(created)
	s.Equal(c.ID, got.ID)
	s.Equal([]domain.Condition{{Code: "daytime-only"}}, got.Conditions)

	list, err := s.store.ListConversations(s.ctx, c.Participants[1])
	s.Require().NoError(err)
	s.Len(list, 1)
}

func (s *StoreSuite) TestConversationStatus() {
	c := s.conversation()

	got, err := s.store.SetConversationStatus(s.ctx, c.ID, domain.ConversationPaused, s.now)
	s.Require().NoError(err)
	s.Equal(domain.ConversationPaused, got.Status)

	_, err = s.store.SetConversationStatus(s.ctx, c.ID, domain.ConversationPaused, s.now)
	s.NoError(err, "repeating a directive is a no-op")

	_, err = s.store.SetConversationStatus(s.ctx, c.ID, domain.ConversationTerminated, s.now)
	s.Require().NoError(err)

	_, err = s.store.SetConversationStatus(s.ctx, c.ID, domain.ConversationActive, s.now)
	s.ErrorIs(err, storage.ErrConversationTerminated)

	_, err = s.store.SetConversationStatus(s.ctx, id.NewConversationID(), domain.ConversationPaused, s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreSuite) TestAppendAssignsSequence() {
	c := s.conversation()
	a := c.Participants[0]

	for i := range 3 {
		m := s.message(c, a, "hello")
		s.Require().NoError(s.store.AppendMessage(s.ctx, m, nil, storage.AppendOptions{}))
		s.Equal(int64(i+1), m.Sequence)
	}

	got, err := s.store.GetConversation(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(int64(3), got.LastSequence)

	page, err := s.store.ListMessages(s.ctx, c.ID, 1, 1)
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal(int64(2), page[0].Sequence)
}

func (s *StoreSuite) TestAppendConcurrentSequencesAreUnique() {
	c := s.conversation()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := c.Participants[i%2]
			s.NoError(s.store.AppendMessage(s.ctx, s.messageAt(c, sender), nil, storage.AppendOptions{}))
		}(i)
	}
	wg.Wait()

	all, err := s.store.ListMessages(s.ctx, c.ID, 0, 0)
	s.Require().NoError(err)
	s.Require().Len(all, 20)
	for i, m := range all {
		s.Equal(int64(i+1), m.Sequence)
	}
}

func (s *StoreSuite) messageAt(c *domain.Conversation, sender id.ParticipantID) *domain.Message {
	return &domain.Message{
		ID:             id.NewMessageID(),
		ConversationID: c.ID,
		SenderID:       sender,
		Content:        "hi",
		Verdict:        domain.Verdict{Outcome: domain.OutcomeCompliant},
		DeliveryStatus: domain.DeliveryQueued,
		CreatedAt:      time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}
}

func (s *StoreSuite) TestAppendRespectsStatus() {
	c := s.conversation()
	a := c.Participants[0]
	_, err := s.store.SetConversationStatus(s.ctx, c.ID, domain.ConversationPaused, s.now)
	s.Require().NoError(err)

	err = s.store.AppendMessage(s.ctx, s.message(c, a, "x"), nil, storage.AppendOptions{})
	s.ErrorIs(err, storage.ErrConversationPaused)
	s.ErrorIs(err, sentinel.ErrInvalidState)

	m := s.message(c, a, "emergency")
	s.Require().NoError(s.store.AppendMessage(s.ctx, m, nil, storage.AppendOptions{AllowPaused: true}))
	s.Equal(int64(1), m.Sequence)

	_, err = s.store.SetConversationStatus(s.ctx, c.ID, domain.ConversationTerminated, s.now)
	s.Require().NoError(err)
	err = s.store.AppendMessage(s.ctx, s.message(c, a, "x"), nil, storage.AppendOptions{AllowPaused: true})
	s.ErrorIs(err, storage.ErrConversationTerminated)

	history, err := s.store.ListMessages(s.ctx, c.ID, 0, 0)
	s.Require().NoError(err)
	s.Len(history, 1, "history stays readable after termination")
}

func (s *StoreSuite) TestAppendWithReview() {
	c := s.conversation()
	a := c.Participants[0]
	guardian := s.participant(id.RoleGuardian, a)

	m := s.message(c, a, "meet me later")
	m.Verdict = domain.Verdict{Outcome: domain.OutcomeFlagged, ReasonCode: "off-platform"}
	review, err := approvalmodels.NewRequest(approvalmodels.Subject{
		Type:   approvalmodels.SubjectMessageReview,
		Review: &approvalmodels.ReviewPayload{MessageID: m.ID, ConversationID: c.ID, SenderID: a, ReasonCode: "off-platform"},
	}, a, []id.ParticipantID{guardian}, "", s.now)
	s.Require().NoError(err)
	m.ReviewID = review.ID

	s.Require().NoError(s.store.AppendMessage(s.ctx, m, review, storage.AppendOptions{}))

	stored, err := s.store.GetRequest(s.ctx, review.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), stored.Version)
	s.Equal(m.ID, stored.Subject.Review.MessageID)

	got, err := s.store.GetMessage(s.ctx, m.ID)
	s.Require().NoError(err)
	s.True(got.PendingReview())
	s.Equal(review.ID, got.ReviewID)
}

func (s *StoreSuite) TestAdvanceDeliveryStatusIsMonotonic() {
	c := s.conversation()
	a, b := c.Participants[0], c.Participants[1]
	for range 3 {
		s.Require().NoError(s.store.AppendMessage(s.ctx, s.message(c, a, "m"), nil, storage.AppendOptions{}))
	}
	s.Require().NoError(s.store.AppendMessage(s.ctx, s.message(c, b, "reply"), nil, storage.AppendOptions{}))

	changed, err := s.store.AdvanceDeliveryStatus(s.ctx, c.ID, b, 3, domain.DeliveryRead)
	s.Require().NoError(err)
	s.Empty(changed, "receipts never apply to queued messages")

	changed, err = s.store.AdvanceDeliveryStatus(s.ctx, c.ID, b, 3, domain.DeliverySent)
	s.Require().NoError(err)
	s.Len(changed, 3)

	changed, err = s.store.AdvanceDeliveryStatus(s.ctx, c.ID, b, 2, domain.DeliveryRead)
	s.Require().NoError(err)
	s.Len(changed, 2)

	changed, err = s.store.AdvanceDeliveryStatus(s.ctx, c.ID, b, 3, domain.DeliveryDelivered)
	s.Require().NoError(err)
	s.Require().Len(changed, 1, "only seq 3 was behind delivered")
	s.Equal(int64(3), changed[0].Sequence)

	changed, err = s.store.AdvanceDeliveryStatus(s.ctx, c.ID, b, 3, domain.DeliveryDelivered)
	s.Require().NoError(err)
	s.Empty(changed)

	first, err := s.store.ListMessages(s.ctx, c.ID, 0, 1)
	s.Require().NoError(err)
	s.Equal(domain.DeliveryRead, first[0].DeliveryStatus, "read never regresses to delivered")

	own, err := s.store.ListMessages(s.ctx, c.ID, 3, 1)
	s.Require().NoError(err)
	s.Equal(domain.DeliveryQueued, own[0].DeliveryStatus, "a reader's own messages are untouched")
}

func (s *StoreSuite) TestResolveReviewIsWriteOnce() {
	c := s.conversation()
	m := s.message(c, c.Participants[0], "x")
	s.Require().NoError(s.store.AppendMessage(s.ctx, m, nil, storage.AppendOptions{}))
	guardian := id.NewParticipantID()

	got, err := s.store.ResolveReview(s.ctx, m.ID, domain.AnnotationRejectedByGuardian, guardian, s.now)
	s.Require().NoError(err)
	s.Equal(domain.AnnotationRejectedByGuardian, got.Annotation)
	s.Equal(guardian, got.AnnotatedBy)
	s.Require().NotNil(got.ReviewResolvedAt)
	s.Equal("x", got.Content, "annotation never alters content")

	_, err = s.store.ResolveReview(s.ctx, m.ID, domain.AnnotationNone, guardian, s.now)
	s.ErrorIs(err, sentinel.ErrAlreadyExists)
}

func (s *StoreSuite) TestApprovedReviewClearsPendingIndicator() {
	c := s.conversation()
	m := s.message(c, c.Participants[0], "borderline")
	m.Verdict = domain.Verdict{Outcome: domain.OutcomeFlagged, ReasonCode: "intimacy"}
	review := s.newRequest(c.Participants[0], id.NewParticipantID())
	m.ReviewID = review.ID
	s.Require().NoError(s.store.AppendMessage(s.ctx, m, review, storage.AppendOptions{}))

	got, err := s.store.ResolveReview(s.ctx, m.ID, domain.AnnotationNone, id.NewParticipantID(), s.now)
	s.Require().NoError(err)
	s.Equal(domain.AnnotationNone, got.Annotation)
	s.True(got.AnnotatedBy.IsNil())

	stored, err := s.store.GetMessage(s.ctx, m.ID)
	s.Require().NoError(err)
	s.False(stored.PendingReview())
}

func (s *StoreSuite) newRequest(requester id.ParticipantID, approvers ...id.ParticipantID) *approvalmodels.ApprovalRequest {
	req, err := approvalmodels.NewRequest(approvalmodels.Subject{
		Type:  approvalmodels.SubjectMatch,
		Match: &approvalmodels.MatchPayload{Counterpart: id.NewParticipantID()},
	}, requester, approvers, "please", s.now)
	s.Require().NoError(err)
	return req
}

func (s *StoreSuite) TestRequestCompareAndSwap() {
	requester, g1, g2 := id.NewParticipantID(), id.NewParticipantID(), id.NewParticipantID()
	req := s.newRequest(requester, g1, g2)
	s.Require().NoError(s.store.CreateRequest(s.ctx, req))
	s.Equal(int64(1), req.Version)

	first, err := s.store.GetRequest(s.ctx, req.ID)
	s.Require().NoError(err)
	second, err := s.store.GetRequest(s.ctx, req.ID)
	s.Require().NoError(err)

	err = first.Decide(g1, approvalmodels.DecisionApproved, "", nil, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.UpdateRequest(s.ctx, first, 1))
	s.Equal(int64(2), first.Version)

	err = second.Decide(g2, approvalmodels.DecisionApproved, "", nil, s.now)
	s.Require().NoError(err)
	s.ErrorIs(s.store.UpdateRequest(s.ctx, second, 1), sentinel.ErrConflict)

	stored, err := s.store.GetRequest(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(approvalmodels.DecisionApproved, stored.Decisions[g1].Decision)
	s.Equal(approvalmodels.DecisionPending, stored.Decisions[g2].Decision)

	pending, err := s.store.ListPendingFor(s.ctx, g2)
	s.Require().NoError(err)
	s.Len(pending, 1)
	pending, err = s.store.ListPendingFor(s.ctx, g1)
	s.Require().NoError(err)
	s.Empty(pending)

	open, err := s.store.FindOpenBySubject(s.ctx, requester, req.Subject.Key())
	s.Require().NoError(err)
	s.Equal(req.ID, open.ID)
}

func (s *StoreSuite) TestPolicyRoundTrip() {
	ward, guardian := id.NewParticipantID(), id.NewParticipantID()
	_, err := s.store.GetPolicy(s.ctx, ward)
	s.ErrorIs(err, sentinel.ErrNotFound)

	p := &policymodels.PermissionPolicy{
		WardID:             ward,
		Timezone:           "Europe/Berlin",
		Windows:            []policymodels.TimeWindow{{Days: []time.Weekday{time.Monday}, StartMinute: 540, EndMinute: 1260}},
		LocationCheck:      true,
		Locations:          []string{"home"},
		DailyBudgetMinutes: 60,
		Guardians:          []policymodels.GuardianLink{{GuardianID: guardian, Rank: policymodels.RankPrimary, Visible: true}},
		UpdatedBy:          guardian,
		UpdatedAt:          s.now,
	}
	s.Require().NoError(s.store.PutPolicy(s.ctx, p))
	got, err := s.store.GetPolicy(s.ctx, ward)
	s.Require().NoError(err)
	s.Equal(p.Windows, got.Windows)
	s.Equal(p.Guardians, got.Guardians)
	s.Equal(60, got.DailyBudgetMinutes)
	s.True(got.UpdatedAt.Equal(s.now))
}

func (s *StoreSuite) TestOverrides() {
	ward := id.NewParticipantID()
	older, err := policymodels.NewOverrideRequest(ward, "first", s.now)
	s.Require().NoError(err)
	newer, err := policymodels.NewOverrideRequest(ward, "second", s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Require().NoError(s.store.CreateOverride(s.ctx, older))
	s.Require().NoError(s.store.CreateOverride(s.ctx, newer))

	s.Require().NoError(older.Grant(id.NewParticipantID(), time.Hour, s.now))
	s.Require().NoError(s.store.UpdateOverride(s.ctx, older))

	list, err := s.store.ListOverrides(s.ctx, ward)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(newer.ID, list[0].ID)
	s.True(list[1].ActiveAt(s.now.Add(30 * time.Minute)))

	got, err := s.store.GetOverride(s.ctx, older.ID)
	s.Require().NoError(err)
	s.Equal(time.Hour, got.Duration)

	missing, _ := policymodels.NewOverrideRequest(ward, "x", s.now)
	s.ErrorIs(s.store.UpdateOverride(s.ctx, missing), sentinel.ErrNotFound)
}
