package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	approvalservice "chaperone/internal/approval/service"
	"chaperone/internal/connection"
	"chaperone/internal/delivery"
	"chaperone/internal/domain"
	"chaperone/internal/moderation"
	moderationmocks "chaperone/internal/moderation/mocks"
	"chaperone/internal/moderation/oracle"
	"chaperone/internal/notify"
	policymodels "chaperone/internal/policy/models"
	policyservice "chaperone/internal/policy/service"
	"chaperone/internal/policy/store/usage"
	"chaperone/internal/policy/store/window"
	"chaperone/internal/storage/memory"
	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
)

type recordingConn struct {
	events chan connection.Event
}

func newRecordingConn() *recordingConn {
	return &recordingConn{events: make(chan connection.Event, 256)}
}

func (c *recordingConn) WriteEvent(_ context.Context, e connection.Event) error {
	c.events <- e
	return nil
}

func (c *recordingConn) Ping(context.Context) error { return nil }
func (c *recordingConn) Close(string) error         { return nil }

// next returns the next event of type t, skipping others.
func (c *recordingConn) next(t *testing.T, typ connection.EventType) connection.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-c.events:
			if e.Type == typ {
				return e
			}
		case <-deadline:
			t.Fatalf("no %s event written", typ)
			return connection.Event{}
		}
	}
}

type SendSuite struct {
	suite.Suite
	ctx       context.Context
	now       time.Time
	store     *memory.Store
	registry  *connection.Registry
	gate      *moderation.Gate
	policy    *policyservice.Service
	approvals *approvalservice.Service
	svc       *Service

	alice, bob, guardian id.ParticipantID
	conv                 *domain.Conversation
}

func TestSendSuite(t *testing.T) {
	suite.Run(t, new(SendSuite))
}

func (s *SendSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }
	s.store = memory.New()
	s.registry = connection.NewRegistry(connection.WithQueueCapacity(1))
	s.T().Cleanup(s.registry.Close)

	s.alice, s.bob, s.guardian = id.NewParticipantID(), id.NewParticipantID(), id.NewParticipantID()
	for _, p := range []*domain.Participant{
		{ID: s.alice, Role: id.RoleUser},
		{ID: s.bob, Role: id.RoleUser},
		{ID: s.guardian, Role: id.RoleGuardian, Wards: []id.ParticipantID{s.alice}},
	} {
		s.Require().NoError(s.store.SaveParticipant(s.ctx, p))
	}
	conv, err := domain.NewConversation(s.alice, s.bob, id.NewApprovalID(), nil, s.now)
	s.Require().NoError(err)
	s.conv, _, err = s.store.CreateConversation(s.ctx, conv)
	s.Require().NoError(err)

	lexicon, err := oracle.DefaultLexicon()
	s.Require().NoError(err)
	s.gate, err = moderation.New(lexicon, moderation.WithClock(clock))
	s.Require().NoError(err)

	s.approvals, err = approvalservice.New(s.store, &notify.Recorder{}, approvalservice.WithClock(clock))
	s.Require().NoError(err)
	engine, err := delivery.New(s.store, s.registry, s.approvals, delivery.WithClock(clock))
	s.Require().NoError(err)
	s.policy, err = policyservice.New(s.store, window.NewInMemoryStore(), usage.NewInMemoryStore(), &notify.Recorder{},
		policyservice.WithClock(clock),
		policyservice.WithViewerResolver(engine),
		policyservice.WithConversationCloser(s.registry),
	)
	s.Require().NoError(err)

	s.svc, err = New(s.store, s.policy, s.gate, engine, s.registry, WithClock(clock))
	s.Require().NoError(err)
}

func (s *SendSuite) connect(p id.ParticipantID) (*connection.Channel, *recordingConn) {
	conn := newRecordingConn()
	ch, err := s.registry.Connect(s.ctx, p, id.RoleUser, conn)
	s.Require().NoError(err)
	s.T().Cleanup(func() { s.registry.Disconnect(ch) })
	return ch, conn
}

func (s *SendSuite) send(text string) (*SendResult, error) {
	return s.svc.Send(s.ctx, SendRequest{ConversationID: s.conv.ID, SenderID: s.alice, Text: text})
}

func (s *SendSuite) messages() []*domain.Message {
	msgs, err := s.store.ListMessages(s.ctx, s.conv.ID, 0, 100)
	s.Require().NoError(err)
	return msgs
}

func (s *SendSuite) TestCompliantMessageIsCommittedAndDelivered() {
	_, bob := s.connect(s.bob)
	_, guardian := s.connect(s.guardian)

	res, err := s.send("Assalamu Alaikum")
	s.Require().NoError(err)
	s.Equal(int64(1), res.Message.Sequence)
	s.Equal(domain.OutcomeCompliant, res.Message.Verdict.Outcome)

	for _, conn := range []*recordingConn{bob, guardian} {
		e := conn.next(s.T(), connection.EventMessage)
		payload := e.Payload.(connection.MessagePayload)
		s.Equal("Assalamu Alaikum", payload.Content)
		s.Equal(int64(1), payload.SequenceNumber)
	}
}

func (s *SendSuite) TestBlockedDraftLeavesNoMessage() {
	for range 2 {
		_, err := s.send("Can we meet alone, keep it secret")
		s.True(dErrors.HasCode(err, dErrors.CodeModerationBlocked))
	}
	s.Empty(s.messages())

	counts, err := s.gate.BlockedCounts(s.ctx, "2026-03-02")
	s.Require().NoError(err)
	var total int64
	for _, n := range counts {
		total += n
	}
	s.Equal(int64(2), total, "only the anonymized counter grows")
}

func (s *SendSuite) TestBlockedDraftsDoNotUseUpTheRateLimit() {
	for range 20 {
		_, err := s.send("Can we meet alone, keep it secret")
		s.Require().True(dErrors.HasCode(err, dErrors.CodeModerationBlocked))
	}

	res, err := s.send("Assalamu Alaikum")
	s.Require().NoError(err, "blocked drafts are not charged to the sender")
	s.Equal(int64(1), res.Message.Sequence)
}

func (s *SendSuite) TestCommittedSendsUseUpTheRateLimit() {
	for range 20 {
		_, err := s.send("Assalamu Alaikum")
		s.Require().NoError(err)
	}
	_, err := s.send("Assalamu Alaikum")
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	s.Len(s.messages(), 20)
}

func (s *SendSuite) TestFlaggedMessageIsDeliveredWithOneReview() {
	_, bob := s.connect(s.bob)

	res, err := s.send("I miss your touch")
	s.Require().NoError(err)
	s.True(res.Message.PendingReview())
	s.True(bob.next(s.T(), connection.EventMessage).Payload.(connection.MessagePayload).PendingReview)

	pending, err := s.approvals.ListPending(s.ctx, s.guardian)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(res.Message.ID, pending[0].Subject.Review.MessageID)
}

func (s *SendSuite) TestOutsideAllowedHoursPersistsNothing() {
	s.Require().NoError(s.store.PutPolicy(s.ctx, &policymodels.PermissionPolicy{
		WardID:   s.alice,
		Timezone: "UTC",
		Windows: []policymodels.TimeWindow{{
			Days:        []time.Weekday{time.Monday},
			StartMinute: 9 * 60,
			EndMinute:   21 * 60,
		}},
	}))
	s.now = time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)

	_, err := s.send("Assalamu Alaikum")
	s.True(dErrors.HasCode(err, dErrors.CodeOutsideAllowedHours))
	s.Empty(s.messages())
}

func (s *SendSuite) TestOverrideLetsWardWriteIntoPausedConversation() {
	_, err := s.policy.Pause(s.ctx, s.guardian, s.conv.ID, "")
	s.Require().NoError(err)
	_, err = s.send("are you there?")
	s.True(dErrors.HasCode(err, dErrors.CodeConversationPaused))

	o, err := s.policy.RequestOverride(s.ctx, s.alice, "need to reach family contact")
	s.Require().NoError(err)
	_, err = s.policy.GrantOverride(s.ctx, s.guardian, o.ID, time.Hour)
	s.Require().NoError(err)

	res, err := s.send("are you there?")
	s.Require().NoError(err)
	s.True(res.Overridden)

	_, err = s.svc.Send(s.ctx, SendRequest{ConversationID: s.conv.ID, SenderID: s.bob, Text: "yes"})
	s.True(dErrors.HasCode(err, dErrors.CodeConversationPaused), "the override belongs to the ward only")
}

func (s *SendSuite) TestTerminatedConversationRefusesEvenUnderOverride() {
	o, err := s.policy.RequestOverride(s.ctx, s.alice, "urgent")
	s.Require().NoError(err)
	_, err = s.policy.GrantOverride(s.ctx, s.guardian, o.ID, time.Hour)
	s.Require().NoError(err)
	_, err = s.policy.Terminate(s.ctx, s.guardian, s.conv.ID, "")
	s.Require().NoError(err)

	_, err = s.send("hello")
	s.True(dErrors.HasCode(err, dErrors.CodeConversationTerminated))
}

func (s *SendSuite) TestOracleFailureFailsClosed() {
	ctrl := gomock.NewController(s.T())
	failing := moderationmocks.NewMockOracle(ctrl)
	failing.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(domain.Verdict{}, errors.New("connection reset")).AnyTimes()
	gate, err := moderation.New(failing)
	s.Require().NoError(err)
	engine, err := delivery.New(s.store, s.registry, s.approvals)
	s.Require().NoError(err)
	svc, err := New(s.store, s.policy, gate, engine, s.registry)
	s.Require().NoError(err)

	_, err = svc.Send(s.ctx, SendRequest{ConversationID: s.conv.ID, SenderID: s.alice, Text: "hello"})
	s.True(dErrors.HasCode(err, dErrors.CodeModerationUnavailable))
	s.Empty(s.messages())

	fb := svc.EvaluateDraft(s.ctx, "hello")
	s.False(fb.SendEnabled)
}

func (s *SendSuite) TestOnlyParticipantsMaySend() {
	_, err := s.svc.Send(s.ctx, SendRequest{ConversationID: s.conv.ID, SenderID: s.guardian, Text: "hi"})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	_, err = s.svc.Send(s.ctx, SendRequest{ConversationID: id.NewConversationID(), SenderID: s.alice, Text: "hi"})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *SendSuite) TestFullQueuesAreWarningsNotFailures() {
	_, err := s.send("first")
	s.Require().NoError(err)

	res, err := s.send("second")
	s.Require().NoError(err, "the message is committed even when a viewer's queue is full")
	s.Equal(int64(2), res.Message.Sequence)
	s.Contains(res.Warnings, Warning{Participant: s.bob, Code: dErrors.CodeQueueOverflow})
}

func (s *SendSuite) TestEvaluateDraft() {
	s.Equal(DraftFeedback{Verdict: domain.OutcomeCompliant, SendEnabled: true}, s.svc.EvaluateDraft(s.ctx, "Assalamu Alaikum"))

	fb := s.svc.EvaluateDraft(s.ctx, "keep it secret")
	s.Equal(domain.OutcomeBlocked, fb.Verdict)
	s.False(fb.SendEnabled)

	fb = s.svc.EvaluateDraft(s.ctx, "come closer")
	s.Equal(domain.OutcomeFlagged, fb.Verdict)
	s.True(fb.SendEnabled)
	s.Empty(s.messages())
}

func (s *SendSuite) TestInboundFrames() {
	aliceCh, alice := s.connect(s.alice)
	_, bob := s.connect(s.bob)

	payload, err := json.Marshal(messageFrame{ConversationID: s.conv.ID, Text: "Assalamu Alaikum"})
	s.Require().NoError(err)
	s.svc.HandleInbound(s.ctx, aliceCh, connection.Inbound{Type: connection.EventMessage, Ref: "m1", Payload: payload})
	s.Equal(int64(1), bob.next(s.T(), connection.EventMessage).Payload.(connection.MessagePayload).SequenceNumber)
	alice.next(s.T(), connection.EventMessage)

	typing, err := json.Marshal(typingFrame{ConversationID: s.conv.ID, Typing: true})
	s.Require().NoError(err)
	s.svc.HandleInbound(s.ctx, aliceCh, connection.Inbound{Type: connection.EventTyping, Payload: typing})
	s.True(bob.next(s.T(), connection.EventTyping).Payload.(connection.TypingPayload).Typing)

	blocked, err := json.Marshal(messageFrame{ConversationID: s.conv.ID, Text: "keep it secret"})
	s.Require().NoError(err)
	s.svc.HandleInbound(s.ctx, aliceCh, connection.Inbound{Type: connection.EventMessage, Ref: "m2", Payload: blocked})
	e := alice.next(s.T(), connection.EventError).Payload.(connection.ErrorPayload)
	s.Equal(dErrors.CodeModerationBlocked, e.Code)
	s.Equal("m2", e.Ref)

	s.svc.HandleInbound(s.ctx, aliceCh, connection.Inbound{Type: connection.EventReadReceipt, Ref: "r1", Payload: json.RawMessage(`"nope"`)})
	e = alice.next(s.T(), connection.EventError).Payload.(connection.ErrorPayload)
	s.Equal(dErrors.CodeBadRequest, e.Code)
	s.Equal("r1", e.Ref)
}

func (s *SendSuite) TestReadReceiptReachesSender() {
	_, alice := s.connect(s.alice)
	bobCh, _ := s.connect(s.bob)
	_, err := s.send("Assalamu Alaikum")
	s.Require().NoError(err)
	alice.next(s.T(), connection.EventMessage)

	receipt, err := json.Marshal(receiptFrame{ConversationID: s.conv.ID, UptoSequence: 1, Status: domain.DeliveryRead})
	s.Require().NoError(err)
	s.svc.HandleInbound(s.ctx, bobCh, connection.Inbound{Type: connection.EventReadReceipt, Payload: receipt})

	got := alice.next(s.T(), connection.EventReadReceipt).Payload.(connection.ReceiptPayload)
	s.Equal(s.bob, got.ReaderID)
	s.Equal(int64(1), got.UptoSequence)
}

func (s *SendSuite) TestPresenceIsRelayedToCounterparts() {
	s.registry.OnStatus(s.svc.RelayPresence)
	_, bob := s.connect(s.bob)
	aliceCh, err := s.registry.Connect(s.ctx, s.alice, id.RoleUser, newRecordingConn())
	s.Require().NoError(err)

	got := bob.next(s.T(), connection.EventConnectionStatus).Payload.(connection.StatusPayload)
	s.Equal(s.alice, got.ParticipantID)
	s.Equal(connection.StatusConnected, got.Status)

	s.registry.Disconnect(aliceCh)
	got = bob.next(s.T(), connection.EventConnectionStatus).Payload.(connection.StatusPayload)
	s.Equal(connection.StatusDisconnected, got.Status)
}
