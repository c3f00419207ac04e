package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
)

var errFakeClosed = errors.New("fake conn closed")

type fakeConn struct {
	mu        sync.Mutex
	events    []Event
	closed    bool
	reason    string
	failAfter int
	gate      chan struct{}
	closedCh  chan struct{}
	inflight  atomic.Int32
	onPing    func()
}

func newFakeConn() *fakeConn {
	return &fakeConn{failAfter: -1, closedCh: make(chan struct{})}
}

// gated makes writes wait until release is called or the conn closes.
func (c *fakeConn) gated() *fakeConn {
	c.gate = make(chan struct{})
	return c
}

func (c *fakeConn) release() { close(c.gate) }

func (c *fakeConn) WriteEvent(_ context.Context, e Event) error {
	c.inflight.Add(1)
	defer c.inflight.Add(-1)
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-c.closedCh:
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.failAfter == 0 {
		return errFakeClosed
	}
	if c.failAfter > 0 {
		c.failAfter--
	}
	c.events = append(c.events, e)
	return nil
}

func (c *fakeConn) Ping(context.Context) error {
	if c.onPing != nil {
		c.onPing()
	}
	return nil
}

func (c *fakeConn) Close(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.reason = reason
		close(c.closedCh)
	}
	return nil
}

func (c *fakeConn) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *fakeConn) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func (c *fakeConn) labels() []string {
	var out []string
	for _, e := range c.Events() {
		if s, ok := e.Payload.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

type statusLog struct {
	mu      sync.Mutex
	entries []StatusPayload
}

func (l *statusLog) record(p id.ParticipantID, s Status, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, StatusPayload{ParticipantID: p, Status: s, Reason: reason})
}

func (l *statusLog) statuses(p id.ParticipantID) []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Status
	for _, e := range l.entries {
		if e.ParticipantID == p {
			out = append(out, e.Status)
		}
	}
	return out
}

func (l *statusLog) reasonFor(p id.ParticipantID, s Status) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.ParticipantID == p && e.Status == s {
			return e.Reason
		}
	}
	return ""
}

func msg(label string) Event {
	return Event{Type: EventMessage, Payload: label}
}

type RegistrySuite struct {
	suite.Suite
	ctx      context.Context
	registry *Registry
	log      *statusLog
	alice    id.ParticipantID
	bob      id.ParticipantID
}

func (s *RegistrySuite) SetupTest() {
	s.ctx = context.Background()
	s.log = &statusLog{}
	s.registry = NewRegistry(WithQueueCapacity(3), WithSendBuffer(16), WithProbe(time.Hour, 2*time.Hour))
	s.registry.OnStatus(s.log.record)
	s.alice, s.bob = id.NewParticipantID(), id.NewParticipantID()
}

func (s *RegistrySuite) TearDownTest() {
	s.registry.Close()
}

func (s *RegistrySuite) waitLabels(c *fakeConn, want ...string) {
	s.Require().Eventually(func() bool { return len(c.labels()) >= len(want) }, time.Second, time.Millisecond)
	s.Equal(want, c.labels())
}

func (s *RegistrySuite) TestDeliverToLiveChannelInOrder() {
	conn := newFakeConn()
	_, err := s.registry.Connect(s.ctx, s.alice, id.RoleUser, conn)
	s.Require().NoError(err)

	for _, l := range []string{"1", "2", "3"} {
		outcome, err := s.registry.Deliver(s.alice, msg(l))
		s.Require().NoError(err)
		s.Equal(OutcomeSent, outcome)
	}
	s.waitLabels(conn, "1", "2", "3")
	s.Equal(StatusConnected, s.registry.State(s.alice))
}

func (s *RegistrySuite) TestOfflineQueueFlushesBeforeLiveEvents() {
	for _, l := range []string{"1", "2"} {
		outcome, err := s.registry.Deliver(s.alice, msg(l))
		s.Require().NoError(err)
		s.Equal(OutcomeQueued, outcome)
	}
	s.Equal(2, s.registry.Pending(s.alice))

	conn := newFakeConn()
	_, err := s.registry.Connect(s.ctx, s.alice, id.RoleUser, conn)
	s.Require().NoError(err)
	_, err = s.registry.Deliver(s.alice, msg("3"))
	s.Require().NoError(err)

	s.waitLabels(conn, "1", "2", "3")
	s.Zero(s.registry.Pending(s.alice))
}

func (s *RegistrySuite) TestFlushListenerSeesOnlyQueuedEvents() {
	var (
		mu      sync.Mutex
		flushed []string
	)
	s.registry.OnFlushed(func(p id.ParticipantID, e Event) {
		mu.Lock()
		defer mu.Unlock()
		s.Equal(s.alice, p)
		flushed = append(flushed, e.Payload.(string))
	})
	for _, l := range []string{"1", "2"} {
		_, err := s.registry.Deliver(s.alice, msg(l))
		s.Require().NoError(err)
	}

	conn := newFakeConn()
	_, err := s.registry.Connect(s.ctx, s.alice, id.RoleUser, conn)
	s.Require().NoError(err)
	_, err = s.registry.Deliver(s.alice, msg("3"))
	s.Require().NoError(err)

	s.waitLabels(conn, "1", "2", "3")
	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(flushed) == 2
	}, time.Second, time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	s.Equal([]string{"1", "2"}, flushed)
}

func (s *RegistrySuite) TestQueueOverflowIsSurfaced() {
	for _, l := range []string{"1", "2", "3"} {
		_, err := s.registry.Deliver(s.alice, msg(l))
		s.Require().NoError(err)
	}
	outcome, err := s.registry.Deliver(s.alice, msg("4"))
	s.Equal(OutcomeDropped, outcome)
	s.ErrorIs(err, ErrQueueOverflow)
	s.True(dErrors.HasCode(err, dErrors.CodeQueueOverflow))

	conn := newFakeConn()
	_, err = s.registry.Connect(s.ctx, s.alice, id.RoleUser, conn)
	s.Require().NoError(err)
	s.waitLabels(conn, "1", "2", "3")
}

func (s *RegistrySuite) TestTypingIsNeverQueued() {
	outcome, err := s.registry.Deliver(s.alice, Event{Type: EventTyping, Payload: "typing"})
	s.Require().NoError(err)
	s.Equal(OutcomeDropped, outcome)
	s.Zero(s.registry.Pending(s.alice))
}

func (s *RegistrySuite) TestExpiredTypingIsDroppedByWriter() {
	conn := newFakeConn().gated()
	_, err := s.registry.Connect(s.ctx, s.alice, id.RoleUser, conn)
	s.Require().NoError(err)

	_, err = s.registry.Deliver(s.alice, Event{Type: EventTyping, Payload: "stale", Expires: time.Now().Add(-time.Second)})
	s.Require().NoError(err)
	_, err = s.registry.Deliver(s.alice, Event{Type: EventTyping, Payload: "fresh", Expires: time.Now().Add(time.Hour)})
	s.Require().NoError(err)
	conn.release()
	_, err = s.registry.Deliver(s.alice, msg("after"))
	s.Require().NoError(err)

	s.Require().Eventually(func() bool { return len(conn.labels()) >= 2 }, time.Second, time.Millisecond)
	s.Equal([]string{"fresh", "after"}, conn.labels())
}

func (s *RegistrySuite) TestReconnectEmitsStatusSequence() {
	first := newFakeConn()
	ch, err := s.registry.Connect(s.ctx, s.alice, id.RoleUser, first)
	s.Require().NoError(err)
	s.registry.Disconnect(ch)
	s.Equal(StatusDisconnected, s.registry.State(s.alice))

	_, err = s.registry.Connect(s.ctx, s.alice, id.RoleUser, newFakeConn())
	s.Require().NoError(err)

	s.Eventually(func() bool { return len(s.log.statuses(s.alice)) == 4 }, time.Second, time.Millisecond)
	s.Equal([]Status{StatusConnected, StatusDisconnected, StatusReconnecting, StatusConnected}, s.log.statuses(s.alice))
	s.Equal(ReasonClientClosed, s.log.reasonFor(s.alice, StatusDisconnected))
}

func (s *RegistrySuite) TestReplacingChannelClosesOldOne() {
	first := newFakeConn()
	_, err := s.registry.Connect(s.ctx, s.alice, id.RoleUser, first)
	s.Require().NoError(err)
	second := newFakeConn()
	_, err = s.registry.Connect(s.ctx, s.alice, id.RoleUser, second)
	s.Require().NoError(err)

	s.Equal(ReasonReplaced, first.Reason())
	_, err = s.registry.Deliver(s.alice, msg("x"))
	s.Require().NoError(err)
	s.waitLabels(second, "x")
	s.Empty(first.labels())
}

func (s *RegistrySuite) TestUnwrittenEventsRejoinQueueExactlyOnce() {
	conn := newFakeConn()
	conn.failAfter = 1
	_, err := s.registry.Connect(s.ctx, s.alice, id.RoleUser, conn)
	s.Require().NoError(err)

	for _, l := range []string{"1", "2", "3"} {
		_, err := s.registry.Deliver(s.alice, msg(l))
		s.Require().NoError(err)
	}
	s.Eventually(func() bool { return s.registry.State(s.alice) == StatusDisconnected }, time.Second, time.Millisecond)

	next := newFakeConn()
	_, err = s.registry.Connect(s.ctx, s.alice, id.RoleUser, next)
	s.Require().NoError(err)

	s.Equal([]string{"1"}, conn.labels())
	s.waitLabels(next, "2", "3")
}

func (s *RegistrySuite) TestSlowConsumerIsCutLooseWithoutLosingEvents() {
	s.registry = NewRegistry(WithQueueCapacity(8), WithSendBuffer(1), WithProbe(time.Hour, 2*time.Hour))
	conn := newFakeConn().gated()
	_, err := s.registry.Connect(s.ctx, s.alice, id.RoleUser, conn)
	s.Require().NoError(err)

	outcome, err := s.registry.Deliver(s.alice, msg("1"))
	s.Require().NoError(err)
	s.Equal(OutcomeSent, outcome)
	s.Require().Eventually(func() bool { return conn.inflight.Load() == 1 }, time.Second, time.Millisecond)
	outcome, err = s.registry.Deliver(s.alice, msg("2"))
	s.Require().NoError(err)
	s.Equal(OutcomeSent, outcome)

	outcome, err = s.registry.Deliver(s.alice, msg("3"))
	s.Require().NoError(err)
	s.Equal(OutcomeQueued, outcome)
	s.Equal(ReasonSlowConsumer, conn.Reason())
	s.Equal(3, s.registry.Pending(s.alice))

	next := newFakeConn()
	_, err = s.registry.Connect(s.ctx, s.alice, id.RoleUser, next)
	s.Require().NoError(err)
	s.waitLabels(next, "1", "2", "3")
}

func (s *RegistrySuite) TestProbeTimeoutDisconnects() {
	s.registry = NewRegistry(WithProbe(5*time.Millisecond, 20*time.Millisecond))
	s.registry.OnStatus(s.log.record)
	conn := newFakeConn()
	ch, err := s.registry.Connect(s.ctx, s.alice, id.RoleUser, conn)
	s.Require().NoError(err)

	s.Eventually(func() bool { return s.registry.State(s.alice) == StatusDisconnected }, time.Second, time.Millisecond)
	s.Equal(ReasonTimeout, ch.Reason())
	s.Eventually(func() bool { return s.log.reasonFor(s.alice, StatusDisconnected) == ReasonTimeout }, time.Second, time.Millisecond)
}

func (s *RegistrySuite) TestProbeResponsesKeepChannelAlive() {
	s.registry = NewRegistry(WithProbe(5*time.Millisecond, 20*time.Millisecond))
	conn := newFakeConn()
	var ch *Channel
	var mu sync.Mutex
	conn.onPing = func() {
		mu.Lock()
		defer mu.Unlock()
		if ch != nil {
			ch.Touch()
		}
	}
	got, err := s.registry.Connect(s.ctx, s.alice, id.RoleUser, conn)
	s.Require().NoError(err)
	mu.Lock()
	ch = got
	mu.Unlock()

	time.Sleep(80 * time.Millisecond)
	s.Equal(StatusConnected, s.registry.State(s.alice))
}

func (s *RegistrySuite) TestFanoutOutcomes() {
	aliceConn, bobConn := newFakeConn(), newFakeConn()
	_, err := s.registry.Connect(s.ctx, s.alice, id.RoleUser, aliceConn)
	s.Require().NoError(err)
	_, err = s.registry.Connect(s.ctx, s.bob, id.RoleUser, bobConn)
	s.Require().NoError(err)
	guardian := id.NewParticipantID()

	results := s.registry.Fanout(s.ctx, []id.ParticipantID{s.alice, s.bob, guardian}, msg("hello"))
	s.Require().Len(results, 3)
	s.Equal(OutcomeSent, results[0].Outcome)
	s.Equal(OutcomeSent, results[1].Outcome)
	s.Equal(OutcomeQueued, results[2].Outcome)
	s.Equal(guardian, results[2].Participant)
	s.waitLabels(aliceConn, "hello")
	s.waitLabels(bobConn, "hello")
}

func (s *RegistrySuite) TestFanoutPreservesOrderAcrossViewers() {
	s.registry = NewRegistry(WithSendBuffer(128))
	aliceConn, bobConn := newFakeConn(), newFakeConn()
	_, err := s.registry.Connect(s.ctx, s.alice, id.RoleUser, aliceConn)
	s.Require().NoError(err)
	_, err = s.registry.Connect(s.ctx, s.bob, id.RoleUser, bobConn)
	s.Require().NoError(err)

	var want []string
	for i := range 50 {
		l := string(rune('A' + i%26))
		l += string(rune('a' + i/26))
		want = append(want, l)
		s.registry.Fanout(s.ctx, []id.ParticipantID{s.alice, s.bob}, msg(l))
	}
	s.waitLabels(aliceConn, want...)
	s.waitLabels(bobConn, want...)
}

func (s *RegistrySuite) TestCloseConversation() {
	conn := newFakeConn()
	ch, err := s.registry.Connect(s.ctx, s.alice, id.RoleUser, conn)
	s.Require().NoError(err)
	cid := id.NewConversationID()

	s.registry.CloseConversation(s.ctx, []id.ParticipantID{s.alice, s.bob}, cid, "terminated by guardian")
	s.True(ch.ConversationClosed(cid))
	s.False(ch.ConversationClosed(id.NewConversationID()))
	s.Equal(1, s.registry.Pending(s.bob), "offline participant learns on reconnect")

	s.Eventually(func() bool { return len(conn.Events()) == 1 }, time.Second, time.Millisecond)
	s.Equal(EventConversationClosed, conn.Events()[0].Type)
}

func (s *RegistrySuite) TestCloseRefusesNewConnections() {
	conn := newFakeConn()
	_, err := s.registry.Connect(s.ctx, s.alice, id.RoleUser, conn)
	s.Require().NoError(err)

	s.registry.Close()
	s.Equal(ReasonGoingAway, conn.Reason())
	_, err = s.registry.Connect(s.ctx, s.bob, id.RoleUser, newFakeConn())
	s.ErrorIs(err, ErrRegistryClosed)
}

func (s *RegistrySuite) TestInboundHandlersRunInOrder() {
	ch, err := s.registry.Connect(s.ctx, s.alice, id.RoleUser, newFakeConn())
	s.Require().NoError(err)
	var got []EventType
	ch.OnEvent(func(_ context.Context, c *Channel, in Inbound) {
		s.Equal(s.alice, c.Participant)
		got = append(got, in.Type)
	})
	ch.Receive(s.ctx, Inbound{Type: EventTyping})
	ch.Receive(s.ctx, Inbound{Type: EventMessage})
	s.Equal([]EventType{EventTyping, EventMessage}, got)
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func TestQueue(t *testing.T) {
	q := NewQueue(2)
	require.NoError(t, q.Push(msg("b")))
	require.NoError(t, q.Push(msg("c")))
	assert.ErrorIs(t, q.Push(msg("d")), ErrQueueOverflow)

	q.Restore([]Event{msg("a")})
	assert.Equal(t, 3, q.Len())
	var labels []string
	for _, e := range q.Drain() {
		labels = append(labels, e.Payload.(string))
	}
	assert.Equal(t, []string{"a", "b", "c"}, labels)
	assert.Zero(t, q.Len())
}

func TestNewErrorEventHidesInternalDetail(t *testing.T) {
	e := NewErrorEvent(errors.New("db exploded"), "r1", time.Now())
	payload := e.Payload.(ErrorPayload)
	assert.Equal(t, dErrors.CodeInternal, payload.Code)
	assert.Equal(t, "internal error", payload.Message)

	e = NewErrorEvent(dErrors.New(dErrors.CodeRateLimited, "slow down"), "r2", time.Now())
	payload = e.Payload.(ErrorPayload)
	assert.Equal(t, dErrors.CodeRateLimited, payload.Code)
	assert.Equal(t, "r2", payload.Ref)
}
