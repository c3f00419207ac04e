// Package connection owns the live channel of every online participant: outbound ordering,
// liveness probing, offline queues and reconnect flushing.
package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"chaperone/internal/connection/metrics"
	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
)

// Outcome is what happened to one event for one recipient.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeQueued  Outcome = "queued"
	OutcomeDropped Outcome = "dropped"
)

// Delivery is the per-viewer result of a fan-out.
type Delivery struct {
	Participant id.ParticipantID
	Outcome     Outcome
	Err         error
}

// StatusListener observes connection-status changes. Listeners run after registry locks are
// released and may call back into the registry.
type StatusListener func(participant id.ParticipantID, status Status, reason string)

// FlushListener observes a queued event once a reconnecting channel has written it. It runs on
// the channel's write loop.
type FlushListener func(participant id.ParticipantID, e Event)

var ErrRegistryClosed = dErrors.New(dErrors.CodeInvalidState, "connection registry is shutting down")

type entry struct {
	mu     sync.Mutex
	ch     *Channel
	queue  *Queue
	status Status
	seen   bool
}

// Registry is an explicit, instantiable connection registry; tests create as many as they need.
type Registry struct {
	mu      sync.Mutex
	entries map[id.ParticipantID]*entry
	closed  bool

	listenersMu sync.RWMutex
	listeners   []StatusListener
	flushed     []FlushListener

	queueCapacity  int
	sendBuffer     int
	probeInterval  time.Duration
	probeTimeout   time.Duration
	typingLiveness time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Registry)

func WithQueueCapacity(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.queueCapacity = n
		}
	}
}

func WithSendBuffer(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.sendBuffer = n
		}
	}
}

// WithProbe sets the liveness probe period and the silence after which a channel is dropped.
func WithProbe(interval, timeout time.Duration) Option {
	return func(r *Registry) {
		if interval > 0 {
			r.probeInterval = interval
		}
		if timeout > 0 {
			r.probeTimeout = timeout
		}
	}
}

func WithTypingLiveness(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.typingLiveness = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries:        make(map[id.ParticipantID]*entry),
		queueCapacity:  256,
		sendBuffer:     64,
		probeInterval:  20 * time.Second,
		probeTimeout:   45 * time.Second,
		typingLiveness: 5 * time.Second,
		logger:         slog.New(slog.DiscardHandler),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TypingLiveness is how long a typing signal stays worth delivering.
func (r *Registry) TypingLiveness() time.Duration { return r.typingLiveness }

func (r *Registry) entry(p id.ParticipantID) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	e, ok := r.entries[p]
	if !ok {
		e = &entry{queue: NewQueue(r.queueCapacity), status: StatusDisconnected}
		r.entries[p] = e
	}
	return e, nil
}

func (r *Registry) lookup(p id.ParticipantID) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[p]
}

// Connect attaches conn as participant's live channel. A previous channel is closed first and
// its unwritten events rejoin the queue; the queue is flushed into the new channel before it
// becomes visible to Deliver.
func (r *Registry) Connect(ctx context.Context, participant id.ParticipantID, role id.Role, conn Conn) (*Channel, error) {
	e, err := r.entry(participant)
	if err != nil {
		return nil, err
	}
	ch := newChannel(r, participant, role, conn)

	e.mu.Lock()
	reconnect := e.seen
	if old := e.ch; old != nil {
		r.detachLocked(e, old, ReasonReplaced)
		old.markReleased()
	}
	ch.backlog = e.queue.Drain()
	e.ch = ch
	e.status = StatusConnected
	e.seen = true
	flushed := len(ch.backlog)
	ch.start()
	e.mu.Unlock()

	r.metrics.ChannelOpened()
	r.metrics.Flushed(flushed)
	if reconnect {
		r.emit(participant, StatusReconnecting, "")
	}
	r.emit(participant, StatusConnected, "")
	r.logger.InfoContext(ctx, "channel connected",
		"participant_id", participant.String(),
		"channel_id", ch.ID,
		"flushed", flushed,
	)
	return ch, nil
}

// Disconnect closes the channel and returns once its unwritten events are back in the queue
// and the disconnect has been announced.
func (r *Registry) Disconnect(ch *Channel) {
	ch.shutdown(ReasonClientClosed)
	<-ch.stopped
	r.release(ch)
	<-ch.released
}

// release detaches a stopped channel if it is still the participant's current one.
func (r *Registry) release(ch *Channel) {
	e := r.lookup(ch.Participant)
	if e == nil {
		ch.markReleased()
		return
	}
	e.mu.Lock()
	if e.ch != ch {
		e.mu.Unlock()
		return
	}
	r.detachLocked(e, ch, ch.Reason())
	e.mu.Unlock()
	r.emit(ch.Participant, StatusDisconnected, ch.Reason())
	ch.markReleased()
}

// detachLocked shuts ch down, waits for its write loop and restores what it left unwritten.
// Callers hold e.mu.
func (r *Registry) detachLocked(e *entry, ch *Channel, reason string) {
	ch.shutdown(reason)
	e.queue.Restore(ch.leftovers())
	e.ch = nil
	e.status = StatusDisconnected
	r.metrics.ChannelClosed(ch.Reason())
	r.logger.Info("channel disconnected",
		"participant_id", ch.Participant.String(),
		"channel_id", ch.ID,
		"reason", ch.Reason(),
		"queued", e.queue.Len(),
	)
}

// Deliver hands e to participant's live channel, or queues it while they are offline.
// Ephemeral events are dropped instead of queued. A full queue yields ErrQueueOverflow.
func (r *Registry) Deliver(participant id.ParticipantID, e Event) (Outcome, error) {
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}
	if e.Type == EventTyping && e.Expires.IsZero() {
		e.Expires = e.Timestamp.Add(r.typingLiveness)
	}
	ent, err := r.entry(participant)
	if err != nil {
		return OutcomeDropped, err
	}

	ent.mu.Lock()
	outcome, dropped, err := r.deliverLocked(ent, e)
	ent.mu.Unlock()

	if dropped != nil {
		r.emit(participant, StatusDisconnected, dropped.Reason())
		dropped.markReleased()
	}
	return outcome, err
}

func (r *Registry) deliverLocked(ent *entry, e Event) (Outcome, *Channel, error) {
	var dropped *Channel
	if ch := ent.ch; ch != nil {
		err := ch.Send(e)
		if err == nil {
			return OutcomeSent, nil, nil
		}
		reason := ReasonWriteFailed
		if errors.Is(err, errBufferFull) {
			reason = ReasonSlowConsumer
		}
		r.detachLocked(ent, ch, reason)
		dropped = ch
	}
	if e.Type.Ephemeral() {
		return OutcomeDropped, dropped, nil
	}
	if err := ent.queue.Push(e); err != nil {
		r.metrics.Overflowed()
		return OutcomeDropped, dropped, err
	}
	r.metrics.Queued()
	return OutcomeQueued, dropped, nil
}

// Fanout delivers e to every viewer concurrently and returns once each connected viewer's
// channel has accepted it. Results follow the order of viewers.
func (r *Registry) Fanout(ctx context.Context, viewers []id.ParticipantID, e Event) []Delivery {
	if e.Timestamp.IsZero() {
		e.Timestamp = r.now()
	}
	results := make([]Delivery, len(viewers))
	var g errgroup.Group
	for i, v := range viewers {
		g.Go(func() error {
			outcome, err := r.Deliver(v, e)
			results[i] = Delivery{Participant: v, Outcome: outcome, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	for _, d := range results {
		if d.Err != nil {
			r.logger.WarnContext(ctx, "fan-out delivery failed",
				"participant_id", d.Participant.String(),
				"event", string(e.Type),
				"error", d.Err,
			)
		}
	}
	return results
}

// CloseConversation marks cid closed on every live channel of participants and tells them why.
func (r *Registry) CloseConversation(ctx context.Context, participants []id.ParticipantID, cid id.ConversationID, reason string) []Delivery {
	for _, p := range participants {
		if e := r.lookup(p); e != nil {
			e.mu.Lock()
			if e.ch != nil {
				e.ch.closeConversation(cid)
			}
			e.mu.Unlock()
		}
	}
	return r.Fanout(ctx, participants, Event{
		Type:    EventConversationClosed,
		Payload: ClosedPayload{ConversationID: cid, Reason: reason},
	})
}

func (r *Registry) OnStatus(l StatusListener) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *Registry) OnFlushed(l FlushListener) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.flushed = append(r.flushed, l)
}

func (r *Registry) emitFlushed(p id.ParticipantID, e Event) {
	r.listenersMu.RLock()
	listeners := append([]FlushListener(nil), r.flushed...)
	r.listenersMu.RUnlock()
	for _, l := range listeners {
		l(p, e)
	}
}

func (r *Registry) emit(p id.ParticipantID, status Status, reason string) {
	r.listenersMu.RLock()
	listeners := append([]StatusListener(nil), r.listeners...)
	r.listenersMu.RUnlock()
	for _, l := range listeners {
		l(p, status, reason)
	}
}

// State reports participant's current connection state.
func (r *Registry) State(p id.ParticipantID) Status {
	e := r.lookup(p)
	if e == nil {
		return StatusDisconnected
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Pending is the number of events queued for participant.
func (r *Registry) Pending(p id.ParticipantID) int {
	e := r.lookup(p)
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Len()
}

// Close shuts every live channel with a going-away reason and refuses new connections.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		ch := e.ch
		if ch != nil {
			r.detachLocked(e, ch, ReasonGoingAway)
		}
		e.mu.Unlock()
		if ch != nil {
			ch.markReleased()
		}
	}
}
