package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	id "chaperone/pkg/domain"
)

// Conn is the socket under a channel. WriteEvent is only called from the channel's write loop;
// Ping and Close may run concurrently with it.
type Conn interface {
	WriteEvent(ctx context.Context, e Event) error
	Ping(ctx context.Context) error
	Close(reason string) error
}

// Handler receives inbound frames in arrival order.
type Handler func(ctx context.Context, ch *Channel, in Inbound)

// Shutdown reasons reported in disconnected status events and metrics.
const (
	ReasonClientClosed = "client_closed"
	ReasonReplaced     = "replaced"
	ReasonTimeout      = "connection_timeout"
	ReasonWriteFailed  = "write_failed"
	ReasonSlowConsumer = "slow_consumer"
	ReasonGoingAway    = "going_away"
)

var (
	errChannelClosed = errors.New("channel closed")
	errBufferFull    = errors.New("channel send buffer full")
)

// Channel is one participant's live connection. It runs a write loop and a probe loop until
// it is shut down; events it accepted but never wrote are handed back to the registry.
type Channel struct {
	ID          string
	Participant id.ParticipantID
	Role        id.Role

	conn     Conn
	registry *Registry

	mu      sync.Mutex
	closed  bool
	reason  string
	out     chan Event
	backlog []Event

	done         chan struct{}
	stopped      chan struct{}
	released     chan struct{}
	releasedOnce sync.Once
	left         []Event

	lastSeen atomic.Int64

	handlersMu sync.RWMutex
	handlers   []Handler

	closedMu      sync.RWMutex
	closedThreads map[id.ConversationID]struct{}
}

func newChannel(r *Registry, participant id.ParticipantID, role id.Role, conn Conn) *Channel {
	ch := &Channel{
		ID:            uuid.NewString(),
		Participant:   participant,
		Role:          role,
		conn:          conn,
		registry:      r,
		out:           make(chan Event, r.sendBuffer),
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
		released:      make(chan struct{}),
		closedThreads: make(map[id.ConversationID]struct{}),
	}
	ch.lastSeen.Store(r.now().UnixNano())
	return ch
}

// Send enqueues e for this channel only. Use Registry.Deliver to fall back to the offline queue.
func (c *Channel) Send(e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errChannelClosed
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = c.registry.now()
	}
	select {
	case c.out <- e:
		return nil
	default:
		return errBufferFull
	}
}

// OnEvent registers a handler for inbound frames.
func (c *Channel) OnEvent(h Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Receive dispatches an inbound frame to the registered handlers. Any inbound frame counts as
// proof of liveness.
func (c *Channel) Receive(ctx context.Context, in Inbound) {
	c.Touch()
	c.handlersMu.RLock()
	handlers := append([]Handler(nil), c.handlers...)
	c.handlersMu.RUnlock()
	for _, h := range handlers {
		h(ctx, c, in)
	}
}

// Touch records a probe response.
func (c *Channel) Touch() {
	c.lastSeen.Store(c.registry.now().UnixNano())
}

// Done is closed once the channel starts shutting down.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Reason reports why the channel shut down.
func (c *Channel) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// ConversationClosed reports whether a terminate directive closed cid on this channel.
func (c *Channel) ConversationClosed(cid id.ConversationID) bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	_, ok := c.closedThreads[cid]
	return ok
}

func (c *Channel) closeConversation(cid id.ConversationID) {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()
	c.closedThreads[cid] = struct{}{}
}

func (c *Channel) start() {
	go c.writeLoop()
	go c.probeLoop()
	go func() {
		<-c.stopped
		c.registry.release(c)
	}()
}

// shutdown stops accepting events and closes the socket. It reports whether this call did it.
func (c *Channel) shutdown(reason string) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	c.reason = reason
	close(c.done)
	c.mu.Unlock()
	_ = c.conn.Close(reason)
	return true
}

func (c *Channel) writeLoop() {
	defer close(c.stopped)
	ctx := context.Background()

	for i, e := range c.backlog {
		if err := c.write(ctx, e); err != nil {
			c.shutdown(ReasonWriteFailed)
			c.collectLeftovers(c.backlog[i:])
			return
		}
		c.registry.emitFlushed(c.Participant, e)
	}
	c.backlog = nil

	for {
		select {
		case <-c.done:
			c.collectLeftovers(nil)
			return
		case e := <-c.out:
			if err := c.write(ctx, e); err != nil {
				c.shutdown(ReasonWriteFailed)
				c.collectLeftovers([]Event{e})
				return
			}
		}
	}
}

func (c *Channel) write(ctx context.Context, e Event) error {
	if e.expired(c.registry.now()) {
		c.registry.metrics.TypingExpired()
		return nil
	}
	return c.conn.WriteEvent(ctx, e)
}

// collectLeftovers runs after shutdown, when no further Send can succeed, so draining out
// here sees every event the channel ever accepted.
func (c *Channel) collectLeftovers(unwritten []Event) {
	pending := append([]Event(nil), unwritten...)
	for {
		select {
		case e := <-c.out:
			pending = append(pending, e)
		default:
			c.left = keepDurable(pending)
			return
		}
	}
}

func keepDurable(events []Event) []Event {
	out := events[:0]
	for _, e := range events {
		if !e.Type.Ephemeral() {
			out = append(out, e)
		}
	}
	return out
}

// markReleased signals that the registry has detached the channel and announced it.
func (c *Channel) markReleased() {
	c.releasedOnce.Do(func() { close(c.released) })
}

// leftovers hands back unwritten durable events once the write loop has exited.
func (c *Channel) leftovers() []Event {
	<-c.stopped
	out := c.left
	c.left = nil
	return out
}

func (c *Channel) probeLoop() {
	ticker := time.NewTicker(c.registry.probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			last := time.Unix(0, c.lastSeen.Load())
			if c.registry.now().Sub(last) > c.registry.probeTimeout {
				c.shutdown(ReasonTimeout)
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), c.registry.probeInterval)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.shutdown(ReasonWriteFailed)
				return
			}
		}
	}
}
