package connection

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
)

const maxInboundFrame = 64 << 10

// WebSocketConn adapts a gorilla connection to Conn.
type WebSocketConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	closeOnce    sync.Once
}

func NewWebSocketConn(ws *websocket.Conn, writeTimeout time.Duration) *WebSocketConn {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &WebSocketConn{ws: ws, writeTimeout: writeTimeout}
}

func (c *WebSocketConn) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.writeTimeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}

func (c *WebSocketConn) WriteEvent(ctx context.Context, e Event) error {
	if err := c.ws.SetWriteDeadline(c.deadline(ctx)); err != nil {
		return err
	}
	return c.ws.WriteJSON(e)
}

func (c *WebSocketConn) Ping(ctx context.Context) error {
	return c.ws.WriteControl(websocket.PingMessage, nil, c.deadline(ctx))
}

func (c *WebSocketConn) Close(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(closeCode(reason), reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
		err = c.ws.Close()
	})
	return err
}

func closeCode(reason string) int {
	switch reason {
	case ReasonGoingAway, ReasonTimeout:
		return websocket.CloseGoingAway
	case ReasonSlowConsumer:
		return websocket.CloseTryAgainLater
	case ReasonReplaced:
		return websocket.ClosePolicyViolation
	default:
		return websocket.CloseNormalClosure
	}
}

// Serve attaches ws to the registry and runs its read loop until the socket fails or closes.
// Pongs and inbound frames both refresh liveness.
func Serve(ctx context.Context, r *Registry, participant id.ParticipantID, role id.Role, ws *websocket.Conn, writeTimeout time.Duration, handlers ...Handler) error {
	conn := NewWebSocketConn(ws, writeTimeout)
	ch, err := r.Connect(ctx, participant, role, conn)
	if err != nil {
		_ = conn.Close(ReasonGoingAway)
		return err
	}
	defer r.Disconnect(ch)

	for _, h := range handlers {
		ch.OnEvent(h)
	}
	ws.SetReadLimit(maxInboundFrame)
	ws.SetPongHandler(func(string) error {
		ch.Touch()
		return nil
	})

	for {
		var in Inbound
		err := ws.ReadJSON(&in)
		if malformed(err) {
			_ = ch.Send(NewErrorEvent(errMalformedFrame, "", r.now()))
			continue
		}
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.WarnContext(ctx, "websocket read failed",
					"participant_id", participant.String(),
					"error", err,
				)
			}
			return nil
		}
		ch.Receive(ctx, in)
	}
}

var errMalformedFrame = dErrors.New(dErrors.CodeBadRequest, "frame is not a valid event")

func malformed(err error) bool {
	var syntax *json.SyntaxError
	var typ *json.UnmarshalTypeError
	return errors.As(err, &syntax) || errors.As(err, &typ)
}
