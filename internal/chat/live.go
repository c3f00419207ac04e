package chat

import (
	"context"
	"encoding/json"
	"time"

	"chaperone/internal/connection"
	"chaperone/internal/domain"
	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
)

const presenceTimeout = 5 * time.Second

type messageFrame struct {
	ConversationID id.ConversationID `json:"conversation_id"`
	Text           string            `json:"text"`
	Location       string            `json:"location,omitempty"`
}

type typingFrame struct {
	ConversationID id.ConversationID `json:"conversation_id"`
	Typing         bool              `json:"typing"`
}

type receiptFrame struct {
	ConversationID id.ConversationID     `json:"conversation_id"`
	UptoSequence   int64                 `json:"upto_sequence"`
	Status         domain.DeliveryStatus `json:"status"`
}

var errBadPayload = dErrors.New(dErrors.CodeBadRequest, "payload does not match the event type")

// HandleInbound serves frames from a participant's live channel. Failures are written back to
// the same channel as error events carrying the frame's ref.
func (s *Service) HandleInbound(ctx context.Context, ch *connection.Channel, in connection.Inbound) {
	var err error
	switch in.Type {
	case connection.EventMessage:
		err = s.inboundMessage(ctx, ch, in)
	case connection.EventTyping:
		var f typingFrame
		if json.Unmarshal(in.Payload, &f) != nil {
			err = errBadPayload
			break
		}
		err = s.Typing(ctx, ch.Participant, f.ConversationID, f.Typing)
	case connection.EventReadReceipt:
		var f receiptFrame
		if json.Unmarshal(in.Payload, &f) != nil {
			err = errBadPayload
			break
		}
		_, err = s.Acknowledge(ctx, ch.Participant, f.ConversationID, f.UptoSequence, f.Status)
	default:
		err = dErrors.New(dErrors.CodeBadRequest, "unsupported event type: "+string(in.Type))
	}
	if err != nil {
		s.reply(ctx, ch, err, in.Ref)
	}
}

func (s *Service) inboundMessage(ctx context.Context, ch *connection.Channel, in connection.Inbound) error {
	var f messageFrame
	if json.Unmarshal(in.Payload, &f) != nil {
		return errBadPayload
	}
	if ch.ConversationClosed(f.ConversationID) {
		return dErrors.New(dErrors.CodeConversationTerminated, "conversation has been terminated")
	}
	res, err := s.Send(ctx, SendRequest{
		ConversationID: f.ConversationID,
		SenderID:       ch.Participant,
		Text:           f.Text,
		Location:       f.Location,
	})
	if err != nil {
		return err
	}
	// The committed message itself reaches the sender through fan-out.
	if len(res.Warnings) > 0 {
		s.reply(ctx, ch, connection.ErrQueueOverflow, in.Ref)
	}
	return nil
}

func (s *Service) reply(ctx context.Context, ch *connection.Channel, err error, ref string) {
	if sendErr := ch.Send(connection.NewErrorEvent(err, ref, s.now())); sendErr != nil {
		s.logger.DebugContext(ctx, "could not report inbound failure",
			"participant_id", ch.Participant.String(),
			"error", err,
		)
	}
}

// RelayPresence tells the counterparts of every open conversation when participant's
// connection status changes. It fits connection.StatusListener.
func (s *Service) RelayPresence(participant id.ParticipantID, status connection.Status, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	convs, err := s.conversations.ListConversations(ctx, participant)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to list conversations for presence", "participant_id", participant.String(), "error", err)
		return
	}
	e := connection.Event{
		Type:      connection.EventConnectionStatus,
		Payload:   connection.StatusPayload{ParticipantID: participant, Status: status, Reason: reason},
		Timestamp: s.now(),
	}
	seen := make(map[id.ParticipantID]bool)
	for _, c := range convs {
		if c.IsTerminated() {
			continue
		}
		other, ok := c.Counterpart(participant)
		if !ok || seen[other] {
			continue
		}
		seen[other] = true
		if _, err := s.relay.Deliver(other, e); err != nil {
			s.logger.DebugContext(ctx, "presence not relayed", "to", other.String(), "error", err)
		}
	}
}
