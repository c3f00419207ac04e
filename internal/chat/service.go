// Package chat runs the send pipeline: membership, guardian policy, moderation and then the
// ordered commit. It also serves the inbound side of live channels.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"chaperone/internal/connection"
	"chaperone/internal/delivery"
	"chaperone/internal/domain"
	"chaperone/internal/policy/models"
	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
	"chaperone/pkg/platform/sentinel"
)

var tracer = otel.Tracer("chaperone/chat")

type Service struct {
	conversations Conversations
	policy        Authorizer
	moderation    Moderator
	messages      Committer
	relay         Relay
	logger        *slog.Logger
	now           func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(conversations Conversations, policy Authorizer, moderation Moderator, messages Committer, relay Relay, opts ...Option) (*Service, error) {
	if conversations == nil || policy == nil || moderation == nil || messages == nil || relay == nil {
		return nil, errors.New("chat service dependencies are required")
	}
	s := &Service{
		conversations: conversations,
		policy:        policy,
		moderation:    moderation,
		messages:      messages,
		relay:         relay,
		logger:        slog.New(slog.DiscardHandler),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type SendRequest struct {
	ConversationID id.ConversationID
	SenderID       id.ParticipantID
	Text           string
	// Location is the client's location fingerprint, checked when the sender's policy asks.
	Location string
}

// Warning is a problem that did not stop the send.
type Warning struct {
	Participant id.ParticipantID `json:"participant_id"`
	Code        dErrors.Code     `json:"code"`
}

type SendResult struct {
	Message    *domain.Message `json:"message"`
	Overridden bool            `json:"overridden,omitempty"`
	Warnings   []Warning       `json:"warnings,omitempty"`
}

// Send commits one message. Every refusal comes back as a coded error and leaves nothing
// persisted, not even rate or budget usage; a flagged message is committed with a pending
// review.
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	ctx, span := tracer.Start(ctx, "chat.Send")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", req.ConversationID.String()))

	if _, err := s.member(ctx, req.SenderID, req.ConversationID); err != nil {
		return nil, err
	}

	decision, err := s.policy.Authorize(ctx, req.SenderID, models.Action{
		Kind:           models.ActionSend,
		ConversationID: req.ConversationID,
		Location:       req.Location,
	})
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		span.SetAttributes(attribute.String("chat.denied", string(decision.Reason)))
		return nil, decision.Err()
	}

	verdict, err := s.moderation.Evaluate(ctx, req.Text)
	if err != nil {
		return nil, err
	}
	if !verdict.SendEnabled() {
		s.moderation.RecordBlocked(ctx, verdict)
		span.SetAttributes(attribute.String("chat.blocked", verdict.ReasonCode))
		return nil, dErrors.New(dErrors.CodeModerationBlocked, "this message cannot be sent")
	}

	res, err := s.messages.Commit(ctx, delivery.CommitRequest{
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		Text:           req.Text,
		Verdict:        verdict,
		AllowPaused:    decision.Overridden(),
	})
	if err != nil {
		return nil, err
	}
	if err := s.policy.Consume(ctx, req.SenderID, decision); err != nil {
		s.logger.WarnContext(ctx, "committed message was not charged to rate limit or budget",
			"message_id", res.Message.ID.String(),
			"participant_id", req.SenderID.String(),
			"error", err,
		)
	}

	out := &SendResult{Message: res.Message, Overridden: decision.Overridden()}
	for _, p := range res.Undelivered {
		out.Warnings = append(out.Warnings, Warning{Participant: p, Code: dErrors.CodeQueueOverflow})
	}
	if len(out.Warnings) > 0 {
		s.logger.WarnContext(ctx, "message committed but some offline queues are full",
			"message_id", res.Message.ID.String(),
			"undelivered", len(out.Warnings),
		)
	}
	return out, nil
}

// DraftFeedback is the keystroke-level moderation answer.
type DraftFeedback struct {
	Verdict     domain.Outcome `json:"verdict"`
	ReasonCode  string         `json:"reason_code,omitempty"`
	SendEnabled bool           `json:"send_enabled"`
}

// EvaluateDraft classifies a draft without persisting anything. An unavailable oracle is
// reported as a disabled send button, not as an error.
func (s *Service) EvaluateDraft(ctx context.Context, text string) DraftFeedback {
	v, err := s.moderation.Evaluate(ctx, text)
	if err != nil {
		s.logger.DebugContext(ctx, "draft evaluation failed closed", "error", err)
	}
	return DraftFeedback{Verdict: v.Outcome, ReasonCode: v.ReasonCode, SendEnabled: err == nil && v.SendEnabled()}
}

// Acknowledge records a read receipt from viewer.
func (s *Service) Acknowledge(ctx context.Context, viewer id.ParticipantID, cid id.ConversationID, uptoSeq int64, status domain.DeliveryStatus) (*delivery.AckResult, error) {
	return s.messages.Acknowledge(ctx, viewer, cid, uptoSeq, status)
}

// Typing relays a typing signal to the counterpart's live channel. It is never queued.
func (s *Service) Typing(ctx context.Context, participant id.ParticipantID, cid id.ConversationID, typing bool) error {
	conv, err := s.member(ctx, participant, cid)
	if err != nil {
		return err
	}
	if conv.Status != domain.ConversationActive {
		return conv.Status.Err()
	}
	counterpart, _ := conv.Counterpart(participant)
	_, err = s.relay.Deliver(counterpart, connection.Event{
		Type:      connection.EventTyping,
		Payload:   connection.TypingPayload{ConversationID: cid, ParticipantID: participant, Typing: typing},
		Timestamp: s.now(),
	})
	return err
}

func (s *Service) member(ctx context.Context, pid id.ParticipantID, cid id.ConversationID) (*domain.Conversation, error) {
	conv, err := s.conversations.GetConversation(ctx, cid)
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
