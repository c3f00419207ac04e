// Package delivery commits moderated messages and fans them out to every viewer of a
// conversation. Commits within one conversation are serialized so sequence numbers and
// per-viewer arrival order agree; different conversations proceed in parallel.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	approvalmodels "chaperone/internal/approval/models"
	"chaperone/internal/connection"
	"chaperone/internal/delivery/metrics"
	"chaperone/internal/domain"
	policymodels "chaperone/internal/policy/models"
	"chaperone/internal/storage"
	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
	"chaperone/pkg/platform/sentinel"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	// MaxContentLength bounds a message body in bytes.
	MaxContentLength = 4096
)

var tracer = otel.Tracer("chaperone/delivery")

type Store interface {
	GetConversation(ctx context.Context, cid id.ConversationID) (*domain.Conversation, error)
	AppendMessage(ctx context.Context, msg *domain.Message, review *approvalmodels.ApprovalRequest, opts storage.AppendOptions) error
	GetMessage(ctx context.Context, mid id.MessageID) (*domain.Message, error)
	ListMessages(ctx context.Context, cid id.ConversationID, afterSeq int64, limit int) ([]*domain.Message, error)
	AdvanceDeliveryStatus(ctx context.Context, cid id.ConversationID, recipient id.ParticipantID, uptoSeq int64, status domain.DeliveryStatus) ([]*domain.Message, error)
	ResolveReview(ctx context.Context, mid id.MessageID, annotation domain.Annotation, by id.ParticipantID, at time.Time) (*domain.Message, error)
	GuardiansOf(ctx context.Context, ward id.ParticipantID) ([]id.ParticipantID, error)
	GetPolicy(ctx context.Context, ward id.ParticipantID) (*policymodels.PermissionPolicy, error)
}

// Dispatcher pushes events to live channels or offline queues.
type Dispatcher interface {
	Fanout(ctx context.Context, viewers []id.ParticipantID, e connection.Event) []connection.Delivery
	Deliver(participant id.ParticipantID, e connection.Event) (connection.Outcome, error)
}

type CommitRequest struct {
	ConversationID id.ConversationID
	SenderID       id.ParticipantID
	Text           string
	Verdict        domain.Verdict
	// AllowPaused lets an emergency override write into a paused conversation.
	AllowPaused bool
}

type CommitResult struct {
	Message    *domain.Message
	Review     *approvalmodels.ApprovalRequest
	Deliveries []connection.Delivery
	// Undelivered lists viewers whose offline queue refused the message.
	Undelivered []id.ParticipantID
}

type Engine struct {
	store   Store
	out     Dispatcher
	reviews ReviewBuilder
	locks   conversationLocks
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLockTimeout bounds how long a commit without a deadline of its own waits for its
// conversation and then runs.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) { e.locks.timeout = d }
}

func New(store Store, out Dispatcher, reviews ReviewBuilder, opts ...Option) (*Engine, error) {
	if store == nil || out == nil {
		return nil, errors.New("store and dispatcher are required")
	}
	e := &Engine{
		store:   store,
		out:     out,
		reviews: reviews,
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Commit persists a moderated message and fans it out. Blocked verdicts are refused before
// the store is touched. A flagged verdict is committed together with its review request.
func (e *Engine) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	ctx, span := tracer.Start(ctx, "delivery.Commit")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation.id", req.ConversationID.String()),
		attribute.String("moderation.verdict", req.Verdict.Outcome.String()),
	)

	if !req.Verdict.SendEnabled() {
		e.metrics.Refused("blocked")
		return nil, dErrors.New(dErrors.CodeModerationBlocked, "message was blocked by moderation")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "message text is required")
	}
	if len(req.Text) > MaxContentLength {
		return nil, dErrors.New(dErrors.CodeValidation, "message text is too long")
	}

	var result *CommitResult
	err := e.locks.run(ctx, req.ConversationID, func(ctx context.Context) error {
		var err error
		result, err = e.commitLocked(ctx, req)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}
	if result.Review != nil && e.reviews != nil {
		e.reviews.ReviewCommitted(ctx, result.Review)
	}
	span.SetAttributes(attribute.Int64("message.sequence", result.Message.Sequence))
	return result, nil
}

func (e *Engine) commitLocked(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	start := e.now()
	conv, err := e.conversation(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	counterpart, ok := conv.Counterpart(req.SenderID)
	if !ok {
		return nil, dErrors.New(dErrors.CodeForbidden, "sender is not a participant of this conversation")
	}
	opts := storage.AppendOptions{AllowPaused: req.AllowPaused}
	if !opts.Admits(conv.Status) {
		e.metrics.Refused(string(conv.Status))
		return nil, conv.Status.Err()
	}
	viewers, err := e.Viewers(ctx, conv)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:             id.NewMessageID(),
		ConversationID: conv.ID,
		SenderID:       req.SenderID,
		Content:        req.Text,
		Verdict:        req.Verdict,
		DeliveryStatus: domain.DeliveryQueued,
		CreatedAt:      e.now(),
	}
	var review *approvalmodels.ApprovalRequest
	if req.Verdict.IsFlagged() {
		if e.reviews == nil {
			return nil, dErrors.New(dErrors.CodeInternal, "no reviewer available for flagged message")
		}
		review, err = e.reviews.NewMessageReview(ctx, msg)
		if err != nil {
			return nil, err
		}
		msg.ReviewID = review.ID
	}

	if err := e.store.AppendMessage(ctx, msg, review, opts); err != nil {
		return nil, appendError(err)
	}
	if review != nil {
		e.metrics.ReviewAttached()
	}

	result := &CommitResult{Message: msg, Review: review}
	result.Deliveries = e.out.Fanout(ctx, viewers, connection.NewMessageEvent(msg))
	for _, d := range result.Deliveries {
		e.metrics.Fanout(string(d.Outcome))
		if d.Err != nil {
			result.Undelivered = append(result.Undelivered, d.Participant)
			continue
		}
		if d.Participant == counterpart && d.Outcome == connection.OutcomeSent {
			e.markSent(ctx, msg, counterpart)
		}
	}
	e.metrics.ObserveCommit(msg.Verdict.Outcome.String(), e.now().Sub(start).Seconds())
	e.logger.DebugContext(ctx, "message committed",
		"conversation_id", conv.ID.String(),
		"sequence", msg.Sequence,
		"verdict", msg.Verdict.Outcome.String(),
		"viewers", len(viewers),
	)
	return result, nil
}

// markSent records that the recipient's live channel accepted msg. The message is already
// committed; a failure here leaves it queued until the recipient's receipt arrives.
func (e *Engine) markSent(ctx context.Context, msg *domain.Message, recipient id.ParticipantID) {
	if _, err := e.store.AdvanceDeliveryStatus(ctx, msg.ConversationID, recipient, msg.Sequence, domain.DeliverySent); err != nil {
		e.logger.WarnContext(ctx, "failed to mark message sent",
			"conversation_id", msg.ConversationID.String(),
			"sequence", msg.Sequence,
			"error", err,
		)
		return
	}
	msg.AdvanceDelivery(domain.DeliverySent)
}

// MarkFlushed records that a message held in participant's queue reached their new channel.
// It is registered as the registry's flush listener.
func (e *Engine) MarkFlushed(participant id.ParticipantID, ev connection.Event) {
	if ev.Type != connection.EventMessage {
		return
	}
	p, ok := ev.Payload.(connection.MessagePayload)
	if !ok || p.SenderID == participant {
		return
	}
	ctx := context.Background()
	if _, err := e.store.AdvanceDeliveryStatus(ctx, p.ConversationID, participant, p.SequenceNumber, domain.DeliverySent); err != nil {
		e.logger.WarnContext(ctx, "failed to mark flushed message sent",
			"conversation_id", p.ConversationID.String(),
			"sequence", p.SequenceNumber,
			"error", err,
		)
	}
}

func appendError(err error) error {
	switch {
	case errors.Is(err, storage.ErrConversationPaused):
		return domain.ConversationPaused.Err()
	case errors.Is(err, storage.ErrConversationTerminated):
		return domain.ConversationTerminated.Err()
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "conversation not found")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to commit message")
	}
}

func (e *Engine) conversation(ctx context.Context, cid id.ConversationID) (*domain.Conversation, error) {
	conv, err := e.store.GetConversation(ctx, cid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "conversation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load conversation")
	}
	return conv, nil
}

// Viewers returns both participants followed by every guardian of either participant whose
// visibility the ward's policy enables.
func (e *Engine) Viewers(ctx context.Context, conv *domain.Conversation) ([]id.ParticipantID, error) {
	viewers := []id.ParticipantID{conv.Participants[0], conv.Participants[1]}
	seen := map[id.ParticipantID]bool{conv.Participants[0]: true, conv.Participants[1]: true}
	for _, ward := range conv.Participants {
		guardians, err := e.store.GuardiansOf(ctx, ward)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve guardians")
		}
		if len(guardians) == 0 {
			continue
		}
		policy, err := e.store.GetPolicy(ctx, ward)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load permission policy")
		}
		for _, g := range policy.OrderGuardians(guardians) {
			if seen[g] || !policy.Visible(g) {
				continue
			}
			seen[g] = true
			viewers = append(viewers, g)
		}
	}
	return viewers, nil
}

// ConversationViewers loads cid and resolves its viewers.
func (e *Engine) ConversationViewers(ctx context.Context, cid id.ConversationID) (*domain.Conversation, []id.ParticipantID, error) {
	conv, err := e.conversation(ctx, cid)
	if err != nil {
		return nil, nil, err
	}
	viewers, err := e.Viewers(ctx, conv)
	if err != nil {
		return nil, nil, err
	}
	return conv, viewers, nil
}

type AckResult struct {
	Advanced []*domain.Message
	// Forwarded is what happened to the receipt sent back to the message author.
	Forwarded connection.Outcome
}

// Acknowledge moves the viewer's received messages up to uptoSeq to status and forwards a
// receipt to the author. Repeating an acknowledgement is a no-op and forwards nothing.
func (e *Engine) Acknowledge(ctx context.Context, viewer id.ParticipantID, cid id.ConversationID, uptoSeq int64, status domain.DeliveryStatus) (*AckResult, error) {
	ctx, span := tracer.Start(ctx, "delivery.Acknowledge")
	defer span.End()

	if status != domain.DeliveryDelivered && status != domain.DeliveryRead {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "receipt status must be delivered or read")
	}
	if uptoSeq < 1 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "sequence number must be positive")
	}
	conv, err := e.conversation(ctx, cid)
	if err != nil {
		return nil, err
	}
	author, ok := conv.Counterpart(viewer)
	if !ok {
		return nil, dErrors.New(dErrors.CodeForbidden, "only a participant may acknowledge messages")
	}

	changed, err := e.store.AdvanceDeliveryStatus(ctx, cid, viewer, uptoSeq, status)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record receipt")
	}
	result := &AckResult{Advanced: changed, Forwarded: connection.OutcomeDropped}
	if len(changed) == 0 {
		return result, nil
	}
	e.metrics.Receipt(string(status))

	upto := changed[len(changed)-1].Sequence
	outcome, err := e.out.Deliver(author, connection.Event{
		Type: connection.EventReadReceipt,
		Payload: connection.ReceiptPayload{
			ConversationID: cid,
			ReaderID:       viewer,
			UptoSequence:   upto,
			Status:         status,
		},
		Timestamp: e.now(),
	})
	if err != nil {
		e.logger.WarnContext(ctx, "receipt could not be forwarded",
			"conversation_id", cid.String(),
			"upto_sequence", upto,
			"error", err,
		)
	}
	result.Forwarded = outcome
	return result, nil
}

// History returns committed messages after afterSeq in ascending order. Any viewer may read
// in any conversation status.
func (e *Engine) History(ctx context.Context, viewer id.ParticipantID, cid id.ConversationID, afterSeq int64, limit int) ([]*domain.Message, error) {
	conv, viewers, err := e.ConversationViewers(ctx, cid)
	if err != nil {
		return nil, err
	}
	if !conv.Has(viewer) && !slices.Contains(viewers, viewer) {
		return nil, dErrors.New(dErrors.CodeForbidden, "not a viewer of this conversation")
	}
	if afterSeq < 0 {
		afterSeq = 0
	}
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}
	msgs, err := e.store.ListMessages(ctx, cid, afterSeq, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read messages")
	}
	if conv.Has(viewer) && len(msgs) > 0 {
		e.markFetched(ctx, viewer, cid, msgs)
	}
	return msgs, nil
}

// markFetched records that a participant fetched msgs, so queued ones among them count as sent
// and can take receipts.
func (e *Engine) markFetched(ctx context.Context, viewer id.ParticipantID, cid id.ConversationID, msgs []*domain.Message) {
	upto := msgs[len(msgs)-1].Sequence
	if _, err := e.store.AdvanceDeliveryStatus(ctx, cid, viewer, upto, domain.DeliverySent); err != nil {
		e.logger.WarnContext(ctx, "failed to mark fetched messages sent",
			"conversation_id", cid.String(),
			"upto_sequence", upto,
			"error", err,
		)
		return
	}
	for _, m := range msgs {
		if m.SenderID != viewer {
			m.AdvanceDelivery(domain.DeliverySent)
		}
	}
}

// Message loads one committed message.
func (e *Engine) Message(ctx context.Context, mid id.MessageID) (*domain.Message, error) {
	msg, err := e.store.GetMessage(ctx, mid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "message not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load message")
	}
	return msg, nil
}

// ResolveReview closes the guardian review of a flagged message: AnnotationNone on approval,
// AnnotationRejectedByGuardian on rejection. Content, verdict and delivery status never
// change. Viewers are told the pending-review indicator is gone.
func (e *Engine) ResolveReview(ctx context.Context, mid id.MessageID, annotation domain.Annotation, by id.ParticipantID) (*domain.Message, error) {
	if annotation != domain.AnnotationNone && annotation != domain.AnnotationRejectedByGuardian {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unsupported annotation")
	}
	msg, err := e.store.ResolveReview(ctx, mid, annotation, by, e.now())
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "message not found")
		case errors.Is(err, sentinel.ErrAlreadyExists):
			return nil, dErrors.New(dErrors.CodeConflict, "message review is already resolved")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve message review")
		}
	}

	conv, viewers, err := e.ConversationViewers(ctx, msg.ConversationID)
	if err != nil {
		e.logger.WarnContext(ctx, "review resolved but viewers could not be resolved",
			"message_id", mid.String(),
			"error", err,
		)
		return msg, nil
	}
	for _, d := range e.out.Fanout(ctx, viewers, connection.NewReviewResolvedEvent(msg, e.now())) {
		if d.Err != nil {
			e.logger.WarnContext(ctx, "review update not delivered",
				"conversation_id", conv.ID.String(),
				"participant_id", d.Participant.String(),
				"error", d.Err,
			)
		}
	}
	return msg, nil
}
