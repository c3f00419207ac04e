package service

import (
	"context"
	"errors"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"chaperone/internal/domain"
	"chaperone/internal/notify"
	"chaperone/internal/storage"
	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
	"chaperone/pkg/platform/audit"
	"chaperone/pkg/platform/sentinel"
)

type directive struct {
	name   string
	status domain.ConversationStatus
	event  audit.AuditEvent
	kind   notify.Kind
}

var (
	directivePause     = directive{"pause", domain.ConversationPaused, audit.EventConversationPaused, notify.KindConversationPaused}
	directiveResume    = directive{"resume", domain.ConversationActive, audit.EventConversationResumed, notify.KindConversationResumed}
	directiveTerminate = directive{"terminate", domain.ConversationTerminated, audit.EventConversationTerminated, notify.KindConversationTerminated}
	directiveStop      = directive{"emergency-stop", domain.ConversationTerminated, audit.EventEmergencyStop, notify.KindConversationTerminated}
)

// Pause stops new messages in a conversation until a guardian resumes it.
func (s *Service) Pause(ctx context.Context, guardian id.ParticipantID, cid id.ConversationID, reason string) (*domain.Conversation, error) {
	conv, _, err := s.direct(ctx, guardian, cid, reason, directivePause)
	return conv, err
}

func (s *Service) Resume(ctx context.Context, guardian id.ParticipantID, cid id.ConversationID, reason string) (*domain.Conversation, error) {
	conv, _, err := s.direct(ctx, guardian, cid, reason, directiveResume)
	return conv, err
}

// Terminate ends a conversation for good and closes it on every viewer's live channel.
func (s *Service) Terminate(ctx context.Context, guardian id.ParticipantID, cid id.ConversationID, reason string) (*domain.Conversation, error) {
	conv, _, err := s.direct(ctx, guardian, cid, reason, directiveTerminate)
	return conv, err
}

// EmergencyStop terminates the conversation and alerts every other guardian of the wards the
// acting guardian protects in it. The alert goes out even when the conversation had already
// ended.
func (s *Service) EmergencyStop(ctx context.Context, guardian id.ParticipantID, cid id.ConversationID, reason string) (*domain.Conversation, error) {
	conv, wards, err := s.direct(ctx, guardian, cid, reason, directiveStop)
	if err != nil {
		return nil, err
	}

	var others []id.ParticipantID
	for _, ward := range wards {
		linked, err := s.store.GuardiansOf(ctx, ward)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to resolve guardians for emergency stop", "ward_id", ward.String(), "error", err)
			continue
		}
		for _, g := range linked {
			if g != guardian && !slices.Contains(others, g) {
				others = append(others, g)
			}
		}
	}
	if len(others) > 0 {
		s.publish(ctx, notify.New(notify.KindEmergencyStop, "conversation:"+cid.String(), others, map[string]any{
			"conversation_id": cid.String(),
			"stopped_by":      guardian.String(),
			"reason":          reason,
		}, s.now()))
	}
	return conv, nil
}

// direct applies a directive on behalf of a guardian of either participant and returns the
// participants that guardian protects. Repeating the current status changes nothing.
func (s *Service) direct(ctx context.Context, guardian id.ParticipantID, cid id.ConversationID, reason string, d directive) (*domain.Conversation, []id.ParticipantID, error) {
	ctx, span := tracer.Start(ctx, "policy.Directive")
	defer span.End()
	span.SetAttributes(
		attribute.String("policy.directive", d.name),
		attribute.String("conversation.id", cid.String()),
	)

	conv, err := s.conversation(ctx, cid)
	if err != nil {
		return nil, nil, err
	}
	actor, err := s.participant(ctx, guardian)
	if err != nil {
		return nil, nil, err
	}
	var wards []id.ParticipantID
	for _, p := range conv.Participants {
		if actor.Guards(p) {
			wards = append(wards, p)
		}
	}
	if len(wards) == 0 {
		return nil, nil, dErrors.New(dErrors.CodeForbidden, "not a guardian of either participant")
	}
	if conv.Status == d.status {
		return conv, wards, nil
	}

	updated, err := s.store.SetConversationStatus(ctx, cid, d.status, s.now())
	if err != nil {
		return nil, nil, directiveError(err)
	}
	s.metrics.IncDirective(d.name)
	s.emitLogged(ctx, d.event, guardian, "conversation:"+cid.String(), string(d.status), reason)
	s.logger.InfoContext(ctx, "guardian directive applied",
		"directive", d.name,
		"conversation_id", cid.String(),
		"guardian_id", guardian.String(),
	)

	viewers := s.viewersOf(ctx, updated)
	if d.status == domain.ConversationTerminated && s.closer != nil {
		s.closer.CloseConversation(ctx, viewers, cid, d.name)
	}
	s.publish(ctx, notify.New(d.kind, "conversation:"+cid.String(), viewers, map[string]any{
		"conversation_id": cid.String(),
		"status":          string(updated.Status),
		"by":              guardian.String(),
		"reason":          reason,
	}, s.now()))
	return updated, wards, nil
}

func directiveError(err error) error {
	switch {
	case errors.Is(err, storage.ErrConversationTerminated):
		return dErrors.Wrap(err, dErrors.CodeConversationTerminated, "conversation has been terminated")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "conversation not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvalidState, "conversation cannot move to that status")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update conversation")
	}
}

// viewersOf falls back to the two participants when viewers cannot be resolved.
func (s *Service) viewersOf(ctx context.Context, conv *domain.Conversation) []id.ParticipantID {
	if s.viewers != nil {
		_, viewers, err := s.viewers.ConversationViewers(ctx, conv.ID)
		if err == nil {
			return viewers
		}
		s.logger.WarnContext(ctx, "failed to resolve conversation viewers", "conversation_id", conv.ID.String(), "error", err)
	}
	return conv.Participants[:]
}

func (s *Service) publish(ctx context.Context, n notify.Notification) {
	if err := s.notifier.Publish(ctx, n); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish notification", "kind", string(n.Kind), "subject", n.Subject, "error", err)
	}
}
