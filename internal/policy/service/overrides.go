package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"chaperone/internal/notify"
	"chaperone/internal/policy/models"
	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
	"chaperone/pkg/platform/audit"
	"chaperone/pkg/platform/sentinel"
)

// RequestOverride asks the ward's guardians for an emergency override.
func (s *Service) RequestOverride(ctx context.Context, ward id.ParticipantID, justification string) (*models.EmergencyOverride, error) {
	ctx, span := tracer.Start(ctx, "policy.RequestOverride")
	defer span.End()

	if _, err := s.participant(ctx, ward); err != nil {
		return nil, err
	}
	guardians, err := s.store.GuardiansOf(ctx, ward)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve guardians")
	}
	if len(guardians) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidState, "no guardian is linked to grant an override")
	}
	o, err := models.NewOverrideRequest(ward, justification, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateOverride(ctx, o); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save override request")
	}
	span.SetAttributes(attribute.String("override.id", o.ID.String()))

	s.metrics.IncOverride(string(models.OverrideRequested))
	s.emitLogged(ctx, audit.EventOverrideRequested, ward, overrideSubject(o), string(o.Status), justification)
	s.publish(ctx, notify.New(notify.KindEmergencyRequested, overrideSubject(o), guardians, map[string]any{
		"override_id":   o.ID.String(),
		"ward_id":       ward.String(),
		"justification": justification,
	}, s.now()))
	return o, nil
}

// GrantOverride lets a guardian of the ward approve a requested override for duration. The
// grant is audited before it is saved.
func (s *Service) GrantOverride(ctx context.Context, guardian id.ParticipantID, oid id.OverrideID, duration time.Duration) (*models.EmergencyOverride, error) {
	ctx, span := tracer.Start(ctx, "policy.GrantOverride")
	defer span.End()
	span.SetAttributes(attribute.String("override.id", oid.String()))

	o, err := s.override(ctx, oid)
	if err != nil {
		return nil, err
	}
	if _, err := s.guardianOf(ctx, guardian, o.WardID); err != nil {
		return nil, err
	}
	now := s.now()
	if err := o.Grant(guardian, duration, now); err != nil {
		return nil, err
	}
	if err := s.emit(ctx, audit.EventOverrideGranted, guardian, overrideSubject(o), string(o.Status), duration.String()); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record override grant")
	}
	if err := s.store.UpdateOverride(ctx, o); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save override")
	}

	s.metrics.IncOverride(string(models.OverrideGranted))
	s.publish(ctx, notify.New(notify.KindEmergencyGranted, overrideSubject(o), s.overrideParties(ctx, o), map[string]any{
		"override_id": o.ID.String(),
		"ward_id":     o.WardID.String(),
		"granted_by":  guardian.String(),
		"expires_at":  o.ExpiresAt().Format(time.RFC3339),
	}, now))
	return o, nil
}

// RevokeOverride ends a requested or granted override. The ward may withdraw its own request;
// any guardian of the ward may revoke.
func (s *Service) RevokeOverride(ctx context.Context, actor id.ParticipantID, oid id.OverrideID) (*models.EmergencyOverride, error) {
	ctx, span := tracer.Start(ctx, "policy.RevokeOverride")
	defer span.End()
	span.SetAttributes(attribute.String("override.id", oid.String()))

	o, err := s.override(ctx, oid)
	if err != nil {
		return nil, err
	}
	if actor != o.WardID {
		if _, err := s.guardianOf(ctx, actor, o.WardID); err != nil {
			return nil, err
		}
	}
	if err := o.Revoke(s.now()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateOverride(ctx, o); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save override")
	}

	s.metrics.IncOverride(string(models.OverrideRevoked))
	s.emitLogged(ctx, audit.EventOverrideRevoked, actor, overrideSubject(o), string(o.Status), "")
	s.publish(ctx, notify.New(notify.KindEmergencyRevoked, overrideSubject(o), s.overrideParties(ctx, o), map[string]any{
		"override_id": o.ID.String(),
		"ward_id":     o.WardID.String(),
		"revoked_by":  actor.String(),
	}, s.now()))
	return o, nil
}

// GetOverride returns an override to its ward or one of the ward's guardians, with lazy expiry
// applied to the returned status.
func (s *Service) GetOverride(ctx context.Context, viewer id.ParticipantID, oid id.OverrideID) (*models.EmergencyOverride, error) {
	o, err := s.override(ctx, oid)
	if err != nil {
		return nil, err
	}
	if viewer != o.WardID {
		if _, err := s.guardianOf(ctx, viewer, o.WardID); err != nil {
			return nil, err
		}
	}
	o.Status = o.StatusAt(s.now())
	return o, nil
}

// ListOverrides returns the ward's overrides, newest first.
func (s *Service) ListOverrides(ctx context.Context, viewer, ward id.ParticipantID) ([]*models.EmergencyOverride, error) {
	if viewer != ward {
		if _, err := s.guardianOf(ctx, viewer, ward); err != nil {
			return nil, err
		}
	}
	overrides, err := s.store.ListOverrides(ctx, ward)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list overrides")
	}
	now := s.now()
	for _, o := range overrides {
		o.Status = o.StatusAt(now)
	}
	return overrides, nil
}

func (s *Service) override(ctx context.Context, oid id.OverrideID) (*models.EmergencyOverride, error) {
	o, err := s.store.GetOverride(ctx, oid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "override not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load override")
	}
	return o, nil
}

// overrideParties is the ward and every linked guardian.
func (s *Service) overrideParties(ctx context.Context, o *models.EmergencyOverride) []id.ParticipantID {
	parties := []id.ParticipantID{o.WardID}
	guardians, err := s.store.GuardiansOf(ctx, o.WardID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to resolve guardians for override notice", "override_id", o.ID.String(), "error", err)
		return parties
	}
	return append(parties, guardians...)
}

func overrideSubject(o *models.EmergencyOverride) string { return "override:" + o.ID.String() }
