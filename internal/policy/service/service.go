// Package service enforces guardian policy on the send path and applies guardian directives
// and emergency overrides.
package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"chaperone/internal/domain"
	"chaperone/internal/policy/metrics"
	"chaperone/internal/policy/models"
	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
	"chaperone/pkg/platform/audit"
	"chaperone/pkg/platform/sentinel"
)

const (
	defaultRateLimit  = 20
	defaultRateWindow = time.Minute
	defaultCooldown   = 2 * time.Minute
)

var tracer = otel.Tracer("chaperone/policy")

type Store interface {
	GetParticipant(ctx context.Context, pid id.ParticipantID) (*domain.Participant, error)
	GuardiansOf(ctx context.Context, ward id.ParticipantID) ([]id.ParticipantID, error)

	GetConversation(ctx context.Context, cid id.ConversationID) (*domain.Conversation, error)
	SetConversationStatus(ctx context.Context, cid id.ConversationID, status domain.ConversationStatus, now time.Time) (*domain.Conversation, error)

	GetPolicy(ctx context.Context, ward id.ParticipantID) (*models.PermissionPolicy, error)
	PutPolicy(ctx context.Context, p *models.PermissionPolicy) error

	CreateOverride(ctx context.Context, o *models.EmergencyOverride) error
	UpdateOverride(ctx context.Context, o *models.EmergencyOverride) error
	GetOverride(ctx context.Context, oid id.OverrideID) (*models.EmergencyOverride, error)
	ListOverrides(ctx context.Context, ward id.ParticipantID) ([]*models.EmergencyOverride, error)
}

type Service struct {
	store    Store
	limiter  Limiter
	usage    UsageStore
	notifier Notifier
	audit    AuditPublisher
	closer   ConversationCloser
	viewers  ViewerResolver

	rateLimit       int
	rateWindow      time.Duration
	cooldown        time.Duration
	defaultTimezone string

	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Service)

// WithRateLimit allows limit sends per window; a participant who exceeds it cannot send for
// cooldown.
func WithRateLimit(limit int, window, cooldown time.Duration) Option {
	return func(s *Service) {
		if limit > 0 {
			s.rateLimit = limit
		}
		if window > 0 {
			s.rateWindow = window
		}
		if cooldown > 0 {
			s.cooldown = cooldown
		}
	}
}

// WithDefaultTimezone applies to policies saved without one.
func WithDefaultTimezone(tz string) Option {
	return func(s *Service) { s.defaultTimezone = tz }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.audit = p }
}

func WithConversationCloser(c ConversationCloser) Option {
	return func(s *Service) { s.closer = c }
}

func WithViewerResolver(v ViewerResolver) Option {
	return func(s *Service) { s.viewers = v }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Store, limiter Limiter, usage UsageStore, notifier Notifier, opts ...Option) (*Service, error) {
	if store == nil || limiter == nil || usage == nil || notifier == nil {
		return nil, errors.New("store, limiter, usage store and notifier are required")
	}
	s := &Service{
		store:           store,
		limiter:         limiter,
		usage:           usage,
		notifier:        notifier,
		rateLimit:       defaultRateLimit,
		rateWindow:      defaultRateWindow,
		cooldown:        defaultCooldown,
		defaultTimezone: "UTC",
		logger:          slog.New(slog.DiscardHandler),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Authorize decides whether participant may perform action now. Denials are returned as a
// Decision; the error is reserved for failures to reach the stores, which callers must treat
// as a denial.
//
// Checks run in order: a terminated conversation always denies; an active emergency override
// then allows everything else; after that pause, time windows, location, daily budget,
// cooldown and the sliding-window rate limit. Only a denial at a full rate window writes
// state, by starting the cooldown. Callers charge an accepted send with Consume.
func (s *Service) Authorize(ctx context.Context, participant id.ParticipantID, action models.Action) (models.Decision, error) {
	ctx, span := tracer.Start(ctx, "policy.Authorize")
	defer span.End()
	span.SetAttributes(
		attribute.String("policy.participant", participant.String()),
		attribute.String("policy.action", string(action.Kind)),
	)

	start := s.now()
	d, err := s.authorize(ctx, participant, action, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "authorize failed")
		return models.Decision{}, err
	}

	outcome := "allowed"
	switch {
	case d.Overridden():
		outcome = "overridden"
	case !d.Allowed:
		outcome = "denied"
	}
	s.metrics.ObserveDecision(outcome, string(d.Reason), s.now().Sub(start).Seconds())
	span.SetAttributes(attribute.String("policy.outcome", outcome), attribute.String("policy.reason", string(d.Reason)))
	return d, nil
}

func (s *Service) authorize(ctx context.Context, pid id.ParticipantID, action models.Action, now time.Time) (models.Decision, error) {
	var conv *domain.Conversation
	if !action.ConversationID.IsNil() {
		c, err := s.conversation(ctx, action.ConversationID)
		if err != nil {
			return models.Decision{}, err
		}
		if c.IsTerminated() {
			return models.Deny(dErrors.CodeConversationTerminated, "conversation has been terminated by a guardian"), nil
		}
		conv = c
	}

	override, err := s.activeOverride(ctx, pid, now)
	if err != nil {
		return models.Decision{}, err
	}
	if override != nil {
		return models.Decision{Allowed: true, Override: override}, nil
	}

	if conv != nil && conv.Status == domain.ConversationPaused {
		return models.Deny(dErrors.CodeConversationPaused, "conversation is paused by a guardian"), nil
	}

	policy, err := s.policy(ctx, pid)
	if err != nil {
		return models.Decision{}, err
	}
	if !policy.WithinWindows(now) {
		return models.Deny(dErrors.CodeOutsideAllowedHours, "messaging is not allowed at this time"), nil
	}
	if !policy.LocationAllowed(action.Location) {
		return models.Deny(dErrors.CodeLocationNotApproved, "messaging is not allowed from this location"), nil
	}

	day, minute := localMinute(policy, now)
	if policy != nil && policy.DailyBudgetMinutes > 0 {
		used, counted, err := s.usage.Used(ctx, pid, day, minute)
		if err != nil {
			return models.Decision{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read daily usage")
		}
		if !counted && used >= policy.DailyBudgetMinutes {
			return models.Deny(dErrors.CodeDailyLimitExceeded, "daily messaging time is used up"), nil
		}
	}

	key := rateKey(pid)
	remaining, err := s.limiter.Cooldown(ctx, key, now)
	if err != nil {
		return models.Decision{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read send cooldown")
	}
	if remaining > 0 {
		d := models.Deny(dErrors.CodeRateLimited, "sending too fast, wait before trying again")
		d.RetryAfter = remaining
		return d, nil
	}
	res, err := s.limiter.Peek(ctx, key, s.rateLimit, s.rateWindow, now)
	if err != nil {
		return models.Decision{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check send rate")
	}
	if !res.Allowed {
		return s.startCooldown(ctx, pid, now)
	}
	return models.Allow(), nil
}

// startCooldown denies a send that would exceed a window already filled by committed sends.
func (s *Service) startCooldown(ctx context.Context, pid id.ParticipantID, now time.Time) (models.Decision, error) {
	if err := s.limiter.SetCooldown(ctx, rateKey(pid), now.Add(s.cooldown), now); err != nil {
		return models.Decision{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to start send cooldown")
	}
	s.emitLogged(ctx, audit.EventSendRateLimited, pid, "participant:"+pid.String(), "denied", "")
	d := models.Deny(dErrors.CodeRateLimited, "sending too fast, wait before trying again")
	d.RetryAfter = s.cooldown
	return d, nil
}

// Consume charges a committed send to participant's rate window and daily budget. Authorize
// only reads that state, so drafts refused later on the send path cost nothing. Overridden
// and denied decisions are not charged.
func (s *Service) Consume(ctx context.Context, participant id.ParticipantID, d models.Decision) error {
	if !d.Allowed || d.Overridden() {
		return nil
	}
	now := s.now()
	policy, err := s.policy(ctx, participant)
	if err != nil {
		return err
	}
	res, err := s.limiter.Allow(ctx, rateKey(participant), s.rateLimit, s.rateWindow, now)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record send")
	}
	if !res.Allowed {
		// A concurrent send filled the window between Authorize and commit.
		s.logger.InfoContext(ctx, "send committed past a full rate window",
			"participant_id", participant.String(),
		)
	}
	day, minute := localMinute(policy, now)
	if _, err := s.usage.Record(ctx, participant, day, minute); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record daily usage")
	}
	return nil
}

func rateKey(pid id.ParticipantID) string { return "send:" + pid.String() }

// localMinute returns the policy-local day and minute of day.
func localMinute(p *models.PermissionPolicy, now time.Time) (string, int) {
	local := now.In(p.Location())
	return local.Format(time.DateOnly), local.Hour()*60 + local.Minute()
}

// activeOverride returns a granted, unexpired override for ward, or nil.
func (s *Service) activeOverride(ctx context.Context, ward id.ParticipantID, now time.Time) (*models.EmergencyOverride, error) {
	overrides, err := s.store.ListOverrides(ctx, ward)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load emergency overrides")
	}
	for _, o := range overrides {
		if o.ActiveAt(now) {
			return o, nil
		}
	}
	return nil, nil
}

// policy returns ward's stored policy, or nil when none was ever set.
func (s *Service) policy(ctx context.Context, ward id.ParticipantID) (*models.PermissionPolicy, error) {
	p, err := s.store.GetPolicy(ctx, ward)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load permission policy")
	}
	return p, nil
}

// GetPolicy returns ward's policy to the ward or one of its guardians. A ward without a
// stored policy gets an unrestricted one in the default time zone.
func (s *Service) GetPolicy(ctx context.Context, viewer, ward id.ParticipantID) (*models.PermissionPolicy, error) {
	if viewer != ward {
		if _, err := s.guardianOf(ctx, viewer, ward); err != nil {
			return nil, err
		}
	}
	p, err := s.policy(ctx, ward)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &models.PermissionPolicy{WardID: ward, Timezone: s.defaultTimezone}
	}
	return p, nil
}

// SetPolicy replaces ward's policy. Only a guardian linked to the ward may write it, and the
// write is audited first.
func (s *Service) SetPolicy(ctx context.Context, guardian id.ParticipantID, p models.PermissionPolicy) (*models.PermissionPolicy, error) {
	ctx, span := tracer.Start(ctx, "policy.SetPolicy")
	defer span.End()

	if _, err := s.guardianOf(ctx, guardian, p.WardID); err != nil {
		return nil, err
	}
	linked, err := s.store.GuardiansOf(ctx, p.WardID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve guardians")
	}
	for _, g := range p.Guardians {
		if !slices.Contains(linked, g.GuardianID) {
			return nil, dErrors.New(dErrors.CodeValidation, "policy ranks a guardian who is not linked to the ward")
		}
	}
	if p.Timezone == "" {
		p.Timezone = s.defaultTimezone
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.UpdatedBy = guardian
	p.UpdatedAt = s.now()

	if err := s.emit(ctx, audit.EventPolicyUpdated, guardian, "policy:"+p.WardID.String(), "updated", ""); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record policy change")
	}
	if err := s.store.PutPolicy(ctx, &p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save permission policy")
	}
	return &p, nil
}

// guardianOf loads actor and checks it is a guardian linked to ward.
func (s *Service) guardianOf(ctx context.Context, actor, ward id.ParticipantID) (*domain.Participant, error) {
	p, err := s.participant(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !p.Guards(ward) {
		return nil, dErrors.New(dErrors.CodeForbidden, "not a guardian of this participant")
	}
	return p, nil
}

func (s *Service) participant(ctx context.Context, pid id.ParticipantID) (*domain.Participant, error) {
	p, err := s.store.GetParticipant(ctx, pid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "participant not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load participant")
	}
	return p, nil
}

func (s *Service) conversation(ctx context.Context, cid id.ConversationID) (*domain.Conversation, error) {
	c, err := s.store.GetConversation(ctx, cid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "conversation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load conversation")
	}
	return c, nil
}

func (s *Service) emit(ctx context.Context, event audit.AuditEvent, actor id.ParticipantID, subject, decision, reason string) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Emit(ctx, audit.Event{
		Category:  event.Category(),
		Timestamp: s.now(),
		ActorID:   actor,
		Subject:   subject,
		Action:    string(event),
		Decision:  decision,
		Reason:    reason,
	})
}

func (s *Service) emitLogged(ctx context.Context, event audit.AuditEvent, actor id.ParticipantID, subject, decision, reason string) {
	if err := s.emit(ctx, event, actor, subject, decision, reason); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", string(event), "subject", subject, "error", err)
	}
}
