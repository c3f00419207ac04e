package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"chaperone/internal/domain"
	"chaperone/internal/notify"
	"chaperone/internal/policy/models"
	"chaperone/internal/policy/service/mocks"
	"chaperone/internal/policy/store/usage"
	"chaperone/internal/policy/store/window"
	"chaperone/internal/storage/memory"
	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
	"chaperone/pkg/platform/audit"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Limiter,UsageStore,Notifier,AuditPublisher,ConversationCloser,ViewerResolver

type ServiceSuite struct {
	suite.Suite
	ctx   context.Context
	ctrl  *gomock.Controller
	store *memory.Store
	notes *notify.Recorder
	now   time.Time
	svc   *Service

	ward, counterpart         id.ParticipantID
	primary, secondary, other id.ParticipantID
	conv                      *domain.Conversation
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

// monday returns a time on Monday 2026-03-02 in UTC.
func monday(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC) }

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.store = memory.New()
	s.notes = &notify.Recorder{}
	s.now = monday(10, 0)

	s.ward, s.counterpart = id.NewParticipantID(), id.NewParticipantID()
	s.primary, s.secondary, s.other = id.NewParticipantID(), id.NewParticipantID(), id.NewParticipantID()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, p := range []*domain.Participant{
		{ID: s.ward, Role: id.RoleUser, CreatedAt: base},
		{ID: s.counterpart, Role: id.RoleUser, CreatedAt: base},
		{ID: s.primary, Role: id.RoleGuardian, Wards: []id.ParticipantID{s.ward}, CreatedAt: base.Add(time.Minute)},
		{ID: s.secondary, Role: id.RoleGuardian, Wards: []id.ParticipantID{s.ward}, CreatedAt: base.Add(2 * time.Minute)},
		{ID: s.other, Role: id.RoleGuardian, Wards: []id.ParticipantID{s.counterpart}, CreatedAt: base.Add(3 * time.Minute)},
	} {
		s.Require().NoError(s.store.SaveParticipant(s.ctx, p))
	}

	conv, err := domain.NewConversation(s.ward, s.counterpart, id.NewApprovalID(), nil, base)
	s.Require().NoError(err)
	s.conv, _, err = s.store.CreateConversation(s.ctx, conv)
	s.Require().NoError(err)

	s.svc = s.newService()
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	base := []Option{
		WithClock(func() time.Time { return s.now }),
		WithRateLimit(3, time.Minute, 5*time.Minute),
	}
	svc, err := New(s.store, window.NewInMemoryStore(), usage.NewInMemoryStore(), s.notes, append(base, opts...)...)
	s.Require().NoError(err)
	return svc
}

func (s *ServiceSuite) putPolicy(p models.PermissionPolicy) {
	p.WardID = s.ward
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	s.Require().NoError(s.store.PutPolicy(s.ctx, &p))
}

// authorize checks a send and, when allowed, charges it as committed.
func (s *ServiceSuite) authorize(location string) models.Decision {
	d := s.check(location)
	s.Require().NoError(s.svc.Consume(s.ctx, s.ward, d))
	return d
}

// check runs Authorize alone, as for a send refused later in the pipeline.
func (s *ServiceSuite) check(location string) models.Decision {
	d, err := s.svc.Authorize(s.ctx, s.ward, models.Action{Kind: models.ActionSend, ConversationID: s.conv.ID, Location: location})
	s.Require().NoError(err)
	return d
}

func (s *ServiceSuite) grantOverride(d time.Duration) *models.EmergencyOverride {
	o, err := s.svc.RequestOverride(s.ctx, s.ward, "family emergency")
	s.Require().NoError(err)
	o, err = s.svc.GrantOverride(s.ctx, s.primary, o.ID, d)
	s.Require().NoError(err)
	return o
}

func (s *ServiceSuite) TestUnrestrictedWithoutPolicy() {
	d := s.authorize("")
	s.True(d.Allowed)
	s.False(d.Overridden())
}

func (s *ServiceSuite) TestOutsideAllowedHours() {
	s.putPolicy(models.PermissionPolicy{Windows: []models.TimeWindow{{
		Days:        []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		StartMinute: 9 * 60,
		EndMinute:   21 * 60,
	}}})

	s.now = monday(6, 0)
	d := s.authorize("")
	s.False(d.Allowed)
	s.Equal(dErrors.CodeOutsideAllowedHours, d.Reason)
	s.True(dErrors.HasCode(d.Err(), dErrors.CodeOutsideAllowedHours))

	s.now = monday(9, 0)
	s.True(s.authorize("").Allowed)
}

func (s *ServiceSuite) TestLocationAllowList() {
	s.putPolicy(models.PermissionPolicy{LocationCheck: true, Locations: []string{"home-wifi"}})

	d := s.authorize("cafe")
	s.Equal(dErrors.CodeLocationNotApproved, d.Reason)
	s.Equal(dErrors.CodeLocationNotApproved, s.authorize("").Reason)
	s.True(s.authorize(" Home-WiFi ").Allowed)
}

func (s *ServiceSuite) TestDailyBudgetCountsActiveMinutes() {
	s.putPolicy(models.PermissionPolicy{DailyBudgetMinutes: 2})

	s.True(s.authorize("").Allowed)
	s.now = s.now.Add(30 * time.Second)
	s.True(s.authorize("").Allowed, "same minute")
	s.now = monday(10, 1)
	s.True(s.authorize("").Allowed, "second minute")

	s.now = monday(10, 5)
	d := s.authorize("")
	s.Equal(dErrors.CodeDailyLimitExceeded, d.Reason)

	s.now = monday(10, 1).Add(45 * time.Second)
	s.True(s.authorize("").Allowed, "a minute already counted stays usable")

	s.now = monday(10, 0).AddDate(0, 0, 1)
	s.True(s.authorize("").Allowed, "budget resets at the local day boundary")
}

func (s *ServiceSuite) TestDailyBudgetFollowsPolicyTimezone() {
	s.putPolicy(models.PermissionPolicy{Timezone: "Asia/Karachi", DailyBudgetMinutes: 1})

	// 18:59 UTC is 23:59 in Karachi; 19:00 UTC is the next local day.
	s.now = monday(18, 59)
	s.True(s.authorize("").Allowed)
	s.now = monday(18, 59).Add(30 * time.Second)
	s.True(s.authorize("").Allowed)
	s.now = monday(19, 0)
	s.True(s.authorize("").Allowed)
	s.now = monday(19, 1)
	s.Equal(dErrors.CodeDailyLimitExceeded, s.authorize("").Reason)
}

func (s *ServiceSuite) TestRateLimitStartsCooldown() {
	auditor := mocks.NewMockAuditPublisher(s.ctrl)
	auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		s.Equal(string(audit.EventSendRateLimited), e.Action)
		s.Equal(s.ward, e.ActorID)
		return nil
	}).Times(1)
	s.svc = s.newService(WithAuditPublisher(auditor))

	for i := 0; i < 3; i++ {
		s.True(s.authorize("").Allowed)
		s.now = s.now.Add(time.Second)
	}
	d := s.authorize("")
	s.Equal(dErrors.CodeRateLimited, d.Reason)
	s.Equal(5*time.Minute, d.RetryAfter)

	s.now = s.now.Add(2 * time.Minute)
	d = s.authorize("")
	s.Equal(dErrors.CodeRateLimited, d.Reason, "cooldown outlasts the window")
	s.Equal(3*time.Minute, d.RetryAfter)

	s.now = s.now.Add(3 * time.Minute)
	s.True(s.authorize("").Allowed)
}

func (s *ServiceSuite) TestUnchargedChecksLeaveNoState() {
	s.putPolicy(models.PermissionPolicy{DailyBudgetMinutes: 1})

	for i := 0; i < 20; i++ {
		s.True(s.check("").Allowed)
		s.now = s.now.Add(time.Minute)
	}
	s.True(s.authorize("").Allowed, "neither the rate window nor the budget moved")

	s.now = s.now.Add(time.Minute)
	s.Equal(dErrors.CodeDailyLimitExceeded, s.check("").Reason, "the committed send used the minute")
}

func (s *ServiceSuite) TestConsumeSkipsOverriddenAndDeniedDecisions() {
	limiter := mocks.NewMockLimiter(s.ctrl)
	usageStore := mocks.NewMockUsageStore(s.ctrl)
	svc, err := New(s.store, limiter, usageStore, s.notes, WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)

	s.NoError(svc.Consume(s.ctx, s.ward, models.Deny(dErrors.CodeRateLimited, "slow down")))
	s.NoError(svc.Consume(s.ctx, s.ward, models.Decision{Allowed: true, Override: &models.EmergencyOverride{}}))

	limiter.EXPECT().Allow(gomock.Any(), "send:"+s.ward.String(), defaultRateLimit, defaultRateWindow, s.now).
		Return(models.WindowResult{Allowed: true}, nil)
	usageStore.EXPECT().Record(gomock.Any(), s.ward, "2026-03-02", 10*60).Return(1, nil)
	s.NoError(svc.Consume(s.ctx, s.ward, models.Allow()))
}

func (s *ServiceSuite) TestRateLimitIsIndependentOfBudget() {
	s.putPolicy(models.PermissionPolicy{DailyBudgetMinutes: 1})
	for i := 0; i < 3; i++ {
		s.True(s.authorize("").Allowed)
	}
	s.Equal(dErrors.CodeRateLimited, s.authorize("").Reason)
}

func (s *ServiceSuite) TestDirectivesGateAuthorize() {
	conv, err := s.svc.Pause(s.ctx, s.primary, s.conv.ID, "cooling off")
	s.Require().NoError(err)
	s.Equal(domain.ConversationPaused, conv.Status)
	s.Equal(dErrors.CodeConversationPaused, s.authorize("").Reason)

	paused := s.notes.OfKind(notify.KindConversationPaused)
	s.Require().Len(paused, 1)
	s.ElementsMatch([]id.ParticipantID{s.ward, s.counterpart}, paused[0].Recipients)

	_, err = s.svc.Pause(s.ctx, s.secondary, s.conv.ID, "")
	s.Require().NoError(err)
	s.Len(s.notes.OfKind(notify.KindConversationPaused), 1, "repeating a directive is a no-op")

	_, err = s.svc.Resume(s.ctx, s.other, s.conv.ID, "")
	s.Require().NoError(err, "a guardian of either participant may direct")
	s.True(s.authorize("").Allowed)

	_, err = s.svc.Terminate(s.ctx, s.primary, s.conv.ID, "")
	s.Require().NoError(err)
	s.Equal(dErrors.CodeConversationTerminated, s.authorize("").Reason)

	_, err = s.svc.Resume(s.ctx, s.primary, s.conv.ID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeConversationTerminated))
}

func (s *ServiceSuite) TestDirectivesRequireAGuardian() {
	_, err := s.svc.Pause(s.ctx, s.ward, s.conv.ID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	outsider := &domain.Participant{ID: id.NewParticipantID(), Role: id.RoleGuardian, Wards: []id.ParticipantID{id.NewParticipantID()}}
	s.Require().NoError(s.store.SaveParticipant(s.ctx, outsider))
	_, err = s.svc.Terminate(s.ctx, outsider.ID, s.conv.ID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.svc.Pause(s.ctx, s.primary, id.NewConversationID(), "")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestTerminateClosesLiveChannels() {
	viewers := []id.ParticipantID{s.ward, s.counterpart, s.primary}
	resolver := mocks.NewMockViewerResolver(s.ctrl)
	resolver.EXPECT().ConversationViewers(gomock.Any(), s.conv.ID).Return(s.conv, viewers, nil)
	closer := mocks.NewMockConversationCloser(s.ctrl)
	closer.EXPECT().CloseConversation(gomock.Any(), viewers, s.conv.ID, "terminate").Return(nil)
	s.svc = s.newService(WithViewerResolver(resolver), WithConversationCloser(closer))

	conv, err := s.svc.Terminate(s.ctx, s.primary, s.conv.ID, "unsafe")
	s.Require().NoError(err)
	s.True(conv.IsTerminated())

	ended := s.notes.OfKind(notify.KindConversationTerminated)
	s.Require().Len(ended, 1)
	s.Equal(viewers, ended[0].Recipients)
	s.Equal("unsafe", ended[0].Data["reason"])
}

func (s *ServiceSuite) TestEmergencyStopAlertsOtherGuardians() {
	closer := mocks.NewMockConversationCloser(s.ctrl)
	closer.EXPECT().CloseConversation(gomock.Any(), gomock.Any(), s.conv.ID, "emergency-stop").Return(nil)
	s.svc = s.newService(WithConversationCloser(closer))

	conv, err := s.svc.EmergencyStop(s.ctx, s.primary, s.conv.ID, "threat")
	s.Require().NoError(err)
	s.True(conv.IsTerminated())

	stops := s.notes.OfKind(notify.KindEmergencyStop)
	s.Require().Len(stops, 1)
	s.Equal([]id.ParticipantID{s.secondary}, stops[0].Recipients)
	s.Equal(s.primary.String(), stops[0].Data["stopped_by"])
	s.Len(s.notes.OfKind(notify.KindConversationTerminated), 1)
}

func (s *ServiceSuite) TestOverrideBypassesRestrictionsUntilExpiry() {
	s.putPolicy(models.PermissionPolicy{Windows: []models.TimeWindow{{
		Days:        []time.Weekday{time.Saturday},
		StartMinute: 9 * 60,
		EndMinute:   10 * 60,
	}}})
	s.Equal(dErrors.CodeOutsideAllowedHours, s.authorize("").Reason)

	o := s.grantOverride(time.Hour)
	s.Len(s.notes.OfKind(notify.KindEmergencyRequested), 1)
	granted := s.notes.OfKind(notify.KindEmergencyGranted)
	s.Require().Len(granted, 1)
	s.ElementsMatch([]id.ParticipantID{s.ward, s.primary, s.secondary}, granted[0].Recipients)

	d := s.authorize("")
	s.True(d.Overridden())
	s.Equal(o.ID, d.Override.ID)

	_, err := s.svc.Pause(s.ctx, s.primary, s.conv.ID, "")
	s.Require().NoError(err)
	s.True(s.authorize("").Overridden(), "pause is bypassed too")

	s.now = s.now.Add(time.Hour)
	s.Equal(dErrors.CodeConversationPaused, s.authorize("").Reason, "expired without a revoke")

	got, err := s.svc.GetOverride(s.ctx, s.ward, o.ID)
	s.Require().NoError(err)
	s.Equal(models.OverrideExpired, got.Status)
}

func (s *ServiceSuite) TestOverrideNeverReopensTerminatedConversation() {
	s.grantOverride(time.Hour)
	_, err := s.svc.Terminate(s.ctx, s.primary, s.conv.ID, "")
	s.Require().NoError(err)
	s.Equal(dErrors.CodeConversationTerminated, s.authorize("").Reason)
}

func (s *ServiceSuite) TestRevokedOverrideStopsApplying() {
	o := s.grantOverride(time.Hour)
	for i := 0; i < 5; i++ {
		s.True(s.authorize("").Overridden(), "overrides bypass the rate limit")
	}

	_, err := s.svc.RevokeOverride(s.ctx, s.secondary, o.ID)
	s.Require().NoError(err)
	s.False(s.authorize("").Overridden())
	s.Len(s.notes.OfKind(notify.KindEmergencyRevoked), 1)

	_, err = s.svc.RevokeOverride(s.ctx, s.secondary, o.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *ServiceSuite) TestOverrideLifecycleRules() {
	s.Run("only the ward's guardians grant", func() {
		o, err := s.svc.RequestOverride(s.ctx, s.ward, "lost phone")
		s.Require().NoError(err)
		_, err = s.svc.GrantOverride(s.ctx, s.other, o.ID, time.Hour)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		_, err = s.svc.GrantOverride(s.ctx, s.ward, o.ID, time.Hour)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
	s.Run("duration is capped", func() {
		o, err := s.svc.RequestOverride(s.ctx, s.ward, "lost phone")
		s.Require().NoError(err)
		_, err = s.svc.GrantOverride(s.ctx, s.primary, o.ID, 25*time.Hour)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
	s.Run("granted once", func() {
		o := s.grantOverride(time.Hour)
		_, err := s.svc.GrantOverride(s.ctx, s.secondary, o.ID, time.Hour)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
	s.Run("ward withdraws its own request", func() {
		o, err := s.svc.RequestOverride(s.ctx, s.ward, "never mind")
		s.Require().NoError(err)
		o, err = s.svc.RevokeOverride(s.ctx, s.ward, o.ID)
		s.Require().NoError(err)
		s.Equal(models.OverrideRevoked, o.Status)
	})
	s.Run("justification and guardians are required", func() {
		_, err := s.svc.RequestOverride(s.ctx, s.ward, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = s.svc.RequestOverride(s.ctx, s.primary, "guardians have no guardians")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
	s.Run("listing is limited to the ward and its guardians", func() {
		list, err := s.svc.ListOverrides(s.ctx, s.primary, s.ward)
		s.Require().NoError(err)
		s.NotEmpty(list)
		_, err = s.svc.ListOverrides(s.ctx, s.counterpart, s.ward)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestSetPolicy() {
	p, err := s.svc.SetPolicy(s.ctx, s.primary, models.PermissionPolicy{
		WardID:        s.ward,
		LocationCheck: true,
		Locations:     []string{"Home-WiFi", "home-wifi"},
		Guardians: []models.GuardianLink{
			{GuardianID: s.secondary, Rank: models.RankSecondary},
			{GuardianID: s.primary, Rank: models.RankPrimary, Visible: true},
		},
	})
	s.Require().NoError(err)
	s.Equal("UTC", p.Timezone)
	s.Equal([]string{"home-wifi"}, p.Locations)
	s.Equal(s.primary, p.Guardians[0].GuardianID)
	s.Equal(s.primary, p.UpdatedBy)

	stored, err := s.svc.GetPolicy(s.ctx, s.ward, s.ward)
	s.Require().NoError(err)
	s.Equal(p.Locations, stored.Locations)

	_, err = s.svc.SetPolicy(s.ctx, s.other, models.PermissionPolicy{WardID: s.ward})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.svc.SetPolicy(s.ctx, s.primary, models.PermissionPolicy{
		WardID:    s.ward,
		Guardians: []models.GuardianLink{{GuardianID: s.other, Rank: models.RankPrimary}},
	})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.svc.SetPolicy(s.ctx, s.primary, models.PermissionPolicy{WardID: s.ward, Timezone: "Mars/Olympus"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestPolicyIsNotSavedWhenAuditFails() {
	auditor := mocks.NewMockAuditPublisher(s.ctrl)
	auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("audit store down"))
	s.svc = s.newService(WithAuditPublisher(auditor))

	_, err := s.svc.SetPolicy(s.ctx, s.primary, models.PermissionPolicy{WardID: s.ward, DailyBudgetMinutes: 30})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	p, err := s.svc.GetPolicy(s.ctx, s.primary, s.ward)
	s.Require().NoError(err)
	s.Zero(p.DailyBudgetMinutes)
}

func (s *ServiceSuite) TestGetPolicyDefaults() {
	svc := s.newService(WithDefaultTimezone("Asia/Karachi"))
	p, err := svc.GetPolicy(s.ctx, s.secondary, s.ward)
	s.Require().NoError(err)
	s.Equal(s.ward, p.WardID)
	s.Equal("Asia/Karachi", p.Timezone)
	s.Empty(p.Windows)

	_, err = svc.GetPolicy(s.ctx, s.counterpart, s.ward)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) TestStoreFailuresAreErrorsNotDecisions() {
	limiter := mocks.NewMockLimiter(s.ctrl)
	limiter.EXPECT().Cooldown(gomock.Any(), gomock.Any(), gomock.Any()).Return(time.Duration(0), errors.New("redis: connection refused"))
	svc, err := New(s.store, limiter, usage.NewInMemoryStore(), s.notes, WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)

	_, err = svc.Authorize(s.ctx, s.ward, models.Action{Kind: models.ActionSend, ConversationID: s.conv.ID})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(nil, window.NewInMemoryStore(), usage.NewInMemoryStore(), &notify.Recorder{})
	if err == nil {
		t.Fatal("expected an error without a store")
	}
}
