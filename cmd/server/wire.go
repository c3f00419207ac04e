package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/twmb/franz-go/pkg/kgo"

	approvalmetrics "chaperone/internal/approval/metrics"
	approvalservice "chaperone/internal/approval/service"
	"chaperone/internal/chat"
	"chaperone/internal/connection"
	connectionmetrics "chaperone/internal/connection/metrics"
	"chaperone/internal/delivery"
	deliverymetrics "chaperone/internal/delivery/metrics"
	"chaperone/internal/domain"
	"chaperone/internal/identity"
	"chaperone/internal/moderation"
	moderationmetrics "chaperone/internal/moderation/metrics"
	"chaperone/internal/moderation/oracle"
	"chaperone/internal/notify"
	"chaperone/internal/platform/config"
	"chaperone/internal/platform/kafka"
	"chaperone/internal/platform/metrics"
	"chaperone/internal/platform/postgres"
	"chaperone/internal/platform/redis"
	policymetrics "chaperone/internal/policy/metrics"
	policyservice "chaperone/internal/policy/service"
	"chaperone/internal/policy/store/usage"
	"chaperone/internal/policy/store/window"
	"chaperone/internal/storage/memory"
	pgstore "chaperone/internal/storage/postgres"
	httptransport "chaperone/internal/transport/http"
	id "chaperone/pkg/domain"
	"chaperone/pkg/platform/audit"
	auditpublisher "chaperone/pkg/platform/audit/publisher"
	"chaperone/pkg/platform/audit/publishers/compliance"
	auditmemory "chaperone/pkg/platform/audit/store/memory"
	auditpostgres "chaperone/pkg/platform/audit/store/postgres"
	"chaperone/pkg/platform/circuit"
)

const auditBuffer = 1024

// store is everything the services need from persistence. Both backends satisfy it.
type store interface {
	approvalservice.Store
	delivery.Store
	policyservice.Store
	chat.Conversations
}

type app struct {
	router    http.Handler
	registry  *connection.Registry
	storeKind string
	closers   []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// build wires the process. Backends with no configuration fall back to in-memory versions.
func build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{storeKind: "memory"}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	var (
		st         store = memory.New()
		auditStore audit.Store
	)
	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if db != nil {
		a.closers = append(a.closers, func() { _ = db.Close() })
		pg := pgstore.New(db)
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		st, auditStore, a.storeKind = pg, auditpostgres.New(db), "postgres"
	} else {
		auditStore = auditmemory.NewInMemoryStore()
	}

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	var (
		limiter policyservice.Limiter    = window.NewInMemoryStore()
		budget  policyservice.UsageStore = usage.NewInMemoryStore()
		counter moderation.Counter       = moderation.NewMemoryCounter()
	)
	if rdb != nil {
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		limiter = window.NewRedisStore(rdb.Client)
		budget = usage.NewRedisStore(rdb.Client)
		counter = moderation.NewRedisCounter(rdb.Client)
	}

	bestEffort := auditpublisher.NewPublisher(auditStore,
		auditpublisher.WithAsyncBuffer(auditBuffer),
		auditpublisher.WithLogger(log),
	)
	a.closers = append(a.closers, bestEffort.Close)
	auditor := auditpublisher.NewRouter(
		compliance.New(auditStore, compliance.WithLogger(log), compliance.WithMetrics(compliance.NewMetrics())),
		bestEffort,
	)

	a.registry = connection.NewRegistry(
		connection.WithQueueCapacity(cfg.Connection.QueueCapacity),
		connection.WithSendBuffer(cfg.Connection.SendBuffer),
		connection.WithProbe(cfg.Connection.ProbeInterval, cfg.Connection.ProbeTimeout),
		connection.WithTypingLiveness(cfg.Connection.TypingLiveness),
		connection.WithLogger(log),
		connection.WithMetrics(connectionmetrics.New()),
	)
	a.closers = append(a.closers, a.registry.Close)

	notifier, err := buildNotifier(ctx, cfg.Kafka, a, log)
	if err != nil {
		return nil, err
	}

	gate, err := buildGate(cfg.Moderation, counter, log)
	if err != nil {
		return nil, err
	}

	reviewers, err := parseParticipants(cfg.Approval.Reviewers)
	if err != nil {
		return nil, fmt.Errorf("approval.reviewers: %w", err)
	}
	// The engine needs the approval service to open reviews and the approval service needs
	// the engine to annotate rejected messages.
	annotator := &lateAnnotator{}
	approvals, err := approvalservice.New(st, notifier,
		approvalservice.WithReviewers(reviewers),
		approvalservice.WithCASRetries(cfg.Approval.CASRetries),
		approvalservice.WithAuditPublisher(auditor),
		approvalservice.WithAnnotator(annotator),
		approvalservice.WithLogger(log),
		approvalservice.WithMetrics(approvalmetrics.New()),
	)
	if err != nil {
		return nil, err
	}
	engine, err := delivery.New(st, a.registry, approvals,
		delivery.WithLogger(log),
		delivery.WithMetrics(deliverymetrics.New()),
	)
	if err != nil {
		return nil, err
	}
	annotator.engine = engine

	policy, err := policyservice.New(st, limiter, budget, notifier,
		policyservice.WithRateLimit(cfg.Policy.RateLimit, cfg.Policy.RateWindow, cfg.Policy.Cooldown),
		policyservice.WithDefaultTimezone(cfg.Policy.DefaultTimezone),
		policyservice.WithAuditPublisher(auditor),
		policyservice.WithConversationCloser(a.registry),
		policyservice.WithViewerResolver(engine),
		policyservice.WithLogger(log),
		policyservice.WithMetrics(policymetrics.New()),
	)
	if err != nil {
		return nil, err
	}

	chatSvc, err := chat.New(st, policy, gate, engine, a.registry, chat.WithLogger(log))
	if err != nil {
		return nil, err
	}
	a.registry.OnStatus(chatSvc.RelayPresence)
	a.registry.OnFlushed(engine.MarkFlushed)

	handler, err := httptransport.New(chatSvc, engine, approvals, policy, a.registry,
		identity.NewValidator(cfg.Identity.SigningKey, cfg.Identity.Issuer),
		httptransport.WithLogger(log),
		httptransport.WithMetrics(metrics.New()),
		httptransport.WithRequestTimeout(cfg.Server.RequestTimeout),
		httptransport.WithWriteTimeout(cfg.Connection.WriteTimeout),
		httptransport.WithAllowedOrigins(cfg.Server.AllowedOrigins),
	)
	if err != nil {
		return nil, err
	}
	a.router = handler.Routes()
	ok = true
	return a, nil
}

// buildNotifier pushes notifications to live channels and then to Kafka, or to the log when
// no brokers are configured.
func buildNotifier(ctx context.Context, cfg config.KafkaConfig, a *app, log *slog.Logger) (*notify.LivePublisher, error) {
	client, err := kafka.New(ctx, cfg, kgo.ClientID("chaperone"))
	if err != nil {
		return nil, err
	}
	if client == nil {
		return notify.NewLivePublisher(a.registry, notify.NewLogPublisher(log), log), nil
	}
	a.closers = append(a.closers, client.Close)
	if err := kafka.EnsureTopic(ctx, client, cfg.NotificationTopic, cfg.Partitions, cfg.ReplicationFactor); err != nil {
		return nil, err
	}
	var next notify.Publisher = notify.NewKafkaPublisher(client, cfg.NotificationTopic)
	return notify.NewLivePublisher(a.registry, next, log), nil
}

// buildGate picks the remote classifier when one is configured and the lexicon otherwise.
func buildGate(cfg config.ModerationConfig, counter moderation.Counter, log *slog.Logger) (*moderation.Gate, error) {
	var o moderation.Oracle
	switch {
	case cfg.OracleURL != "":
		o = oracle.NewHTTP(cfg.OracleURL, &http.Client{Timeout: 2 * cfg.Timeout})
	case cfg.LexiconPath != "":
		lex, err := oracle.LoadLexicon(cfg.LexiconPath)
		if err != nil {
			return nil, err
		}
		o = lex
	default:
		lex, err := oracle.DefaultLexicon()
		if err != nil {
			return nil, err
		}
		o = lex
	}
	return moderation.New(o,
		moderation.WithTimeout(cfg.Timeout),
		moderation.WithBreaker(circuit.New("moderation-oracle",
			circuit.WithFailureThreshold(cfg.FailureThreshold),
			circuit.WithCooldown(cfg.BreakerCooldown),
		)),
		moderation.WithCache(moderation.NewCache(cfg.CacheTTL, cfg.CacheSize)),
		moderation.WithCounter(counter),
		moderation.WithLogger(log),
		moderation.WithMetrics(moderationmetrics.New()),
	)
}

func parseParticipants(raw []string) ([]id.ParticipantID, error) {
	out := make([]id.ParticipantID, 0, len(raw))
	for _, r := range raw {
		pid, err := id.ParseParticipantID(r)
		if err != nil {
			return nil, err
		}
		out = append(out, pid)
	}
	return out, nil
}

type lateAnnotator struct {
	engine *delivery.Engine
}

func (l *lateAnnotator) ResolveReview(ctx context.Context, mid id.MessageID, annotation domain.Annotation, by id.ParticipantID) (*domain.Message, error) {
	return l.engine.ResolveReview(ctx, mid, annotation, by)
}

var (
	_ store = (*memory.Store)(nil)
	_ store = (*pgstore.Store)(nil)
)
