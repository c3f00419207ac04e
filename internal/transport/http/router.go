// Package httptransport exposes the messaging core over REST and a WebSocket live channel.
package httptransport

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chaperone/internal/connection"
	"chaperone/internal/platform/metrics"
	id "chaperone/pkg/domain"
	dErrors "chaperone/pkg/domain-errors"
	"chaperone/pkg/platform/httputil"
	"chaperone/pkg/platform/middleware/auth"
	"chaperone/pkg/platform/middleware/metadata"
	"chaperone/pkg/platform/middleware/requesttime"
	"chaperone/pkg/requestcontext"
)

var tracer = otel.Tracer("chaperone/http")

const (
	defaultRequestTimeout = 30 * time.Second
	defaultWriteTimeout   = 10 * time.Second
)

type Handler struct {
	chat      ChatService
	history   HistoryReader
	approvals ApprovalService
	policy    PolicyService
	registry  *connection.Registry
	validator auth.TokenValidator

	logger         *slog.Logger
	metrics        *metrics.Metrics
	requestTimeout time.Duration
	writeTimeout   time.Duration
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithRequestTimeout bounds REST handlers. The WebSocket route is exempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.requestTimeout = d
		}
	}
}

// WithWriteTimeout bounds each frame written to a live channel.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithAllowedOrigins restricts WebSocket upgrades to the listed origins. Empty allows any.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Handler) { h.allowedOrigins = origins }
}

func New(
	chat ChatService,
	history HistoryReader,
	approvals ApprovalService,
	policy PolicyService,
	registry *connection.Registry,
	validator auth.TokenValidator,
	opts ...Option,
) (*Handler, error) {
	if chat == nil || history == nil || approvals == nil || policy == nil || registry == nil || validator == nil {
		return nil, errors.New("http transport dependencies are required")
	}
	h := &Handler{
		chat:           chat,
		history:        history,
		approvals:      approvals,
		policy:         policy,
		registry:       registry,
		validator:      validator,
		logger:         slog.New(slog.DiscardHandler),
		requestTimeout: defaultRequestTimeout,
		writeTimeout:   defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h, nil
}

// Routes builds the chi router with the full middleware chain.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestID)
	r.Use(h.recoverer)
	r.Use(h.observe)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(h.validator, h.logger))
		r.Use(metadata.ClientMetadata)

		r.Get("/ws", h.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(h.requestTimeout))

			r.Post("/v1/drafts:evaluate", h.handleEvaluateDraft)

			r.Route("/v1/conversations/{conversationID}", func(r chi.Router) {
				r.Post("/messages", h.handleSend)
				r.Get("/messages", h.handleHistory)
				r.Post("/receipts", h.handleReceipt)
				r.Post("/pause", h.directive(h.policy.Pause))
				r.Post("/resume", h.directive(h.policy.Resume))
				r.Post("/terminate", h.directive(h.policy.Terminate))
				r.Post("/emergency-stop", h.directive(h.policy.EmergencyStop))
			})

			r.Route("/v1/approvals", func(r chi.Router) {
				r.Post("/", h.handleSubmitApproval)
				r.Get("/pending", h.handleListPending)
				r.Get("/{approvalID}", h.handleGetApproval)
				r.Post("/{approvalID}/review", h.handleStartReview)
				r.Post("/{approvalID}/decisions", h.handleDecide)
				r.Post("/{approvalID}/resubmit", h.handleResubmit)
				r.Post("/{approvalID}/reapply", h.handleReapply)
			})

			r.Route("/v1/wards/{wardID}", func(r chi.Router) {
				r.Get("/policy", h.handleGetPolicy)
				r.Put("/policy", h.handleSetPolicy)
				r.Get("/overrides", h.handleListOverrides)
			})

			r.Route("/v1/overrides", func(r chi.Router) {
				r.Post("/", h.handleRequestOverride)
				r.Get("/{overrideID}", h.handleGetOverride)
				r.Post("/{overrideID}/grant", h.handleGrantOverride)
				r.Post("/{overrideID}/revoke", h.handleRevokeOverride)
			})
		})
	})
	return r
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.allowedOrigins, r.Header.Get("Origin"))
}

// requestID copies chi's request id into the shared request context and echoes it back.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := chimw.GetReqID(r.Context())
		w.Header().Set("X-Request-ID", rid)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), rid)))
	})
}

func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			h.logger.ErrorContext(r.Context(), "panic recovered",
				"request_id", requestcontext.RequestID(r.Context()),
				"path", r.URL.Path,
				"panic", rec,
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "internal error"))
		}()
		next.ServeHTTP(w, r)
	})
}

// observe opens a server span per request and records latency by route pattern so path
// parameters do not explode cardinality.
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		span.SetAttributes(attribute.String("http.request_id", requestcontext.RequestID(ctx)))

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		r = r.WithContext(ctx)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		span.SetName(r.Method + " " + route)
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		h.metrics.ObserveRequest(route, r.Method, strconv.Itoa(status), time.Since(start).Seconds())
	})
}

func pathParticipant(r *http.Request, key string) (id.ParticipantID, error) {
	return id.ParseParticipantID(chi.URLParam(r, key))
}

func pathConversation(r *http.Request) (id.ConversationID, error) {
	return id.ParseConversationID(chi.URLParam(r, "conversationID"))
}

func pathApproval(r *http.Request) (id.ApprovalID, error) {
	return id.ParseApprovalID(chi.URLParam(r, "approvalID"))
}

func pathOverride(r *http.Request) (id.OverrideID, error) {
	return id.ParseOverrideID(chi.URLParam(r, "overrideID"))
}

// fail writes err and logs it at a level matching who is at fault.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"participant_id", requestcontext.ParticipantID(ctx).String(),
		"error", err,
	}
	code := dErrors.CodeOf(err)
	if code == "" || code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.InfoContext(ctx, msg, append(attrs, "code", string(code))...)
	}
	httputil.WriteError(w, err)
}
