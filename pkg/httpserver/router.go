package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/notifykit/pkg/events"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

type (
	// NotificationService routes requests and reads notification records.
	// *notifications.Manager implements it.
	NotificationService interface {
		RouteAndDispatch(ctx context.Context, req notifications.Request) (notifications.Result, error)
		Get(ctx context.Context, userID, notifID string) (*notifications.Notification, error)
		List(ctx context.Context, userID string, opts notifications.ListOptions) ([]notifications.Notification, error)
	}

	// EventPublisher queues domain events for asynchronous routing.
	// *worker.Enqueuer implements it.
	EventPublisher interface {
		EnqueueEvent(ctx context.Context, e events.Event) (string, error)
	}
)

type routerConfig struct {
	publisher      EventPublisher
	checks         []Check
	requestTimeout time.Duration
	logger         *slog.Logger
}

// RouterOption configures the API router.
type RouterOption func(*routerConfig)

// WithEventPublisher mounts POST /v1/events.
func WithEventPublisher(p EventPublisher) RouterOption {
	return func(c *routerConfig) { c.publisher = p }
}

// WithReadinessChecks adds dependency probes to /readyz.
func WithReadinessChecks(checks ...Check) RouterOption {
	return func(c *routerConfig) { c.checks = append(c.checks, checks...) }
}

func WithRequestTimeout(d time.Duration) RouterOption {
	return func(c *routerConfig) { c.requestTimeout = d }
}

func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(c *routerConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewRouter builds the HTTP API:
//
//	GET  /healthz
//	GET  /readyz
//	POST /v1/notifications
//	POST /v1/events                                (with WithEventPublisher)
//	GET  /v1/users/{userID}/notifications
//	GET  /v1/users/{userID}/notifications/{notificationID}
func NewRouter(svc NotificationService, opts ...RouterOption) http.Handler {
	cfg := &routerConfig{requestTimeout: time.Minute, logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	h := &handlers{svc: svc, publisher: cfg.publisher, logger: cfg.logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", LivenessHandler())
	r.Get("/readyz", ReadinessHandler(cfg.logger, cfg.checks...))

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.requestTimeout))
		r.Use(middleware.AllowContentType("application/json"))

		r.Post("/notifications", h.routeNotification)
		if cfg.publisher != nil {
			r.Post("/events", h.publishEvent)
		}
		r.Route("/users/{userID}/notifications", func(r chi.Router) {
			r.Get("/", h.listNotifications)
			r.Get("/{notificationID}", h.getNotification)
		})
	})
	return r
}

// requestLogger tags the request context with its ID and logs one line per
// request.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := logger.WithAttrs(r.Context(), logger.RequestID(middleware.GetReqID(r.Context())))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(ctx))

			level := slog.LevelDebug
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			log.LogAttrs(ctx, level, "HTTP request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				logger.Duration(time.Since(start)),
			)
		})
	}
}
