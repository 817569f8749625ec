package notifications

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Manager is the single entry point for event consumers: it routes a request
// and executes the decision.
type Manager struct {
	router *Router
	orch   *Orchestrator
	logger *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger for the Manager.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a new notification manager.
func NewManager(router *Router, orch *Orchestrator, opts ...ManagerOption) (*Manager, error) {
	if orch == nil {
		return nil, ErrOrchestratorNil
	}
	if router == nil {
		router = NewRouter(nil, nil)
	}

	m := &Manager{
		router: router,
		orch:   orch,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// RouteAndDispatch turns one request into dispatched, scheduled, digested or
// suppressed notifications. Invalid requests are Rejected rather than failed.
// A non-nil error means state could not be persisted or ctx was cancelled;
// channel delivery failures are reported through the Result.
func (m *Manager) RouteAndDispatch(ctx context.Context, req Request) (Result, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "Notification request rejected",
			logger.UserID(req.UserID),
			logger.Template(req.Template),
			logger.Error(err),
		)
		return rejected(err.Error()), nil
	}

	d := m.router.Route(ctx, req)
	if err := d.Validate(); err != nil {
		return Result{}, err
	}

	m.logger.LogAttrs(ctx, slog.LevelDebug, "Notification routed",
		logger.UserID(req.UserID),
		logger.Template(req.Template),
		logger.Priority(d.EffectivePriority),
		slog.String("mode", d.Mode.String()),
		logger.Reason(d.Reason),
	)

	switch d.Mode {
	case ModeImmediate:
		return m.orch.ExecuteImmediate(ctx, d, req)
	case ModeScheduled:
		return m.orch.Schedule(ctx, d, req)
	case ModeDigest:
		return m.orch.AddToDigest(ctx, d, req)
	case ModeSuppressed:
		return m.orch.Suppress(ctx, d, req)
	default:
		return Result{}, fmt.Errorf("%w: unknown mode %d", ErrInvalidDecision, d.Mode)
	}
}

// FlushDueScheduled delivers scheduled notifications that are due.
func (m *Manager) FlushDueScheduled(ctx context.Context) (ScheduledReport, error) {
	return m.orch.FlushDueScheduled(ctx)
}

func (m *Manager) Get(ctx context.Context, userID, notifID string) (*Notification, error) {
	return m.orch.storage.Get(ctx, userID, notifID)
}

func (m *Manager) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	return m.orch.storage.List(ctx, userID, opts)
}

// Storage returns the underlying notification storage.
func (m *Manager) Storage() Storage {
	return m.orch.storage
}
