package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/dmitrymomot/notifykit/pkg/events"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

type (
	// Dispatcher routes requests and flushes due scheduled notifications.
	// *notifications.Manager implements it.
	Dispatcher interface {
		RouteAndDispatch(ctx context.Context, req notifications.Request) (notifications.Result, error)
		FlushDueScheduled(ctx context.Context) (notifications.ScheduledReport, error)
	}

	// DigestFlusher is implemented by *notifications.DigestAggregator.
	DigestFlusher interface {
		FlushDigests(ctx context.Context) (notifications.DigestReport, error)
	}

	TaskHandlerFunc[T any] func(ctx context.Context, payload T) error
)

// NewTaskHandler decodes the JSON task payload into T. Undecodable payloads
// are never retried.
func NewTaskHandler[T any](handler TaskHandlerFunc[T]) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload T
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("%w: %w: %w", ErrInvalidPayload, err, asynq.SkipRetry)
		}
		return handler(ctx, payload)
	}
}

// Handlers processes notification tasks.
type Handlers struct {
	dispatcher Dispatcher
	digests    DigestFlusher
	logger     *slog.Logger
}

// HandlerOption configures Handlers.
type HandlerOption func(*Handlers)

// WithHandlerLogger sets the logger for the handlers.
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handlers) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandlers creates task handlers. digests may be nil when no digest
// aggregator runs in this process.
func NewHandlers(dispatcher Dispatcher, digests DigestFlusher, opts ...HandlerOption) (*Handlers, error) {
	if dispatcher == nil {
		return nil, ErrDispatcherNil
	}
	h := &Handlers{
		dispatcher: dispatcher,
		digests:    digests,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Mux registers every handler on a new asynq.ServeMux.
func (h *Handlers) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeEvent, NewTaskHandler(h.HandleEvent))
	mux.Handle(TypeRequest, NewTaskHandler(h.HandleRequest))
	mux.HandleFunc(TypeFlushScheduled, h.HandleFlushScheduled)
	if h.digests != nil {
		mux.HandleFunc(TypeFlushDigests, h.HandleFlushDigests)
	}
	return mux
}

// HandleEvent translates a domain event and routes it. Unknown events are
// dropped without retry.
func (h *Handlers) HandleEvent(ctx context.Context, e events.Event) error {
	req, err := events.Translate(e)
	if err != nil {
		h.logger.LogAttrs(ctx, slog.LevelWarn, "Dropping untranslatable event",
			taskAttr(ctx),
			logger.EventType(e.Name),
			logger.UserID(e.UserID),
			logger.Error(err),
		)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return h.HandleRequest(ctx, req)
}

// HandleRequest routes a request. Only persistence failures are returned so
// asynq redelivers the task; channel failures are final once retried in the
// orchestrator.
func (h *Handlers) HandleRequest(ctx context.Context, req notifications.Request) error {
	res, err := h.dispatcher.RouteAndDispatch(ctx, req)
	if err != nil {
		h.logger.LogAttrs(ctx, slog.LevelError, "Failed to dispatch notification",
			taskAttr(ctx),
			logger.UserID(req.UserID),
			logger.Template(req.Template),
			logger.Error(err),
		)
		return err
	}

	level := slog.LevelInfo
	if res.Status != notifications.ResultSuccess {
		level = slog.LevelWarn
	}
	h.logger.LogAttrs(ctx, level, "Notification request processed",
		taskAttr(ctx),
		logger.UserID(req.UserID),
		logger.Template(req.Template),
		slog.String("status", res.Status.String()),
		slog.String("mode", res.Mode.String()),
		logger.Reason(res.Reason),
		slog.Int("sent", res.Sent()),
		slog.Int("failed", res.Failed()),
	)
	return nil
}

func (h *Handlers) HandleFlushScheduled(ctx context.Context, _ *asynq.Task) error {
	report, err := h.dispatcher.FlushDueScheduled(ctx)
	if err != nil {
		h.logger.LogAttrs(ctx, slog.LevelError, "Scheduled flush failed",
			taskAttr(ctx),
			logger.Count(report.Claimed),
			logger.Error(err),
		)
		return err
	}
	return nil
}

// HandleFlushDigests runs one digest pass. An overlapping pass is not an error.
func (h *Handlers) HandleFlushDigests(ctx context.Context, _ *asynq.Task) error {
	if h.digests == nil {
		return nil
	}
	report, err := h.digests.FlushDigests(ctx)
	if errors.Is(err, notifications.ErrFlushInProgress) {
		h.logger.LogAttrs(ctx, slog.LevelDebug, "Digest flush already running", taskAttr(ctx))
		return nil
	}
	if err != nil {
		h.logger.LogAttrs(ctx, slog.LevelError, "Digest flush failed",
			taskAttr(ctx),
			logger.Count(report.Users),
			logger.Error(err),
		)
		return err
	}
	return nil
}

func taskAttr(ctx context.Context) slog.Attr {
	id, _ := asynq.GetTaskID(ctx)
	return logger.TaskID(id)
}
