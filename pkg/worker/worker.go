package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// Worker runs the asynq server consuming notification tasks and the asynq
// scheduler enqueuing the periodic flushes.
type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	handlers  *Handlers
	logger    *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger for the worker and the asynq internals.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// New builds a worker. The scheduled flush runs on notifyCfg.ScheduledInterval
// and, when the handlers have a digest flusher, the digest flush on
// notifyCfg.DigestInterval. Both specs use asynq cron syntax ("@every 30s").
func New(redis asynq.RedisConnOpt, h *Handlers, cfg Config, notifyCfg notifications.Config, opts ...Option) (*Worker, error) {
	if h == nil {
		return nil, ErrDispatcherNil
	}
	w := &Worker{handlers: h, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}

	loc, err := time.LoadLocation(cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("worker: invalid cron location %q: %w", cfg.Location, err)
	}

	log := asynqLogger{log: w.logger.With(logger.Component("asynq"))}

	w.server = asynq.NewServer(redis, asynq.Config{
		Concurrency:     cfg.Concurrency,
		Queues:          cfg.queues(),
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          log,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			w.logger.LogAttrs(ctx, slog.LevelWarn, "Task failed",
				taskAttr(ctx),
				slog.String("type", task.Type()),
				logger.Attempt(retried+1),
				logger.Error(err),
			)
		}),
	})

	w.scheduler = asynq.NewScheduler(redis, &asynq.SchedulerOpts{
		Location: loc,
		Logger:   log,
	})

	periodic := []asynq.Option{asynq.Queue(cfg.PeriodicQueue), asynq.MaxRetry(0)}
	if _, err := w.scheduler.Register(notifyCfg.ScheduledInterval, asynq.NewTask(TypeFlushScheduled, nil), periodic...); err != nil {
		return nil, fmt.Errorf("worker: registering scheduled flush %q: %w", notifyCfg.ScheduledInterval, err)
	}
	if h.digests != nil {
		if _, err := w.scheduler.Register(notifyCfg.DigestInterval, asynq.NewTask(TypeFlushDigests, nil), periodic...); err != nil {
			return nil, fmt.Errorf("worker: registering digest flush %q: %w", notifyCfg.DigestInterval, err)
		}
	}
	return w, nil
}

// Run starts the server and scheduler and blocks until ctx is done, then
// shuts both down.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.handlers.Mux()); err != nil {
		return fmt.Errorf("worker: starting server: %w", err)
	}
	if err := w.scheduler.Start(); err != nil {
		w.server.Shutdown()
		return fmt.Errorf("worker: starting scheduler: %w", err)
	}
	w.logger.LogAttrs(ctx, slog.LevelInfo, "Worker started", logger.Component("worker"))

	<-ctx.Done()

	w.scheduler.Shutdown()
	w.server.Shutdown()
	w.logger.LogAttrs(context.WithoutCancel(ctx), slog.LevelInfo, "Worker stopped", logger.Component("worker"))

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
