// Package logger builds *slog.Logger instances for the notifier services and
// provides helper attribute constructors with consistent keys.
//
// New creates a text or JSON handler depending on the configured Format and
// wraps it with LogHandlerDecorator, which runs ContextExtractor callbacks on
// every record. Attributes attached to a context with WithAttrs are always
// extracted, so background jobs can tag every log line of a task:
//
//	log := logger.New(logger.WithEnvironment(cfg.Env, "notifier"))
//	logger.SetAsDefault(log)
//
//	ctx = logger.WithAttrs(ctx, logger.TaskID(task.ID))
//	log.InfoContext(ctx, "notification sent",
//	    logger.NotificationID(n.ID),
//	    logger.Channel(n.Channel),
//	    logger.Attempt(n.Attempts),
//	)
//
// # Configuration
//
//   - WithEnvironment: development (text, debug) or staging/production (JSON, info).
//   - WithFormat, WithLevel, WithLevelName: override output format or level.
//   - WithAttr: attach static attributes.
//   - WithContextExtractors, WithContextValue: inject attributes from context.
//
// Error and Errors return an empty attribute for nil errors, so
//
//	log.Info("flush finished", logger.Error(err))
//
// needs no nil check.
package logger
