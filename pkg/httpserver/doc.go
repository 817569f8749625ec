// Package httpserver serves the notification HTTP API.
//
// Server wraps net/http with context-driven graceful shutdown: Run blocks
// until the context is cancelled, then calls http.Server.Shutdown with the
// configured deadline. Listen errors are wrapped with ErrStart and shutdown
// errors with ErrShutdown.
//
// NewRouter builds a chi router exposing liveness and readiness probes, the
// synchronous routing endpoint, optional asynchronous event intake and the
// per-user notification listing:
//
//	router := httpserver.NewRouter(manager,
//		httpserver.WithEventPublisher(enqueuer),
//		httpserver.WithReadinessChecks(httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)}),
//	)
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	err := srv.Run(ctx, router)
//
// Every request carries a request ID that is attached to log records through
// logger.WithAttrs.
package httpserver
