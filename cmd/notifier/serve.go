package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/notifykit/pkg/channels/emailch"
	"github.com/dmitrymomot/notifykit/pkg/channels/inapp"
	"github.com/dmitrymomot/notifykit/pkg/channels/push"
	"github.com/dmitrymomot/notifykit/pkg/channels/sms"
	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/notifications/pgstore"
	"github.com/dmitrymomot/notifykit/pkg/notifications/redisstore"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/redis"
	"github.com/dmitrymomot/notifykit/pkg/templates"
	"github.com/dmitrymomot/notifykit/pkg/worker"
)

func newServeCmd() *cobra.Command {
	var runHTTP, runWorker, migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the task worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !runHTTP && !runWorker {
				return fmt.Errorf("nothing to run: enable --http or --worker")
			}

			var cfg appConfig
			if err := config.Load(&cfg, envFiles...); err != nil {
				return err
			}
			log := newLogger(cfg.Env, cfg.ServiceName, cfg.LogLevel)
			return serve(cmd.Context(), cfg, log, runHTTP, runWorker, migrate)
		},
	}
	cmd.Flags().BoolVar(&runHTTP, "http", true, "serve the HTTP API")
	cmd.Flags().BoolVar(&runWorker, "worker", true, "consume tasks and run the periodic flushes")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg appConfig, log *slog.Logger, runHTTP, runWorker, migrate bool) error {
	pool, err := pg.Connect(ctx, cfg.PG)
	if err != nil {
		return err
	}
	defer pool.Close()

	if migrate {
		if err := pg.Migrate(ctx, pool, pgstore.Migrations(), cfg.PG, log); err != nil {
			return err
		}
	}

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer rdb.Close()

	eng, err := newEngine(ctx, cfg, pool, rdb, log)
	if err != nil {
		return err
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.Redis.ConnectionURL)
	if err != nil {
		return fmt.Errorf("parsing redis url for asynq: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if runHTTP {
		client := asynq.NewClient(redisOpt)
		defer client.Close()

		router := httpserver.NewRouter(eng.manager,
			httpserver.WithEventPublisher(worker.NewEnqueuer(client, cfg.Worker)),
			httpserver.WithReadinessChecks(
				httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)},
				httpserver.Check{Name: "redis", Fn: redis.Healthcheck(rdb)},
			),
			httpserver.WithRequestTimeout(cfg.HTTP.RequestTimeout),
			httpserver.WithRouterLogger(log),
		)
		srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
		g.Go(func() error { return srv.Run(gctx, router) })
	}

	if runWorker {
		handlers, err := worker.NewHandlers(eng.manager, eng.digests, worker.WithHandlerLogger(log))
		if err != nil {
			return err
		}
		w, err := worker.New(redisOpt, handlers, cfg.Worker, cfg.Notify, worker.WithLogger(log))
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(gctx) })
	}

	log.LogAttrs(ctx, slog.LevelInfo, "Notifier running",
		slog.Bool("http", runHTTP),
		slog.Bool("worker", runWorker),
		slog.Any("channels", eng.channels),
	)
	return g.Wait()
}

type engine struct {
	manager  *notifications.Manager
	digests  *notifications.DigestAggregator
	channels []string
}

// newEngine wires stores, channel senders and templates into the manager and
// digest aggregator.
func newEngine(ctx context.Context, cfg appConfig, pool *pgxpool.Pool, rdb *goredis.Client, log *slog.Logger) (*engine, error) {
	table, err := cfg.Notify.ChannelTable()
	if err != nil {
		return nil, err
	}

	store := pgstore.New(pool)
	history := redisstore.NewHistory(rdb, redisstore.WithRetention(max(cfg.Notify.ThrottleWindow, cfg.Notify.DigestWindow)))
	registry := templates.New(templates.WithBrand(cfg.Brand))

	mailer, err := email.New(cfg.Email)
	if err != nil {
		return nil, err
	}

	senders := map[notifications.Channel]notifications.ChannelSender{
		notifications.ChannelEmail: emailch.New(mailer, emailch.WithLogger(log)),
		notifications.ChannelInApp: inapp.New(rdb, inapp.WithPrefix(cfg.InAppPrefix), inapp.WithLogger(log)),
	}
	if cfg.SMSEnabled {
		s, err := sms.NewFromConfig(ctx, cfg.SMS, sms.WithLogger(log))
		if err != nil {
			return nil, err
		}
		senders[notifications.ChannelSMS] = s
	}
	if cfg.PushEnabled {
		s, err := push.NewFromConfig(ctx, cfg.Push, push.WithLogger(log))
		if err != nil {
			return nil, err
		}
		senders[notifications.ChannelPush] = s
	}

	opts := []notifications.OrchestratorOption{
		notifications.WithRenderer(registry),
		notifications.WithBackoff(cfg.Notify.Backoff()),
		notifications.WithMaxRetries(cfg.Notify.MaxRetries),
		notifications.WithPreferenceStore(store),
		notifications.WithHistory(history),
		notifications.WithDuplicateWindow(cfg.Notify.ThrottleWindow),
		notifications.WithScheduledBatch(cfg.Notify.ScheduledBatch, cfg.Notify.ScheduledLease),
		notifications.WithOrchestratorLogger(log.With(logger.Component("orchestrator"))),
	}
	var channels []string
	for _, ch := range notifications.AllChannels {
		if s, ok := senders[ch]; ok {
			opts = append(opts, notifications.WithSender(ch, s))
			channels = append(channels, ch.String())
		}
	}
	opts = append(opts, rateLimits(cfg.Notify)...)

	orch, err := notifications.NewOrchestrator(store, store, opts...)
	if err != nil {
		return nil, err
	}

	router := notifications.NewRouter(store, history,
		notifications.WithChannelTable(table),
		notifications.WithThrottleWindow(cfg.Notify.ThrottleWindow),
		notifications.WithRouterLogger(log.With(logger.Component("router"))),
	)
	manager, err := notifications.NewManager(router, orch, notifications.WithManagerLogger(log))
	if err != nil {
		return nil, err
	}

	digests, err := notifications.NewDigestAggregator(orch,
		notifications.WithDigestWindow(cfg.Notify.DigestWindow),
		notifications.WithDigestBatch(cfg.Notify.DigestBatch),
		notifications.WithDigestLockTTL(cfg.Notify.DigestLockTTL),
		notifications.WithDigestLocker(redisstore.NewLocker(rdb, "")),
		notifications.WithDigestRenderer(registry),
		notifications.WithDigestLogger(log.With(logger.Component("digest"))),
	)
	if err != nil {
		return nil, err
	}

	return &engine{manager: manager, digests: digests, channels: channels}, nil
}

// rateLimits turns the per-channel send rates into limiter options. The burst
// equals one second of traffic, at least one.
func rateLimits(cfg notifications.Config) []notifications.OrchestratorOption {
	rates := map[notifications.Channel]float64{
		notifications.ChannelEmail: cfg.EmailRateLimit,
		notifications.ChannelSMS:   cfg.SMSRateLimit,
		notifications.ChannelPush:  cfg.PushRateLimit,
	}
	var opts []notifications.OrchestratorOption
	for _, ch := range notifications.AllChannels {
		if r := rates[ch]; r > 0 {
			opts = append(opts, notifications.WithChannelRateLimit(ch, r, max(int(r), 1)))
		}
	}
	return opts
}
