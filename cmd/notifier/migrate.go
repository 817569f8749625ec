package main

import (
	"context"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/notifications/pgstore"
	"github.com/dmitrymomot/notifykit/pkg/pg"
)

type migrateFunc func(ctx context.Context, pool *pgxpool.Pool, migrations fs.FS, cfg pg.Config, log *slog.Logger) error

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the notification database schema",
	}
	cmd.AddCommand(
		migrateSubcommand("up", "Apply all pending migrations", pg.Migrate),
		migrateSubcommand("down", "Roll back the latest migration", pg.Rollback),
		migrateSubcommand("status", "Print the migration status", pg.MigrationStatus),
	)
	return cmd
}

func migrateSubcommand(use, short string, run migrateFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg migrateConfig
			if err := config.Load(&cfg, envFiles...); err != nil {
				return err
			}
			log := newLogger(cfg.Env, cfg.ServiceName, cfg.LogLevel)

			ctx := cmd.Context()
			pool, err := pg.Connect(ctx, cfg.PG)
			if err != nil {
				return err
			}
			defer pool.Close()

			return run(ctx, pool, pgstore.Migrations(), cfg.PG, log)
		},
	}
}
