package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrate applies every pending migration found in the root of migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool, migrations fs.FS, cfg Config, log *slog.Logger) error {
	return runGoose(ctx, pool, migrations, cfg, log, goose.UpContext)
}

// Rollback reverts the most recent migration.
func Rollback(ctx context.Context, pool *pgxpool.Pool, migrations fs.FS, cfg Config, log *slog.Logger) error {
	return runGoose(ctx, pool, migrations, cfg, log, goose.DownContext)
}

// MigrationStatus logs the applied state of every migration.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrations fs.FS, cfg Config, log *slog.Logger) error {
	return runGoose(ctx, pool, migrations, cfg, log, goose.StatusContext)
}

type gooseCommand func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error

func runGoose(ctx context.Context, pool *pgxpool.Pool, migrations fs.FS, cfg Config, log *slog.Logger, cmd gooseCommand) error {
	if migrations == nil {
		return errors.Join(ErrFailedToApplyMigrations, ErrMigrationsNotProvided)
	}
	if log == nil {
		log = slog.Default()
	}

	// goose works on database/sql; this view shares the pool's connections.
	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil {
			log.ErrorContext(ctx, "Failed to close database connection", slog.Any("error", err))
		}
	}()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(&migrateSlogAdapter{log: log})
	if cfg.MigrationsTable != "" {
		goose.SetTableName(cfg.MigrationsTable)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	if err := cmd(ctx, db, "."); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	return nil
}

// migrateSlogAdapter routes goose's Printf-style output to slog.
type migrateSlogAdapter struct {
	log *slog.Logger
}

func (a *migrateSlogAdapter) Fatalf(format string, v ...any) {
	a.log.Error(fmt.Sprintf(format, v...), slog.String("component", "migrations"))
}

func (a *migrateSlogAdapter) Printf(format string, v ...any) {
	a.log.Info(fmt.Sprintf(format, v...), slog.String("component", "migrations"))
}
