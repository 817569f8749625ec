// Package pg bootstraps PostgreSQL access on top of pgx/v5.
//
// Connect opens a *pgxpool.Pool from Config and retries until the database
// answers a ping. Migrate, Rollback and MigrationStatus run goose/v3 against
// the same pool using migrations supplied as an fs.FS, so each store package
// embeds and owns its schema. Healthcheck returns a closure suitable for a
// readiness endpoint.
//
// # Usage
//
//	pool, err := pg.Connect(ctx, cfg.PG)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations, cfg.PG, log); err != nil {
//		return err
//	}
//
// # Error Handling
//
// IsNotFoundError and IsDuplicateKeyError classify errors returned by pgx
// without leaking *pgconn.PgError into callers.
package pg
