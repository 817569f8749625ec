// Package pgstore implements the notification Storage, DigestQueue and
// PreferenceStore interfaces on PostgreSQL using pgx/v5.
//
// The schema ships as embedded goose migrations; apply them with
// pg.Migrate(ctx, pool, pgstore.Migrations(), cfg, log) before serving.
//
// ClaimDue leases due scheduled records with FOR UPDATE SKIP LOCKED, so several
// worker processes can flush the same table without double-sending. Preference
// snapshots are stored as a single JSONB document per user.
package pgstore
