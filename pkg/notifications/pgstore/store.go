package pgstore

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/pg"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns the goose migrations for the notifications schema.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists notification records, digest entries and preference
// snapshots in PostgreSQL.
type Store struct {
	db DB
}

var (
	_ notifications.Storage         = (*Store)(nil)
	_ notifications.DigestQueue     = (*Store)(nil)
	_ notifications.PreferenceStore = (*Store)(nil)
)

// New creates a Store backed by db.
func New(db DB) *Store {
	return &Store{db: db}
}

const notificationColumns = `id, user_id, type, template, channel, recipient, priority, status, subject, body,
	variables, silent, attempts, last_error, metadata, created_at, scheduled_at, sent_at, leased_until`

func (s *Store) Create(ctx context.Context, n notifications.Notification) error {
	if n.ID == "" || n.UserID == "" {
		return errors.New("notification ID and user ID are required")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	vars, meta, err := encodeMaps(n.Variables, n.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		n.ID, n.UserID, n.Type, n.Template, n.Channel.String(), n.Recipient, n.Priority.String(),
		string(n.Status), n.Subject, n.Body, vars, n.Silent, n.Attempts, n.LastError, meta,
		n.CreatedAt, n.ScheduledAt, n.SentAt, n.LeasedUntil,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s: %w", notifications.ErrNotificationExists, n.ID, err)
		}
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, n notifications.Notification) error {
	vars, meta, err := encodeMaps(n.Variables, n.Metadata)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE notifications SET
			recipient = $3, status = $4, subject = $5, body = $6, variables = $7, silent = $8,
			attempts = $9, last_error = $10, metadata = $11, scheduled_at = $12, sent_at = $13,
			leased_until = $14
		WHERE id = $1 AND user_id = $2`,
		n.ID, n.UserID, n.Recipient, string(n.Status), n.Subject, n.Body, vars, n.Silent,
		n.Attempts, n.LastError, meta, n.ScheduledAt, n.SentAt, n.LeasedUntil,
	)
	if err != nil {
		return fmt.Errorf("updating notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notifications.ErrNotificationNotFound
	}
	return nil
}

func (s *Store) Get(ctx context.Context, userID, notifID string) (*notifications.Notification, error) {
	row := s.db.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1 AND user_id = $2`,
		notifID, userID)

	n, err := scanNotification(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, notifications.ErrNotificationNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (s *Store) List(ctx context.Context, userID string, opts notifications.ListOptions) ([]notifications.Notification, error) {
	query, args := listQuery(userID, opts)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	return collectNotifications(rows)
}

// listQuery builds the filtered, newest-first listing query.
func listQuery(userID string, opts notifications.ListOptions) (string, []any) {
	clauses := []string{"user_id = $1"}
	args := []any{userID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(opts.Statuses) > 0 {
		statuses := make([]string, 0, len(opts.Statuses))
		for _, st := range opts.Statuses {
			statuses = append(statuses, string(st))
		}
		clauses = append(clauses, "status = ANY("+arg(statuses)+")")
	}
	if len(opts.Channels) > 0 {
		channels := make([]string, 0, len(opts.Channels))
		for _, ch := range opts.Channels {
			channels = append(channels, ch.String())
		}
		clauses = append(clauses, "channel = ANY("+arg(channels)+")")
	}
	if len(opts.Types) > 0 {
		clauses = append(clauses, "type = ANY("+arg(opts.Types)+")")
	}
	if opts.Since != nil {
		clauses = append(clauses, "created_at >= "+arg(*opts.Since))
	}

	query := "SELECT " + notificationColumns + " FROM notifications WHERE " +
		strings.Join(clauses, " AND ") + " ORDER BY created_at DESC, id"
	if opts.Limit > 0 {
		query += " LIMIT " + arg(opts.Limit)
	}
	if opts.Offset > 0 {
		query += " OFFSET " + arg(opts.Offset)
	}
	return query, args
}

// ClaimDue leases due records in one statement. SKIP LOCKED lets concurrent
// flushes claim disjoint batches.
func (s *Store) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]notifications.Notification, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx, `
		UPDATE notifications SET leased_until = $2
		WHERE id IN (
			SELECT id FROM notifications
			WHERE status = 'pending'
				AND scheduled_at IS NOT NULL
				AND scheduled_at <= $1
				AND (leased_until IS NULL OR leased_until <= $1)
			ORDER BY scheduled_at, id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+notificationColumns,
		now, now.Add(lease), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claiming due notifications: %w", err)
	}

	claimed, err := collectNotifications(rows)
	if err != nil {
		return nil, err
	}
	// RETURNING does not preserve the subquery order.
	sortByScheduled(claimed)
	return claimed, nil
}

func (s *Store) Append(ctx context.Context, e notifications.DigestEntry) error {
	if e.ID == "" || e.UserID == "" {
		return errors.New("digest entry ID and user ID are required")
	}
	if e.QueuedAt.IsZero() {
		e.QueuedAt = time.Now()
	}

	vars, err := encodeMap(e.Variables)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO digest_entries (id, user_id, type, template, priority, variables, queued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.UserID, e.Type, e.Template, e.Priority.String(), vars, e.QueuedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting digest entry: %w", err)
	}
	return nil
}

func (s *Store) PendingUsers(ctx context.Context, queuedBefore time.Time, limit int) ([]string, error) {
	query := `SELECT DISTINCT user_id FROM digest_entries WHERE queued_at <= $1 ORDER BY user_id`
	args := []any{queuedBefore}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying digest users: %w", err)
	}
	users, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scanning digest users: %w", err)
	}
	return users, nil
}

func (s *Store) Entries(ctx context.Context, userID string) ([]notifications.DigestEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, type, template, priority, variables, queued_at
		FROM digest_entries WHERE user_id = $1 ORDER BY queued_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying digest entries: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (notifications.DigestEntry, error) {
		var (
			e        notifications.DigestEntry
			priority string
			vars     []byte
		)
		if err := row.Scan(&e.ID, &e.UserID, &e.Type, &e.Template, &priority, &vars, &e.QueuedAt); err != nil {
			return e, err
		}
		if err := e.Priority.UnmarshalText([]byte(priority)); err != nil {
			return e, err
		}
		return e, decodeMap(vars, &e.Variables)
	})
	if err != nil {
		return nil, fmt.Errorf("scanning digest entries: %w", err)
	}
	return entries, nil
}

func (s *Store) Delete(ctx context.Context, userID string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM digest_entries WHERE user_id = $1 AND id = ANY($2)`, userID, ids); err != nil {
		return fmt.Errorf("deleting digest entries: %w", err)
	}
	return nil
}

func (s *Store) GetPreferenceSnapshot(ctx context.Context, userID string) (*notifications.Preference, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT snapshot FROM notification_preferences WHERE user_id = $1`, userID).Scan(&raw)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, notifications.ErrPreferencesNotFound
		}
		return nil, fmt.Errorf("querying preferences: %w", err)
	}

	var p notifications.Preference
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decoding preferences: %w", err)
	}
	p.UserID = userID
	return &p, nil
}

// SavePreference upserts a user's preference snapshot.
func (s *Store) SavePreference(ctx context.Context, p notifications.Preference) error {
	if p.UserID == "" {
		return errors.New("preference user ID is required")
	}
	if p.QuietHours != nil {
		if err := p.QuietHours.Validate(); err != nil {
			return err
		}
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO notification_preferences (user_id, snapshot, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at`,
		p.UserID, raw,
	)
	if err != nil {
		return fmt.Errorf("upserting preferences: %w", err)
	}
	return nil
}
