package pgstore

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

func scanNotification(row pgx.Row) (notifications.Notification, error) {
	var (
		n                         notifications.Notification
		channel, priority, status string
		vars, meta                []byte
	)
	err := row.Scan(
		&n.ID, &n.UserID, &n.Type, &n.Template, &channel, &n.Recipient, &priority, &status,
		&n.Subject, &n.Body, &vars, &n.Silent, &n.Attempts, &n.LastError, &meta,
		&n.CreatedAt, &n.ScheduledAt, &n.SentAt, &n.LeasedUntil,
	)
	if err != nil {
		return n, err
	}

	if n.Channel, err = notifications.ParseChannel(channel); err != nil {
		return n, err
	}
	if n.Priority, err = notifications.ParsePriority(priority); err != nil {
		return n, err
	}
	n.Status = notifications.Status(status)

	if err := decodeMap(vars, &n.Variables); err != nil {
		return n, err
	}
	if err := decodeMap(meta, &n.Metadata); err != nil {
		return n, err
	}
	return n, nil
}

func collectNotifications(rows pgx.Rows) ([]notifications.Notification, error) {
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (notifications.Notification, error) {
		return scanNotification(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scanning notifications: %w", err)
	}
	return list, nil
}

func sortByScheduled(list []notifications.Notification) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].ScheduledAt, list[j].ScheduledAt
		if a != nil && b != nil && !a.Equal(*b) {
			return a.Before(*b)
		}
		return list[i].ID < list[j].ID
	})
}

func encodeMaps(vars, meta map[string]string) ([]byte, []byte, error) {
	v, err := encodeMap(vars)
	if err != nil {
		return nil, nil, err
	}
	m, err := encodeMap(meta)
	if err != nil {
		return nil, nil, err
	}
	return v, m, nil
}

// encodeMap renders a nil map as an empty JSON object to satisfy NOT NULL columns.
func encodeMap(m map[string]string) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding map: %w", err)
	}
	return b, nil
}

// decodeMap leaves dst nil for empty objects so round trips preserve nil maps.
func decodeMap(raw []byte, dst *map[string]string) error {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("decoding map: %w", err)
	}
	if len(m) > 0 {
		*dst = m
	}
	return nil
}
