package notifications

import (
	"context"
	"time"
)

// Storage handles notification record persistence and retrieval.
type Storage interface {
	// Create stores a new notification record. A duplicate ID returns
	// ErrNotificationExists.
	Create(ctx context.Context, notif Notification) error

	// Update replaces a stored record, matched by ID.
	Update(ctx context.Context, notif Notification) error

	// Get retrieves a single notification.
	Get(ctx context.Context, userID, notifID string) (*Notification, error)

	// List returns notifications for a user, newest first.
	List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error)

	// ClaimDue leases up to limit pending records whose ScheduledAt is at or
	// before now. Claimed records are hidden from other claimers until the lease expires.
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Notification, error)
}

// ListOptions provides filtering and pagination options for listing notifications.
type ListOptions struct {
	Limit    int        // Maximum number of notifications to return (0 = no limit)
	Offset   int        // Number of notifications to skip for pagination
	Statuses []Status   // If specified, only return notifications in these statuses
	Channels []Channel  // If specified, only return notifications on these channels
	Types    []string   // If specified, only return notifications of these types
	Since    *time.Time // If specified, only return notifications created after this time
}

func (o ListOptions) match(n Notification) bool {
	if len(o.Statuses) > 0 {
		found := false
		for _, s := range o.Statuses {
			if n.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(o.Channels) > 0 && !containsChannel(o.Channels, n.Channel) {
		return false
	}
	if len(o.Types) > 0 {
		found := false
		for _, t := range o.Types {
			if n.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if o.Since != nil && n.CreatedAt.Before(*o.Since) {
		return false
	}
	return true
}
