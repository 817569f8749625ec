package notifications

import (
	"fmt"
	"strings"
	"time"
)

// Priority represents the notification priority level. Values are ordered.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// ParsePriority converts a priority name into a Priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return PriorityLow, nil
	case "normal", "":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical", "urgent":
		return PriorityCritical, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPriority, s)
	}
}

func (p Priority) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPriority, p)
	}
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(b []byte) error {
	parsed, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Status is the lifecycle state of a persisted notification.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusDigested  Status = "digested"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Notification is the durable audit record of one channel attempt.
type Notification struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Type        string            `json:"type"`
	Template    string            `json:"template"`
	Channel     Channel           `json:"channel"`
	Recipient   string            `json:"recipient,omitempty"`
	Priority    Priority          `json:"priority"`
	Status      Status            `json:"status"`
	Subject     string            `json:"subject,omitempty"`
	Body        string            `json:"body,omitempty"`
	Variables   map[string]string `json:"variables,omitempty"`
	Silent      bool              `json:"silent,omitempty"`
	Attempts    int               `json:"attempts"`
	LastError   string            `json:"last_error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"` // set only for deferred sends
	SentAt      *time.Time        `json:"sent_at,omitempty"`
	LeasedUntil *time.Time        `json:"-"`
}

// Transition moves the notification to the next status.
// Only Pending may transition; terminal states are final.
func (n *Notification) Transition(to Status, at time.Time) error {
	if n.Status.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, n.Status, to)
	}
	switch to {
	case StatusSent:
		n.SentAt = &at
	case StatusFailed, StatusDigested, StatusCancelled:
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, n.Status, to)
	}
	n.Status = to
	n.LeasedUntil = nil
	return nil
}

// IsDue reports whether a deferred notification should be dispatched at now.
func (n *Notification) IsDue(now time.Time) bool {
	if n.Status != StatusPending || n.ScheduledAt == nil {
		return false
	}
	if n.ScheduledAt.After(now) {
		return false
	}
	return n.LeasedUntil == nil || !n.LeasedUntil.After(now)
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
