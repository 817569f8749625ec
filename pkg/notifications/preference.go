package notifications

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DigestFrequency controls whether and how often a user receives digests.
type DigestFrequency string

const (
	DigestOff    DigestFrequency = "off"
	DigestHourly DigestFrequency = "hourly"
	DigestDaily  DigestFrequency = "daily"
)

// QuietHours is a daily local-time window, e.g. 22:00-07:00.
// Windows may wrap past midnight; Start == End disables the window.
type QuietHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Validate checks the HH:MM format of both bounds.
func (q QuietHours) Validate() error {
	if _, err := parseClock(q.Start); err != nil {
		return err
	}
	if _, err := parseClock(q.End); err != nil {
		return err
	}
	return nil
}

// Preference is a read-only snapshot of a user's notification settings.
type Preference struct {
	UserID        string             `json:"user_id"`
	Channels      []Channel          `json:"channels"`
	QuietHours    *QuietHours        `json:"quiet_hours,omitempty"`
	TimeZone      string             `json:"time_zone,omitempty"`
	Digest        DigestFrequency    `json:"digest"`
	DigestTypes   []string           `json:"digest_types,omitempty"`
	DigestChannel Channel            `json:"digest_channel,omitempty"`
	Addresses     map[Channel]string `json:"addresses,omitempty"`
}

// DefaultPreference is used when no preferences are stored: Email only,
// no quiet hours, no digests.
func DefaultPreference(userID string) Preference {
	return Preference{
		UserID:   userID,
		Channels: []Channel{ChannelEmail},
		Digest:   DigestOff,
	}
}

// OptedIn reports whether the user accepts notifications on c.
func (p *Preference) OptedIn(c Channel) bool {
	if p == nil {
		return c == ChannelEmail
	}
	return containsChannel(p.Channels, c)
}

// DigestEnabled reports whether notifications of the given type may be batched.
// An empty DigestTypes list enables digests for every type.
func (p *Preference) DigestEnabled(notificationType string) bool {
	if p == nil || p.Digest == "" || p.Digest == DigestOff {
		return false
	}
	if len(p.DigestTypes) == 0 {
		return true
	}
	for _, t := range p.DigestTypes {
		if t == notificationType {
			return true
		}
	}
	return false
}

// DigestTarget returns the channel consolidated digests are delivered on.
func (p *Preference) DigestTarget() Channel {
	if p == nil || !p.DigestChannel.Valid() {
		return ChannelEmail
	}
	return p.DigestChannel
}

// Address returns the stored address for c, if any.
func (p *Preference) Address(c Channel) string {
	if p == nil {
		return ""
	}
	return p.Addresses[c]
}

// Location resolves the user's time zone, UTC when unset or unknown.
func (p *Preference) Location() *time.Location {
	if p == nil || p.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// InQuietHours reports whether now falls into the quiet window in the user's
// time zone and, if so, when the window ends.
func (p *Preference) InQuietHours(now time.Time) (time.Time, bool) {
	if p == nil || p.QuietHours == nil {
		return time.Time{}, false
	}
	start, err := parseClock(p.QuietHours.Start)
	if err != nil {
		return time.Time{}, false
	}
	end, err := parseClock(p.QuietHours.End)
	if err != nil || start == end {
		return time.Time{}, false
	}

	local := now.In(p.Location())
	minute := local.Hour()*60 + local.Minute()
	endToday := time.Date(local.Year(), local.Month(), local.Day(), end/60, end%60, 0, 0, local.Location())

	if start < end {
		if minute >= start && minute < end {
			return endToday, true
		}
		return time.Time{}, false
	}

	// Window wraps midnight, e.g. 22:00-07:00.
	switch {
	case minute >= start:
		return endToday.AddDate(0, 0, 1), true
	case minute < end:
		return endToday, true
	default:
		return time.Time{}, false
	}
}

func (p Preference) clone() Preference {
	out := p
	out.Channels = append([]Channel(nil), p.Channels...)
	out.DigestTypes = append([]string(nil), p.DigestTypes...)
	if p.QuietHours != nil {
		q := *p.QuietHours
		out.QuietHours = &q
	}
	if p.Addresses != nil {
		out.Addresses = make(map[Channel]string, len(p.Addresses))
		for k, v := range p.Addresses {
			out.Addresses[k] = v
		}
	}
	return out
}

// parseClock converts "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuietHours, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuietHours, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuietHours, s)
	}
	return h*60 + m, nil
}

// PreferenceStore provides read-only preference snapshots.
type PreferenceStore interface {
	// GetPreferenceSnapshot returns ErrPreferencesNotFound for unknown users.
	GetPreferenceSnapshot(ctx context.Context, userID string) (*Preference, error)
}

// MemoryPreferenceStore is an in-memory PreferenceStore.
// Suitable for development and testing.
type MemoryPreferenceStore struct {
	prefs map[string]Preference
	mu    sync.RWMutex
}

func NewMemoryPreferenceStore() *MemoryPreferenceStore {
	return &MemoryPreferenceStore{prefs: make(map[string]Preference)}
}

// Set stores a copy of the preference.
func (s *MemoryPreferenceStore) Set(p Preference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[p.UserID] = p.clone()
}

func (s *MemoryPreferenceStore) GetPreferenceSnapshot(ctx context.Context, userID string) (*Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prefs[userID]
	if !ok {
		return nil, ErrPreferencesNotFound
	}
	// Copy so callers cannot mutate the stored snapshot.
	snapshot := p.clone()
	return &snapshot, nil
}
