package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// DefaultThrottleWindow is the look-back window of the duplicate guard.
const DefaultThrottleWindow = 10 * time.Minute

// Router decides timing and channels for routing requests.
type Router struct {
	prefs    PreferenceStore
	history  DeliveryHistory
	table    ChannelTable
	throttle time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithChannelTable sets the per-type ordered channel lists.
func WithChannelTable(t ChannelTable) RouterOption {
	return func(r *Router) {
		r.table = t
	}
}

// WithThrottleWindow sets the duplicate guard look-back window.
// Zero disables the guard.
func WithThrottleWindow(d time.Duration) RouterOption {
	return func(r *Router) {
		if d >= 0 {
			r.throttle = d
		}
	}
}

// WithRouterClock overrides the time source used for quiet hours.
func WithRouterClock(now func() time.Time) RouterOption {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRouterLogger sets the logger for the Router.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter creates a router. Both stores are optional: without preferences
// every user gets DefaultPreference, without history the throttle guard is off.
func NewRouter(prefs PreferenceStore, history DeliveryHistory, opts ...RouterOption) *Router {
	r := &Router{
		prefs:    prefs,
		history:  history,
		table:    DefaultChannelTable(),
		throttle: DefaultThrottleWindow,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route loads the user's preference snapshot and recent deliveries, then
// decides. Store failures degrade to defaults; routing never fails.
func (r *Router) Route(ctx context.Context, req Request) Decision {
	req = req.Normalize()
	pref := r.preference(ctx, req.UserID)
	now := r.now()

	d := r.Decide(req, pref, nil, now)
	if d.Mode != ModeImmediate || r.history == nil || r.throttle <= 0 {
		return d
	}

	recent := make(map[Channel][]time.Time, len(d.Channels))
	for _, ch := range d.Channels {
		times, err := r.history.GetRecentDeliveries(ctx, req.UserID, ch, req.Template, r.throttle)
		if err != nil {
			r.logger.LogAttrs(ctx, slog.LevelWarn, "Failed to read delivery history, skipping throttle check",
				logger.UserID(req.UserID),
				logger.Channel(ch),
				logger.Error(err),
			)
			continue
		}
		if len(times) > 0 {
			recent[ch] = times
		}
	}
	if len(recent) == 0 {
		return d
	}
	return r.Decide(req, pref, recent, now)
}

func (r *Router) preference(ctx context.Context, userID string) *Preference {
	if r.prefs != nil {
		pref, err := r.prefs.GetPreferenceSnapshot(ctx, userID)
		if err == nil && pref != nil {
			return pref
		}
		if err != nil && !errors.Is(err, ErrPreferencesNotFound) {
			r.logger.LogAttrs(ctx, slog.LevelWarn, "Failed to load preferences, using defaults",
				logger.UserID(userID),
				logger.Error(err),
			)
		}
	}
	def := DefaultPreference(userID)
	return &def
}

// Decide is the pure routing function. recent holds delivery times of the
// same template per channel; entries outside the throttle window are ignored.
func (r *Router) Decide(req Request, pref *Preference, recent map[Channel][]time.Time, now time.Time) Decision {
	req = req.Normalize()
	typeChannels := r.table.ChannelsFor(req.Type)

	if req.Priority == PriorityCritical {
		return Decision{
			Mode:              ModeImmediate,
			Channels:          criticalChannels(typeChannels, pref),
			EffectivePriority: PriorityCritical,
			Reason:            ReasonCritical,
		}
	}

	channels, reason := selectChannels(typeChannels, pref)

	if req.RespectQuietHours {
		if end, quiet := pref.InQuietHours(now); quiet {
			if req.Priority == PriorityHigh {
				silent := make([]Channel, 0, len(channels))
				for _, ch := range channels {
					if ch.Capability().Silent {
						silent = append(silent, ch)
					}
				}
				if len(silent) == 0 {
					silent = []Channel{ChannelInApp}
				}
				d := Decision{
					Mode:              ModeImmediate,
					Channels:          silent,
					Silent:            true,
					EffectivePriority: PriorityHigh,
					Reason:            ReasonQuietHoursSilent,
				}
				return r.throttleGuard(d, req, recent, now)
			}
			at := end.UTC()
			return Decision{
				Mode:              ModeScheduled,
				Channels:          channels,
				ScheduledFor:      &at,
				EffectivePriority: req.Priority,
				Reason:            ReasonQuietHoursDeferred,
			}
		}
	}

	if req.AllowDigest && req.Priority <= PriorityNormal && pref.DigestEnabled(req.Type) {
		return Decision{
			Mode:              ModeDigest,
			EffectivePriority: req.Priority,
			Reason:            ReasonDigest,
		}
	}

	d := Decision{
		Mode:              ModeImmediate,
		Channels:          channels,
		EffectivePriority: req.Priority,
		Reason:            reason,
	}
	return r.throttleGuard(d, req, recent, now)
}

// throttleGuard drops channels that already delivered the same template
// inside the window.
func (r *Router) throttleGuard(d Decision, req Request, recent map[Channel][]time.Time, now time.Time) Decision {
	if r.throttle <= 0 || len(recent) == 0 {
		return d
	}
	cutoff := now.Add(-r.throttle)

	kept := make([]Channel, 0, len(d.Channels))
	for _, ch := range d.Channels {
		throttled := false
		for _, at := range recent[ch] {
			if !at.Before(cutoff) {
				throttled = true
				break
			}
		}
		if !throttled {
			kept = append(kept, ch)
		}
	}

	switch {
	case len(kept) == len(d.Channels):
		return d
	case len(kept) > 0:
		d.Channels = kept
		d.Reason = ReasonThrottledPartial
		return d
	case req.AllowDigest:
		return Decision{
			Mode:              ModeDigest,
			EffectivePriority: PriorityLow,
			Reason:            ReasonThrottledDigest,
		}
	default:
		return Decision{
			Mode:              ModeSuppressed,
			Channels:          d.Channels,
			EffectivePriority: d.EffectivePriority,
			Reason:            ReasonThrottledDuplicate,
		}
	}
}

// selectChannels intersects the type's ordered list with the user's opt-ins,
// falling back to Email.
func selectChannels(typeChannels []Channel, pref *Preference) ([]Channel, string) {
	out := make([]Channel, 0, len(typeChannels))
	for _, ch := range typeChannels {
		if pref.OptedIn(ch) {
			out = append(out, ch)
		}
	}
	if len(out) == 0 {
		return []Channel{ChannelEmail}, ReasonEmailFallback
	}
	return out, ReasonChannelPreference
}

// criticalChannels returns every opted-in channel: the type's order first,
// then the rest in canonical order. Falls back to Email.
func criticalChannels(typeChannels []Channel, pref *Preference) []Channel {
	out := make([]Channel, 0, len(AllChannels))
	for _, ch := range typeChannels {
		if pref.OptedIn(ch) && !containsChannel(out, ch) {
			out = append(out, ch)
		}
	}
	for _, ch := range AllChannels {
		if pref.OptedIn(ch) && !containsChannel(out, ch) {
			out = append(out, ch)
		}
	}
	if len(out) == 0 {
		return []Channel{ChannelEmail}
	}
	return out
}
