package notifications

import (
	"fmt"
	"time"
)

// Mode is the delivery timing chosen by the router.
type Mode uint8

const (
	ModeImmediate Mode = iota + 1
	ModeScheduled
	ModeDigest
	// ModeSuppressed drops a duplicate; the orchestrator records it as Cancelled.
	ModeSuppressed
)

func (m Mode) String() string {
	switch m {
	case ModeImmediate:
		return "immediate"
	case ModeScheduled:
		return "scheduled"
	case ModeDigest:
		return "digest"
	case ModeSuppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

// Decision reasons, used for audit and logging.
const (
	ReasonCritical           = "critical-bypass"
	ReasonQuietHoursDeferred = "quiet-hours-deferred"
	ReasonQuietHoursSilent   = "quiet-hours-silent"
	ReasonDigest             = "digest"
	ReasonChannelPreference  = "channel-preference"
	ReasonEmailFallback      = "email-fallback"
	ReasonThrottledPartial   = "throttled-partial"
	ReasonThrottledDigest    = "throttled-digest"
	ReasonThrottledDuplicate = "throttled-duplicate"
	ReasonDigestFlush        = "digest-flush"
)

// Decision is the router's output.
type Decision struct {
	Mode              Mode
	Channels          []Channel
	ScheduledFor      *time.Time
	Silent            bool
	EffectivePriority Priority
	Reason            string
}

// SendImmediately reports whether the notification goes out now.
func (d Decision) SendImmediately() bool { return d.Mode == ModeImmediate }

// AddToDigest reports whether the notification is queued for the next digest.
func (d Decision) AddToDigest() bool { return d.Mode == ModeDigest }

// Validate enforces that exactly one of SendImmediately, ScheduledFor and
// AddToDigest holds for delivering decisions, and none for suppressed ones.
func (d Decision) Validate() error {
	set := 0
	if d.SendImmediately() {
		set++
	}
	if d.ScheduledFor != nil {
		set++
	}
	if d.AddToDigest() {
		set++
	}

	switch d.Mode {
	case ModeSuppressed:
		if set != 0 {
			return fmt.Errorf("%w: suppressed decision carries a timing mode", ErrInvalidDecision)
		}
	case ModeImmediate, ModeScheduled, ModeDigest:
		if set != 1 {
			return fmt.Errorf("%w: %d timing modes set for %s", ErrInvalidDecision, set, d.Mode)
		}
	default:
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidDecision, d.Mode)
	}

	if (d.Mode == ModeImmediate || d.Mode == ModeScheduled) && len(d.Channels) == 0 {
		return fmt.Errorf("%w: %s decision without channels", ErrInvalidDecision, d.Mode)
	}
	for _, c := range d.Channels {
		if !c.Valid() {
			return fmt.Errorf("%w: unknown channel %d", ErrInvalidDecision, c)
		}
	}
	return nil
}
