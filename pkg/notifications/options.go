package notifications

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithSender registers the sender for a channel. Channels without a sender
// fail permanently with ErrNoSender.
func WithSender(ch Channel, s ChannelSender) OrchestratorOption {
	return func(o *Orchestrator) {
		if ch.Valid() && s != nil {
			o.senders[ch] = s
		}
	}
}

// WithChannelRateLimit caps the send rate of a channel across all calls.
func WithChannelRateLimit(ch Channel, perSecond float64, burst int) OrchestratorOption {
	return func(o *Orchestrator) {
		if !ch.Valid() || perSecond <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		o.limiters[ch] = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRenderer sets the template renderer. Defaults to PlainRenderer.
func WithRenderer(r Renderer) OrchestratorOption {
	return func(o *Orchestrator) {
		if r != nil {
			o.renderer = r
		}
	}
}

// WithBackoff sets the delay strategy between retries.
func WithBackoff(b BackoffStrategy) OrchestratorOption {
	return func(o *Orchestrator) {
		if b != nil {
			o.backoff = b
		}
	}
}

// WithMaxRetries sets how many times a transient failure is retried. Defaults to 2.
func WithMaxRetries(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithRecipientResolver sets the fallback address lookup.
func WithRecipientResolver(r RecipientResolver) OrchestratorOption {
	return func(o *Orchestrator) {
		o.resolver = r
	}
}

// WithPreferenceStore lets the orchestrator read contact addresses from preferences.
func WithPreferenceStore(p PreferenceStore) OrchestratorOption {
	return func(o *Orchestrator) {
		o.prefs = p
	}
}

// WithHistory records successful deliveries for the router's throttle guard.
func WithHistory(h DeliveryHistory) OrchestratorOption {
	return func(o *Orchestrator) {
		o.history = h
	}
}

// WithDuplicateWindow sets how far back FlushDueScheduled looks for an
// identical delivery before sending a deferred record. Zero disables the check.
// Defaults to DefaultThrottleWindow.
func WithDuplicateWindow(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.dupWindow = d
		}
	}
}

// WithScheduledBatch sets how many due records FlushDueScheduled claims per
// call and how long a claim is leased.
func WithScheduledBatch(size int, lease time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if size > 0 {
			o.batchSize = size
		}
		if lease > 0 {
			o.lease = lease
		}
	}
}

// WithOrchestratorClock overrides the time source.
func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithOrchestratorLogger sets the logger for the Orchestrator.
func WithOrchestratorLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}
