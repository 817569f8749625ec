package notifications

import "time"

// Config holds the engine tunables.
type Config struct {
	ChannelTablePath  string        `env:"NOTIFY_CHANNEL_TABLE"`                          // ChannelTablePath is an optional YAML file overriding the built-in channel table.
	ThrottleWindow    time.Duration `env:"NOTIFY_THROTTLE_WINDOW" envDefault:"10m"`       // ThrottleWindow is the duplicate guard look-back window.
	MaxRetries        int           `env:"NOTIFY_MAX_RETRIES" envDefault:"2"`             // MaxRetries is the number of retries after a transient send failure.
	BackoffInitial    time.Duration `env:"NOTIFY_BACKOFF_INITIAL" envDefault:"1s"`        // BackoffInitial is the delay before the first retry.
	BackoffMultiplier float64       `env:"NOTIFY_BACKOFF_MULTIPLIER" envDefault:"4"`      // BackoffMultiplier grows the delay per retry.
	BackoffMax        time.Duration `env:"NOTIFY_BACKOFF_MAX" envDefault:"30s"`           // BackoffMax caps the retry delay.
	ScheduledBatch    int           `env:"NOTIFY_SCHEDULED_BATCH" envDefault:"100"`       // ScheduledBatch is how many due records one flush claims.
	ScheduledLease    time.Duration `env:"NOTIFY_SCHEDULED_LEASE" envDefault:"1m"`        // ScheduledLease hides claimed records from other flushes.
	DigestWindow      time.Duration `env:"NOTIFY_DIGEST_WINDOW" envDefault:"1h"`          // DigestWindow is the minimum age of an entry before it is flushed.
	DigestBatch       int           `env:"NOTIFY_DIGEST_BATCH" envDefault:"500"`          // DigestBatch is how many users one digest run processes.
	DigestLockTTL     time.Duration `env:"NOTIFY_DIGEST_LOCK_TTL" envDefault:"5m"`        // DigestLockTTL bounds how long a per-user digest lock is held.
	ScheduledInterval string        `env:"NOTIFY_SCHEDULED_CRON" envDefault:"@every 30s"` // ScheduledInterval is the cron expression of the scheduled flush task.
	DigestInterval    string        `env:"NOTIFY_DIGEST_CRON" envDefault:"@every 15m"`    // DigestInterval is the cron expression of the digest flush task.
	EmailRateLimit    float64       `env:"NOTIFY_EMAIL_RATE" envDefault:"0"`              // EmailRateLimit caps email sends per second, 0 disables.
	SMSRateLimit      float64       `env:"NOTIFY_SMS_RATE" envDefault:"0"`                // SMSRateLimit caps SMS sends per second, 0 disables.
	PushRateLimit     float64       `env:"NOTIFY_PUSH_RATE" envDefault:"0"`               // PushRateLimit caps push sends per second, 0 disables.
}

// Backoff returns the retry delay strategy described by the config.
func (c Config) Backoff() BackoffStrategy {
	return ExponentialBackoff{
		InitialInterval: c.BackoffInitial,
		MaxInterval:     c.BackoffMax,
		Multiplier:      c.BackoffMultiplier,
	}
}

// ChannelTable loads the configured table or returns the built-in one.
func (c Config) ChannelTable() (ChannelTable, error) {
	if c.ChannelTablePath == "" {
		return DefaultChannelTable(), nil
	}
	return LoadChannelTableFile(c.ChannelTablePath)
}
