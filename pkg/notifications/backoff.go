package notifications

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy calculates the delay before a retry.
// Implementations should be safe for concurrent use.
type BackoffStrategy interface {
	// NextInterval returns the delay before the given retry. Retry starts at 1.
	NextInterval(retry int) time.Duration
}

// ExponentialBackoff grows the delay by Multiplier per retry, capped at MaxInterval.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

// NextInterval returns min(InitialInterval * Multiplier^(retry-1) * (1 ± JitterFactor), MaxInterval).
func (e ExponentialBackoff) NextInterval(retry int) time.Duration {
	if retry <= 0 {
		return 0
	}

	initial := e.InitialInterval
	if initial == 0 {
		initial = time.Second
	}
	max := e.MaxInterval
	if max == 0 {
		max = 30 * time.Second
	}
	multiplier := e.Multiplier
	if multiplier == 0 {
		multiplier = 4
	}

	interval := float64(initial) * math.Pow(multiplier, float64(retry-1))
	if e.JitterFactor > 0 {
		interval *= 1 + (rand.Float64()*2-1)*e.JitterFactor
	}
	if interval > float64(max) {
		interval = float64(max)
	}
	return time.Duration(interval)
}

// FixedBackoff waits the same interval before every retry.
type FixedBackoff struct {
	Interval time.Duration
}

func (f FixedBackoff) NextInterval(retry int) time.Duration {
	if retry <= 0 {
		return 0
	}
	return f.Interval
}

// DefaultBackoff waits 1s before the first retry and 4s before the second.
func DefaultBackoff() BackoffStrategy {
	return ExponentialBackoff{
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      4,
	}
}
