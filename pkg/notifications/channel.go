package notifications

import (
	"fmt"
	"strings"
)

// Channel identifies a delivery mechanism. The set is closed: every switch over
// Channel in this package covers all four values.
type Channel uint8

const (
	ChannelEmail Channel = iota + 1
	ChannelSMS
	ChannelPush
	ChannelInApp
)

// AllChannels lists every channel in canonical order.
var AllChannels = []Channel{ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp}

func (c Channel) String() string {
	switch c {
	case ChannelEmail:
		return "email"
	case ChannelSMS:
		return "sms"
	case ChannelPush:
		return "push"
	case ChannelInApp:
		return "in_app"
	default:
		return "unknown"
	}
}

// Valid reports whether c is one of the known channels.
func (c Channel) Valid() bool {
	return c >= ChannelEmail && c <= ChannelInApp
}

// ParseChannel converts a channel name into a Channel.
// Accepts "email", "sms", "push", "in_app" (also "inapp" and "in-app"), case-insensitive.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "email":
		return ChannelEmail, nil
	case "sms":
		return ChannelSMS, nil
	case "push":
		return ChannelPush, nil
	case "in_app", "inapp", "in-app":
		return ChannelInApp, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownChannel, s)
	}
}

func (c Channel) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChannel, c)
	}
	return []byte(c.String()), nil
}

func (c *Channel) UnmarshalText(b []byte) error {
	parsed, err := ParseChannel(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Capability describes static properties of a channel.
type Capability struct {
	Channel Channel
	// Silent channels can deliver without an audible alert.
	Silent bool
	// Cost is a relative ranking, lower is cheaper.
	Cost int
	// RequiresAddress is false only for channels addressed by user id.
	RequiresAddress bool
}

// Capability returns the static capability entry for c.
func (c Channel) Capability() Capability {
	switch c {
	case ChannelEmail:
		return Capability{Channel: c, Silent: false, Cost: 1, RequiresAddress: true}
	case ChannelSMS:
		return Capability{Channel: c, Silent: false, Cost: 3, RequiresAddress: true}
	case ChannelPush:
		// Push can be sent without sound, which is how quiet hours use it.
		return Capability{Channel: c, Silent: true, Cost: 2, RequiresAddress: true}
	case ChannelInApp:
		return Capability{Channel: c, Silent: true, Cost: 0, RequiresAddress: false}
	default:
		return Capability{Channel: c}
	}
}

func containsChannel(list []Channel, c Channel) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}
