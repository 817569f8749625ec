package notifications

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ChannelTable holds the ordered channel list per notification type.
// Order is the tie-break when several channels are eligible; it is never randomized.
type ChannelTable struct {
	Default []Channel            `yaml:"default"`
	Types   map[string][]Channel `yaml:"types"`
}

// DefaultChannelTable returns the built-in routing table.
func DefaultChannelTable() ChannelTable {
	return ChannelTable{
		Default: []Channel{ChannelInApp, ChannelEmail, ChannelPush},
		Types: map[string][]Channel{
			"account":                  {ChannelEmail},
			"security_alert":           {ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp},
			"appointment_confirmation": {ChannelEmail, ChannelSMS, ChannelInApp},
			"appointment_request":      {ChannelInApp, ChannelPush, ChannelEmail},
			"appointment_update":       {ChannelEmail, ChannelPush, ChannelInApp},
			"appointment_reminder":     {ChannelPush, ChannelSMS, ChannelEmail, ChannelInApp},
			"match":                    {ChannelInApp, ChannelPush, ChannelEmail},
			"skill":                    {ChannelInApp, ChannelEmail},
			"video_call":               {ChannelPush, ChannelInApp, ChannelSMS},
			"review":                   {ChannelInApp, ChannelEmail},
			DigestType:                 {ChannelEmail, ChannelInApp},
		},
	}
}

// LoadChannelTable decodes a YAML routing table:
//
//	default: [in_app, email]
//	types:
//	  appointment_confirmation: [email, sms]
func LoadChannelTable(r io.Reader) (ChannelTable, error) {
	var t ChannelTable
	if err := yaml.NewDecoder(r).Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return ChannelTable{}, errors.Join(ErrInvalidChannelTable, err)
	}
	if err := t.Validate(); err != nil {
		return ChannelTable{}, err
	}
	if len(t.Default) == 0 {
		t.Default = DefaultChannelTable().Default
	}
	return t, nil
}

// LoadChannelTableFile reads the routing table from a YAML file.
func LoadChannelTableFile(path string) (ChannelTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return ChannelTable{}, errors.Join(ErrInvalidChannelTable, err)
	}
	defer f.Close()
	return LoadChannelTable(f)
}

// Validate rejects unknown and duplicated channels.
func (t ChannelTable) Validate() error {
	if err := validateChannelList("default", t.Default); err != nil {
		return err
	}
	for typ, list := range t.Types {
		if len(list) == 0 {
			return fmt.Errorf("%w: type %q has no channels", ErrInvalidChannelTable, typ)
		}
		if err := validateChannelList(typ, list); err != nil {
			return err
		}
	}
	return nil
}

// ChannelsFor returns a copy of the ordered channel list for a notification type,
// falling back to the default list for unknown types.
func (t ChannelTable) ChannelsFor(notificationType string) []Channel {
	list, ok := t.Types[notificationType]
	if !ok || len(list) == 0 {
		list = t.Default
	}
	out := make([]Channel, len(list))
	copy(out, list)
	return out
}

func validateChannelList(name string, list []Channel) error {
	seen := make(map[Channel]bool, len(list))
	for _, c := range list {
		if !c.Valid() {
			return fmt.Errorf("%w: %q contains unknown channel %d", ErrInvalidChannelTable, name, c)
		}
		if seen[c] {
			return fmt.Errorf("%w: %q lists %s twice", ErrInvalidChannelTable, name, c)
		}
		seen[c] = true
	}
	return nil
}
