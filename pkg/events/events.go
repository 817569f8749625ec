package events

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

var (
	ErrUnknownEvent = errors.New("unknown domain event")
	ErrInvalidEvent = errors.New("invalid domain event")
)

// Domain event names published by the platform services.
const (
	UserRegistered            = "user.registered"
	EmailVerificationRequired = "email.verification_requested"
	PasswordChanged           = "password.changed"
	RoleAssigned              = "role.assigned"
	SkillAdded                = "skill.added"
	SkillEndorsed             = "skill.endorsed"
	MatchFound                = "match.found"
	MatchRequestReceived      = "match.request_received"
	MatchAccepted             = "match.accepted"
	MatchDeclined             = "match.declined"
	AppointmentRequested      = "appointment.requested"
	AppointmentConfirmed      = "appointment.confirmed"
	AppointmentCancelled      = "appointment.cancelled"
	AppointmentRescheduled    = "appointment.rescheduled"
	AppointmentReminder       = "appointment.reminder"
	VideoCallScheduled        = "video_call.scheduled"
	VideoCallMissed           = "video_call.missed"
	ReviewReceived            = "review.received"
)

// Event is a domain event addressed to one user.
type Event struct {
	Name          string            `json:"name"`
	UserID        string            `json:"user_id"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at,omitzero"`
	Data          map[string]string `json:"data,omitempty"`
	Recipients    map[string]string `json:"recipients,omitempty"` // channel name -> address
}

// Rule maps an event to a routing request.
type Rule struct {
	Template          string
	Type              string
	Priority          notifications.Priority
	AllowDigest       bool
	RespectQuietHours bool
}

var rules = map[string]Rule{
	UserRegistered:            {Template: "welcome", Type: "account", Priority: notifications.PriorityNormal},
	EmailVerificationRequired: {Template: "email_verification", Type: "account", Priority: notifications.PriorityHigh},
	PasswordChanged:           {Template: "password_changed", Type: "security_alert", Priority: notifications.PriorityCritical},
	RoleAssigned:              {Template: "role_assigned", Type: "account", Priority: notifications.PriorityNormal},
	SkillAdded:                {Template: "skill_added", Type: "skill", Priority: notifications.PriorityLow, AllowDigest: true, RespectQuietHours: true},
	SkillEndorsed:             {Template: "skill_endorsed", Type: "skill", Priority: notifications.PriorityLow, AllowDigest: true, RespectQuietHours: true},
	MatchFound:                {Template: "match_found", Type: "match", Priority: notifications.PriorityNormal, AllowDigest: true, RespectQuietHours: true},
	MatchRequestReceived:      {Template: "match_request_received", Type: "match", Priority: notifications.PriorityHigh, RespectQuietHours: true},
	MatchAccepted:             {Template: "match_accepted", Type: "match", Priority: notifications.PriorityHigh, RespectQuietHours: true},
	MatchDeclined:             {Template: "match_declined", Type: "match", Priority: notifications.PriorityNormal, AllowDigest: true, RespectQuietHours: true},
	AppointmentRequested:      {Template: "appointment_requested", Type: "appointment_request", Priority: notifications.PriorityHigh, RespectQuietHours: true},
	AppointmentConfirmed:      {Template: "appointment_confirmed", Type: "appointment_confirmation", Priority: notifications.PriorityHigh},
	AppointmentCancelled:      {Template: "appointment_cancelled", Type: "appointment_update", Priority: notifications.PriorityHigh},
	AppointmentRescheduled:    {Template: "appointment_rescheduled", Type: "appointment_update", Priority: notifications.PriorityHigh},
	AppointmentReminder:       {Template: "appointment_reminder", Type: "appointment_reminder", Priority: notifications.PriorityHigh, RespectQuietHours: true},
	VideoCallScheduled:        {Template: "video_call_scheduled", Type: "video_call", Priority: notifications.PriorityNormal, RespectQuietHours: true},
	VideoCallMissed:           {Template: "video_call_missed", Type: "video_call", Priority: notifications.PriorityNormal, AllowDigest: true, RespectQuietHours: true},
	ReviewReceived:            {Template: "review_received", Type: "review", Priority: notifications.PriorityLow, AllowDigest: true, RespectQuietHours: true},
}

// Names lists the supported event names in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(rules))
	for n := range rules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the rule registered for an event name.
func Lookup(name string) (Rule, bool) {
	r, ok := rules[name]
	return r, ok
}

// Translate maps e to a routing request. Event data becomes template
// variables; the event name and correlation ID are kept in metadata.
func Translate(e Event) (notifications.Request, error) {
	if e.UserID == "" {
		return notifications.Request{}, fmt.Errorf("%w: user id is required", ErrInvalidEvent)
	}
	rule, ok := rules[e.Name]
	if !ok {
		return notifications.Request{}, fmt.Errorf("%w: %q", ErrUnknownEvent, e.Name)
	}

	req := notifications.Request{
		UserID:            e.UserID,
		Type:              rule.Type,
		Template:          rule.Template,
		Priority:          rule.Priority,
		Variables:         maps.Clone(e.Data),
		AllowDigest:       rule.AllowDigest,
		RespectQuietHours: rule.RespectQuietHours,
		Metadata:          map[string]string{"event": e.Name},
	}
	if e.CorrelationID != "" {
		req.Metadata["correlation_id"] = e.CorrelationID
	}
	if !e.OccurredAt.IsZero() {
		req.Metadata["occurred_at"] = e.OccurredAt.UTC().Format(time.RFC3339)
	}

	if len(e.Recipients) > 0 {
		req.Recipients = make(map[notifications.Channel]string, len(e.Recipients))
		for name, addr := range e.Recipients {
			ch, err := notifications.ParseChannel(name)
			if err != nil {
				return notifications.Request{}, errors.Join(ErrInvalidEvent, err)
			}
			req.Recipients[ch] = addr
		}
	}
	return req.Normalize(), nil
}
