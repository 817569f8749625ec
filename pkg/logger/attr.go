package logger

import (
	"fmt"
	"log/slog"
	"strconv"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
// If id is nil, it returns an empty Attr.
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// NotificationID records the notification record identifier.
// Empty ids produce an empty Attr.
func NotificationID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("notification_id", id)
}

// RequestID records the request identifier under the key "request_id".
// If id is nil, it returns an empty Attr.
func RequestID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("request_id", id)
}

// TaskID records the background task identifier under the key "task_id".
func TaskID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("task_id", id)
}

// Channel records a delivery channel by its name.
func Channel(ch fmt.Stringer) slog.Attr {
	if ch == nil {
		return slog.Attr{}
	}
	return slog.String("channel", ch.String())
}

// Template records the notification template name.
func Template(name string) slog.Attr {
	return slog.String("template", name)
}

// Priority records a notification priority by its name.
func Priority(p fmt.Stringer) slog.Attr {
	if p == nil {
		return slog.Attr{}
	}
	return slog.String("priority", p.String())
}

// Reason records a routing decision reason.
func Reason(reason string) slog.Attr {
	return slog.String("reason", reason)
}

// EventType records the event type under the key "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// Attempt records the 1-based delivery attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Count records a number of processed items under the key "count".
func Count(n int) slog.Attr {
	return slog.Int("count", n)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
