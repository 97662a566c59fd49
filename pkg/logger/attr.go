package logger

import (
	"log/slog"
	"time"
)

// Error records err under "error". Nil errors produce an empty Attr, which slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// UserID records the owning user under "user_id".
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// CorrelationID records the delivery lifecycle id under "correlation_id".
func CorrelationID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("correlation_id", id)
}

// ReminderID records the reminder under "reminder_id".
func ReminderID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("reminder_id", id)
}

// Status returns a status attribute.
func Status(status string) slog.Attr {
	return slog.String("status", status)
}

func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// Component names the subsystem that logs, e.g. "scanner" or "worker".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Channel names a notification channel.
func Channel(name string) slog.Attr {
	return slog.String("channel", name)
}

// TaskName returns a task_name attribute.
func TaskName(name string) slog.Attr {
	return slog.String("task_name", name)
}

// TaskID returns a task_id attribute.
func TaskID(id any) slog.Attr {
	return slog.Any("task_id", id)
}

// Attempt records the zero-based delivery attempt index.
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// ETA records a target time in RFC 3339, UTC.
func ETA(t time.Time) slog.Attr {
	if t.IsZero() {
		return slog.Attr{}
	}
	return slog.String("eta_utc", t.UTC().Format(time.RFC3339))
}
