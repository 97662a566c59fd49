package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/remindkit/pkg/logger"
)

// Reminder lifecycle event names.
const (
	EventReminderFired    = "reminder_fired"
	EventReminderErrored  = "reminder_errored"
	EventReminderCanceled = "reminder_canceled"
	EventReminderRetry    = "reminder_retry"
)

// ReminderEvent is one structured lifecycle log line.
type ReminderEvent struct {
	Event         string
	CorrelationID string
	ReminderID    uuid.UUID
	UserID        uuid.UUID
	ETA           time.Time
	Status        string
	Err           error
}

// EventLogger writes reminder lifecycle events as structured log records
// keyed by correlation id.
type EventLogger struct {
	log *slog.Logger
}

// NewEventLogger writes events through l. Errors log at error level and
// retries at warn, everything else at info.
func NewEventLogger(l *slog.Logger) *EventLogger {
	if l == nil {
		l = slog.Default()
	}
	return &EventLogger{log: l}
}

// Log emits one lifecycle event as a structured record.
func (e *EventLogger) Log(ctx context.Context, ev ReminderEvent) {
	level := slog.LevelInfo
	if ev.Event == EventReminderErrored {
		level = slog.LevelError
	} else if ev.Event == EventReminderRetry {
		level = slog.LevelWarn
	}

	attrs := []slog.Attr{
		logger.Event(ev.Event),
		logger.CorrelationID(ev.CorrelationID),
		logger.ReminderID(ev.ReminderID),
		logger.Status(ev.Status),
	}
	if ev.UserID != uuid.Nil {
		attrs = append(attrs, logger.UserID(ev.UserID))
	}
	if !ev.ETA.IsZero() {
		attrs = append(attrs, logger.ETA(ev.ETA))
	}
	if ev.Err != nil {
		attrs = append(attrs, logger.Error(ev.Err))
	}

	e.log.LogAttrs(ctx, level, ev.Event, attrs...)
}
