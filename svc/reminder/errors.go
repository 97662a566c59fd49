package reminder

import "errors"

var (
	// ErrReminderNotFound is returned when no reminder has the requested ID.
	ErrReminderNotFound = errors.New("reminder not found")

	// ErrUserNotFound is returned when the reminder's owner has no contact row.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidTransition is returned when a status change is not allowed
	// from the reminder's current status.
	ErrInvalidTransition = errors.New("invalid reminder status transition")

	// ErrInvalidTime is returned for a current time override that does not parse.
	ErrInvalidTime = errors.New("invalid time value")

	ErrInvalidReminder = errors.New("invalid reminder")
)
