package reminder

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the stored reminder state.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusSent      Status = "sent"
	StatusCanceled  Status = "canceled"
	StatusError     Status = "error"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusSent, StatusCanceled, StatusError:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// Reminder is a user's request to be notified at UTCTS.
type Reminder struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	Text            string     `json:"text"`
	OriginalPhrase  *string    `json:"original_phrase,omitempty"`
	LocalTS         time.Time  `json:"local_ts"`
	UTCTS           time.Time  `json:"utc_ts"`
	Status          Status     `json:"status"`
	CorrelationID   string     `json:"correlation_id,omitempty"`
	LastAttemptAt   *time.Time `json:"last_attempt_at,omitempty"`
	ClaimedUntil    *time.Time `json:"claimed_until,omitempty"`
	SentAt          *time.Time `json:"sent_at,omitempty"`
	CalendarEventID *string    `json:"calendar_event_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Due reports whether the reminder can be delivered at now.
func (r *Reminder) Due(now time.Time) bool {
	return !r.UTCTS.After(now)
}

// Handle is what a scan pass hands over to the delivery task.
type Handle struct {
	ID            uuid.UUID
	CorrelationID string
}

// DeadLetter records a job that ran out of retries.
type DeadLetter struct {
	ID           uuid.UUID       `json:"id"`
	JobName      string          `json:"job_name"`
	Payload      json.RawMessage `json:"payload"`
	ErrorMessage string          `json:"error_message"`
	Attempts     int             `json:"attempts"`
	LastErrorAt  time.Time       `json:"last_error_at"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewDeliveryDeadLetter builds the dead letter of a reminder delivery that gave up.
func NewDeliveryDeadLetter(reminderID uuid.UUID, cause error, attempts int, at time.Time) DeadLetter {
	payload, _ := json.Marshal(map[string]string{"reminder_id": reminderID.String()})
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return DeadLetter{
		ID:           uuid.New(),
		JobName:      TaskDeliverReminder,
		Payload:      payload,
		ErrorMessage: msg,
		Attempts:     attempts,
		LastErrorAt:  at,
		CreatedAt:    at,
	}
}
