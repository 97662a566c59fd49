package notify

import (
	"context"

	"github.com/google/uuid"
)

// Recipient is the contact data of the user a message goes to.
type Recipient struct {
	ID        uuid.UUID
	Email     string
	PushToken string
}

// Message is one reminder notification.
type Message struct {
	ReminderID    uuid.UUID
	Text          string
	CorrelationID string
}

// Channel delivers a Message over one medium.
// Send never returns an error: failures are logged and reported as false.
type Channel interface {
	Name() string
	Applicable(r Recipient) bool
	Send(ctx context.Context, r Recipient, msg Message) bool
}

// Result summarizes one dispatch.
type Result struct {
	Applicable int
	Succeeded  int
	Delivered  bool
	// Skipped is set when multi-channel sending is turned off.
	Skipped bool
}

// Err describes why a dispatch did not deliver. Nil when it did.
func (r Result) Err() error {
	switch {
	case r.Delivered:
		return nil
	case r.Applicable == 0:
		return ErrNoApplicableChannels
	default:
		return ErrAllChannelsFailed
	}
}
