package reminder

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/remindkit/pkg/statemachine"
)

// Event drives a reminder status change.
type Event string

const (
	EventDeliver Event = "deliver"
	EventFail    Event = "fail"
	EventCancel  Event = "cancel"
)

// Only a scheduled reminder moves. Every other status is terminal.
var lifecycle = statemachine.MustTable(
	statemachine.Transition[Status, Event]{From: StatusScheduled, Event: EventDeliver, To: StatusSent},
	statemachine.Transition[Status, Event]{From: StatusScheduled, Event: EventFail, To: StatusError},
	statemachine.Transition[Status, Event]{From: StatusScheduled, Event: EventCancel, To: StatusCanceled},
)

// IsTerminal reports whether no event can move s anymore.
func (s Status) IsTerminal() bool {
	return lifecycle.Final(s)
}

// CanTransition reports whether ev is allowed from status from.
func CanTransition(from Status, ev Event) bool {
	return lifecycle.Can(from, ev)
}

func (r *Reminder) apply(ev Event) error {
	next, err := lifecycle.Next(r.Status, ev)
	if err != nil {
		return errors.Join(ErrInvalidTransition, err)
	}
	r.Status = next
	return nil
}

// MarkSent moves a scheduled reminder to sent and releases its claim.
func (r *Reminder) MarkSent(at time.Time) error {
	if err := r.apply(EventDeliver); err != nil {
		return err
	}
	r.SentAt = &at
	r.LastAttemptAt = &at
	r.ClaimedUntil = nil
	return nil
}

// MarkError gives up on a scheduled reminder and releases its claim.
func (r *Reminder) MarkError(at time.Time) error {
	if err := r.apply(EventFail); err != nil {
		return err
	}
	r.LastAttemptAt = &at
	r.ClaimedUntil = nil
	return nil
}

// Cancel stops a scheduled reminder.
func (r *Reminder) Cancel() error {
	if err := r.apply(EventCancel); err != nil {
		return err
	}
	r.ClaimedUntil = nil
	return nil
}

// CancelByID cancels a scheduled reminder under a row lock.
// A delivery already in flight finishes its attempt but will not overwrite
// the canceled status.
func CancelByID(ctx context.Context, repo Transactor, id uuid.UUID) error {
	return repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		r, err := tx.Reminders().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := r.Cancel(); err != nil {
			return err
		}
		return tx.Reminders().Save(ctx, r)
	})
}
