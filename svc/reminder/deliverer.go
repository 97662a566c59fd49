package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/remindkit/pkg/logger"
	"github.com/dmitrymomot/remindkit/pkg/metrics"
	"github.com/dmitrymomot/remindkit/svc/notify"
)

// Dispatcher is implemented by *notify.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, r notify.Recipient, msg notify.Message) notify.Result
}

// DeliverRequest is one delivery attempt.
type DeliverRequest struct {
	ReminderID uuid.UUID
	// Now overrides the clock.
	Now           *time.Time
	CorrelationID string
	// Attempt is 0 for the first try.
	Attempt int
}

// Deliverer runs one delivery attempt of one reminder.
type Deliverer struct {
	repo       Repository
	dispatcher Dispatcher
	metrics    metrics.Sink
	events     *metrics.EventLogger
	logger     *slog.Logger
	maxRetries int
	lease      time.Duration
	now        func() time.Time
}

// DelivererOption configures a Deliverer.
type DelivererOption func(*Deliverer)

// WithMaxRetries sets how many failed attempts are retried before the
// reminder is marked as error. Attempt indexes start at zero.
func WithMaxRetries(n int) DelivererOption {
	return func(d *Deliverer) {
		if n >= 0 {
			d.maxRetries = n
		}
	}
}

// WithRetryLease sets how long a reminder waiting for a retry stays claimed
// after the retry is due.
func WithRetryLease(lease time.Duration) DelivererOption {
	return func(d *Deliverer) {
		if lease > 0 {
			d.lease = lease
		}
	}
}

func WithDelivererLogger(l *slog.Logger) DelivererOption {
	return func(d *Deliverer) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithDelivererClock replaces time.Now.
func WithDelivererClock(now func() time.Time) DelivererOption {
	return func(d *Deliverer) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDeliverer creates a Deliverer that retries DefaultMaxRetries times.
func NewDeliverer(repo Repository, dispatcher Dispatcher, sink metrics.Sink, opts ...DelivererOption) *Deliverer {
	d := &Deliverer{
		repo:       repo,
		dispatcher: dispatcher,
		metrics:    sink,
		logger:     slog.Default(),
		maxRetries: DefaultMaxRetries,
		lease:      DefaultClaimLease,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.events = metrics.NewEventLogger(d.logger)
	return d
}

// Deliver runs one delivery attempt. The returned Outcome carries the
// correlation id the attempt logged under so retries can reuse it.
func (d *Deliverer) Deliver(ctx context.Context, req DeliverRequest) Outcome {
	cid := fallbackCorrelationID(req.CorrelationID)
	out := d.deliver(ctx, req, &cid)
	out.CorrelationID = cid
	return out
}

func (d *Deliverer) deliver(ctx context.Context, req DeliverRequest, correlationID *string) Outcome {
	now := d.now().UTC()
	if req.Now != nil {
		now = req.Now.UTC()
	}

	rem, err := d.repo.Get(ctx, req.ReminderID)
	if errors.Is(err, ErrReminderNotFound) {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "reminder no longer exists",
			logger.ReminderID(req.ReminderID),
			logger.CorrelationID(*correlationID),
		)
		return Success()
	}
	if err != nil {
		return d.fail(ctx, req, nil, *correlationID, now,
			fmt.Errorf("load reminder %s: %w", req.ReminderID, err))
	}

	if rem.CorrelationID != "" {
		*correlationID = rem.CorrelationID
	}
	cid := *correlationID
	log := d.logger.With(logger.ReminderID(rem.ID), logger.CorrelationID(cid), logger.Attempt(req.Attempt))

	if rem.Status != StatusScheduled {
		d.skip(ctx, rem, cid)
		return Success()
	}

	if !rem.Due(now) {
		wait := max(rem.UTCTS.Sub(now).Truncate(time.Second), MinEarlyDelay)
		log.LogAttrs(ctx, slog.LevelDebug, "reminder picked up early, rescheduling",
			logger.ETA(rem.UTCTS),
			logger.Duration(wait),
		)
		return NotYetDue(wait)
	}

	recipient, err := d.repo.GetRecipient(ctx, rem.UserID)
	if err != nil {
		return d.fail(ctx, req, rem, cid, now, fmt.Errorf("reminder %s: %w", rem.ID, err))
	}

	res := d.dispatcher.Dispatch(ctx, *recipient, notify.Message{
		ReminderID:    rem.ID,
		Text:          rem.Text,
		CorrelationID: cid,
	})
	if !res.Delivered {
		return d.fail(ctx, req, rem, cid, now, fmt.Errorf("reminder %s: %w", rem.ID, res.Err()))
	}

	sent, err := d.markSent(ctx, rem.ID, now)
	if err != nil {
		return d.fail(ctx, req, rem, cid, now, fmt.Errorf("mark reminder %s sent: %w", rem.ID, err))
	}
	if sent == nil {
		log.LogAttrs(ctx, slog.LevelInfo, "reminder changed during delivery, leaving status as is")
		return Success()
	}

	d.metrics.RecordLatency(ctx, max(now.Sub(sent.UTCTS), 0))
	d.metrics.IncrementCounter(ctx, metrics.ReminderSent, 1)
	d.events.Log(ctx, metrics.ReminderEvent{
		Event:         metrics.EventReminderFired,
		CorrelationID: cid,
		ReminderID:    sent.ID,
		UserID:        sent.UserID,
		ETA:           sent.UTCTS,
		Status:        sent.Status.String(),
	})
	log.LogAttrs(ctx, slog.LevelInfo, "reminder sent",
		logger.UserID(sent.UserID),
		slog.Int("channels_succeeded", res.Succeeded),
		slog.Bool("skipped", res.Skipped),
	)
	return Success()
}

// markSent re-reads the row under lock so a cancel that landed during
// dispatch wins. Returns nil when the reminder is no longer scheduled.
func (d *Deliverer) markSent(ctx context.Context, id uuid.UUID, now time.Time) (*Reminder, error) {
	var sent *Reminder
	err := d.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.Reminders().GetForUpdate(ctx, id)
		if errors.Is(err, ErrReminderNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if cur.Status != StatusScheduled {
			return nil
		}
		if err := cur.MarkSent(now); err != nil {
			return err
		}
		if err := tx.Reminders().Save(ctx, cur); err != nil {
			return err
		}
		sent = cur
		return nil
	})
	return sent, err
}

func (d *Deliverer) skip(ctx context.Context, rem *Reminder, cid string) {
	ev := metrics.ReminderEvent{
		CorrelationID: cid,
		ReminderID:    rem.ID,
		UserID:        rem.UserID,
		ETA:           rem.UTCTS,
		Status:        rem.Status.String(),
	}
	switch rem.Status {
	case StatusCanceled:
		ev.Event = metrics.EventReminderCanceled
		d.events.Log(ctx, ev)
		d.metrics.IncrementCounter(ctx, metrics.ReminderCanceled, 1)
	case StatusError:
		ev.Event = metrics.EventReminderErrored
		d.events.Log(ctx, ev)
	}
	d.logger.LogAttrs(ctx, slog.LevelInfo, "reminder not scheduled, skipping",
		logger.ReminderID(rem.ID),
		logger.CorrelationID(cid),
		logger.Status(rem.Status.String()),
	)
}

func (d *Deliverer) fail(ctx context.Context, req DeliverRequest, rem *Reminder, cid string, now time.Time, cause error) Outcome {
	if req.Attempt < d.maxRetries {
		delay := Backoff(req.Attempt)
		d.touch(ctx, req.ReminderID, now, now.Add(delay).Add(d.lease))

		ev := metrics.ReminderEvent{
			Event:         metrics.EventReminderRetry,
			CorrelationID: cid,
			ReminderID:    req.ReminderID,
			Status:        StatusScheduled.String(),
			Err:           cause,
		}
		if rem != nil {
			ev.UserID, ev.ETA = rem.UserID, rem.UTCTS
		}
		d.events.Log(ctx, ev)
		d.logger.LogAttrs(ctx, slog.LevelWarn, "retrying reminder delivery",
			logger.ReminderID(req.ReminderID),
			logger.CorrelationID(cid),
			logger.Attempt(req.Attempt+1),
			slog.Int("max_retries", d.maxRetries),
			logger.Duration(delay),
			logger.Error(cause),
		)
		return RetryAfter(delay, cause)
	}

	final, recorded, err := d.giveUp(ctx, req, now, cause)
	if err != nil {
		d.logger.LogAttrs(ctx, slog.LevelError, "failed to record terminal reminder failure",
			logger.ReminderID(req.ReminderID),
			logger.CorrelationID(cid),
			logger.Error(err),
		)
		return RetryAfter(Backoff(req.Attempt), errors.Join(cause, err))
	}
	if !recorded {
		d.logger.LogAttrs(ctx, slog.LevelInfo, "reminder changed during delivery, not marking as failed",
			logger.ReminderID(req.ReminderID),
			logger.CorrelationID(cid),
		)
		return Success()
	}

	ev := metrics.ReminderEvent{
		Event:         metrics.EventReminderErrored,
		CorrelationID: cid,
		ReminderID:    req.ReminderID,
		Status:        StatusError.String(),
		Err:           cause,
	}
	if final != nil {
		ev.UserID, ev.ETA = final.UserID, final.UTCTS
	}
	d.events.Log(ctx, ev)
	d.metrics.IncrementCounter(ctx, metrics.ReminderError, 1)
	return TerminalFailure(cause)
}

// giveUp marks the reminder as failed and writes its dead letter in one
// transaction. recorded is false when the reminder left the scheduled status
// in the meantime, in which case nothing is written.
func (d *Deliverer) giveUp(ctx context.Context, req DeliverRequest, now time.Time, cause error) (final *Reminder, recorded bool, err error) {
	err = d.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.Reminders().GetForUpdate(ctx, req.ReminderID)
		switch {
		case errors.Is(err, ErrReminderNotFound):
			return nil
		case err != nil:
			return err
		case cur.Status != StatusScheduled:
			return nil
		}
		if err := cur.MarkError(now); err != nil {
			return err
		}
		if err := tx.Reminders().Save(ctx, cur); err != nil {
			return err
		}
		if err := tx.Reminders().RecordDeadLetter(ctx, NewDeliveryDeadLetter(req.ReminderID, cause, req.Attempt+1, now)); err != nil {
			return err
		}
		final, recorded = cur, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return final, recorded, nil
}

// touch stamps the attempt and keeps the reminder claimed until its retry ran.
func (d *Deliverer) touch(ctx context.Context, id uuid.UUID, now, claimedUntil time.Time) {
	err := d.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.Reminders().GetForUpdate(ctx, id)
		if errors.Is(err, ErrReminderNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if cur.Status != StatusScheduled {
			return nil
		}
		cur.LastAttemptAt = &now
		cur.ClaimedUntil = &claimedUntil
		return tx.Reminders().Save(ctx, cur)
	})
	if err != nil {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "failed to record delivery attempt",
			logger.ReminderID(id),
			logger.Error(err),
		)
	}
}

func fallbackCorrelationID(traceID string) string {
	if traceID != "" {
		return traceID
	}
	return uuid.NewString()
}
