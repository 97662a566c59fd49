package reminder

import (
	"cmp"
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/remindkit/pkg/logger"
	"github.com/dmitrymomot/remindkit/pkg/queue"
)

// Queue task names.
const (
	TaskDeliverReminder  = "deliver_reminder"
	TaskSendDueReminders = "send_due_reminders"
)

// DeliverReminderPayload is the argument of the deliver_reminder task.
type DeliverReminderPayload struct {
	ReminderID uuid.UUID `json:"reminder_id"`
	// CurrentTime overrides the clock (ISO-8601). Not carried over to retries.
	CurrentTime *string `json:"current_time,omitempty"`
	TraceID     string  `json:"trace_id,omitempty"`
	Attempt     int     `json:"attempt"`
}

// TaskName ties the payload to the deliver_reminder handler.
func (DeliverReminderPayload) TaskName() string { return TaskDeliverReminder }

// Tasks adapts the Deliverer and Scanner to queue handlers.
type Tasks struct {
	deliverer *Deliverer
	scanner   *Scanner
	enqueuer  TaskEnqueuer
	logger    *slog.Logger
	queue     string
	clock     func() time.Time
}

// TasksOption configures Tasks.
type TasksOption func(*Tasks)

func WithTasksLogger(l *slog.Logger) TasksOption {
	return func(t *Tasks) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithTasksQueue sets the queue for delivery retries and the periodic scan.
func WithTasksQueue(name string) TasksOption {
	return func(t *Tasks) {
		if name != "" {
			t.queue = name
		}
	}
}

func WithTasksClock(now func() time.Time) TasksOption {
	return func(t *Tasks) {
		if now != nil {
			t.clock = now
		}
	}
}

// NewTasks wires the handlers. enqueuer is used for retries and must write
// to the same queue storage the worker reads from.
func NewTasks(deliverer *Deliverer, scanner *Scanner, enqueuer TaskEnqueuer, opts ...TasksOption) *Tasks {
	t := &Tasks{
		deliverer: deliverer,
		scanner:   scanner,
		enqueuer:  enqueuer,
		logger:    slog.Default(),
		queue:     queue.DefaultQueueName,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Handlers returns the queue handlers for both reminder tasks.
func (t *Tasks) Handlers() []queue.Handler {
	return []queue.Handler{
		queue.NewTaskHandler(t.HandleDeliver),
		queue.NewPeriodicTaskHandler(TaskSendDueReminders, t.HandleScan),
	}
}

// Schedule registers the periodic scan with the scheduler.
func (t *Tasks) Schedule(s *queue.Scheduler, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	return s.AddTask(TaskSendDueReminders, queue.EveryInterval(interval),
		queue.WithTaskQueue(t.queue),
		queue.WithTaskMaxRetries(0),
	)
}

// HandleDeliver runs one attempt and turns a retry outcome into a delayed task.
func (t *Tasks) HandleDeliver(ctx context.Context, p DeliverReminderPayload) error {
	now, err := resolveNow(p.CurrentTime, t.clock)
	if err != nil {
		return err
	}

	out := t.deliverer.Deliver(ctx, DeliverRequest{
		ReminderID:    p.ReminderID,
		Now:           &now,
		CorrelationID: p.TraceID,
		Attempt:       p.Attempt,
	})
	if out.Kind != OutcomeRetry {
		return nil
	}

	next := DeliverReminderPayload{
		ReminderID: p.ReminderID,
		TraceID:    cmp.Or(out.CorrelationID, p.TraceID),
		Attempt:    p.Attempt,
	}
	if out.Attempted {
		next.Attempt++
	}
	if err := t.enqueuer.Enqueue(ctx, next, deliveryTaskOptions(t.queue, out.Delay)...); err != nil {
		t.logger.LogAttrs(ctx, slog.LevelError, "failed to reschedule reminder delivery",
			logger.TaskName(TaskDeliverReminder),
			logger.ReminderID(p.ReminderID),
			logger.CorrelationID(next.TraceID),
			logger.Attempt(next.Attempt),
			logger.Error(err),
		)
		return err
	}
	return nil
}

// HandleScan runs one scanner pass.
func (t *Tasks) HandleScan(ctx context.Context) error {
	n, err := t.scanner.Scan(ctx, t.clock())
	if err != nil {
		return err
	}
	t.logger.LogAttrs(ctx, slog.LevelDebug, "scan finished",
		logger.TaskName(TaskSendDueReminders),
		slog.Int("count", n),
	)
	return nil
}
