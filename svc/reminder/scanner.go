package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/remindkit/pkg/metrics"
	"github.com/dmitrymomot/remindkit/pkg/queue"
)

// Scanner claims due reminders and queues one delivery task per reminder.
type Scanner struct {
	repo    Transactor
	metrics metrics.Sink
	logger  *slog.Logger
	queue   string
	clock   func() time.Time
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

func WithScannerLogger(l *slog.Logger) ScannerOption {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithScannerQueue sets the queue delivery tasks go to.
func WithScannerQueue(name string) ScannerOption {
	return func(s *Scanner) {
		if name != "" {
			s.queue = name
		}
	}
}

// WithScannerClock sets the wall clock used for the heartbeat gauge.
func WithScannerClock(now func() time.Time) ScannerOption {
	return func(s *Scanner) {
		if now != nil {
			s.clock = now
		}
	}
}

// NewScanner creates a Scanner that enqueues to the default queue.
func NewScanner(repo Transactor, sink metrics.Sink, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		repo:    repo,
		metrics: sink,
		logger:  slog.Default(),
		queue:   queue.DefaultQueueName,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan claims every reminder due at now and enqueues its delivery. Claim and
// enqueue share one transaction: if any enqueue fails nothing is claimed.
func (s *Scanner) Scan(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	s.metrics.SetGauge(ctx, metrics.WorkerUptimeSeconds, float64(s.clock().Unix()))

	var queued int
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		handles, err := tx.Reminders().ClaimDue(ctx, now)
		if err != nil {
			return err
		}
		for _, h := range handles {
			payload := DeliverReminderPayload{ReminderID: h.ID, TraceID: h.CorrelationID}
			if err := tx.Tasks().Enqueue(ctx, payload, deliveryTaskOptions(s.queue, 0)...); err != nil {
				return fmt.Errorf("enqueue delivery of reminder %s: %w", h.ID, err)
			}
		}
		queued = len(handles)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan due reminders: %w", err)
	}

	if queued > 0 {
		s.metrics.IncrementCounter(ctx, metrics.ReminderScheduled, int64(queued))
		s.logger.LogAttrs(ctx, slog.LevelInfo, "queued reminders for delivery",
			slog.Int("count", queued),
			slog.Time("now", now),
		)
	}
	return queued, nil
}

// deliveryTaskOptions disables queue-level retries: the delivery task
// schedules its own retries with backoff.
func deliveryTaskOptions(queueName string, delay time.Duration) []queue.EnqueueOption {
	opts := []queue.EnqueueOption{
		queue.WithQueue(queueName),
		queue.WithMaxRetries(0),
	}
	if delay > 0 {
		opts = append(opts, queue.WithDelay(delay))
	}
	return opts
}
