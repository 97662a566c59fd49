package reminder

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/remindkit/pkg/queue"
	"github.com/dmitrymomot/remindkit/svc/notify"
)

// Store is the persistence surface of the delivery pipeline.
type Store interface {
	// ClaimDue claims every scheduled reminder due at now that no other pass
	// holds, skipping rows locked by concurrent transactions. Claimed rows get
	// last_attempt_at=now, a claim lease and a correlation id.
	ClaimDue(ctx context.Context, now time.Time) ([]Handle, error)
	Get(ctx context.Context, id uuid.UUID) (*Reminder, error)
	// GetForUpdate is Get holding the row lock until the transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Reminder, error)
	Save(ctx context.Context, r *Reminder) error
	GetRecipient(ctx context.Context, userID uuid.UUID) (*notify.Recipient, error)
	RecordDeadLetter(ctx context.Context, dl DeadLetter) error
	ListDeadLetters(ctx context.Context, limit int) ([]DeadLetter, error)
}

// TaskEnqueuer is implemented by *queue.Enqueuer.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) error
}

// Tx is one unit of work. Reminder changes and enqueued tasks commit together.
type Tx interface {
	Reminders() Store
	Tasks() TaskEnqueuer
}

// Transactor runs a unit of work in one transaction.
type Transactor interface {
	// WithinTx commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Repository is a Store that can also open transactions.
type Repository interface {
	Store
	Transactor
}

type storeOptions struct {
	lease     time.Duration
	batchSize int
}

// StoreOption configures MemoryStore and PostgresStore.
type StoreOption func(*storeOptions)

// WithClaimLease sets how long a claimed reminder stays out of later scans.
func WithClaimLease(d time.Duration) StoreOption {
	return func(o *storeOptions) {
		if d > 0 {
			o.lease = d
		}
	}
}

// WithClaimBatchSize caps the rows claimed by one pass. Zero means no cap.
func WithClaimBatchSize(n int) StoreOption {
	return func(o *storeOptions) {
		if n >= 0 {
			o.batchSize = n
		}
	}
}

func newStoreOptions(opts []StoreOption) storeOptions {
	o := storeOptions{lease: DefaultClaimLease, batchSize: DefaultClaimBatchSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
