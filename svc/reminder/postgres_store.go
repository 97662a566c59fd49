package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/remindkit/pkg/pg"
	"github.com/dmitrymomot/remindkit/pkg/queue"
	"github.com/dmitrymomot/remindkit/svc/notify"
)

// DB is satisfied by *pgxpool.Pool and pgx.Tx.
type DB interface {
	pg.DBTX
	pg.TxBeginner
}

// PostgresStore keeps reminders in Postgres. Inside WithinTx the claimed
// rows and the queue_tasks rows written through Tx.Tasks share one pgx.Tx.
type PostgresStore struct {
	db   DB
	opts storeOptions
}

// NewPostgresStore creates a store over a pool.
func NewPostgresStore(db DB, opts ...StoreOption) *PostgresStore {
	return &PostgresStore{db: db, opts: newStoreOptions(opts)}
}

const reminderColumns = `id, user_id, text, original_phrase, local_ts, utc_ts, status,
	correlation_id, last_attempt_at, claimed_until, sent_at, calendar_event_id, created_at`

func scanReminder(row pgx.Row) (*Reminder, error) {
	var (
		r      Reminder
		status string
		cid    *string
	)
	err := row.Scan(&r.ID, &r.UserID, &r.Text, &r.OriginalPhrase, &r.LocalTS, &r.UTCTS, &status,
		&cid, &r.LastAttemptAt, &r.ClaimedUntil, &r.SentAt, &r.CalendarEventID, &r.CreatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrReminderNotFound
		}
		return nil, err
	}
	r.Status = Status(status)
	if cid != nil {
		r.CorrelationID = *cid
	}
	return &r, nil
}

// ClaimDue locks due scheduled rows with FOR UPDATE SKIP LOCKED, stamps
// their claim lease and correlation id, and returns them.
func (s *PostgresStore) ClaimDue(ctx context.Context, now time.Time) ([]Handle, error) {
	limit := any(nil)
	if s.opts.batchSize > 0 {
		limit = s.opts.batchSize
	}

	rows, err := s.db.Query(ctx, `WITH due AS (
			SELECT id FROM reminders
			WHERE status = 'scheduled' AND utc_ts <= $1
				AND (claimed_until IS NULL OR claimed_until <= $1)
			ORDER BY utc_ts
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE reminders r
		SET last_attempt_at = $1,
			claimed_until = $2,
			correlation_id = COALESCE(NULLIF(r.correlation_id, ''), gen_random_uuid()::text)
		FROM due
		WHERE r.id = due.id
		RETURNING r.id, r.correlation_id`,
		now, now.Add(s.opts.lease), limit)
	if err != nil {
		return nil, fmt.Errorf("claim due reminders: %w", err)
	}

	handles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Handle, error) {
		var h Handle
		err := row.Scan(&h.ID, &h.CorrelationID)
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("claim due reminders: %w", err)
	}
	return handles, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	return scanReminder(s.db.QueryRow(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id))
}

// GetForUpdate locks the row until the surrounding transaction ends.
func (s *PostgresStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	return scanReminder(s.db.QueryRow(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = $1 FOR UPDATE`, id))
}

// Save writes every mutable column of r.
func (s *PostgresStore) Save(ctx context.Context, r *Reminder) error {
	if r == nil || !r.Status.Valid() {
		return ErrInvalidReminder
	}
	tag, err := s.db.Exec(ctx, `UPDATE reminders SET
			text = $2, original_phrase = $3, local_ts = $4, utc_ts = $5, status = $6,
			correlation_id = $7, last_attempt_at = $8, claimed_until = $9, sent_at = $10,
			calendar_event_id = $11
		WHERE id = $1`,
		r.ID, r.Text, r.OriginalPhrase, r.LocalTS, r.UTCTS, string(r.Status),
		nullString(r.CorrelationID), r.LastAttemptAt, r.ClaimedUntil, r.SentAt, r.CalendarEventID)
	if err != nil {
		return fmt.Errorf("save reminder %s: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReminderNotFound
	}
	return nil
}

// CreateReminder inserts r. Zero ID and CreatedAt are filled in.
func (s *PostgresStore) CreateReminder(ctx context.Context, r *Reminder) error {
	if r == nil || !r.Status.Valid() {
		return ErrInvalidReminder
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `INSERT INTO reminders (`+reminderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		r.ID, r.UserID, r.Text, r.OriginalPhrase, r.LocalTS, r.UTCTS, string(r.Status),
		nullString(r.CorrelationID), r.LastAttemptAt, r.ClaimedUntil, r.SentAt, r.CalendarEventID, r.CreatedAt)
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return fmt.Errorf("%w: %s", ErrUserNotFound, r.UserID)
		}
		return fmt.Errorf("create reminder: %w", err)
	}
	return nil
}

// CreateUser inserts a user's contact data.
func (s *PostgresStore) CreateUser(ctx context.Context, u notify.Recipient) error {
	_, err := s.db.Exec(ctx, `INSERT INTO users (id, email, push_token) VALUES ($1, $2, $3)`,
		u.ID, nullString(u.Email), nullString(u.PushToken))
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRecipient(ctx context.Context, userID uuid.UUID) (*notify.Recipient, error) {
	var r notify.Recipient
	err := s.db.QueryRow(ctx, `SELECT id, COALESCE(email, ''), COALESCE(push_token, '')
		FROM users WHERE id = $1`, userID).Scan(&r.ID, &r.Email, &r.PushToken)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return &r, nil
}

func (s *PostgresStore) RecordDeadLetter(ctx context.Context, dl DeadLetter) error {
	if dl.ID == uuid.Nil {
		dl.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx, `INSERT INTO failed_jobs
		(id, job_name, payload, error_message, attempts, last_error_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		dl.ID, dl.JobName, []byte(dl.Payload), dl.ErrorMessage, dl.Attempts, dl.LastErrorAt)
	if err != nil {
		return fmt.Errorf("record dead letter: %w", err)
	}
	return nil
}

// ListDeadLetters returns the newest dead letters first.
func (s *PostgresStore) ListDeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `SELECT id, job_name, payload, error_message, attempts,
			last_error_at, created_at
		FROM failed_jobs ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (DeadLetter, error) {
		var dl DeadLetter
		err := row.Scan(&dl.ID, &dl.JobName, &dl.Payload, &dl.ErrorMessage, &dl.Attempts,
			&dl.LastErrorAt, &dl.CreatedAt)
		return dl, err
	})
}

// WithinTx binds both the store and a queue.PostgresStorage to one pgx.Tx.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return pg.WithTx(ctx, s.db, func(ctx context.Context, tx pgx.Tx) error {
		enq, err := queue.NewEnqueuer(queue.NewPostgresStorage(tx))
		if err != nil {
			return err
		}
		return fn(ctx, &postgresTx{
			store: &PostgresStore{db: tx, opts: s.opts},
			tasks: enq,
		})
	})
}

type postgresTx struct {
	store *PostgresStore
	tasks *queue.Enqueuer
}

func (t *postgresTx) Reminders() Store    { return t.store }
func (t *postgresTx) Tasks() TaskEnqueuer { return t.tasks }

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
