package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/remindkit/pkg/pg"
)

// PostgresStorage keeps tasks in the queue_tasks and queue_tasks_dlq tables.
// It works on any pg.DBTX: bound to a pool every call is its own statement,
// bound to a pgx.Tx the enqueue commits or rolls back with the caller's work.
type PostgresStorage struct {
	db pg.DBTX
}

// NewPostgresStorage creates a storage over db. Pass a pgx.Tx to have
// tasks created inside a caller's transaction.
func NewPostgresStorage(db pg.DBTX) *PostgresStorage {
	return &PostgresStorage{db: db}
}

const taskColumns = `id, queue, task_type, task_name, payload, status, priority, retry_count,
	max_retries, scheduled_at, locked_until, locked_by, processed_at, error, created_at`

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.Queue, &t.TaskType, &t.TaskName, &t.Payload, &t.Status,
		&t.Priority, &t.RetryCount, &t.MaxRetries, &t.ScheduledAt, &t.LockedUntil,
		&t.LockedBy, &t.ProcessedAt, &t.Error, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTask implements EnqueuerRepository and SchedulerRepository
func (s *PostgresStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return ErrPayloadNil
	}
	_, err := s.db.Exec(ctx, `INSERT INTO queue_tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		task.ID, task.Queue, task.TaskType, task.TaskName, nullJSON(task.Payload), task.Status,
		task.Priority, task.RetryCount, task.MaxRetries, task.ScheduledAt, task.LockedUntil,
		task.LockedBy, task.ProcessedAt, task.Error, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetPendingTaskByName implements SchedulerRepository
func (s *PostgresStorage) GetPendingTaskByName(ctx context.Context, taskName string) (*Task, error) {
	t, err := scanTask(s.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM queue_tasks
		WHERE task_name = $1 AND status = 'pending'
		ORDER BY scheduled_at LIMIT 1`, taskName))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return t, nil
}

// ClaimTask locks one due task with FOR UPDATE SKIP LOCKED so concurrent
// workers never receive the same row. Processing tasks whose lock expired are
// claimable again.
func (s *PostgresStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	now := time.Now().UTC()
	t, err := scanTask(s.db.QueryRow(ctx, `UPDATE queue_tasks SET
			status = 'processing', locked_until = $3, locked_by = $2
		WHERE id = (
			SELECT id FROM queue_tasks
			WHERE queue = ANY($1) AND scheduled_at <= $4
			  AND (status = 'pending' OR (status = 'processing' AND locked_until <= $4))
			ORDER BY priority DESC, scheduled_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns, queues, workerID, now.Add(lockDuration), now))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrNoTaskToClaim
		}
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return t, nil
}

// CompleteTask implements WorkerRepository
func (s *PostgresStorage) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `UPDATE queue_tasks SET
			status = 'completed', processed_at = $2, locked_until = NULL, locked_by = NULL
		WHERE id = $1 AND status = 'processing'`, taskID, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotProcessing
	}
	return nil
}

// FailTask implements WorkerRepository
func (s *PostgresStorage) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	tag, err := s.db.Exec(ctx, `UPDATE queue_tasks SET
			retry_count = retry_count + 1,
			error = $2,
			locked_until = NULL,
			locked_by = NULL,
			status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
			scheduled_at = CASE WHEN retry_count + 1 >= max_retries THEN scheduled_at
				ELSE $3::timestamptz + make_interval(secs => (retry_count + 1) * 30) END
		WHERE id = $1 AND status = 'processing'`, taskID, errorMsg, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotProcessing
	}
	return nil
}

// MoveToDLQ copies the task into queue_tasks_dlq and deletes it, in one statement.
func (s *PostgresStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `WITH moved AS (
			DELETE FROM queue_tasks WHERE id = $1
			RETURNING id, queue, task_type, task_name, payload, priority, error, retry_count
		)
		INSERT INTO queue_tasks_dlq (id, task_id, queue, task_type, task_name, payload, priority,
			error, retry_count, failed_at, created_at)
		SELECT $2, id, queue, task_type, task_name, payload, priority, COALESCE(error, ''),
			retry_count, $3, $3
		FROM moved`, taskID, uuid.New(), time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// ExtendLock implements WorkerRepository
func (s *PostgresStorage) ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	tag, err := s.db.Exec(ctx, `UPDATE queue_tasks SET locked_until = $2
		WHERE id = $1 AND status = 'processing'`, taskID, time.Now().UTC().Add(duration))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotProcessing
	}
	return nil
}

// ListDLQ returns the newest dead-lettered tasks first.
func (s *PostgresStorage) ListDLQ(ctx context.Context, limit int) ([]TasksDlq, error) {
	rows, err := s.db.Query(ctx, `SELECT id, task_id, queue, task_type, task_name, payload,
			priority, error, retry_count, failed_at, created_at
		FROM queue_tasks_dlq ORDER BY failed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TasksDlq, error) {
		var d TasksDlq
		err := row.Scan(&d.ID, &d.TaskID, &d.Queue, &d.TaskType, &d.TaskName, &d.Payload,
			&d.Priority, &d.Error, &d.RetryCount, &d.FailedAt, &d.CreatedAt)
		return d, err
	})
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return out, nil
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
