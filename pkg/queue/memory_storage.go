package queue

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage implements every queue repository interface in process.
// Used by tests and by the single-binary local mode.
//
// Expired locks are reclaimed lazily inside ClaimTask, so a task held by a
// crashed handler becomes claimable again once its lock runs out.
type MemoryStorage struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*Task
	dlq   []*TasksDlq
	now   func() time.Time
}

// NewMemoryStorage creates a new in-memory storage implementation
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tasks: make(map[uuid.UUID]*Task),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source. Test helper.
func (ms *MemoryStorage) SetClock(now func() time.Time) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.now = now
}

// CreateTask implements EnqueuerRepository and SchedulerRepository
func (ms *MemoryStorage) CreateTask(_ context.Context, task *Task) error {
	if task == nil {
		return ErrPayloadNil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %s already exists", task.ID)
	}
	t := *task
	ms.tasks[task.ID] = &t
	return nil
}

// DeleteTask removes a task regardless of its status.
func (ms *MemoryStorage) DeleteTask(_ context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.tasks[taskID]; !ok {
		return ErrTaskNotFound
	}
	delete(ms.tasks, taskID)
	return nil
}

// GetPendingTaskByName implements SchedulerRepository
func (ms *MemoryStorage) GetPendingTaskByName(_ context.Context, taskName string) (*Task, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	for _, t := range ms.tasks {
		if t.TaskName == taskName && t.Status == TaskStatusPending {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrTaskNotFound
}

// ClaimTask picks the highest priority due task, oldest first within a priority.
func (ms *MemoryStorage) ClaimTask(_ context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	var best *Task
	for _, t := range ms.tasks {
		if t.Status == TaskStatusProcessing && t.LockedUntil != nil && !t.LockedUntil.After(now) {
			t.Status = TaskStatusPending
			t.LockedUntil = nil
			t.LockedBy = nil
		}
		if t.Status != TaskStatusPending || t.ScheduledAt.After(now) || !slices.Contains(queues, t.Queue) {
			continue
		}
		if best == nil || t.Priority > best.Priority ||
			(t.Priority == best.Priority && t.ScheduledAt.Before(best.ScheduledAt)) {
			best = t
		}
	}
	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	lockUntil := now.Add(lockDuration)
	best.Status = TaskStatusProcessing
	best.LockedUntil = &lockUntil
	best.LockedBy = &workerID

	cp := *best
	return &cp, nil
}

// CompleteTask implements WorkerRepository
func (ms *MemoryStorage) CompleteTask(_ context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, err := ms.processing(taskID)
	if err != nil {
		return err
	}
	now := ms.now()
	t.Status = TaskStatusCompleted
	t.ProcessedAt = &now
	t.LockedUntil = nil
	t.LockedBy = nil
	return nil
}

// FailTask implements WorkerRepository
func (ms *MemoryStorage) FailTask(_ context.Context, taskID uuid.UUID, errorMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, err := ms.processing(taskID)
	if err != nil {
		return err
	}
	t.RetryCount++
	t.Error = &errorMsg
	t.LockedUntil = nil
	t.LockedBy = nil

	if t.RetryCount >= t.MaxRetries {
		t.Status = TaskStatusFailed
		return nil
	}
	t.Status = TaskStatusPending
	t.ScheduledAt = ms.now().Add(retryDelay(t.RetryCount))
	return nil
}

// MoveToDLQ implements WorkerRepository
func (ms *MemoryStorage) MoveToDLQ(_ context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, ok := ms.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	now := ms.now()
	entry := &TasksDlq{
		ID:         uuid.New(),
		TaskID:     t.ID,
		Queue:      t.Queue,
		TaskType:   t.TaskType,
		TaskName:   t.TaskName,
		Payload:    t.Payload,
		Priority:   t.Priority,
		RetryCount: t.RetryCount,
		FailedAt:   now,
		CreatedAt:  now,
	}
	if t.Error != nil {
		entry.Error = *t.Error
	}
	ms.dlq = append(ms.dlq, entry)
	delete(ms.tasks, taskID)
	return nil
}

// ExtendLock implements WorkerRepository
func (ms *MemoryStorage) ExtendLock(_ context.Context, taskID uuid.UUID, duration time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, err := ms.processing(taskID)
	if err != nil {
		return err
	}
	lockUntil := ms.now().Add(duration)
	t.LockedUntil = &lockUntil
	return nil
}

// Tasks returns copies of stored tasks with the given status, ordered by
// ScheduledAt. An empty status returns all of them.
func (ms *MemoryStorage) Tasks(status TaskStatus) []Task {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]Task, 0, len(ms.tasks))
	for _, t := range ms.tasks {
		if status == "" || t.Status == status {
			out = append(out, *t)
		}
	}
	slices.SortFunc(out, func(a, b Task) int {
		return cmp.Or(a.ScheduledAt.Compare(b.ScheduledAt), cmp.Compare(a.ID.String(), b.ID.String()))
	})
	return out
}

// DeadLetters returns every dead lettered task in no particular order.
func (ms *MemoryStorage) DeadLetters() []TasksDlq {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]TasksDlq, 0, len(ms.dlq))
	for _, d := range ms.dlq {
		out = append(out, *d)
	}
	return out
}

// ListDLQ returns the newest dead-lettered tasks first.
func (ms *MemoryStorage) ListDLQ(_ context.Context, limit int) ([]TasksDlq, error) {
	out := ms.DeadLetters()
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (ms *MemoryStorage) processing(taskID uuid.UUID) (*Task, error) {
	t, ok := ms.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	if t.Status != TaskStatusProcessing {
		return nil, ErrTaskNotProcessing
	}
	return t, nil
}

// retryDelay is the queue-level pause before retry n: 30s, 60s, 90s...
func retryDelay(n int8) time.Duration {
	return time.Duration(n) * 30 * time.Second
}
