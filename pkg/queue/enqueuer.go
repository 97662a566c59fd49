package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository persists new tasks. A repository bound to an open
// database transaction makes the enqueue part of that transaction.
type EnqueuerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
}

// Enqueuer handles task enqueueing
type Enqueuer struct {
	repo              EnqueuerRepository
	defaultQueue      string
	defaultPriority   Priority
	defaultMaxRetries int8
}

// NewEnqueuer creates a new Enqueuer
func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &enqueuerOptions{
		defaultQueue:      DefaultQueueName,
		defaultPriority:   PriorityDefault,
		defaultMaxRetries: 3,
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Enqueuer{
		repo:              repo,
		defaultQueue:      options.defaultQueue,
		defaultPriority:   options.defaultPriority,
		defaultMaxRetries: options.defaultMaxRetries,
	}, nil
}

// Enqueue stores payload as a one-time task. The task name comes from
// Named.TaskName when the payload implements it, otherwise from its type.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) error {
	if payload == nil {
		return ErrPayloadNil
	}

	options := &enqueueOptions{
		queue:      e.defaultQueue,
		priority:   e.defaultPriority,
		maxRetries: e.defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(options)
	}

	if !options.priority.Valid() {
		return ErrInvalidPriority
	}

	task, err := buildTask(payload, options)
	if err != nil {
		return err
	}

	if err := e.repo.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("failed to create task %q in queue %q: %w", task.TaskName, task.Queue, err)
	}

	return nil
}

func buildTask(payload any, options *enqueueOptions) (*Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload of type %T: %w", payload, err)
	}

	name := options.taskName
	if name == "" {
		name = taskNameOf(payload)
	}

	now := time.Now().UTC()
	scheduledAt := now
	switch {
	case options.scheduledAt != nil:
		scheduledAt = options.scheduledAt.UTC()
	case options.delay > 0:
		scheduledAt = now.Add(options.delay)
	}

	return &Task{
		ID:          uuid.New(),
		Queue:       options.queue,
		TaskType:    TaskTypeOneTime,
		TaskName:    name,
		Payload:     data,
		Status:      TaskStatusPending,
		Priority:    options.priority,
		MaxRetries:  options.maxRetries,
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
	}, nil
}
