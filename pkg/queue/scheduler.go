package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/remindkit/pkg/logger"
)

// SchedulerRepository is the storage surface the scheduler needs.
type SchedulerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
	// GetPendingTaskByName returns ErrTaskNotFound when no pending task has that name.
	GetPendingTaskByName(ctx context.Context, taskName string) (*Task, error)
}

// Scheduler turns registered Schedules into periodic tasks. At most one
// pending instance per task name exists, so several scheduler replicas can
// run side by side without piling up duplicates.
type Scheduler struct {
	repo     SchedulerRepository
	tasks    map[string]*scheduledTask
	mu       sync.RWMutex
	interval time.Duration
	logger   *slog.Logger
}

type scheduledTask struct {
	name            string
	schedule        Schedule
	queue           string
	priority        Priority
	maxRetries      int8
	lastScheduledAt *time.Time
}

// NewScheduler creates a scheduler that writes periodic tasks to repo
func NewScheduler(repo SchedulerRepository, opts ...SchedulerOption) (*Scheduler, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &schedulerOptions{
		checkInterval: 5 * time.Second,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Scheduler{
		repo:     repo,
		tasks:    make(map[string]*scheduledTask),
		interval: options.checkInterval,
		logger:   options.logger.With(logger.Component("scheduler")),
	}, nil
}

// AddTask registers a periodic task under name
func (s *Scheduler) AddTask(name string, schedule Schedule, opts ...SchedulerTaskOption) error {
	if name == "" || !validSchedule(schedule) {
		return ErrInvalidSchedule
	}

	taskOpts := &schedulerTaskOptions{
		queue:    DefaultQueueName,
		priority: PriorityDefault,
	}
	for _, opt := range opts {
		opt(taskOpts)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return ErrTaskAlreadyRegistered
	}

	s.tasks[name] = &scheduledTask{
		name:       name,
		schedule:   schedule,
		queue:      taskOpts.queue,
		priority:   taskOpts.priority,
		maxRetries: taskOpts.maxRetries,
	}

	s.logger.Info("registered periodic task",
		logger.TaskName(name),
		slog.String("schedule", schedule.String()))

	return nil
}

// Start blocks, checking registered tasks every interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.RLock()
	n := len(s.tasks)
	s.mu.RUnlock()
	if n == 0 {
		return ErrSchedulerNotConfigured
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx, time.Now().UTC())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			return nil
		case <-ticker.C:
			s.Tick(ctx, time.Now().UTC())
		}
	}
}

// Run adapts Start for errgroup.
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error {
		return s.Start(ctx)
	}
}

// Tick creates every periodic task that is due at now.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.mu.RLock()
	tasks := make([]*scheduledTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.RUnlock()

	for _, t := range tasks {
		if err := s.scheduleIfDue(ctx, t, now); err != nil {
			s.logger.ErrorContext(ctx, "failed to schedule periodic task",
				logger.TaskName(t.name),
				logger.Error(err))
		}
	}
}

func (s *Scheduler) scheduleIfDue(ctx context.Context, t *scheduledTask, now time.Time) error {
	s.mu.RLock()
	last := t.lastScheduledAt
	s.mu.RUnlock()

	var runAt time.Time
	if last == nil {
		runAt = t.schedule.Next(now)
	} else {
		runAt = t.schedule.Next(*last)
		if runAt.After(now) {
			return nil
		}
	}

	existing, err := s.repo.GetPendingTaskByName(ctx, t.name)
	if err == nil && existing != nil {
		s.markScheduled(t, existing.ScheduledAt)
		return nil
	}

	if runAt.Before(now) {
		runAt = now
	}

	task := &Task{
		ID:          uuid.New(),
		Queue:       t.queue,
		TaskType:    TaskTypePeriodic,
		TaskName:    t.name,
		Status:      TaskStatusPending,
		Priority:    t.priority,
		MaxRetries:  t.maxRetries,
		ScheduledAt: runAt,
		CreatedAt:   now,
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("create periodic task: %w", err)
	}
	s.markScheduled(t, runAt)

	s.logger.DebugContext(ctx, "created periodic task",
		logger.TaskName(t.name),
		slog.Time("scheduled_for", runAt))

	return nil
}

func (s *Scheduler) markScheduled(t *scheduledTask, at time.Time) {
	s.mu.Lock()
	t.lastScheduledAt = &at
	s.mu.Unlock()
}

// RemoveTask unregisters a periodic task. Already created instances stay queued.
func (s *Scheduler) RemoveTask(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, name)
}

// ListTasks returns the names of registered periodic tasks
func (s *Scheduler) ListTasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	return names
}
