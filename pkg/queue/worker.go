package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/remindkit/pkg/logger"
)

// WorkerRepository is the storage surface a worker needs.
type WorkerRepository interface {
	// ClaimTask locks the next due pending task. Returns ErrNoTaskToClaim when idle.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)
	CompleteTask(ctx context.Context, taskID uuid.UUID) error
	// FailTask records the error, bumps RetryCount and either reschedules the
	// task or marks it failed once MaxRetries is reached.
	FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error
	MoveToDLQ(ctx context.Context, taskID uuid.UUID) error
	ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error
}

// Worker polls the repository and runs claimed tasks on registered handlers,
// at most maxConcurrentTasks at a time.
type Worker struct {
	repo     WorkerRepository
	handlers map[string]Handler
	queues   []string
	workerID uuid.UUID
	sem      chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
	stopMu   sync.Mutex

	pullInterval time.Duration
	lockTimeout  time.Duration
	taskTimeout  time.Duration
	logger       *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

// NewWorker creates a new task worker
func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &workerOptions{
		queues:             []string{DefaultQueueName},
		pullInterval:       time.Second,
		lockTimeout:        5 * time.Minute,
		maxConcurrentTasks: 1,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.taskTimeout <= 0 || options.taskTimeout > options.lockTimeout {
		options.taskTimeout = options.lockTimeout
	}

	id := uuid.New()
	return &Worker{
		repo:         repo,
		handlers:     make(map[string]Handler),
		queues:       options.queues,
		workerID:     id,
		sem:          make(chan struct{}, options.maxConcurrentTasks),
		pullInterval: options.pullInterval,
		lockTimeout:  options.lockTimeout,
		taskTimeout:  options.taskTimeout,
		logger:       options.logger.With(logger.Component("worker"), slog.String("worker_id", id.String())),
	}, nil
}

// RegisterHandlers registers multiple task handlers
func (w *Worker) RegisterHandlers(handlers ...Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			w.handlers[h.Name()] = h
		}
	}
}

// Start launches the polling loop in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return ErrWorkerAlreadyStarted
	}
	if len(w.handlers) == 0 {
		w.mu.Unlock()
		return ErrNoHandlers
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)
	go w.run()

	w.logger.Info("worker started",
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)))

	return nil
}

// Stop cancels polling and waits for in-flight tasks to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerNotStarted
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()

	w.logger.Info("worker stopped")
	return nil
}

// Run adapts Start/Stop for errgroup.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) run() {
	ticker := time.NewTicker(w.pullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			select {
			case w.sem <- struct{}{}:
				w.stopMu.Lock()
				if w.stopping.Load() {
					w.stopMu.Unlock()
					<-w.sem
					return
				}
				w.wg.Add(1)
				w.stopMu.Unlock()

				go func() {
					defer w.wg.Done()
					defer func() { <-w.sem }()

					if err := w.pullAndProcess(); err != nil && !errors.Is(err, ErrHandlerNotFound) {
						w.logger.Error("failed to process task", logger.Error(err))
					}
				}()
			default:
			}
		}
	}
}

func (w *Worker) pullAndProcess() error {
	task, err := w.repo.ClaimTask(w.ctx, w.workerID, w.queues, w.lockTimeout)
	if err != nil {
		if errors.Is(err, ErrNoTaskToClaim) || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("claim task: %w", err)
	}
	if task == nil {
		return nil
	}
	return w.ProcessTask(task)
}

// ProcessTask runs a claimed task on its handler and settles it in the
// repository. The handler context survives worker shutdown so in-flight work
// can finish, bounded by the task timeout.
func (w *Worker) ProcessTask(task *Task) (retErr error) {
	start := time.Now()
	log := w.logger.With(logger.TaskID(task.ID), logger.TaskName(task.TaskName))
	settleCtx := context.WithoutCancel(w.baseContext())

	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic in handler: %v", r)
			log.Error("handler panicked", slog.Any("panic", r))
			_ = w.fail(settleCtx, log, task, retErr, time.Since(start))
		}
	}()

	w.mu.RLock()
	handler, ok := w.handlers[task.TaskName]
	w.mu.RUnlock()
	if !ok {
		return w.missingHandler(settleCtx, log, task)
	}

	ctx, cancel := context.WithTimeout(settleCtx, w.taskTimeout)
	defer cancel()

	if err := handler.Handle(ctx, task.Payload); err != nil {
		return w.fail(settleCtx, log, task, err, time.Since(start))
	}

	if err := w.repo.CompleteTask(settleCtx, task.ID); err != nil {
		return errors.Join(ErrFailedToUpdateTaskStatus, err)
	}
	log.Debug("task completed", logger.Duration(time.Since(start)))
	return nil
}

// missingHandler sends the task straight to the DLQ; retrying cannot help.
func (w *Worker) missingHandler(ctx context.Context, log *slog.Logger, task *Task) error {
	log.Error("no handler registered for task")

	if err := w.repo.FailTask(ctx, task.ID, ErrHandlerNotFound.Error()+": "+task.TaskName); err != nil {
		return errors.Join(ErrFailedToUpdateTaskStatus, err)
	}
	if err := w.repo.MoveToDLQ(ctx, task.ID); err != nil {
		return errors.Join(ErrFailedToMoveToDLQ, err)
	}
	return ErrHandlerNotFound
}

func (w *Worker) fail(ctx context.Context, log *slog.Logger, task *Task, execErr error, d time.Duration) error {
	log.Error("task failed",
		slog.Int("retry_count", int(task.RetryCount)),
		slog.Int("max_retries", int(task.MaxRetries)),
		logger.Duration(d),
		logger.Error(execErr))

	if err := w.repo.FailTask(ctx, task.ID, execErr.Error()); err != nil {
		return errors.Join(ErrFailedToUpdateTaskStatus, err)
	}

	if task.RetryCount+1 >= task.MaxRetries {
		if err := w.repo.MoveToDLQ(ctx, task.ID); err != nil {
			return errors.Join(ErrFailedToMoveToDLQ, err)
		}
		log.Warn("task moved to dead letter queue")
	}
	return nil
}

func (w *Worker) baseContext() context.Context {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.ctx != nil {
		return w.ctx
	}
	return context.Background()
}

// ExtendLockForTask pushes the lock of a long running task forward.
func (w *Worker) ExtendLockForTask(ctx context.Context, taskID uuid.UUID, extension time.Duration) error {
	return w.repo.ExtendLock(ctx, taskID, extension)
}

// ID returns the worker's identity as recorded on claimed tasks
func (w *Worker) ID() uuid.UUID {
	return w.workerID
}
