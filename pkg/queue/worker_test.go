package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/remindkit/pkg/logger"
	"github.com/dmitrymomot/remindkit/pkg/queue"
)

type mockWorkerRepo struct {
	mock.Mock
}

func (m *mockWorkerRepo) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*queue.Task, error) {
	args := m.Called(ctx, workerID, queues, lockDuration)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*queue.Task), args.Error(1)
}

func (m *mockWorkerRepo) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	return m.Called(ctx, taskID).Error(0)
}

func (m *mockWorkerRepo) FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error {
	return m.Called(ctx, taskID, errorMsg).Error(0)
}

func (m *mockWorkerRepo) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	return m.Called(ctx, taskID).Error(0)
}

func (m *mockWorkerRepo) ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error {
	return m.Called(ctx, taskID, duration).Error(0)
}

func newTestWorker(t *testing.T, repo queue.WorkerRepository, opts ...queue.WorkerOption) *queue.Worker {
	t.Helper()
	opts = append(opts, queue.WithWorkerLogger(logger.Discard()))
	w, err := queue.NewWorker(repo, opts...)
	require.NoError(t, err)
	return w
}

func TestWorker_ProcessTask(t *testing.T) {
	t.Parallel()

	t.Run("success completes task", func(t *testing.T) {
		t.Parallel()
		repo := new(mockWorkerRepo)
		task := &queue.Task{ID: uuid.New(), TaskName: "named_task", Payload: []byte(`{"id":"1"}`)}
		repo.On("CompleteTask", mock.Anything, task.ID).Return(nil).Once()

		w := newTestWorker(t, repo)
		w.RegisterHandlers(queue.NewTaskHandler(func(context.Context, namedPayload) error { return nil }))

		require.NoError(t, w.ProcessTask(task))
		repo.AssertExpectations(t)
	})

	t.Run("handler error without retries goes to dlq", func(t *testing.T) {
		t.Parallel()
		repo := new(mockWorkerRepo)
		task := &queue.Task{ID: uuid.New(), TaskName: "named_task", Payload: []byte(`{}`), MaxRetries: 0}
		repo.On("FailTask", mock.Anything, task.ID, "boom").Return(nil).Once()
		repo.On("MoveToDLQ", mock.Anything, task.ID).Return(nil).Once()

		w := newTestWorker(t, repo)
		w.RegisterHandlers(queue.NewTaskHandler(func(context.Context, namedPayload) error { return errors.New("boom") }))

		require.NoError(t, w.ProcessTask(task))
		repo.AssertExpectations(t)
	})

	t.Run("handler error with retries left stays queued", func(t *testing.T) {
		t.Parallel()
		repo := new(mockWorkerRepo)
		task := &queue.Task{ID: uuid.New(), TaskName: "named_task", Payload: []byte(`{}`), MaxRetries: 3}
		repo.On("FailTask", mock.Anything, task.ID, "boom").Return(nil).Once()

		w := newTestWorker(t, repo)
		w.RegisterHandlers(queue.NewTaskHandler(func(context.Context, namedPayload) error { return errors.New("boom") }))

		require.NoError(t, w.ProcessTask(task))
		repo.AssertExpectations(t)
		repo.AssertNotCalled(t, "MoveToDLQ", mock.Anything, mock.Anything)
	})

	t.Run("panic is treated as failure", func(t *testing.T) {
		t.Parallel()
		repo := new(mockWorkerRepo)
		task := &queue.Task{ID: uuid.New(), TaskName: "named_task", Payload: []byte(`{}`)}
		repo.On("FailTask", mock.Anything, task.ID, mock.AnythingOfType("string")).Return(nil).Once()
		repo.On("MoveToDLQ", mock.Anything, task.ID).Return(nil).Once()

		w := newTestWorker(t, repo)
		w.RegisterHandlers(queue.NewTaskHandler(func(context.Context, namedPayload) error { panic("kaboom") }))

		err := w.ProcessTask(task)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kaboom")
		repo.AssertExpectations(t)
	})

	t.Run("missing handler", func(t *testing.T) {
		t.Parallel()
		repo := new(mockWorkerRepo)
		task := &queue.Task{ID: uuid.New(), TaskName: "unknown"}
		repo.On("FailTask", mock.Anything, task.ID, mock.AnythingOfType("string")).Return(nil).Once()
		repo.On("MoveToDLQ", mock.Anything, task.ID).Return(nil).Once()

		w := newTestWorker(t, repo)
		w.RegisterHandlers(queue.NewPeriodicTaskHandler("beat", func(context.Context) error { return nil }))

		require.ErrorIs(t, w.ProcessTask(task), queue.ErrHandlerNotFound)
		repo.AssertExpectations(t)
	})

	t.Run("task timeout cancels handler context", func(t *testing.T) {
		t.Parallel()
		repo := new(mockWorkerRepo)
		task := &queue.Task{ID: uuid.New(), TaskName: "slow", MaxRetries: 0}
		repo.On("FailTask", mock.Anything, task.ID, context.DeadlineExceeded.Error()).Return(nil).Once()
		repo.On("MoveToDLQ", mock.Anything, task.ID).Return(nil).Once()

		w := newTestWorker(t, repo, queue.WithTaskTimeout(20*time.Millisecond))
		w.RegisterHandlers(queue.NewPeriodicTaskHandler("slow", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}))

		require.NoError(t, w.ProcessTask(task))
		repo.AssertExpectations(t)
	})
}

func TestWorker_StartStop(t *testing.T) {
	t.Parallel()

	t.Run("requires handlers", func(t *testing.T) {
		t.Parallel()
		w := newTestWorker(t, queue.NewMemoryStorage())
		require.ErrorIs(t, w.Start(context.Background()), queue.ErrNoHandlers)
		require.ErrorIs(t, w.Stop(), queue.ErrWorkerNotStarted)
	})

	t.Run("processes tasks from memory storage", func(t *testing.T) {
		t.Parallel()
		storage := queue.NewMemoryStorage()
		enq, err := queue.NewEnqueuer(storage, queue.WithDefaultMaxRetries(0))
		require.NoError(t, err)

		var handled atomic.Int32
		w := newTestWorker(t, storage,
			queue.WithPullInterval(5*time.Millisecond),
			queue.WithMaxConcurrentTasks(2))
		w.RegisterHandlers(queue.NewTaskHandler(func(context.Context, namedPayload) error {
			handled.Add(1)
			return nil
		}))

		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, w.Start(ctx))
		require.ErrorIs(t, w.Start(ctx), queue.ErrWorkerAlreadyStarted)

		for i := range 3 {
			require.NoError(t, enq.Enqueue(ctx, namedPayload{ID: string(rune('a' + i))}))
		}

		require.Eventually(t, func() bool { return handled.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
		cancel()
		require.NoError(t, w.Stop())
		assert.Len(t, storage.Tasks(queue.TaskStatusCompleted), 3)
	})
}
