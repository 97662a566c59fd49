package reminder_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/remindkit/pkg/queue"
	"github.com/dmitrymomot/remindkit/svc/reminder"
)

func TestMemoryStore_ClaimDue(t *testing.T) {
	t.Parallel()

	t.Run("claims only due scheduled reminders", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		ctx := context.Background()
		user := f.addUser("a@example.com", "")

		due := f.addReminder(t, user, f.now.Add(-time.Minute), reminder.StatusScheduled)
		exact := f.addReminder(t, user, f.now, reminder.StatusScheduled)
		f.addReminder(t, user, f.now.Add(time.Minute), reminder.StatusScheduled)
		f.addReminder(t, user, f.now.Add(-time.Hour), reminder.StatusSent)
		f.addReminder(t, user, f.now.Add(-time.Hour), reminder.StatusCanceled)

		handles, err := f.store.ClaimDue(ctx, f.now)
		require.NoError(t, err)
		require.Len(t, handles, 2)
		assert.Equal(t, due, handles[0].ID)
		assert.Equal(t, exact, handles[1].ID)

		for _, h := range handles {
			r := f.get(t, h.ID)
			assert.NotEmpty(t, h.CorrelationID)
			assert.Equal(t, h.CorrelationID, r.CorrelationID)
			require.NotNil(t, r.LastAttemptAt)
			assert.Equal(t, f.now, *r.LastAttemptAt)
			require.NotNil(t, r.ClaimedUntil)
			assert.Equal(t, f.now.Add(reminder.DefaultClaimLease), *r.ClaimedUntil)
			assert.Equal(t, reminder.StatusScheduled, r.Status)
		}
	})

	t.Run("keeps existing correlation id", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		user := f.addUser("a@example.com", "")
		id := f.addReminder(t, user, f.now, reminder.StatusScheduled)
		r := f.get(t, id)
		r.CorrelationID = "existing"
		require.NoError(t, f.store.Save(context.Background(), r))

		handles, err := f.store.ClaimDue(context.Background(), f.now)
		require.NoError(t, err)
		require.Len(t, handles, 1)
		assert.Equal(t, "existing", handles[0].CorrelationID)
	})

	t.Run("claimed reminders are skipped until the lease runs out", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, reminder.WithClaimLease(5*time.Minute))
		ctx := context.Background()
		user := f.addUser("a@example.com", "")
		f.addReminder(t, user, f.now, reminder.StatusScheduled)

		first, err := f.store.ClaimDue(ctx, f.now)
		require.NoError(t, err)
		require.Len(t, first, 1)

		second, err := f.store.ClaimDue(ctx, f.now.Add(time.Minute))
		require.NoError(t, err)
		assert.Empty(t, second)

		third, err := f.store.ClaimDue(ctx, f.now.Add(5*time.Minute))
		require.NoError(t, err)
		require.Len(t, third, 1)
		assert.Equal(t, first[0], third[0])
	})

	t.Run("batch size caps one pass", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, reminder.WithClaimBatchSize(2))
		user := f.addUser("a@example.com", "")
		for i := range 5 {
			f.addReminder(t, user, f.now.Add(-time.Duration(i)*time.Minute), reminder.StatusScheduled)
		}

		handles, err := f.store.ClaimDue(context.Background(), f.now)
		require.NoError(t, err)
		assert.Len(t, handles, 2)
	})
}

func TestMemoryStore_WithinTx(t *testing.T) {
	t.Parallel()

	t.Run("commit applies changes and flushes tasks", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		ctx := context.Background()
		user := f.addUser("a@example.com", "")
		id := f.addReminder(t, user, f.now, reminder.StatusScheduled)

		err := f.store.WithinTx(ctx, func(ctx context.Context, tx reminder.Tx) error {
			if _, err := tx.Reminders().ClaimDue(ctx, f.now); err != nil {
				return err
			}
			assert.Empty(t, f.queue.Tasks(queue.TaskStatusPending), "tasks must wait for commit")
			return tx.Tasks().Enqueue(ctx, reminder.DeliverReminderPayload{ReminderID: id})
		})
		require.NoError(t, err)

		assert.NotNil(t, f.get(t, id).ClaimedUntil)
		tasks := f.queue.Tasks(queue.TaskStatusPending)
		require.Len(t, tasks, 1)
		assert.Equal(t, reminder.TaskDeliverReminder, tasks[0].TaskName)
	})

	t.Run("rollback discards changes and tasks", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		ctx := context.Background()
		user := f.addUser("a@example.com", "")
		id := f.addReminder(t, user, f.now, reminder.StatusScheduled)
		boom := errors.New("boom")

		err := f.store.WithinTx(ctx, func(ctx context.Context, tx reminder.Tx) error {
			if _, err := tx.Reminders().ClaimDue(ctx, f.now); err != nil {
				return err
			}
			if err := tx.Reminders().RecordDeadLetter(ctx, reminder.DeadLetter{JobName: "x"}); err != nil {
				return err
			}
			if err := tx.Tasks().Enqueue(ctx, reminder.DeliverReminderPayload{ReminderID: id}); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		r := f.get(t, id)
		assert.Nil(t, r.ClaimedUntil)
		assert.Empty(t, r.CorrelationID)
		assert.Empty(t, f.queue.Tasks(queue.TaskStatusPending))
		dls, err := f.store.ListDeadLetters(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, dls)
	})

	t.Run("failed flush keeps claims and tasks out", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		ctx := context.Background()
		store := reminder.NewMemoryStore(&flakyTasks{inner: f.queue, failAt: 2})
		f.store = store
		user := f.addUser("a@example.com", "")
		first := f.addReminder(t, user, f.now.Add(-time.Minute), reminder.StatusScheduled)
		second := f.addReminder(t, user, f.now, reminder.StatusScheduled)

		err := store.WithinTx(ctx, func(ctx context.Context, tx reminder.Tx) error {
			handles, err := tx.Reminders().ClaimDue(ctx, f.now)
			if err != nil {
				return err
			}
			require.Len(t, handles, 2)
			for _, h := range handles {
				if err := tx.Tasks().Enqueue(ctx, reminder.DeliverReminderPayload{ReminderID: h.ID}); err != nil {
					return err
				}
			}
			return nil
		})
		require.Error(t, err)

		for _, id := range []uuid.UUID{first, second} {
			assert.Nil(t, f.get(t, id).ClaimedUntil)
		}
		assert.Empty(t, f.queue.Tasks(queue.TaskStatusPending))
	})

	t.Run("tasks without queue storage roll back", func(t *testing.T) {
		t.Parallel()

		store := reminder.NewMemoryStore(nil)
		err := store.WithinTx(context.Background(), func(ctx context.Context, tx reminder.Tx) error {
			return tx.Tasks().Enqueue(ctx, reminder.DeliverReminderPayload{ReminderID: uuid.New()})
		})
		assert.ErrorIs(t, err, queue.ErrRepositoryNil)
	})
}

func TestMemoryStore_Lookups(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, reminder.ErrReminderNotFound)

	_, err = f.store.GetRecipient(ctx, uuid.New())
	assert.ErrorIs(t, err, reminder.ErrUserNotFound)

	err = f.store.PutReminder(reminder.Reminder{ID: uuid.New(), UserID: uuid.New(), Status: reminder.StatusScheduled})
	assert.ErrorIs(t, err, reminder.ErrUserNotFound)

	err = f.store.Save(ctx, &reminder.Reminder{ID: uuid.New(), Status: reminder.StatusScheduled})
	assert.ErrorIs(t, err, reminder.ErrReminderNotFound)

	user := f.addUser("a@example.com", "tok")
	rcpt, err := f.store.GetRecipient(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "tok", rcpt.PushToken)

	for i := range 3 {
		require.NoError(t, f.store.RecordDeadLetter(ctx, reminder.DeadLetter{
			JobName:     reminder.TaskDeliverReminder,
			Attempts:    i,
			LastErrorAt: f.now.Add(time.Duration(i) * time.Minute),
		}))
	}
	dls, err := f.store.ListDeadLetters(ctx, 2)
	require.NoError(t, err)
	require.Len(t, dls, 2)
	assert.Equal(t, 2, dls[0].Attempts, "newest first")
	assert.NotEqual(t, uuid.Nil, dls[0].ID)
}

// flakyTasks fails the failAt-th CreateTask call.
type flakyTasks struct {
	inner  *queue.MemoryStorage
	failAt int
	calls  int
}

func (f *flakyTasks) CreateTask(ctx context.Context, task *queue.Task) error {
	f.calls++
	if f.calls == f.failAt {
		return errors.New("queue unavailable")
	}
	return f.inner.CreateTask(ctx, task)
}

func (f *flakyTasks) DeleteTask(ctx context.Context, id uuid.UUID) error {
	return f.inner.DeleteTask(ctx, id)
}
