package reminder_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/remindkit/pkg/logger"
	"github.com/dmitrymomot/remindkit/pkg/metrics"
	"github.com/dmitrymomot/remindkit/pkg/queue"
	"github.com/dmitrymomot/remindkit/svc/notify"
	"github.com/dmitrymomot/remindkit/svc/reminder"
)

var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store *reminder.MemoryStore
	queue *queue.MemoryStorage
	sink  *metrics.MemorySink
	now   time.Time
}

func newFixture(t *testing.T, opts ...reminder.StoreOption) *fixture {
	t.Helper()
	qs := queue.NewMemoryStorage()
	return &fixture{
		store: reminder.NewMemoryStore(qs, opts...),
		queue: qs,
		sink:  metrics.NewMemorySink(),
		now:   baseTime,
	}
}

func (f *fixture) clock() time.Time { return f.now }

func (f *fixture) addUser(email, pushToken string) uuid.UUID {
	id := uuid.New()
	f.store.PutUser(notify.Recipient{ID: id, Email: email, PushToken: pushToken})
	return id
}

func (f *fixture) addReminder(t *testing.T, userID uuid.UUID, at time.Time, status reminder.Status) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, f.store.PutReminder(reminder.Reminder{
		ID:        id,
		UserID:    userID,
		Text:      "drink water",
		LocalTS:   at,
		UTCTS:     at,
		Status:    status,
		CreatedAt: at.Add(-time.Hour),
	}))
	return id
}

func (f *fixture) get(t *testing.T, id uuid.UUID) *reminder.Reminder {
	t.Helper()
	r, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return r
}

func (f *fixture) deliverer(d reminder.Dispatcher, opts ...reminder.DelivererOption) *reminder.Deliverer {
	opts = append([]reminder.DelivererOption{
		reminder.WithDelivererLogger(logger.Discard()),
		reminder.WithDelivererClock(f.clock),
	}, opts...)
	return reminder.NewDeliverer(f.store, d, f.sink, opts...)
}

// fakeChannel applies when the recipient has the contact field it is named after.
type fakeChannel struct {
	name string
	ok   bool

	mu    sync.Mutex
	calls int
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Applicable(r notify.Recipient) bool {
	if c.name == notify.ChannelEmail {
		return r.Email != ""
	}
	return r.PushToken != ""
}

func (c *fakeChannel) Send(context.Context, notify.Recipient, notify.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.ok
}

func (c *fakeChannel) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func dispatcher(channels ...*fakeChannel) *notify.Dispatcher {
	chs := make([]notify.Channel, len(channels))
	for i, c := range channels {
		chs[i] = c
	}
	return notify.NewDispatcher(chs, notify.WithDispatcherLogger(logger.Discard()))
}

// dispatchFunc adapts a function to reminder.Dispatcher.
type dispatchFunc func(ctx context.Context, r notify.Recipient, msg notify.Message) notify.Result

func (f dispatchFunc) Dispatch(ctx context.Context, r notify.Recipient, msg notify.Message) notify.Result {
	return f(ctx, r, msg)
}
