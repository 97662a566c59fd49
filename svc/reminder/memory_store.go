package reminder

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/remindkit/pkg/queue"
	"github.com/dmitrymomot/remindkit/svc/notify"
)

// MemoryStore keeps reminders in process. Transactions run one at a time on
// a copy of the data that replaces the live copy on commit; tasks enqueued
// inside a transaction reach the queue storage only on commit.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
	tasks queue.EnqueuerRepository
	opts  storeOptions
}

// NewMemoryStore creates a store whose committed tasks go to tasks,
// usually a *queue.MemoryStorage.
func NewMemoryStore(tasks queue.EnqueuerRepository, opts ...StoreOption) *MemoryStore {
	return &MemoryStore{
		state: newMemoryState(),
		tasks: tasks,
		opts:  newStoreOptions(opts),
	}
}

// PutUser adds or replaces a user's contact data.
func (s *MemoryStore) PutUser(r notify.Recipient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[r.ID] = r
}

// PutReminder adds or replaces a reminder. The user must exist.
func (s *MemoryStore) PutReminder(r Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.users[r.UserID]; !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, r.UserID)
	}
	if r.ID == uuid.Nil || !r.Status.Valid() {
		return ErrInvalidReminder
	}
	s.state.reminders[r.ID] = r
	return nil
}

// ClaimDue claims due reminders outside any transaction.
func (s *MemoryStore) ClaimDue(ctx context.Context, now time.Time) ([]Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.state).ClaimDue(ctx, now)
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.state).Get(ctx, id)
}

// GetForUpdate outside a transaction behaves like Get.
func (s *MemoryStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	return s.Get(ctx, id)
}

func (s *MemoryStore) Save(ctx context.Context, r *Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.state).Save(ctx, r)
}

func (s *MemoryStore) GetRecipient(ctx context.Context, userID uuid.UUID) (*notify.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.state).GetRecipient(ctx, userID)
}

func (s *MemoryStore) RecordDeadLetter(ctx context.Context, dl DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.state).RecordDeadLetter(ctx, dl)
}

func (s *MemoryStore) ListDeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.state).ListDeadLetters(ctx, limit)
}

// WithinTx runs fn on a copy of the data. On success the buffered tasks are
// written to the queue storage first, then the copy replaces the live data.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	buf := &taskBuffer{}
	enq, err := queue.NewEnqueuer(buf)
	if err != nil {
		return err
	}

	if err := fn(ctx, &memoryTx{store: s.view(work), tasks: enq}); err != nil {
		return err
	}

	if s.tasks == nil && len(buf.tasks) > 0 {
		return fmt.Errorf("enqueue inside transaction: %w", queue.ErrRepositoryNil)
	}

	for i, t := range buf.tasks {
		if err := s.tasks.CreateTask(ctx, t); err != nil {
			s.dropFlushed(ctx, buf.tasks[:i])
			return fmt.Errorf("flush task %s: %w", t.TaskName, err)
		}
	}
	s.state = work
	return nil
}

// taskDeleter is implemented by queue storages that can take back a task,
// such as *queue.MemoryStorage.
type taskDeleter interface {
	DeleteTask(ctx context.Context, id uuid.UUID) error
}

// dropFlushed removes tasks written before a failed flush, so a rolled back
// transaction leaves no task behind.
func (s *MemoryStore) dropFlushed(ctx context.Context, tasks []*queue.Task) {
	d, ok := s.tasks.(taskDeleter)
	if !ok {
		return
	}
	for _, t := range tasks {
		_ = d.DeleteTask(ctx, t.ID)
	}
}

func (s *MemoryStore) view(st *memoryState) *memoryView {
	return &memoryView{st: st, opts: s.opts}
}

type memoryTx struct {
	store *memoryView
	tasks *queue.Enqueuer
}

func (t *memoryTx) Reminders() Store    { return t.store }
func (t *memoryTx) Tasks() TaskEnqueuer { return t.tasks }

// taskBuffer holds tasks until the transaction commits.
type taskBuffer struct {
	tasks []*queue.Task
}

func (b *taskBuffer) CreateTask(_ context.Context, task *queue.Task) error {
	t := *task
	b.tasks = append(b.tasks, &t)
	return nil
}

type memoryState struct {
	reminders   map[uuid.UUID]Reminder
	users       map[uuid.UUID]notify.Recipient
	deadLetters []DeadLetter
}

func newMemoryState() *memoryState {
	return &memoryState{
		reminders: make(map[uuid.UUID]Reminder),
		users:     make(map[uuid.UUID]notify.Recipient),
	}
}

func (st *memoryState) clone() *memoryState {
	return &memoryState{
		reminders:   maps.Clone(st.reminders),
		users:       maps.Clone(st.users),
		deadLetters: slices.Clone(st.deadLetters),
	}
}

// memoryView implements Store over one state. Callers hold the store mutex.
type memoryView struct {
	st   *memoryState
	opts storeOptions
}

func (v *memoryView) ClaimDue(_ context.Context, now time.Time) ([]Handle, error) {
	due := make([]Reminder, 0)
	for _, r := range v.st.reminders {
		if r.Status != StatusScheduled || !r.Due(now) {
			continue
		}
		if r.ClaimedUntil != nil && r.ClaimedUntil.After(now) {
			continue
		}
		due = append(due, r)
	}
	slices.SortFunc(due, func(a, b Reminder) int {
		if c := a.UTCTS.Compare(b.UTCTS); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	if v.opts.batchSize > 0 && len(due) > v.opts.batchSize {
		due = due[:v.opts.batchSize]
	}

	handles := make([]Handle, 0, len(due))
	until := now.Add(v.opts.lease)
	for _, r := range due {
		if r.CorrelationID == "" {
			r.CorrelationID = uuid.NewString()
		}
		at := now
		r.LastAttemptAt = &at
		r.ClaimedUntil = &until
		v.st.reminders[r.ID] = r
		handles = append(handles, Handle{ID: r.ID, CorrelationID: r.CorrelationID})
	}
	return handles, nil
}

func (v *memoryView) Get(_ context.Context, id uuid.UUID) (*Reminder, error) {
	r, ok := v.st.reminders[id]
	if !ok {
		return nil, ErrReminderNotFound
	}
	return &r, nil
}

func (v *memoryView) GetForUpdate(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	return v.Get(ctx, id)
}

func (v *memoryView) Save(_ context.Context, r *Reminder) error {
	if r == nil || !r.Status.Valid() {
		return ErrInvalidReminder
	}
	if _, ok := v.st.reminders[r.ID]; !ok {
		return ErrReminderNotFound
	}
	v.st.reminders[r.ID] = *r
	return nil
}

func (v *memoryView) GetRecipient(_ context.Context, userID uuid.UUID) (*notify.Recipient, error) {
	u, ok := v.st.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return &u, nil
}

func (v *memoryView) RecordDeadLetter(_ context.Context, dl DeadLetter) error {
	if dl.ID == uuid.Nil {
		dl.ID = uuid.New()
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = dl.LastErrorAt
	}
	v.st.deadLetters = append(v.st.deadLetters, dl)
	return nil
}

// ListDeadLetters returns the newest entries first.
func (v *memoryView) ListDeadLetters(_ context.Context, limit int) ([]DeadLetter, error) {
	out := slices.Clone(v.st.deadLetters)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
