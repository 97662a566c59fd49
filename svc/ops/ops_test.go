package ops_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/remindkit/pkg/feature"
	"github.com/dmitrymomot/remindkit/pkg/httpserver"
	"github.com/dmitrymomot/remindkit/pkg/metrics"
	"github.com/dmitrymomot/remindkit/pkg/queue"
	"github.com/dmitrymomot/remindkit/svc/notify"
	"github.com/dmitrymomot/remindkit/svc/ops"
	"github.com/dmitrymomot/remindkit/svc/reminder"
)

type staticLister struct {
	items []reminder.DeadLetter
	err   error
	limit int
}

func (s *staticLister) ListDeadLetters(_ context.Context, limit int) ([]reminder.DeadLetter, error) {
	s.limit = limit
	if s.err != nil {
		return nil, s.err
	}
	return s.items[:min(limit, len(s.items))], nil
}

const adminToken = "s3cret-admin-token"

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func admin(t *testing.T, h http.Handler, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set(ops.AdminTokenHeader, token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	t.Parallel()

	failing := httpserver.Check{Name: "redis", Probe: func(context.Context) error { return errors.New("down") }}
	h := ops.NewRouter(ops.Deps{Metrics: metrics.NewMemorySink(), Checks: []httpserver.Check{failing}})

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/readyz").Code)
}

func TestRouter_Metrics(t *testing.T) {
	t.Parallel()

	sink := metrics.NewMemorySink()
	ctx := context.Background()
	sink.IncrementCounter(ctx, metrics.ReminderSent, 3)
	sink.RecordLatency(ctx, 45*time.Second)

	h := ops.NewRouter(ops.Deps{Metrics: sink})

	t.Run("prometheus text", func(t *testing.T) {
		t.Parallel()
		rec := get(t, h, "/metrics")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
		assert.Contains(t, rec.Body.String(), `ai_reminder_total{status="sent"} 3`)
		assert.Contains(t, rec.Body.String(), `ai_reminder_latency_seconds_bucket{le="60"} 1`)
	})

	t.Run("json snapshot", func(t *testing.T) {
		t.Parallel()
		rec := get(t, h, "/metrics.json")
		require.Equal(t, http.StatusOK, rec.Code)

		var snap metrics.Snapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
		assert.Equal(t, int64(3), snap.Counters[metrics.ReminderSent])
	})
}

func TestRouter_FailedJobs(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	items := []reminder.DeadLetter{
		reminder.NewDeliveryDeadLetter(uuid.New(), errors.New("all channels failed"), 6, now),
		reminder.NewDeliveryDeadLetter(uuid.New(), errors.New("all channels failed"), 6, now.Add(-time.Minute)),
	}

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantLimit int
		wantCount int
	}{
		{"default limit", "", http.StatusOK, ops.DefaultFailedJobsLimit, 2},
		{"explicit limit", "?limit=1", http.StatusOK, 1, 1},
		{"limit is capped", "?limit=100000", http.StatusOK, ops.MaxFailedJobsLimit, 2},
		{"non numeric limit", "?limit=abc", http.StatusBadRequest, 0, 0},
		{"zero limit", "?limit=0", http.StatusBadRequest, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			lister := &staticLister{items: items}
			h := ops.NewRouter(ops.Deps{Metrics: metrics.NewMemorySink(), DeadLetters: lister, AdminToken: adminToken})

			rec := admin(t, h, http.MethodGet, "/admin/failed-jobs"+tt.query, adminToken)
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode != http.StatusOK {
				return
			}
			assert.Equal(t, tt.wantLimit, lister.limit)

			var body struct {
				Items []reminder.DeadLetter `json:"items"`
				Count int                   `json:"count"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCount, body.Count)
			assert.Len(t, body.Items, tt.wantCount)
			assert.Equal(t, reminder.TaskDeliverReminder, body.Items[0].JobName)
		})
	}

	t.Run("store error", func(t *testing.T) {
		t.Parallel()
		h := ops.NewRouter(ops.Deps{
			Metrics:     metrics.NewMemorySink(),
			DeadLetters: &staticLister{err: errors.New("conn reset")},
			AdminToken:  adminToken,
		})
		rec := admin(t, h, http.MethodGet, "/admin/failed-jobs", adminToken)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "conn reset")
	})

	t.Run("empty list encodes as array", func(t *testing.T) {
		t.Parallel()
		h := ops.NewRouter(ops.Deps{Metrics: metrics.NewMemorySink(), DeadLetters: &staticLister{}, AdminToken: adminToken})
		rec := admin(t, h, http.MethodGet, "/admin/failed-jobs", adminToken)
		assert.JSONEq(t, `{"items":[],"count":0}`, rec.Body.String())
	})
}

func TestRouter_QueueDLQ(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	storage := queue.NewMemoryStorage()
	workerID := uuid.New()
	for _, name := range []string{"first", "second"} {
		task := &queue.Task{
			ID:          uuid.New(),
			Queue:       queue.DefaultQueueName,
			TaskType:    queue.TaskTypeOneTime,
			TaskName:    name,
			Status:      queue.TaskStatusPending,
			ScheduledAt: time.Now().Add(-time.Second),
		}
		require.NoError(t, storage.CreateTask(ctx, task))
		claimed, err := storage.ClaimTask(ctx, workerID, []string{queue.DefaultQueueName}, time.Minute)
		require.NoError(t, err)
		require.NoError(t, storage.MoveToDLQ(ctx, claimed.ID))
	}

	h := ops.NewRouter(ops.Deps{Metrics: metrics.NewMemorySink(), TaskDLQ: storage, AdminToken: adminToken})
	rec := admin(t, h, http.MethodGet, "/admin/queue-dlq?limit=1", adminToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Items []queue.TasksDlq `json:"items"`
		Count int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "second", body.Items[0].TaskName)
}

func TestRouter_Flags(t *testing.T) {
	t.Parallel()

	store, err := feature.NewMemoryProvider(&feature.Flag{Name: "multi_channel_notifications", Enabled: true})
	require.NoError(t, err)
	env := feature.NewEnvProvider(store, feature.WithEnvLookup(map[string]string{
		"FEATURE_FLAG_MULTI_CHANNEL_NOTIFICATIONS": "off",
	}))

	h := ops.NewRouter(ops.Deps{Metrics: metrics.NewMemorySink(), Flags: store, FlagEnv: env, AdminToken: adminToken})
	rec := admin(t, h, http.MethodGet, "/admin/flags", adminToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Items []feature.Description `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, "multi_channel_notifications", body.Items[0].Name)
	assert.True(t, body.Items[0].Enabled)
	assert.False(t, body.Items[0].Effective)
	require.NotNil(t, body.Items[0].Override)
	assert.False(t, *body.Items[0].Override)
}

func TestRouter_CancelReminder(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := reminder.NewMemoryStore(queue.NewMemoryStorage())
	userID := uuid.New()
	store.PutUser(notify.Recipient{ID: userID, Email: "ops@example.com"})
	scheduled, sent := uuid.New(), uuid.New()
	for id, status := range map[uuid.UUID]reminder.Status{scheduled: reminder.StatusScheduled, sent: reminder.StatusSent} {
		require.NoError(t, store.PutReminder(reminder.Reminder{
			ID: id, UserID: userID, Text: "stretch", LocalTS: at, UTCTS: at, Status: status, CreatedAt: at,
		}))
	}
	h := ops.NewRouter(ops.Deps{Metrics: metrics.NewMemorySink(), Reminders: store, AdminToken: adminToken})

	post := func(id string) int {
		return admin(t, h, http.MethodPost, "/admin/reminders/"+id+"/cancel", adminToken).Code
	}

	assert.Equal(t, http.StatusNoContent, post(scheduled.String()))
	got, err := store.Get(context.Background(), scheduled)
	require.NoError(t, err)
	assert.Equal(t, reminder.StatusCanceled, got.Status)

	assert.Equal(t, http.StatusConflict, post(scheduled.String()))
	assert.Equal(t, http.StatusConflict, post(sent.String()))
	assert.Equal(t, http.StatusNotFound, post(uuid.NewString()))
	assert.Equal(t, http.StatusBadRequest, post("not-a-uuid"))
}

func TestRouter_AdminRoutesDisabledWithoutDeps(t *testing.T) {
	t.Parallel()

	h := ops.NewRouter(ops.Deps{Metrics: metrics.NewMemorySink(), AdminToken: adminToken})
	assert.Equal(t, http.StatusNotFound, admin(t, h, http.MethodGet, "/admin/failed-jobs", adminToken).Code)
	assert.Equal(t, http.StatusNotFound, admin(t, h, http.MethodGet, "/admin/flags", adminToken).Code)
	assert.Equal(t, http.StatusNotFound, admin(t, h, http.MethodGet, "/admin/queue-dlq", adminToken).Code)
}

func TestRouter_AdminAuth(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	newStore := func(t *testing.T) (*reminder.MemoryStore, uuid.UUID) {
		t.Helper()
		store := reminder.NewMemoryStore(queue.NewMemoryStorage())
		userID, id := uuid.New(), uuid.New()
		store.PutUser(notify.Recipient{ID: userID, Email: "ops@example.com"})
		require.NoError(t, store.PutReminder(reminder.Reminder{
			ID: id, UserID: userID, Text: "stretch", LocalTS: at, UTCTS: at, Status: reminder.StatusScheduled, CreatedAt: at,
		}))
		return store, id
	}

	tests := []struct {
		name       string
		configured string
		sent       string
		wantCode   int
	}{
		{"missing token", adminToken, "", http.StatusUnauthorized},
		{"wrong token", adminToken, "not-the-token", http.StatusUnauthorized},
		{"token prefix", adminToken, adminToken[:4], http.StatusUnauthorized},
		{"admin disabled without configured token", "", adminToken, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store, id := newStore(t)
			h := ops.NewRouter(ops.Deps{
				Metrics:     metrics.NewMemorySink(),
				DeadLetters: &staticLister{},
				Reminders:   store,
				AdminToken:  tt.configured,
			})

			rec := admin(t, h, http.MethodPost, "/admin/reminders/"+id.String()+"/cancel", tt.sent)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantCode, admin(t, h, http.MethodGet, "/admin/failed-jobs", tt.sent).Code)

			got, err := store.Get(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, reminder.StatusScheduled, got.Status)
		})
	}

	t.Run("health stays public", func(t *testing.T) {
		t.Parallel()
		h := ops.NewRouter(ops.Deps{Metrics: metrics.NewMemorySink(), AdminToken: adminToken})
		assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)
		assert.Equal(t, http.StatusOK, get(t, h, "/metrics").Code)
	})
}
