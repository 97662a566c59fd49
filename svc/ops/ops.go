package ops

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dmitrymomot/remindkit/pkg/feature"
	"github.com/dmitrymomot/remindkit/pkg/httpserver"
	"github.com/dmitrymomot/remindkit/pkg/logger"
	"github.com/dmitrymomot/remindkit/pkg/metrics"
	"github.com/dmitrymomot/remindkit/pkg/queue"
	"github.com/dmitrymomot/remindkit/svc/reminder"
)

// Limits for the failed jobs and queue DLQ listings.
const (
	DefaultFailedJobsLimit = 50
	MaxFailedJobsLimit     = 500
)

// AdminTokenHeader carries the shared secret for /admin routes.
const AdminTokenHeader = "X-Admin-Token"

// DeadLetterLister is the part of the reminder store the admin routes read.
type DeadLetterLister interface {
	ListDeadLetters(ctx context.Context, limit int) ([]reminder.DeadLetter, error)
}

// TaskDeadLetterLister lists tasks the queue gave up on.
// *queue.PostgresStorage and *queue.MemoryStorage implement it.
type TaskDeadLetterLister interface {
	ListDLQ(ctx context.Context, limit int) ([]queue.TasksDlq, error)
}

// Deps are the collaborators behind the ops routes. Nil members disable
// their routes, except Metrics which is required.
type Deps struct {
	Metrics     metrics.Sink
	DeadLetters DeadLetterLister
	TaskDLQ     TaskDeadLetterLister
	Flags       feature.Store
	FlagEnv     *feature.EnvProvider

	// Reminders enables operator cancellation of scheduled reminders.
	Reminders reminder.Transactor

	// AdminToken guards every /admin route. Empty leaves /admin unmounted.
	AdminToken string

	Checks []httpserver.Check
	Logger *slog.Logger

	// ProbeTimeout bounds the whole readiness run. Zero means 2s.
	ProbeTimeout time.Duration
}

// NewRouter mounts health, metrics and admin routes. Admin routes answer 401
// unless the request carries AdminToken in the X-Admin-Token header.
func NewRouter(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = logger.Discard()
	}
	log = log.With(logger.Component("ops"))
	if d.ProbeTimeout <= 0 {
		d.ProbeTimeout = 2 * time.Second
	}
	h := &handlers{deps: d, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.Liveness())
	r.Get("/readyz", httpserver.Readiness(log, d.ProbeTimeout, d.Checks...))
	r.Get("/metrics", h.prometheus)
	r.Get("/metrics.json", h.snapshot)

	if d.AdminToken == "" {
		return r
	}

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireAdminToken(d.AdminToken))
		if d.DeadLetters != nil {
			r.Get("/failed-jobs", h.failedJobs)
		}
		if d.TaskDLQ != nil {
			r.Get("/queue-dlq", h.taskDLQ)
		}
		if d.Flags != nil {
			r.Get("/flags", h.flags)
		}
		if d.Reminders != nil {
			r.Post("/reminders/{id}/cancel", h.cancelReminder)
		}
	})

	return r
}

func requireAdminToken(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(AdminTokenHeader))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				httpserver.WriteJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type handlers struct {
	deps Deps
	log  *slog.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) prometheus(w http.ResponseWriter, r *http.Request) {
	snap := h.deps.Metrics.Snapshot(r.Context())
	w.Header().Set("Content-Type", metrics.ContentType)
	if err := metrics.WritePrometheus(w, snap); err != nil {
		h.log.WarnContext(r.Context(), "failed to write metrics", logger.Error(err))
	}
}

func (h *handlers) snapshot(w http.ResponseWriter, r *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, h.deps.Metrics.Snapshot(r.Context()))
}

func (h *handlers) failedJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		httpserver.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	items, err := h.deps.DeadLetters.ListDeadLetters(r.Context(), limit)
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to list dead letters", logger.Error(err))
		httpserver.WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	if items == nil {
		items = []reminder.DeadLetter{}
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (h *handlers) taskDLQ(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		httpserver.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	items, err := h.deps.TaskDLQ.ListDLQ(r.Context(), limit)
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to list queue dead letters", logger.Error(err))
		httpserver.WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	if items == nil {
		items = []queue.TasksDlq{}
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (h *handlers) flags(w http.ResponseWriter, r *http.Request) {
	items, err := feature.Describe(r.Context(), h.deps.Flags, h.deps.FlagEnv)
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to describe flags", logger.Error(err))
		httpserver.WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *handlers) cancelReminder(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.WriteJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid reminder id"})
		return
	}

	err = reminder.CancelByID(r.Context(), h.deps.Reminders, id)
	switch {
	case err == nil:
		h.log.InfoContext(r.Context(), "reminder canceled by operator", logger.ReminderID(id))
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, reminder.ErrReminderNotFound):
		httpserver.WriteJSON(w, http.StatusNotFound, errorResponse{Error: "reminder not found"})
	case errors.Is(err, reminder.ErrInvalidTransition):
		httpserver.WriteJSON(w, http.StatusConflict, errorResponse{Error: "reminder is no longer scheduled"})
	default:
		h.log.ErrorContext(r.Context(), "failed to cancel reminder", logger.ReminderID(id), logger.Error(err))
		httpserver.WriteJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

var errBadLimit = errors.New("limit must be a positive integer")

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return DefaultFailedJobsLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errBadLimit
	}
	return min(n, MaxFailedJobsLimit), nil
}
