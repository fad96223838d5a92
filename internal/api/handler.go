package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/urlqueue/urlqueue/internal/job"
	"github.com/urlqueue/urlqueue/internal/query"
	"github.com/urlqueue/urlqueue/internal/queue"
)

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	store job.Store
	queue *queue.Queue
}

// NewHandler constructs a Handler with the given dependencies.
func NewHandler(store job.Store, q *queue.Queue) *Handler {
	return &Handler{store: store, queue: q}
}

// RegisterRoutes registers all API routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /urls", h.ListJobs)
	mux.HandleFunc("POST /urls", h.CreateJob)
	mux.HandleFunc("GET /urls/{id}", h.GetJob)
	mux.HandleFunc("DELETE /urls/{id}", h.DeleteJob)
	mux.HandleFunc("POST /urls/{id}/retry", h.RetryJob)
	mux.HandleFunc("GET /urls/{id}/logs", h.ListLogs)
	mux.HandleFunc("GET /health", h.Health)
}

// CreateJob handles POST /urls and responds 201 with the pending job.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB max
	var req job.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.store.Create(r.Context(), req.URL)
	if err != nil {
		slog.Error("create job", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	if !h.enqueue(w, rec.ID) {
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// ListJobs handles GET /urls and responds 200 with one page of jobs, newest first.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	params, err := query.Parse(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.store.List(r.Context(), params.Filter())
	if err != nil {
		slog.Error("list jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// GetJob handles GET /urls/{id} and responds 200 with the job.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// DeleteJob handles DELETE /urls/{id} and responds 204.
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	deleted, err := h.store.Delete(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete job")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RetryJob handles POST /urls/{id}/retry. A finished job is resubmitted as a
// new pending job; the original is left untouched.
func (h *Handler) RetryJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	rec, err := h.store.Retry(r.Context(), id)
	switch {
	case errors.Is(err, job.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
		return
	case errors.Is(err, job.ErrNotTerminal):
		writeError(w, http.StatusConflict, "job is still running")
		return
	case err != nil:
		slog.Error("retry job", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to retry job")
		return
	}
	if !h.enqueue(w, rec.ID) {
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// ListLogs handles GET /urls/{id}/logs and responds 200 with the log lines
// after the cursor.
func (h *Handler) ListLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	params, err := query.ParseLogs(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.store.ListLogs(r.Context(), id, params.Cursor)
	if errors.Is(err, job.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list logs")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// Health handles GET /health and reports whether the queue has work.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	state := "busy"
	if h.queue.Idle() {
		state = "idle"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "queue": state})
}

// enqueue hands id to the workers. A job left pending by a full queue is
// picked up again by Recovery on the next start.
func (h *Handler) enqueue(w http.ResponseWriter, id int64) bool {
	if err := h.queue.Enqueue(id); err != nil {
		slog.Warn("enqueue job", "job_id", id, "error", err)
		writeError(w, http.StatusServiceUnavailable, "queue is full, try again later")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
