package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/runflow/api"
	"github.com/BaSui01/runflow/store"
	"github.com/BaSui01/runflow/types"
)

// ThreadsHandler serves thread CRUD and the aggregate state view.
type ThreadsHandler struct {
	store  store.RunStore
	logger *zap.Logger
}

// NewThreadsHandler creates the threads handler.
func NewThreadsHandler(st store.RunStore, logger *zap.Logger) *ThreadsHandler {
	return &ThreadsHandler{
		store:  st,
		logger: logger.With(zap.String("component", "threads_handler")),
	}
}

// HandleCreate serves POST /api/v1/threads.
func (h *ThreadsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req api.CreateThreadRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}

	thread := &types.Thread{
		ThreadID: threadID,
		Status:   types.ThreadStatusIdle,
		Metadata: req.Metadata,
	}
	if err := h.store.CreateThread(r.Context(), thread); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			WriteError(w, types.NewError(types.ErrInvalidRequest, "thread already exists").
				WithHTTPStatus(http.StatusConflict), h.logger)
			return
		}
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteCreated(w, thread)
}

// HandleGet serves GET /api/v1/threads/{thread_id}.
func (h *ThreadsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	thread, ok := h.loadThread(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, thread)
}

// HandleDelete serves DELETE /api/v1/threads/{thread_id}: removes the
// thread and every run on it.
func (h *ThreadsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")

	if err := h.store.DeleteThread(r.Context(), threadID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteError(w, types.NewError(types.ErrNotFound, "thread not found"), h.logger)
			return
		}
		WriteAnyError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleState serves GET /api/v1/threads/{thread_id}/state: the thread's
// mirrored status plus the latest run's output and pending interrupts.
func (h *ThreadsHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	thread, ok := h.loadThread(w, r)
	if !ok {
		return
	}

	state := api.ThreadState{
		ThreadID: thread.ThreadID,
		Status:   thread.Status,
	}

	latest, err := h.store.LatestRun(r.Context(), thread.ThreadID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		WriteAnyError(w, err, h.logger)
		return
	}
	if latest != nil {
		state.LatestRun = latest.RunID
		state.Values = latest.Output
		state.Interrupts = latest.Interrupts
	}
	WriteSuccess(w, state)
}

func (h *ThreadsHandler) loadThread(w http.ResponseWriter, r *http.Request) (*types.Thread, bool) {
	threadID := r.PathValue("thread_id")

	thread, err := h.store.GetThread(r.Context(), threadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteError(w, types.NewError(types.ErrNotFound, "thread not found"), h.logger)
			return nil, false
		}
		WriteAnyError(w, err, h.logger)
		return nil, false
	}
	return thread, true
}
