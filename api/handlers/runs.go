package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/runflow/api"
	"github.com/BaSui01/runflow/internal/metrics"
	"github.com/BaSui01/runflow/run"
	"github.com/BaSui01/runflow/store"
	"github.com/BaSui01/runflow/types"
)

// RunsHandler serves the run lifecycle endpoints: create, stream, get,
// list, cancel, and join.
type RunsHandler struct {
	orch    *run.Orchestrator
	store   store.RunStore
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewRunsHandler creates the runs handler. The metrics collector is
// optional.
func NewRunsHandler(orch *run.Orchestrator, st store.RunStore, collector *metrics.Collector, logger *zap.Logger) *RunsHandler {
	return &RunsHandler{
		orch:    orch,
		store:   st,
		metrics: collector,
		logger:  logger.With(zap.String("component", "runs_handler")),
	}
}

// decodeRunRequest decodes and validates a run creation body, binding the
// path thread id when present.
func (h *RunsHandler) decodeRunRequest(w http.ResponseWriter, r *http.Request) (*run.NormalizedRequest, bool) {
	var req run.Request
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return nil, false
	}
	if threadID := r.PathValue("thread_id"); threadID != "" {
		req.ThreadID = threadID
	}

	nreq, verr := run.Validate(&req)
	if verr != nil {
		WriteError(w, verr, h.logger)
		return nil, false
	}
	return nreq, true
}

// HandleCreate serves POST /api/v1/threads/{thread_id}/runs and
// POST /api/v1/runs: accept the run and return immediately.
func (h *RunsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	nreq, ok := h.decodeRunRequest(w, r)
	if !ok {
		return
	}

	created, err := h.orch.CreateRun(r.Context(), nreq)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteCreated(w, created)
}

// HandleCreateAndStream serves POST /api/v1/threads/{thread_id}/runs/stream:
// accept the run and relay its framed event stream over SSE until the
// terminal frame.
func (h *RunsHandler) HandleCreateAndStream(w http.ResponseWriter, r *http.Request) {
	nreq, ok := h.decodeRunRequest(w, r)
	if !ok {
		return
	}

	created, err := h.orch.CreateRun(r.Context(), nreq)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	h.streamSSE(w, r, created.RunID, nreq.StreamModes, nreq.OnDisconnect)
}

// HandleStream serves GET /api/v1/threads/{thread_id}/runs/{run_id}/stream:
// attach to an existing run's stream from the beginning.
func (h *RunsHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")

	modes, verr := h.queryStreamModes(r)
	if verr != nil {
		WriteError(w, verr, h.logger)
		return
	}

	h.streamSSE(w, r, runID, modes, types.DisconnectContinue)
}

// streamSSE relays the run's framed stream as server-sent events. When the
// client goes away before the terminal frame, the disconnect policy
// decides whether the run keeps executing.
func (h *RunsHandler) streamSSE(w http.ResponseWriter, r *http.Request, runID string, modes []types.StreamMode, onDisconnect types.DisconnectPolicy) {
	frames, cancelSub, err := h.subscribeFrames(runID, modes)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	defer cancelSub()

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, types.NewError(types.ErrInternalError, "streaming not supported"), h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if h.metrics != nil {
		h.metrics.StreamClientConnected()
		defer h.metrics.StreamClientDisconnected()
	}

	for {
		select {
		case frame, open := <-frames:
			if !open {
				return
			}
			data, err := json.Marshal(frame.Data)
			if err != nil {
				h.logger.Error("failed to encode stream frame", zap.Error(err))
				continue
			}
			w.Write([]byte("event: " + frame.Mode + "\n"))
			w.Write([]byte("data: "))
			w.Write(data)
			w.Write([]byte("\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			if onDisconnect == types.DisconnectCancel {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := h.orch.Cancel(ctx, runID); err != nil {
					h.logger.Warn("failed to cancel run on disconnect",
						zap.String("run_id", runID), zap.Error(err))
				}
				cancel()
			}
			return
		}
	}
}

// HandleWebSocket serves GET /api/v1/threads/{thread_id}/runs/{run_id}/ws:
// the framed stream over a websocket instead of SSE.
func (h *RunsHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")

	modes, verr := h.queryStreamModes(r)
	if verr != nil {
		WriteError(w, verr, h.logger)
		return
	}

	frames, cancelSub, err := h.subscribeFrames(runID, modes)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	defer cancelSub()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.String("run_id", runID), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	if h.metrics != nil {
		h.metrics.StreamClientConnected()
		defer h.metrics.StreamClientDisconnected()
	}

	ctx := r.Context()
	for {
		select {
		case frame, open := <-frames:
			if !open {
				conn.Close(websocket.StatusNormalClosure, "stream complete")
				return
			}
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// subscribeFrames attaches to the run's live stream, falling back to a
// synthesized terminal frame when the run already settled and its event
// sequence has been released.
func (h *RunsHandler) subscribeFrames(runID string, modes []types.StreamMode) (<-chan run.Frame, func(), error) {
	events, cancelSub, err := h.orch.Stream(runID)
	if err == nil {
		return run.Multiplex(events, modes), cancelSub, nil
	}
	if types.GetErrorCode(err) != types.ErrNotFound {
		return nil, nil, err
	}

	stored, gerr := h.store.GetRun(context.Background(), runID)
	if gerr != nil {
		if errors.Is(gerr, store.ErrNotFound) {
			return nil, nil, types.NewError(types.ErrNotFound, "run not found")
		}
		return nil, nil, gerr
	}
	if !stored.Status.Terminal() && stored.Status != types.RunStatusInterrupted {
		return nil, nil, err
	}

	frames := make(chan run.Frame, 1)
	frames <- terminalFrame(stored)
	close(frames)
	return frames, func() {}, nil
}

// terminalFrame rebuilds the closing stream frame from a settled run
// record.
func terminalFrame(r *types.Run) run.Frame {
	switch r.Status {
	case types.RunStatusInterrupted:
		return run.Frame{Mode: string(run.TerminalInterrupt), Data: r.Output}
	case types.RunStatusCompleted:
		return run.Frame{Mode: string(run.TerminalCompleted), Data: r.Output}
	case types.RunStatusCancelled:
		return run.Frame{Mode: string(run.TerminalCancelled), Data: map[string]any{"run_id": r.RunID}}
	default:
		return run.Frame{Mode: string(run.TerminalError), Data: map[string]any{"error": r.Error}}
	}
}

func (h *RunsHandler) queryStreamModes(r *http.Request) ([]types.StreamMode, *types.Error) {
	raw := r.URL.Query()["stream_mode"]
	if len(raw) == 0 {
		return run.ParseStreamModes(nil)
	}
	asAny := make([]any, len(raw))
	for i, m := range raw {
		asAny[i] = m
	}
	return run.ParseStreamModes(asAny)
}

// HandleGet serves GET /api/v1/threads/{thread_id}/runs/{run_id}.
func (h *RunsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	stored, ok := h.loadThreadRun(w, r)
	if !ok {
		return
	}
	WriteSuccess(w, stored)
}

// HandleList serves GET /api/v1/threads/{thread_id}/runs.
func (h *RunsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")

	filter := store.RunFilter{}
	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = types.RunStatus(s)
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteError(w, types.NewError(types.ErrInvalidRequest, "limit must be a non-negative integer"), h.logger)
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteError(w, types.NewError(types.ErrInvalidRequest, "offset must be a non-negative integer"), h.logger)
			return
		}
		filter.Offset = n
	}

	runs, err := h.store.ListRuns(r.Context(), threadID, filter)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, api.RunList{Runs: runs, Limit: filter.Limit, Offset: filter.Offset})
}

// HandleCancel serves POST /api/v1/threads/{thread_id}/runs/{run_id}/cancel.
func (h *RunsHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	stored, ok := h.loadThreadRun(w, r)
	if !ok {
		return
	}

	if err := h.orch.Cancel(r.Context(), stored.RunID); err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	updated, err := h.store.GetRun(r.Context(), stored.RunID)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, updated)
}

// HandleJoin serves GET /api/v1/threads/{thread_id}/runs/{run_id}/join:
// block until the run settles and return the final record.
func (h *RunsHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	stored, ok := h.loadThreadRun(w, r)
	if !ok {
		return
	}

	settled, err := h.orch.Join(r.Context(), stored.RunID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		WriteAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, settled)
}

// loadThreadRun loads the run named in the path and verifies it belongs to
// the path's thread.
func (h *RunsHandler) loadThreadRun(w http.ResponseWriter, r *http.Request) (*types.Run, bool) {
	runID := r.PathValue("run_id")
	threadID := r.PathValue("thread_id")

	stored, err := h.store.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteError(w, types.NewError(types.ErrNotFound, "run not found"), h.logger)
			return nil, false
		}
		WriteAnyError(w, err, h.logger)
		return nil, false
	}
	if threadID != "" && stored.ThreadID != threadID {
		WriteError(w, types.NewError(types.ErrNotFound, "run not found on this thread"), h.logger)
		return nil, false
	}
	return stored, true
}
