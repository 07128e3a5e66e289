package handlers

import (
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/runflow/api"
	"github.com/BaSui01/runflow/types"
)

// AssistantSource lists the assistant ids registered on the workflow
// engine.
type AssistantSource interface {
	Assistants() []string
}

// AssistantsHandler serves the read-only assistants surface. Assistants
// are registered in code at startup, so there is no create or delete
// endpoint.
type AssistantsHandler struct {
	source AssistantSource
	logger *zap.Logger
}

// NewAssistantsHandler creates the assistants handler.
func NewAssistantsHandler(source AssistantSource, logger *zap.Logger) *AssistantsHandler {
	return &AssistantsHandler{
		source: source,
		logger: logger.With(zap.String("component", "assistants_handler")),
	}
}

// HandleList serves GET /api/v1/assistants.
func (h *AssistantsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ids := h.source.Assistants()
	sort.Strings(ids)

	assistants := make([]api.Assistant, 0, len(ids))
	for _, id := range ids {
		assistants = append(assistants, api.Assistant{AssistantID: id})
	}
	WriteSuccess(w, api.AssistantList{Assistants: assistants})
}

// HandleGet serves GET /api/v1/assistants/{assistant_id}.
func (h *AssistantsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	assistantID := r.PathValue("assistant_id")

	for _, id := range h.source.Assistants() {
		if id == assistantID {
			WriteSuccess(w, api.Assistant{AssistantID: id})
			return
		}
	}
	WriteError(w, types.NewError(types.ErrNotFound, "assistant not found"), h.logger)
}
