package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/runflow/api"
	"github.com/BaSui01/runflow/workflow"
)

func newAssistantsEnv(t *testing.T) *http.ServeMux {
	t.Helper()

	eng := workflow.NewEngine(workflow.NewMemoryCheckpointStore(), zap.NewNop())
	noop := func(_ context.Context, _ workflow.State) (map[string]any, error) {
		return nil, nil
	}
	require.NoError(t, eng.Register("research", workflow.NewGraph().AddNode("plan", noop)))
	require.NoError(t, eng.Register("approver", workflow.NewGraph().AddNode("decide", noop)))

	h := NewAssistantsHandler(eng, zap.NewNop())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/assistants", h.HandleList)
	mux.HandleFunc("GET /api/v1/assistants/{assistant_id}", h.HandleGet)
	return mux
}

func TestAssistants_List(t *testing.T) {
	mux := newAssistantsEnv(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/assistants", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	list := decodeData[api.AssistantList](t, rec)
	require.Len(t, list.Assistants, 2)
	// Sorted by id.
	assert.Equal(t, "approver", list.Assistants[0].AssistantID)
	assert.Equal(t, "research", list.Assistants[1].AssistantID)
}

func TestAssistants_Get(t *testing.T) {
	mux := newAssistantsEnv(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/assistants/research", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeData[api.Assistant](t, rec)
	assert.Equal(t, "research", got.AssistantID)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/assistants/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
