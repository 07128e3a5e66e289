package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/runflow/types"
)

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code types.ErrorCode
		want int
	}{
		{types.ErrInvalidRequest, http.StatusBadRequest},
		{types.ErrNotFound, http.StatusNotFound},
		{types.ErrThreadBusy, http.StatusConflict},
		{types.ErrNothingToResume, http.StatusConflict},
		{types.ErrStaleVersion, http.StatusConflict},
		{types.ErrTimeout, http.StatusGatewayTimeout},
		{types.ErrEngineFailure, http.StatusBadGateway},
		{types.ErrInternalError, http.StatusInternalServerError},
		{types.ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, mapErrorCodeToHTTPStatus(tt.code))
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, types.NewError(types.ErrThreadBusy, "thread already has an active run"), zap.NewNop())

	assert.Equal(t, http.StatusConflict, rec.Code)

	var envl Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envl))
	assert.False(t, envl.Success)
	require.NotNil(t, envl.Error)
	assert.Equal(t, string(types.ErrThreadBusy), envl.Error.Code)
	assert.Equal(t, "thread already has an active run", envl.Error.Message)
}

func TestWriteError_PinnedStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	err := types.NewError(types.ErrInvalidRequest, "dup").WithHTTPStatus(http.StatusConflict)
	WriteError(rec, err, zap.NewNop())

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDecodeJSONBody_RejectsUnknownFields(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"known":1,"unknown":2}`))

	var dst struct {
		Known int `json:"known"`
	}
	err := DecodeJSONBody(rec, req, &dst, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecodeJSONBody_OK(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"known":7}`))

	var dst struct {
		Known int `json:"known"`
	}
	require.NoError(t, DecodeJSONBody(rec, req, &dst, zap.NewNop()))
	assert.Equal(t, 7, dst.Known)
}

func TestResponseWriter_CapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK) // second write is ignored
	_, _ = rw.Write([]byte("x"))

	assert.Equal(t, http.StatusTeapot, rw.StatusCode)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestResponseWriter_DefaultsTo200OnWrite(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	_, _ = rw.Write([]byte("body"))

	assert.Equal(t, http.StatusOK, rw.StatusCode)
	assert.True(t, rw.Written)
}
