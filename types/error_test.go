package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	err := NewError(ErrThreadBusy, "thread has an active run")
	assert.Equal(t, "[THREAD_BUSY] thread has an active run", err.Error())

	cause := errors.New("version conflict")
	err = err.WithCause(cause)
	assert.Contains(t, err.Error(), "version conflict")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestError_Builders(t *testing.T) {
	err := NewError(ErrTimeout, "no classification within deadline").
		WithHTTPStatus(504).
		WithRetryable(true)

	assert.Equal(t, 504, err.HTTPStatus)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, ErrTimeout, GetErrorCode(err))
}

func TestGetErrorCode_PlainError(t *testing.T) {
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
	assert.False(t, IsRetryable(errors.New("plain")))
}
