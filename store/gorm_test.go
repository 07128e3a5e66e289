package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/runflow/types"
)

func setupGormStore(t *testing.T) *GormStore {
	t.Helper()

	s, err := NewGormStore("sqlite", ":memory:", zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestGormStore_RunRoundTrip(t *testing.T) {
	s := setupGormStore(t)
	ctx := context.Background()

	run := newTestRun("run-1", "thread-1", types.RunStatusPending)
	run.Input = map[string]any{"messages": []any{map[string]any{"role": "user", "content": "hi"}}}
	require.NoError(t, s.CreateRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusPending, got.Status)
	assert.Equal(t, int64(1), got.Version)
	assert.NotNil(t, got.Input["messages"])

	_, err = s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_DuplicateCreate(t *testing.T) {
	s := setupGormStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, newTestRun("run-1", "thread-1", types.RunStatusPending)))
	assert.ErrorIs(t, s.CreateRun(ctx, newTestRun("run-1", "thread-1", types.RunStatusPending)), ErrAlreadyExists)

	require.NoError(t, s.CreateThread(ctx, &types.Thread{ThreadID: "thread-1"}))
	assert.ErrorIs(t, s.CreateThread(ctx, &types.Thread{ThreadID: "thread-1"}), ErrAlreadyExists)
}

func TestGormStore_UpdateRun_CAS(t *testing.T) {
	s := setupGormStore(t)
	ctx := context.Background()

	run := newTestRun("run-1", "thread-1", types.RunStatusPending)
	require.NoError(t, s.CreateRun(ctx, run))

	run.Status = types.RunStatusRunning
	require.NoError(t, s.UpdateRun(ctx, run))
	assert.Equal(t, int64(2), run.Version)

	stale := run.Clone()
	stale.Version = 1
	stale.Status = types.RunStatusCompleted
	assert.ErrorIs(t, s.UpdateRun(ctx, stale), ErrVersionConflict)

	missing := newTestRun("ghost", "t", types.RunStatusRunning)
	missing.Version = 1
	assert.ErrorIs(t, s.UpdateRun(ctx, missing), ErrNotFound)
}

func TestGormStore_InterruptPayloadRoundTrip(t *testing.T) {
	s := setupGormStore(t)
	ctx := context.Background()

	run := newTestRun("run-1", "thread-1", types.RunStatusRunning)
	require.NoError(t, s.CreateRun(ctx, run))

	run.Status = types.RunStatusInterrupted
	run.Interrupts = []types.Interrupt{{ID: "int-1", Value: map[string]any{"node": "approve"}, Resumable: true}}
	run.Output = []any{map[string]any{"node": "approve"}}
	require.NoError(t, s.UpdateRun(ctx, run))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got.Interrupts, 1)
	assert.Equal(t, "int-1", got.Interrupts[0].ID)
	assert.True(t, got.Interrupts[0].Resumable)
}

func TestGormStore_LatestAndList(t *testing.T) {
	s := setupGormStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, newTestRun("run-a", "thread-1", types.RunStatusCompleted)))
	require.NoError(t, s.CreateRun(ctx, newTestRun("run-b", "thread-1", types.RunStatusInterrupted)))

	latest, err := s.LatestRun(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, "run-b", latest.RunID)

	runs, err := s.ListRuns(ctx, "thread-1", RunFilter{Status: types.RunStatusInterrupted})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-b", runs[0].RunID)
}

func TestGormStore_LeaseCAS(t *testing.T) {
	s := setupGormStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateThread(ctx, &types.Thread{ThreadID: "thread-1", Status: types.ThreadStatusIdle}))

	require.NoError(t, s.AcquireLease(ctx, "thread-1", "run-1"))
	assert.ErrorIs(t, s.AcquireLease(ctx, "thread-1", "run-2"), ErrLeaseHeld)
	require.NoError(t, s.ReleaseLease(ctx, "thread-1", "run-1"))
	require.NoError(t, s.AcquireLease(ctx, "thread-1", "run-2"))

	assert.ErrorIs(t, s.AcquireLease(ctx, "missing", "run-1"), ErrNotFound)
}

func TestGormStore_DeleteThread(t *testing.T) {
	s := setupGormStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateThread(ctx, &types.Thread{ThreadID: "thread-1"}))
	require.NoError(t, s.CreateRun(ctx, newTestRun("run-1", "thread-1", types.RunStatusCompleted)))

	require.NoError(t, s.DeleteThread(ctx, "thread-1"))
	_, err := s.GetThread(ctx, "thread-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetRun(ctx, "run-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
