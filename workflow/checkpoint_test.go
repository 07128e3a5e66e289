package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCheckpointStore_RoundTrip(t *testing.T) {
	s := NewMemoryCheckpointStore()
	ctx := context.Background()

	cp := &Checkpoint{
		Ref:         "r-1",
		AssistantID: "research",
		ThreadID:    "t-1",
		State:       map[string]any{"budget": 1000},
		NextNode:    "approve",
	}
	require.NoError(t, s.Save(ctx, cp))

	got, err := s.Load(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "approve", got.NextNode)
	assert.Equal(t, 1000, got.State["budget"])
	assert.False(t, got.CreatedAt.IsZero())

	// Loaded state is a copy; mutating it must not affect the stored one.
	got.State["budget"] = 9999
	again, err := s.Load(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, 1000, again.State["budget"])
}

func TestMemoryCheckpointStore_LoadMissing(t *testing.T) {
	s := NewMemoryCheckpointStore()

	_, err := s.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCheckpointNotFound)
}

func TestMemoryCheckpointStore_Delete(t *testing.T) {
	s := NewMemoryCheckpointStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &Checkpoint{Ref: "r-1", State: map[string]any{}}))
	require.NoError(t, s.Delete(ctx, "r-1"))

	_, err := s.Load(ctx, "r-1")
	assert.ErrorIs(t, err, ErrCheckpointNotFound)

	// Deleting twice is harmless.
	assert.NoError(t, s.Delete(ctx, "r-1"))
}
