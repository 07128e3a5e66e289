package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopNode(_ context.Context, _ State) (map[string]any, error) {
	return nil, nil
}

func TestGraph_Validate(t *testing.T) {
	t.Run("empty graph", func(t *testing.T) {
		err := NewGraph().Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no entry")
	})

	t.Run("dangling edge target", func(t *testing.T) {
		g := NewGraph().
			AddNode("a", noopNode).
			AddEdge("a", "missing")
		err := g.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing")
	})

	t.Run("valid chain", func(t *testing.T) {
		g := NewGraph().
			AddNode("a", noopNode).
			AddNode("b", noopNode).
			AddEdge("a", "b")
		assert.NoError(t, g.Validate())
		assert.Equal(t, "a", g.Entry())
		assert.Equal(t, "b", g.Successor("a"))
		assert.Equal(t, "", g.Successor("b"))
	})

	t.Run("explicit entry", func(t *testing.T) {
		g := NewGraph().
			AddNode("a", noopNode).
			AddNode("b", noopNode).
			SetEntry("b")
		assert.NoError(t, g.Validate())
		assert.Equal(t, "b", g.Entry())
	})
}

func TestState_Merge(t *testing.T) {
	s := State{"keep": 1, "replace": "old"}
	s.Merge(map[string]any{"replace": "new", "add": true})

	assert.Equal(t, State{"keep": 1, "replace": "new", "add": true}, s)
}

func TestState_CloneIsIndependent(t *testing.T) {
	s := State{"a": 1}
	cp := s.Clone()
	cp["a"] = 2

	assert.Equal(t, 1, s["a"])
}

func TestMatchesGate(t *testing.T) {
	assert.True(t, matchesGate([]string{"approve"}, "approve"))
	assert.False(t, matchesGate([]string{"approve"}, "plan"))
	assert.True(t, matchesGate([]string{"*"}, "anything"))
	assert.False(t, matchesGate(nil, "plan"))
}
