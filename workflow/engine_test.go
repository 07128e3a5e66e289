package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/runflow/run"
	"github.com/BaSui01/runflow/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(NewMemoryCheckpointStore(), zap.NewNop())
}

// planActGraph is a two-step chain writing "plan" and "answer" keys.
func planActGraph() *Graph {
	return NewGraph().
		AddNode("plan", func(_ context.Context, s State) (map[string]any, error) {
			return map[string]any{"plan": "steps"}, nil
		}).
		AddNode("act", func(_ context.Context, s State) (map[string]any, error) {
			return map[string]any{"answer": "42"}, nil
		}).
		AddEdge("plan", "act")
}

func wait(t *testing.T, exec run.Execution) (map[string]any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return exec.Wait(ctx)
}

func TestEngine_RunsToCompletion(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Register("research", planActGraph()))

	exec, err := e.Start(context.Background(), run.EngineConfig{
		RunID:       "r-1",
		AssistantID: "research",
		Input:       map[string]any{"question": "why"},
	})
	require.NoError(t, err)

	output, err := wait(t, exec)
	require.NoError(t, err)
	assert.Equal(t, "42", output["answer"])
	assert.Equal(t, "steps", output["plan"])
	assert.Equal(t, "why", output["question"])
	assert.NotContains(t, output, run.InterruptMarker)

	var nodes []string
	for ev := range exec.Events() {
		nodes = append(nodes, ev.Node)
	}
	assert.Equal(t, []string{"plan", "act"}, nodes)
}

func TestEngine_UnknownAssistant(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Start(context.Background(), run.EngineConfig{AssistantID: "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown assistant")
}

func TestEngine_RegisterRejectsInvalidGraph(t *testing.T) {
	e := newTestEngine(t)

	err := e.Register("broken", NewGraph())
	require.Error(t, err)
}

func TestEngine_InterruptBeforeGate(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Register("research", planActGraph()))

	exec, err := e.Start(context.Background(), run.EngineConfig{
		RunID:           "r-gate",
		AssistantID:     "research",
		Input:           map[string]any{"question": "why"},
		InterruptBefore: []string{"act"},
	})
	require.NoError(t, err)

	output, err := wait(t, exec)
	require.NoError(t, err)
	require.Contains(t, output, run.InterruptMarker)

	outcome := run.Classify(output)
	require.Equal(t, run.OutcomeSuspended, outcome.Kind)
	require.Len(t, outcome.Interrupts, 1)
	assert.Equal(t,
		map[string]any{"node": "act", "when": "before"},
		outcome.Interrupts[0].Value)

	// Resume continues at the gated node without re-checking the gate.
	resumed, err := e.Resume(context.Background(), "r-gate",
		types.Command{Resume: "go"},
		run.EngineConfig{RunID: "r-gate-2", AssistantID: "research", InterruptBefore: []string{"act"}})
	require.NoError(t, err)

	output, err = wait(t, resumed)
	require.NoError(t, err)
	assert.Equal(t, "42", output["answer"])
	assert.Equal(t, "steps", output["plan"])
}

func TestEngine_InterruptAfterGate(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Register("research", planActGraph()))

	exec, err := e.Start(context.Background(), run.EngineConfig{
		RunID:          "r-after",
		AssistantID:    "research",
		Input:          map[string]any{},
		InterruptAfter: []string{"plan"},
	})
	require.NoError(t, err)

	output, err := wait(t, exec)
	require.NoError(t, err)
	outcome := run.Classify(output)
	require.Equal(t, run.OutcomeSuspended, outcome.Kind)
	assert.Equal(t,
		map[string]any{"node": "plan", "when": "after"},
		outcome.Interrupts[0].Value)

	resumed, err := e.Resume(context.Background(), "r-after",
		types.Command{Resume: "continue"},
		run.EngineConfig{RunID: "r-after-2", AssistantID: "research"})
	require.NoError(t, err)

	output, err = wait(t, resumed)
	require.NoError(t, err)
	assert.Equal(t, "42", output["answer"])
}

func TestEngine_InNodeInterrupt(t *testing.T) {
	e := newTestEngine(t)
	g := NewGraph().
		AddNode("approve", func(_ context.Context, s State) (map[string]any, error) {
			decision, ok := s[ResumeKey]
			if !ok {
				return nil, Interrupt(map[string]any{"question": "approve the budget?"})
			}
			return map[string]any{"decision": decision}, nil
		}).
		AddNode("finish", func(_ context.Context, s State) (map[string]any, error) {
			return map[string]any{"done": true}, nil
		}).
		AddEdge("approve", "finish")
	require.NoError(t, e.Register("approver", g))

	exec, err := e.Start(context.Background(), run.EngineConfig{
		RunID: "r-hil", AssistantID: "approver", Input: map[string]any{"budget": 1000},
	})
	require.NoError(t, err)

	output, err := wait(t, exec)
	require.NoError(t, err)
	outcome := run.Classify(output)
	require.Equal(t, run.OutcomeSuspended, outcome.Kind)
	assert.Equal(t,
		map[string]any{"question": "approve the budget?"},
		outcome.Interrupts[0].Value)

	// The command's update merges into the state, last write wins; the
	// resume value reaches the interrupted node.
	resumed, err := e.Resume(context.Background(), "r-hil",
		types.Command{Resume: "approved", Update: map[string]any{"budget": 5000}},
		run.EngineConfig{RunID: "r-hil-2", AssistantID: "approver"})
	require.NoError(t, err)

	output, err = wait(t, resumed)
	require.NoError(t, err)
	assert.Equal(t, "approved", output["decision"])
	assert.Equal(t, 5000, output["budget"])
	assert.Equal(t, true, output["done"])
	// The consumed resume value does not leak into the final state.
	assert.NotContains(t, output, ResumeKey)
}

func TestEngine_WildcardStepsOneNodeAtATime(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Register("research", planActGraph()))
	cfgOf := func(runID string) run.EngineConfig {
		return run.EngineConfig{
			RunID:           runID,
			AssistantID:     "research",
			Input:           map[string]any{},
			InterruptBefore: []string{"*"},
		}
	}

	// Suspends before the entry node.
	exec, err := e.Start(context.Background(), cfgOf("r-step"))
	require.NoError(t, err)
	output, err := wait(t, exec)
	require.NoError(t, err)
	require.Equal(t, run.OutcomeSuspended, run.Classify(output).Kind)

	// First resume executes plan, then suspends before act.
	resumed, err := e.Resume(context.Background(), "r-step",
		types.Command{Resume: "go"}, cfgOf("r-step-2"))
	require.NoError(t, err)
	output, err = wait(t, resumed)
	require.NoError(t, err)
	outcome := run.Classify(output)
	require.Equal(t, run.OutcomeSuspended, outcome.Kind)
	assert.Equal(t,
		map[string]any{"node": "act", "when": "before"},
		outcome.Interrupts[0].Value)

	// Second resume finishes the graph.
	resumed, err = e.Resume(context.Background(), "r-step-2",
		types.Command{Resume: "go"}, cfgOf("r-step-3"))
	require.NoError(t, err)
	output, err = wait(t, resumed)
	require.NoError(t, err)
	assert.Equal(t, "42", output["answer"])
}

func TestEngine_NodeErrorFailsExecution(t *testing.T) {
	e := newTestEngine(t)
	g := NewGraph().AddNode("boom", func(_ context.Context, _ State) (map[string]any, error) {
		return nil, errors.New("exploded")
	})
	require.NoError(t, e.Register("bomber", g))

	exec, err := e.Start(context.Background(), run.EngineConfig{
		RunID: "r-err", AssistantID: "bomber", Input: map[string]any{},
	})
	require.NoError(t, err)

	_, err = wait(t, exec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exploded")
	assert.Contains(t, err.Error(), "boom")
}

func TestEngine_CancelAcknowledges(t *testing.T) {
	e := newTestEngine(t)
	started := make(chan struct{})
	g := NewGraph().AddNode("stall", func(ctx context.Context, _ State) (map[string]any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, e.Register("staller", g))

	exec, err := e.Start(context.Background(), run.EngineConfig{
		RunID: "r-cancel", AssistantID: "staller", Input: map[string]any{},
	})
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, exec.Cancel(ctx))

	_, err = wait(t, exec)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_ResumeUnknownCheckpoint(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Register("research", planActGraph()))

	_, err := e.Resume(context.Background(), "no-such-ref",
		types.Command{Resume: "go"}, run.EngineConfig{AssistantID: "research"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCheckpointNotFound)
}

func TestEngine_CheckpointDeletedAfterResumeCompletes(t *testing.T) {
	cps := NewMemoryCheckpointStore()
	e := NewEngine(cps, zap.NewNop())
	require.NoError(t, e.Register("research", planActGraph()))

	exec, err := e.Start(context.Background(), run.EngineConfig{
		RunID:           "r-cp",
		AssistantID:     "research",
		Input:           map[string]any{},
		InterruptBefore: []string{"act"},
	})
	require.NoError(t, err)
	_, err = wait(t, exec)
	require.NoError(t, err)

	_, err = cps.Load(context.Background(), "r-cp")
	require.NoError(t, err)

	resumed, err := e.Resume(context.Background(), "r-cp",
		types.Command{Resume: "go"}, run.EngineConfig{RunID: "r-cp-2", AssistantID: "research"})
	require.NoError(t, err)
	_, err = wait(t, resumed)
	require.NoError(t, err)

	_, err = cps.Load(context.Background(), "r-cp")
	assert.ErrorIs(t, err, ErrCheckpointNotFound)
}
