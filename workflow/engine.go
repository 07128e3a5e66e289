package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/runflow/run"
	"github.com/BaSui01/runflow/types"
)

// ResumeKey is the state key carrying the client's resume value into the
// node that interrupted. It is consumed after the node runs.
const ResumeKey = "__resume__"

// Engine executes registered graphs and implements the orchestrator's
// engine contract, including suspension around interrupt gates and
// checkpointed resume.
type Engine struct {
	mu          sync.RWMutex
	graphs      map[string]*Graph
	checkpoints CheckpointStore
	logger      *zap.Logger
}

// NewEngine creates a graph engine backed by the given checkpoint store.
func NewEngine(checkpoints CheckpointStore, logger *zap.Logger) *Engine {
	return &Engine{
		graphs:      make(map[string]*Graph),
		checkpoints: checkpoints,
		logger:      logger.With(zap.String("component", "workflow_engine")),
	}
}

// Register binds a graph to an assistant id.
func (e *Engine) Register(assistantID string, g *Graph) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("graph for assistant %q: %w", assistantID, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.graphs[assistantID] = g
	return nil
}

// Assistants lists the registered assistant ids.
func (e *Engine) Assistants() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.graphs))
	for id := range e.graphs {
		out = append(out, id)
	}
	return out
}

func (e *Engine) graph(assistantID string) (*Graph, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	g, ok := e.graphs[assistantID]
	if !ok {
		return nil, fmt.Errorf("unknown assistant: %s", assistantID)
	}
	return g, nil
}

// Start launches a fresh execution from the graph's entry node.
func (e *Engine) Start(_ context.Context, cfg run.EngineConfig) (run.Execution, error) {
	g, err := e.graph(cfg.AssistantID)
	if err != nil {
		return nil, err
	}

	state := make(State, len(cfg.Input))
	state.Merge(cfg.Input)

	return e.launch(g, cfg, state, g.Entry(), "", false), nil
}

// Resume continues from the checkpoint, merging the command's update into
// the saved state (last write wins) and handing the resume value to the
// suspended node.
func (e *Engine) Resume(ctx context.Context, checkpointRef string, cmd types.Command, cfg run.EngineConfig) (run.Execution, error) {
	cp, err := e.checkpoints.Load(ctx, checkpointRef)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", checkpointRef, err)
	}

	g, err := e.graph(cp.AssistantID)
	if err != nil {
		return nil, err
	}

	state := State(cp.State)
	if cmd.Update != nil {
		state.Merge(cmd.Update)
	}
	if cmd.Resume != nil {
		state[ResumeKey] = cmd.Resume
	}

	return e.launch(g, cfg, state, cp.NextNode, checkpointRef, true), nil
}

func (e *Engine) launch(g *Graph, cfg run.EngineConfig, state State, node, resumedFrom string, skipGate bool) *execution {
	ctx, cancel := context.WithCancel(context.Background())
	x := &execution{
		engine:      e,
		graph:       g,
		cfg:         cfg,
		resumedFrom: resumedFrom,
		events:      make(chan run.EngineEvent, 16),
		done:        make(chan struct{}),
		cancel:      cancel,
	}
	go x.loop(ctx, state, node, skipGate)
	return x
}

// execution is one in-flight graph run.
type execution struct {
	engine      *Engine
	graph       *Graph
	cfg         run.EngineConfig
	resumedFrom string

	events chan run.EngineEvent
	done   chan struct{}
	cancel context.CancelFunc

	mu     sync.Mutex
	output map[string]any
	err    error
}

func (x *execution) Events() <-chan run.EngineEvent { return x.events }

func (x *execution) Wait(ctx context.Context) (map[string]any, error) {
	select {
	case <-x.done:
		x.mu.Lock()
		defer x.mu.Unlock()
		return x.output, x.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (x *execution) Cancel(ctx context.Context) error {
	x.cancel()
	select {
	case <-x.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loop steps through the graph one node at a time. skipGate suppresses the
// interrupt-before check for the first node only, so resumes make
// progress.
func (x *execution) loop(ctx context.Context, state State, node string, skipGate bool) {
	defer close(x.done)
	defer close(x.events)

	for node != "" {
		select {
		case <-ctx.Done():
			x.settle(nil, ctx.Err())
			return
		default:
		}

		if !skipGate && matchesGate(x.cfg.InterruptBefore, node) {
			x.suspend(ctx, state, node, map[string]any{"node": node, "when": "before"})
			return
		}
		skipGate = false

		fn, ok := x.graph.Node(node)
		if !ok {
			x.settle(nil, fmt.Errorf("graph references unknown node %q", node))
			return
		}

		update, err := fn(ctx, state)
		if ie, isInterrupt := AsInterrupt(err); isInterrupt {
			// The node runs again on resume, with the resume value in state.
			x.suspend(ctx, state, node, ie.Value)
			return
		}
		if err != nil {
			x.settle(nil, fmt.Errorf("node %q: %w", node, err))
			return
		}

		if update != nil {
			state.Merge(update)
		}
		delete(state, ResumeKey)

		x.emit(run.EngineEvent{Node: node, Data: map[string]any{
			"node":    node,
			"updates": update,
			"values":  state.Clone(),
		}})

		next := x.graph.Successor(node)
		if next != "" && matchesGate(x.cfg.InterruptAfter, node) {
			x.suspend(ctx, state, next, map[string]any{"node": node, "when": "after"})
			return
		}
		node = next
	}

	if x.resumedFrom != "" {
		if err := x.engine.checkpoints.Delete(ctx, x.resumedFrom); err != nil {
			x.engine.logger.Warn("failed to delete consumed checkpoint",
				zap.String("ref", x.resumedFrom), zap.Error(err))
		}
	}
	x.settle(map[string]any(state), nil)
}

// suspend checkpoints the execution and settles with the reserved
// suspension marker carrying a single resumable interrupt.
func (x *execution) suspend(ctx context.Context, state State, nextNode string, value any) {
	cp := &Checkpoint{
		Ref:         x.cfg.RunID,
		AssistantID: x.cfg.AssistantID,
		ThreadID:    x.cfg.ThreadID,
		State:       state.Clone(),
		NextNode:    nextNode,
	}
	if err := x.engine.checkpoints.Save(ctx, cp); err != nil {
		x.settle(nil, fmt.Errorf("save checkpoint: %w", err))
		return
	}

	x.settle(map[string]any{
		run.InterruptMarker: []any{map[string]any{
			"id":        uuid.NewString(),
			"value":     value,
			"resumable": true,
		}},
	}, nil)
}

func (x *execution) emit(ev run.EngineEvent) {
	select {
	case x.events <- ev:
	default:
		// A stalled consumer drops intermediate events rather than
		// stalling the workflow.
	}
}

func (x *execution) settle(output map[string]any, err error) {
	x.mu.Lock()
	x.output, x.err = output, err
	x.mu.Unlock()
}
