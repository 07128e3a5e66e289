package run

import (
	"context"

	"github.com/BaSui01/runflow/types"
)

// EngineEvent is one intermediate event produced by the execution engine
// while a run is in flight.
type EngineEvent struct {
	// Node is the graph node the event originated from, when known.
	Node string `json:"node,omitempty"`
	// Data is the event payload.
	Data any `json:"data"`
}

// EngineConfig directs one engine invocation.
type EngineConfig struct {
	RunID       string
	ThreadID    string
	AssistantID string

	// Input is the normalized request input. Nil for resumes.
	Input map[string]any

	// InterruptBefore and InterruptAfter name nodes the engine must suspend
	// around. The wildcard "*" matches every node.
	InterruptBefore []string
	InterruptAfter  []string
}

// Execution is a handle on one in-flight engine invocation.
type Execution interface {
	// Events returns the engine's intermediate event sequence. The channel
	// is closed once the terminal output is available.
	Events() <-chan EngineEvent

	// Wait blocks until the engine produces its terminal output or fails.
	// The returned output may carry the reserved suspension marker; callers
	// classify it through the interrupt detector.
	Wait(ctx context.Context) (map[string]any, error)

	// Cancel delivers a cooperative cancellation signal and blocks until
	// the engine acknowledges it or ctx expires.
	Cancel(ctx context.Context) error
}

// Engine is the opaque workflow execution capability the orchestrator
// drives. Implementations may be slow; both entry points must honor
// context cancellation.
type Engine interface {
	// Start launches a fresh workflow execution.
	Start(ctx context.Context, cfg EngineConfig) (Execution, error)

	// Resume continues a suspended execution from the checkpoint reference,
	// applying the command's resume value and state update atop the saved
	// state.
	Resume(ctx context.Context, checkpointRef string, cmd types.Command, cfg EngineConfig) (Execution, error)
}
