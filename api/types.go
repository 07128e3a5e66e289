package api

import (
	"github.com/BaSui01/runflow/types"
)

// CreateThreadRequest creates a conversation thread. ThreadID is optional;
// a uuid is generated when omitted.
type CreateThreadRequest struct {
	ThreadID string         `json:"thread_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ThreadState is the aggregate view of a thread: its mirrored status plus
// the latest run's output and pending interrupts.
type ThreadState struct {
	ThreadID   string             `json:"thread_id"`
	Status     types.ThreadStatus `json:"status"`
	Values     any                `json:"values,omitempty"`
	Interrupts []types.Interrupt  `json:"interrupts,omitempty"`
	LatestRun  string             `json:"latest_run_id,omitempty"`
}

// Assistant identifies one registered workflow graph.
type Assistant struct {
	AssistantID string `json:"assistant_id"`
}

// AssistantList is the set of registered assistants, sorted by id.
type AssistantList struct {
	Assistants []Assistant `json:"assistants"`
}

// RunList is a page of runs on a thread, newest first.
type RunList struct {
	Runs   []*types.Run `json:"runs"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}
