package types

import (
	"time"
)

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunStatusPending     RunStatus = "pending"
	RunStatusRunning     RunStatus = "running"
	RunStatusInterrupted RunStatus = "interrupted"
	RunStatusCompleted   RunStatus = "completed"
	RunStatusFailed      RunStatus = "failed"
	RunStatusCancelled   RunStatus = "cancelled"
)

// Terminal reports whether the status is final. Interrupted runs are not
// terminal: they can be resumed with a command.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// Active reports whether a run in this status still occupies its thread
// under the default contention policy.
func (s RunStatus) Active() bool {
	return s == RunStatusPending || s == RunStatusRunning
}

// CanTransition reports whether the state machine permits moving from s to
// next. Terminal states accept no further transitions.
func (s RunStatus) CanTransition(next RunStatus) bool {
	switch s {
	case RunStatusPending:
		return next == RunStatusRunning || next == RunStatusCancelled || next == RunStatusFailed
	case RunStatusRunning:
		return next == RunStatusInterrupted || next == RunStatusCompleted ||
			next == RunStatusFailed || next == RunStatusCancelled
	case RunStatusInterrupted:
		return next == RunStatusRunning || next == RunStatusCancelled
	}
	return false
}

// MultitaskStrategy governs what happens when a new run targets a thread
// that already has an active run.
type MultitaskStrategy string

const (
	MultitaskReject    MultitaskStrategy = "reject"
	MultitaskEnqueue   MultitaskStrategy = "enqueue"
	MultitaskInterrupt MultitaskStrategy = "interrupt"
	MultitaskParallel  MultitaskStrategy = "parallel"
)

// StreamMode selects a category of execution events relayed to the client.
type StreamMode string

const (
	StreamModeValues   StreamMode = "values"
	StreamModeUpdates  StreamMode = "updates"
	StreamModeMessages StreamMode = "messages"
	StreamModeEvents   StreamMode = "events"
	StreamModeDebug    StreamMode = "debug"
)

// DisconnectPolicy decides the fate of a run when its streaming client
// goes away.
type DisconnectPolicy string

const (
	DisconnectCancel   DisconnectPolicy = "cancel"
	DisconnectContinue DisconnectPolicy = "continue"
)

// OnCompletion controls thread retention once a run finishes.
type OnCompletion string

const (
	OnCompletionKeep   OnCompletion = "keep"
	OnCompletionDelete OnCompletion = "delete"
)

// ThreadStatus mirrors the state of a thread's most recent run.
type ThreadStatus string

const (
	ThreadStatusIdle        ThreadStatus = "idle"
	ThreadStatusBusy        ThreadStatus = "busy"
	ThreadStatusInterrupted ThreadStatus = "interrupted"
	ThreadStatusError       ThreadStatus = "error"
)

// Interrupt is one pending request for human input, surfaced verbatim to
// clients and on resume validation.
type Interrupt struct {
	ID        string `json:"id"`
	Value     any    `json:"value"`
	Resumable bool   `json:"resumable"`
}

// Command is a client-supplied resume instruction. Resume carries the value
// handed back to the suspended node; Update is merged into the saved state
// before execution continues (last write wins).
type Command struct {
	Resume any            `json:"resume,omitempty"`
	Update map[string]any `json:"update,omitempty"`
}

// Empty reports whether the command carries neither a resume value nor a
// state update.
func (c *Command) Empty() bool {
	return c == nil || (c.Resume == nil && len(c.Update) == 0)
}

// Run is one execution attempt of a workflow. Runs are owned by the
// orchestrator and mutated only through defined transitions; every update
// carries the last-seen Version for optimistic concurrency.
type Run struct {
	RunID       string    `json:"run_id" gorm:"primaryKey;column:run_id"`
	ThreadID    string    `json:"thread_id" gorm:"index;column:thread_id"`
	AssistantID string    `json:"assistant_id" gorm:"column:assistant_id"`
	Status      RunStatus `json:"status" gorm:"column:status"`

	// Input is the normalized request input, nil for resume runs.
	Input map[string]any `json:"input,omitempty" gorm:"serializer:json;type:text"`

	// Output is the last output: the engine's terminal output for completed
	// runs, or the suspension payload verbatim for interrupted ones.
	Output any `json:"output,omitempty" gorm:"serializer:json;type:text"`

	// Interrupts holds the parsed pending interrupts while Status is
	// interrupted.
	Interrupts []Interrupt `json:"interrupts,omitempty" gorm:"serializer:json;type:text"`

	// Error holds the failure cause when Status is failed.
	Error string `json:"error,omitempty" gorm:"column:error"`

	// ResumedBy is set when a later run consumed this run's interrupted
	// state. At most one resume may consume it.
	ResumedBy string `json:"resumed_by,omitempty" gorm:"column:resumed_by"`

	// CheckpointRef points at the engine checkpoint a resume run continues
	// from (the interrupted run's id).
	CheckpointRef string `json:"checkpoint_ref,omitempty" gorm:"column:checkpoint_ref"`

	Strategy MultitaskStrategy `json:"multitask_strategy,omitempty" gorm:"column:multitask_strategy"`
	Metadata map[string]any    `json:"metadata,omitempty" gorm:"serializer:json;type:text"`

	Version   int64     `json:"version" gorm:"column:version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep-enough copy for handing out across goroutines.
// Payload values are shared; callers must not mutate them.
func (r *Run) Clone() *Run {
	cp := *r
	if r.Interrupts != nil {
		cp.Interrupts = append([]Interrupt(nil), r.Interrupts...)
	}
	if r.Metadata != nil {
		cp.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// Thread is a logical conversation that runs execute against. LeaseOwner is
// the id of the run currently holding the thread lease, empty when free.
type Thread struct {
	ThreadID   string         `json:"thread_id" gorm:"primaryKey;column:thread_id"`
	Status     ThreadStatus   `json:"status" gorm:"column:status"`
	LeaseOwner string         `json:"-" gorm:"column:lease_owner"`
	Metadata   map[string]any `json:"metadata,omitempty" gorm:"serializer:json;type:text"`
	Version    int64          `json:"version" gorm:"column:version"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// MirrorStatus maps a run status onto the owning thread's status.
func MirrorStatus(s RunStatus) ThreadStatus {
	switch s {
	case RunStatusPending, RunStatusRunning:
		return ThreadStatusBusy
	case RunStatusInterrupted:
		return ThreadStatusInterrupted
	case RunStatusFailed:
		return ThreadStatusError
	default:
		return ThreadStatusIdle
	}
}
