package store

import (
	"context"
	"errors"

	"github.com/BaSui01/runflow/types"
)

// Sentinel errors reported by RunStore implementations. The orchestrator
// maps these onto the client-facing error taxonomy.
var (
	// ErrNotFound is returned when a run or thread does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrVersionConflict is returned when an update's version does not
	// match the stored version.
	ErrVersionConflict = errors.New("store: version conflict")

	// ErrLeaseHeld is returned when a lease acquisition loses to another
	// holder.
	ErrLeaseHeld = errors.New("store: thread lease held")

	// ErrAlreadyExists is returned when creating a run or thread whose id
	// is already taken.
	ErrAlreadyExists = errors.New("store: already exists")
)

// RunFilter narrows ListRuns results.
type RunFilter struct {
	Status types.RunStatus // empty matches all
	Limit  int             // 0 means no limit
	Offset int
}

// RunStore is the narrow persistence interface for run and thread records.
// All updates use optimistic concurrency: the write is accepted only when
// the supplied record's Version matches the stored one, and the stored
// version is incremented atomically. The thread lease compare-and-set is
// the single synchronization primitive shared across runs.
type RunStore interface {
	// CreateRun persists a new run at version 1.
	CreateRun(ctx context.Context, run *types.Run) error

	// GetRun retrieves a run by id.
	GetRun(ctx context.Context, runID string) (*types.Run, error)

	// UpdateRun writes the run if run.Version matches the stored version,
	// incrementing it. Returns ErrVersionConflict otherwise.
	UpdateRun(ctx context.Context, run *types.Run) error

	// LatestRun returns the most recently created run on the thread.
	LatestRun(ctx context.Context, threadID string) (*types.Run, error)

	// ListRuns returns runs on the thread, newest first.
	ListRuns(ctx context.Context, threadID string, filter RunFilter) ([]*types.Run, error)

	// CreateThread persists a new thread at version 1.
	CreateThread(ctx context.Context, thread *types.Thread) error

	// GetThread retrieves a thread by id.
	GetThread(ctx context.Context, threadID string) (*types.Thread, error)

	// UpdateThread writes the thread under the same version contract as
	// UpdateRun.
	UpdateThread(ctx context.Context, thread *types.Thread) error

	// DeleteThread removes a thread and its runs.
	DeleteThread(ctx context.Context, threadID string) error

	// AcquireLease atomically sets the thread's lease owner to runID if no
	// owner is set. Returns ErrLeaseHeld when another run holds it.
	AcquireLease(ctx context.Context, threadID, runID string) error

	// ReleaseLease clears the lease if runID is the current owner. Releasing
	// a lease not held by runID is a no-op.
	ReleaseLease(ctx context.Context, threadID, runID string) error
}
