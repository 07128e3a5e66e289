package workflow

import (
	"context"
	"sync"
	"time"
)

// Checkpoint freezes a suspended execution: the accumulated state and the
// node to run next. A resume never re-checks the next node's interrupt
// gate, so execution always makes progress.
type Checkpoint struct {
	Ref         string         `json:"ref"`
	AssistantID string         `json:"assistant_id"`
	ThreadID    string         `json:"thread_id"`
	State       map[string]any `json:"state"`
	NextNode    string         `json:"next_node"`
	CreatedAt   time.Time      `json:"created_at"`
}

// CheckpointStore persists suspended executions between the interrupt and
// its resume.
type CheckpointStore interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, ref string) (*Checkpoint, error)
	Delete(ctx context.Context, ref string) error
}

// ErrCheckpointNotFound is returned when no checkpoint exists for a ref.
var ErrCheckpointNotFound = errCheckpointNotFound{}

type errCheckpointNotFound struct{}

func (errCheckpointNotFound) Error() string { return "checkpoint not found" }

// MemoryCheckpointStore keeps checkpoints in process memory.
type MemoryCheckpointStore struct {
	mu  sync.RWMutex
	cps map[string]*Checkpoint
}

// NewMemoryCheckpointStore creates an empty checkpoint store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{cps: make(map[string]*Checkpoint)}
}

func (s *MemoryCheckpointStore) Save(_ context.Context, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := *cp
	saved.State = State(cp.State).Clone()
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = time.Now()
	}
	s.cps[cp.Ref] = &saved
	return nil
}

func (s *MemoryCheckpointStore) Load(_ context.Context, ref string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.cps[ref]
	if !ok {
		return nil, ErrCheckpointNotFound
	}
	out := *cp
	out.State = State(cp.State).Clone()
	return &out, nil
}

func (s *MemoryCheckpointStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cps, ref)
	return nil
}
