package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/runflow/types"
)

// MemoryStore is an in-process RunStore. It backs tests and single-node
// deployments that do not need durability.
type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[string]*types.Run
	threads map[string]*types.Thread
	// seq orders runs per thread by insertion, independent of clock skew.
	seq     map[string]int64
	nextSeq int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:    make(map[string]*types.Run),
		threads: make(map[string]*types.Thread),
		seq:     make(map[string]int64),
	}
}

func (s *MemoryStore) CreateRun(_ context.Context, run *types.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.RunID]; ok {
		return ErrAlreadyExists
	}

	now := time.Now()
	cp := run.Clone()
	cp.Version = 1
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.runs[run.RunID] = cp
	s.nextSeq++
	s.seq[run.RunID] = s.nextSeq

	run.Version = cp.Version
	run.CreatedAt = cp.CreatedAt
	run.UpdatedAt = cp.UpdatedAt
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (*types.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return run.Clone(), nil
}

func (s *MemoryStore) UpdateRun(_ context.Context, run *types.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.runs[run.RunID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != run.Version {
		return ErrVersionConflict
	}

	cp := run.Clone()
	cp.Version = stored.Version + 1
	cp.CreatedAt = stored.CreatedAt
	cp.UpdatedAt = time.Now()
	s.runs[run.RunID] = cp

	run.Version = cp.Version
	run.UpdatedAt = cp.UpdatedAt
	return nil
}

func (s *MemoryStore) LatestRun(_ context.Context, threadID string) (*types.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *types.Run
	var latestSeq int64 = -1
	for id, run := range s.runs {
		if run.ThreadID != threadID {
			continue
		}
		if s.seq[id] > latestSeq {
			latest = run
			latestSeq = s.seq[id]
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest.Clone(), nil
}

func (s *MemoryStore) ListRuns(_ context.Context, threadID string, filter RunFilter) ([]*types.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Run
	for _, run := range s.runs {
		if run.ThreadID != threadID {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		out = append(out, run.Clone())
	}

	// Newest first.
	sort.Slice(out, func(i, j int) bool {
		return s.seq[out[i].RunID] > s.seq[out[j].RunID]
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) CreateThread(_ context.Context, thread *types.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[thread.ThreadID]; ok {
		return ErrAlreadyExists
	}

	now := time.Now()
	cp := *thread
	cp.Version = 1
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.threads[thread.ThreadID] = &cp

	thread.Version = cp.Version
	thread.CreatedAt = cp.CreatedAt
	thread.UpdatedAt = cp.UpdatedAt
	return nil
}

func (s *MemoryStore) GetThread(_ context.Context, threadID string) (*types.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	thread, ok := s.threads[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *thread
	return &cp, nil
}

func (s *MemoryStore) UpdateThread(_ context.Context, thread *types.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.threads[thread.ThreadID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != thread.Version {
		return ErrVersionConflict
	}

	cp := *thread
	cp.Version = stored.Version + 1
	cp.CreatedAt = stored.CreatedAt
	cp.UpdatedAt = time.Now()
	s.threads[thread.ThreadID] = &cp

	thread.Version = cp.Version
	thread.UpdatedAt = cp.UpdatedAt
	return nil
}

func (s *MemoryStore) DeleteThread(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[threadID]; !ok {
		return ErrNotFound
	}
	delete(s.threads, threadID)
	for id, run := range s.runs {
		if run.ThreadID == threadID {
			delete(s.runs, id)
			delete(s.seq, id)
		}
	}
	return nil
}

func (s *MemoryStore) AcquireLease(_ context.Context, threadID, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread, ok := s.threads[threadID]
	if !ok {
		return ErrNotFound
	}
	if thread.LeaseOwner != "" && thread.LeaseOwner != runID {
		return ErrLeaseHeld
	}
	thread.LeaseOwner = runID
	thread.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ReleaseLease(_ context.Context, threadID, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	thread, ok := s.threads[threadID]
	if !ok {
		return ErrNotFound
	}
	if thread.LeaseOwner == runID {
		thread.LeaseOwner = ""
		thread.UpdatedAt = time.Now()
	}
	return nil
}

var _ RunStore = (*MemoryStore)(nil)
