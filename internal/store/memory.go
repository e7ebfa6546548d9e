package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRun struct {
	run   Run
	steps map[int]StepRecord
	snap  Snapshot
}

// InMemoryHistoryStore implements HistoryStore for testing and for runs
// started with history disabled.
type InMemoryHistoryStore struct {
	mu   sync.RWMutex
	runs map[string]*memoryRun
}

// NewInMemoryHistoryStore creates a new in-memory store.
func NewInMemoryHistoryStore() *InMemoryHistoryStore {
	return &InMemoryHistoryStore{runs: make(map[string]*memoryRun)}
}

// BeginRun stores a new run.
func (s *InMemoryHistoryStore) BeginRun(ctx context.Context, run Run) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if _, exists := s.runs[run.ID]; exists {
		return "", fmt.Errorf("run already exists: %s", run.ID)
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.State == "" {
		run.State = "running"
	}
	s.runs[run.ID] = &memoryRun{run: run, steps: make(map[int]StepRecord)}
	return run.ID, nil
}

// RecordStep appends a step to a run.
func (s *InMemoryHistoryStore) RecordStep(ctx context.Context, runID string, step StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	r.steps[step.Iter] = step
	if step.Iter+1 > r.run.Steps {
		r.run.Steps = step.Iter + 1
	}
	return nil
}

// FinishRun marks a run finished.
func (s *InMemoryHistoryStore) FinishRun(ctx context.Context, runID string, state string, steps int, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	now := time.Now()
	r.run.FinishedAt = &now
	r.run.State = state
	r.run.Steps = steps
	r.snap = snap
	return nil
}

// GetRun returns a copy of the run.
func (s *InMemoryHistoryStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	run := r.run
	return &run, nil
}

// ListRuns returns runs newest first.
func (s *InMemoryHistoryStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]Run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r.run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID < runs[j].ID
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// GetSteps returns a run's steps in iteration order.
func (s *InMemoryHistoryStore) GetSteps(ctx context.Context, runID string) ([]StepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	steps := make([]StepRecord, 0, len(r.steps))
	for _, st := range r.steps {
		steps = append(steps, st)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Iter < steps[j].Iter })
	return steps, nil
}

// GetSnapshot returns the run's final snapshot.
func (s *InMemoryHistoryStore) GetSnapshot(ctx context.Context, runID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	snap := Snapshot{
		Vertices: append([]VertexRecord(nil), r.snap.Vertices...),
		Edges:    append([]EdgeRecord(nil), r.snap.Edges...),
	}
	return &snap, nil
}

// DeleteRun removes a run.
func (s *InMemoryHistoryStore) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	delete(s.runs, runID)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryHistoryStore) Close() error {
	return nil
}

var _ HistoryStore = (*InMemoryHistoryStore)(nil)
