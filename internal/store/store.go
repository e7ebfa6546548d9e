// Package store defines the HistoryStore interface for recording simulation
// runs: one row per run, one row per step, and the final graph snapshot.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("store: run not found")

// Run describes one simulation run.
type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	State      string     `json:"state"`  // "running", "stable", "empty", "aborted"
	Steps      int        `json:"steps"`  // completed steps
	Source     string     `json:"source"` // seed file path or "random:<seed>"
	Rules      string     `json:"rules"`  // rules file path or "default"
}

// StepRecord is the persisted form of one completed step.
type StepRecord struct {
	Iter      int           `json:"iter"`
	Vertices  int           `json:"vertices"`
	Edges     int           `json:"num_edges"`
	Collected int           `json:"collected"`
	Applied   int           `json:"applied"`
	Stale     bool          `json:"stale"`
	IterTime  time.Duration `json:"iter_time"`
	Mem       *uint64       `json:"mem,omitempty"`
}

// VertexRecord is one vertex of a stored snapshot.
type VertexRecord struct {
	ID      uint64          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// EdgeRecord is one directed edge of a stored snapshot.
type EdgeRecord struct {
	Source uint64 `json:"source"`
	Target uint64 `json:"target"`
}

// Snapshot is the stored final state of a run.
type Snapshot struct {
	Vertices []VertexRecord `json:"vertices"`
	Edges    []EdgeRecord   `json:"edges"`
}

// HistoryStore records simulation runs.
type HistoryStore interface {
	// BeginRun stores a new run and returns its id. A fresh id is assigned
	// when run.ID is empty.
	BeginRun(ctx context.Context, run Run) (string, error)

	// RecordStep appends one step to a run.
	RecordStep(ctx context.Context, runID string, step StepRecord) error

	// FinishRun marks a run finished and stores its final snapshot.
	FinishRun(ctx context.Context, runID string, state string, steps int, snap Snapshot) error

	// GetRun returns ErrRunNotFound for unknown ids.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// ListRuns returns the most recent runs first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	GetSteps(ctx context.Context, runID string) ([]StepRecord, error)
	GetSnapshot(ctx context.Context, runID string) (*Snapshot, error)

	// DeleteRun removes a run with its steps and snapshot.
	DeleteRun(ctx context.Context, runID string) error

	Close() error
}
