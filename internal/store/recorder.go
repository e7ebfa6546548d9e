package store

import (
	"context"

	"github.com/nvandessel/fission/internal/simulation"
)

// Recorder writes every completed step of one run to a HistoryStore. It
// implements simulation.StepObserver.
type Recorder struct {
	ctx   context.Context
	store HistoryStore
	runID string
}

// NewRecorder begins run in s and returns a recorder for it. Writes ignore
// ctx cancellation so an interrupted run is still recorded.
func NewRecorder(ctx context.Context, s HistoryStore, run Run) (*Recorder, error) {
	id, err := s.BeginRun(context.WithoutCancel(ctx), run)
	if err != nil {
		return nil, err
	}
	return &Recorder{ctx: ctx, store: s, runID: id}, nil
}

// RunID returns the id of the recorded run.
func (r *Recorder) RunID() string { return r.runID }

// ObserveStep records one step. The mem column is the driver's sample for
// the step, if any.
func (r *Recorder) ObserveStep(rep simulation.StepReport) error {
	return r.store.RecordStep(context.WithoutCancel(r.ctx), r.runID, StepRecord{
		Iter:      rep.Index,
		Vertices:  rep.Vertices,
		Edges:     rep.Edges,
		Collected: rep.Collected,
		Applied:   rep.Applied,
		Stale:     rep.Stale,
		IterTime:  rep.Duration,
		Mem:       rep.Mem,
	})
}

// Finish stores the final state and snapshot.
func (r *Recorder) Finish(state string, steps int, snap Snapshot) error {
	return r.store.FinishRun(context.WithoutCancel(r.ctx), r.runID, state, steps, snap)
}
