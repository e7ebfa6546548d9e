package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInMemoryHistoryStore_Lifecycle(t *testing.T) {
	s := NewInMemoryHistoryStore()
	ctx := context.Background()

	id, err := s.BeginRun(ctx, Run{Rules: "default"})
	if err != nil {
		t.Fatalf("BeginRun() error = %v", err)
	}
	if _, err := s.BeginRun(ctx, Run{ID: id}); err == nil {
		t.Error("BeginRun() with a duplicate id should fail")
	}

	for _, iter := range []int{1, 0} {
		if err := s.RecordStep(ctx, id, StepRecord{Iter: iter, Vertices: 3 - iter}); err != nil {
			t.Fatalf("RecordStep() error = %v", err)
		}
	}

	steps, err := s.GetSteps(ctx, id)
	if err != nil {
		t.Fatalf("GetSteps() error = %v", err)
	}
	if len(steps) != 2 || steps[0].Iter != 0 || steps[1].Iter != 1 {
		t.Errorf("GetSteps() = %+v, want iters 0 and 1 in order", steps)
	}

	snap := Snapshot{Edges: []EdgeRecord{{Source: 1, Target: 2}}}
	if err := s.FinishRun(ctx, id, "empty", 2, snap); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}
	run, _ := s.GetRun(ctx, id)
	if run.State != "empty" || run.FinishedAt == nil {
		t.Errorf("run = %+v", run)
	}

	got, _ := s.GetSnapshot(ctx, id)
	got.Edges[0].Source = 99
	again, _ := s.GetSnapshot(ctx, id)
	if again.Edges[0].Source != 1 {
		t.Error("GetSnapshot() returned a shared slice")
	}
}

func TestInMemoryHistoryStore_ListRuns(t *testing.T) {
	s := NewInMemoryHistoryStore()
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.BeginRun(ctx, Run{ID: "old", StartedAt: base})
	s.BeginRun(ctx, Run{ID: "new", StartedAt: base.Add(time.Minute)})

	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != "new" {
		t.Errorf("ListRuns(1) = %+v, want [new]", runs)
	}
}

func TestInMemoryHistoryStore_NotFound(t *testing.T) {
	s := NewInMemoryHistoryStore()
	ctx := context.Background()

	if _, err := s.GetRun(ctx, "x"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun() error = %v", err)
	}
	if err := s.RecordStep(ctx, "x", StepRecord{}); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("RecordStep() error = %v", err)
	}
}
