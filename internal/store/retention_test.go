package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func runsAged(now time.Time, hours ...int) []Run {
	runs := make([]Run, len(hours))
	for i, h := range hours {
		runs[i] = Run{ID: string(rune('a' + i)), StartedAt: now.Add(-time.Duration(h) * time.Hour)}
	}
	return runs
}

func TestCountPolicy_KeepsN(t *testing.T) {
	runs := runsAged(time.Now(), 0, 1, 2, 3, 4)

	keep := (&CountPolicy{MaxCount: 3}).Apply(runs)
	if len(keep) != 3 {
		t.Fatalf("CountPolicy.Apply() kept %d, want 3", len(keep))
	}
	if keep[0].ID != "a" || keep[2].ID != "c" {
		t.Errorf("kept %s..%s, want a..c", keep[0].ID, keep[2].ID)
	}

	if keep := (&CountPolicy{MaxCount: 10}).Apply(runs); len(keep) != 5 {
		t.Errorf("CountPolicy.Apply() kept %d, want all 5", len(keep))
	}
}

func TestAgePolicy_RemovesOld(t *testing.T) {
	runs := runsAged(time.Now(), 1, 12, 48, 720)

	keep := (&AgePolicy{MaxAge: 24 * time.Hour}).Apply(runs)
	if len(keep) != 2 {
		t.Errorf("AgePolicy.Apply() kept %d, want 2", len(keep))
	}
}

func TestCompositePolicy_Union(t *testing.T) {
	runs := runsAged(time.Now(), 1, 2, 48, 72)

	policy := &CompositePolicy{Policies: []RetentionPolicy{
		&CountPolicy{MaxCount: 1},
		&AgePolicy{MaxAge: 24 * time.Hour},
	}}
	keep := policy.Apply(runs)
	if len(keep) != 2 || keep[0].ID != "a" || keep[1].ID != "b" {
		t.Errorf("CompositePolicy.Apply() = %+v, want a and b", keep)
	}
}

func TestPruneRuns(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryHistoryStore()
	for _, r := range runsAged(time.Now(), 0, 1, 2) {
		if _, err := s.BeginRun(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	deleted, err := PruneRuns(ctx, s, &CountPolicy{MaxCount: 1})
	if err != nil {
		t.Fatalf("PruneRuns() error = %v", err)
	}
	if len(deleted) != 2 {
		t.Errorf("deleted = %v, want 2 runs", deleted)
	}

	runs, _ := s.ListRuns(ctx, 0)
	if len(runs) != 1 || runs[0].ID != "a" {
		t.Errorf("remaining runs = %+v, want only a", runs)
	}
	if _, err := s.GetRun(ctx, "b"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun(b) error = %v, want ErrRunNotFound", err)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"720h", 720 * time.Hour, false},
		{"30d", 30 * 24 * time.Hour, false},
		{"2w", 14 * 24 * time.Hour, false},
		{"", 0, true},
		{"x", 0, true},
		{"5y", 0, true},
		{"abcd", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
