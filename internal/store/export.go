package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nvandessel/fission/internal/graph"
)

// SnapshotOf serializes every vertex payload of g as JSON.
func SnapshotOf[P any](g *graph.Graph[P]) (Snapshot, error) {
	snap := Snapshot{}
	for _, id := range g.IDs() {
		v, _ := g.Vertex(id)
		payload, err := json.Marshal(v.Payload)
		if err != nil {
			return Snapshot{}, fmt.Errorf("failed to marshal vertex %d: %w", id, err)
		}
		snap.Vertices = append(snap.Vertices, VertexRecord{ID: uint64(id), Payload: payload})
	}
	for _, e := range g.Edges() {
		snap.Edges = append(snap.Edges, EdgeRecord{Source: uint64(e[0]), Target: uint64(e[1])})
	}
	return snap, nil
}

type exportLine struct {
	Type string `json:"type"`
	Run  *Run   `json:"run,omitempty"`
	*StepRecord
	Vertex *VertexRecord `json:"vertex,omitempty"`
	Edge   *EdgeRecord   `json:"edge,omitempty"`
}

// ExportJSONL writes a run as JSON lines: the run header, then one line per
// step, per snapshot vertex and per snapshot edge.
func ExportJSONL(ctx context.Context, s HistoryStore, runID string, w io.Writer) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	steps, err := s.GetSteps(ctx, runID)
	if err != nil {
		return err
	}
	snap, err := s.GetSnapshot(ctx, runID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(exportLine{Type: "run", Run: run}); err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	for i := range steps {
		if err := enc.Encode(exportLine{Type: "step", StepRecord: &steps[i]}); err != nil {
			return fmt.Errorf("failed to encode step %d: %w", steps[i].Iter, err)
		}
	}
	for i := range snap.Vertices {
		if err := enc.Encode(exportLine{Type: "vertex", Vertex: &snap.Vertices[i]}); err != nil {
			return fmt.Errorf("failed to encode vertex %d: %w", snap.Vertices[i].ID, err)
		}
	}
	for i := range snap.Edges {
		if err := enc.Encode(exportLine{Type: "edge", Edge: &snap.Edges[i]}); err != nil {
			return fmt.Errorf("failed to encode edge: %w", err)
		}
	}
	return nil
}
