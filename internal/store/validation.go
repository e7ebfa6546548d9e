package store

import (
	"encoding/json"
	"fmt"
)

// ValidationError describes a stored snapshot inconsistency.
type ValidationError struct {
	VertexID uint64 `json:"vertex_id"`
	RefID    uint64 `json:"ref_id,omitempty"`
	Issue    string `json:"issue"` // "duplicate", "dangling", "payload"
}

// String returns a human-readable description of the validation error.
func (e ValidationError) String() string {
	switch e.Issue {
	case "dangling":
		return fmt.Sprintf("dangling: edge %d->%d references a missing vertex", e.VertexID, e.RefID)
	case "duplicate":
		return fmt.Sprintf("duplicate: vertex %d stored more than once", e.VertexID)
	default:
		return fmt.Sprintf("%s: vertex %d", e.Issue, e.VertexID)
	}
}

// ValidateSnapshot checks that every edge endpoint is a stored vertex, that
// vertex ids are unique and that every payload is valid JSON.
func ValidateSnapshot(snap Snapshot) []ValidationError {
	var errs []ValidationError

	ids := make(map[uint64]bool, len(snap.Vertices))
	for _, v := range snap.Vertices {
		if ids[v.ID] {
			errs = append(errs, ValidationError{VertexID: v.ID, Issue: "duplicate"})
		}
		ids[v.ID] = true
		if !json.Valid(v.Payload) {
			errs = append(errs, ValidationError{VertexID: v.ID, Issue: "payload"})
		}
	}

	for _, e := range snap.Edges {
		if !ids[e.Source] || !ids[e.Target] {
			errs = append(errs, ValidationError{VertexID: e.Source, RefID: e.Target, Issue: "dangling"})
		}
	}
	return errs
}
