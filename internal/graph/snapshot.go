package graph

import "slices"

// VertexState is a detached copy of one vertex.
type VertexState[P any] struct {
	Payload  P
	Adjacent []ID
	Incident []ID
}

// State is a detached structural copy of a graph: the vertex set, every
// payload, and both edge sets of every vertex.
type State[P any] struct {
	Vertices map[ID]VertexState[P]
}

// Snapshot copies the full structural state of the graph. clone produces an
// independent copy of a payload; pass nil for payloads that are plain values.
func (g *Graph[P]) Snapshot(clone func(P) P) State[P] {
	st := State[P]{Vertices: make(map[ID]VertexState[P], len(g.vertices))}
	for id, v := range g.vertices {
		p := v.Payload
		if clone != nil {
			p = clone(p)
		}
		st.Vertices[id] = VertexState[P]{
			Payload:  p,
			Adjacent: v.Adjacent(),
			Incident: v.Incident(),
		}
	}
	return st
}

// Len returns the number of vertices in the snapshot.
func (s State[P]) Len() int { return len(s.Vertices) }

// Equal reports whether two snapshots describe the same graph. eq compares
// payloads.
func (s State[P]) Equal(other State[P], eq func(a, b P) bool) bool {
	if len(s.Vertices) != len(other.Vertices) {
		return false
	}
	for id, a := range s.Vertices {
		b, ok := other.Vertices[id]
		if !ok {
			return false
		}
		if !slices.Equal(a.Adjacent, b.Adjacent) || !slices.Equal(a.Incident, b.Incident) {
			return false
		}
		if !eq(a.Payload, b.Payload) {
			return false
		}
	}
	return true
}
