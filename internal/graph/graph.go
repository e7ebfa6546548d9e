// Package graph provides the directed graph store that owns every vertex of
// a simulation. Each vertex keeps two redundant edge sets: the ids it points
// to (adjacency) and the ids that point to it (incidency). Only the store
// mutates those sets, so the two always mirror each other:
//
//	v in Adjacent(u)  <=>  u in Incident(v)  <=>  edge u -> v exists
//
// Operations that reference unknown ids are no-ops and never fail.
//
// A Graph is not safe for concurrent use.
package graph

import (
	"math"
	"slices"
)

// ID identifies a vertex within a single Graph.
type ID uint64

// idSet is an unordered set of vertex ids.
type idSet map[ID]struct{}

func (s idSet) sorted() []ID {
	ids := make([]ID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Vertex is a record owned by a Graph. A *Vertex returned by the store is a
// borrowed reference: it stays valid only until the next mutating call.
type Vertex[P any] struct {
	id ID

	// Payload is the domain value carried by the vertex. Interaction
	// oracles may modify it in place.
	Payload P

	adjacent idSet
	incident idSet
}

// ID returns the vertex identifier.
func (v *Vertex[P]) ID() ID { return v.id }

// Adjacent returns the ids this vertex points to, in ascending order.
func (v *Vertex[P]) Adjacent() []ID { return v.adjacent.sorted() }

// Incident returns the ids pointing to this vertex, in ascending order.
func (v *Vertex[P]) Incident() []ID { return v.incident.sorted() }

// OutDegree returns the size of the adjacency set.
func (v *Vertex[P]) OutDegree() int { return len(v.adjacent) }

// InDegree returns the size of the incidency set.
func (v *Vertex[P]) InDegree() int { return len(v.incident) }

// PointsTo reports whether the vertex has an outgoing edge to id.
func (v *Vertex[P]) PointsTo(id ID) bool {
	_, ok := v.adjacent[id]
	return ok
}

// Graph is a directed graph keyed by ID. It exclusively owns its vertices.
type Graph[P any] struct {
	vertices map[ID]*Vertex[P]
	nextID   ID
}

// New creates an empty graph.
func New[P any]() *Graph[P] {
	return &Graph[P]{
		vertices: make(map[ID]*Vertex[P]),
	}
}

// CreateVertex stores payload under a fresh id and returns that id.
// Ids handed out by CreateVertex are never reused by it, even after removal,
// and a live vertex is never overwritten.
func (g *Graph[P]) CreateVertex(payload P) ID {
	for g.Has(g.nextID) {
		g.nextID++
	}
	id := g.nextID
	g.nextID++
	g.vertices[id] = newVertex(id, payload)
	return id
}

// InsertVertex stores payload under an explicit id. It returns false and
// leaves the graph unchanged if id is already live.
func (g *Graph[P]) InsertVertex(id ID, payload P) bool {
	if g.Has(id) {
		return false
	}
	g.vertices[id] = newVertex(id, payload)
	// math.MaxUint64 + 1 would wrap the counter back to 0.
	if id >= g.nextID && id != math.MaxUint64 {
		g.nextID = id + 1
	}
	return true
}

func newVertex[P any](id ID, payload P) *Vertex[P] {
	return &Vertex[P]{
		id:       id,
		Payload:  payload,
		adjacent: make(idSet),
		incident: make(idSet),
	}
}

// Vertex returns a borrowed reference to the vertex with the given id.
func (g *Graph[P]) Vertex(id ID) (*Vertex[P], bool) {
	v, ok := g.vertices[id]
	return v, ok
}

// Has reports whether id is live.
func (g *Graph[P]) Has(id ID) bool {
	_, ok := g.vertices[id]
	return ok
}

// RemoveVertex deletes the vertex and every edge that references it.
// Every vertex in the store is scanned. It returns false for unknown ids.
func (g *Graph[P]) RemoveVertex(id ID) bool {
	if !g.Has(id) {
		return false
	}
	for _, v := range g.vertices {
		delete(v.adjacent, id)
		delete(v.incident, id)
	}
	delete(g.vertices, id)
	return true
}

// HasEdge reports whether the directed edge u -> v exists.
func (g *Graph[P]) HasEdge(u, v ID) bool {
	from, ok := g.vertices[u]
	if !ok {
		return false
	}
	return from.PointsTo(v)
}

// AddEdge adds the directed edge u -> v. It is idempotent and does nothing
// when either endpoint is missing. Self-loops are allowed.
func (g *Graph[P]) AddEdge(u, v ID) {
	from, ok := g.vertices[u]
	if !ok {
		return
	}
	to, ok := g.vertices[v]
	if !ok {
		return
	}
	from.adjacent[v] = struct{}{}
	to.incident[u] = struct{}{}
}

// RemoveEdge removes the directed edge u -> v if present.
func (g *Graph[P]) RemoveEdge(u, v ID) {
	from, ok := g.vertices[u]
	if !ok {
		return
	}
	to, ok := g.vertices[v]
	if !ok {
		return
	}
	delete(from.adjacent, v)
	delete(to.incident, u)
}

// Len returns the number of live vertices.
func (g *Graph[P]) Len() int { return len(g.vertices) }

// EdgeCount returns the number of directed edges, i.e. the sum of all
// adjacency set sizes.
func (g *Graph[P]) EdgeCount() int {
	n := 0
	for _, v := range g.vertices {
		n += len(v.adjacent)
	}
	return n
}

// IDs returns all live ids in ascending order. This is the iteration order
// used by the transaction engine.
func (g *Graph[P]) IDs() []ID {
	ids := make([]ID, 0, len(g.vertices))
	for id := range g.vertices {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Edges returns every directed edge as [source, target] pairs, ordered by
// source then target.
func (g *Graph[P]) Edges() [][2]ID {
	edges := make([][2]ID, 0, g.EdgeCount())
	for _, id := range g.IDs() {
		for _, to := range g.vertices[id].Adjacent() {
			edges = append(edges, [2]ID{id, to})
		}
	}
	return edges
}
