// Package seed builds initial particle graphs, either from a YAML seed file
// or randomly from a fixed RNG seed.
//
// Seed file format:
//
//	vertices:
//	  - id: 0
//	    species: electron
//	    energy: 3
//	  - id: 1
//	    species: positron
//	edges:
//	  - [0, 1]
package seed

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/nvandessel/fission/internal/graph"
	"github.com/nvandessel/fission/internal/particle"
	"github.com/nvandessel/fission/internal/store"
	"gopkg.in/yaml.v3"
)

// ErrDuplicateVertex is returned when a seed file lists the same id twice.
var ErrDuplicateVertex = errors.New("seed: duplicate vertex id")

// VertexSpec is one vertex in a seed file.
type VertexSpec struct {
	ID      uint64 `yaml:"id"`
	Species string `yaml:"species"`
	Energy  int    `yaml:"energy,omitempty"`
}

// File is the on-disk seed format.
type File struct {
	Vertices []VertexSpec `yaml:"vertices"`
	Edges    [][2]uint64  `yaml:"edges"`
}

// Load reads a seed file and builds its graph.
func Load(path string) (*graph.Graph[particle.Particle], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	return f.Build()
}

// Build creates the graph described by f. Every edge endpoint must be a
// listed vertex.
func (f File) Build() (*graph.Graph[particle.Particle], error) {
	g := graph.New[particle.Particle]()
	for _, v := range f.Vertices {
		if v.Species == "" {
			return nil, fmt.Errorf("vertex %d: species is required", v.ID)
		}
		p := particle.Particle{Species: v.Species, Energy: v.Energy}
		if !g.InsertVertex(graph.ID(v.ID), p) {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateVertex, v.ID)
		}
	}
	for _, e := range f.Edges {
		u, v := graph.ID(e[0]), graph.ID(e[1])
		if !g.Has(u) || !g.Has(v) {
			return nil, fmt.Errorf("edge %d -> %d references an unknown vertex", u, v)
		}
		g.AddEdge(u, v)
	}
	return g, nil
}

// Export converts a graph back into the seed file format, so a final state
// can be used to seed another run.
func Export(g *graph.Graph[particle.Particle]) File {
	var f File
	for _, id := range g.IDs() {
		v, _ := g.Vertex(id)
		f.Vertices = append(f.Vertices, VertexSpec{
			ID:      uint64(id),
			Species: v.Payload.Species,
			Energy:  v.Payload.Energy,
		})
	}
	for _, e := range g.Edges() {
		f.Edges = append(f.Edges, [2]uint64{uint64(e[0]), uint64(e[1])})
	}
	return f
}

// Restore rebuilds the particle graph stored in a run snapshot.
func Restore(snap store.Snapshot) (*graph.Graph[particle.Particle], error) {
	g := graph.New[particle.Particle]()
	for _, v := range snap.Vertices {
		var p particle.Particle
		if err := json.Unmarshal(v.Payload, &p); err != nil {
			return nil, fmt.Errorf("vertex %d: decoding payload: %w", v.ID, err)
		}
		if !g.InsertVertex(graph.ID(v.ID), p) {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateVertex, v.ID)
		}
	}
	for _, e := range snap.Edges {
		u, v := graph.ID(e.Source), graph.ID(e.Target)
		if !g.Has(u) || !g.Has(v) {
			return nil, fmt.Errorf("edge %d -> %d references an unknown vertex", u, v)
		}
		g.AddEdge(u, v)
	}
	return g, nil
}

// Marshal encodes f as a seed file.
func (f File) Marshal() ([]byte, error) {
	if f.Vertices == nil {
		f.Vertices = []VertexSpec{}
	}
	if f.Edges == nil {
		f.Edges = [][2]uint64{}
	}
	return yaml.Marshal(f)
}

// RandomConfig parameterizes Random.
type RandomConfig struct {
	Vertices        int
	EdgeProbability float64
	Species         []string
	Energy          int
	RNGSeed         uint64
}

// Random builds a graph of cfg.Vertices particles with species drawn
// uniformly from cfg.Species. Each ordered pair of distinct vertices gets an
// edge with probability cfg.EdgeProbability. The same RNGSeed always yields
// the same graph.
func Random(cfg RandomConfig) (*graph.Graph[particle.Particle], error) {
	if cfg.Vertices < 0 {
		return nil, fmt.Errorf("vertices must be non-negative, got %d", cfg.Vertices)
	}
	if cfg.EdgeProbability < 0 || cfg.EdgeProbability > 1 {
		return nil, fmt.Errorf("edge probability must be between 0 and 1, got %f", cfg.EdgeProbability)
	}
	if len(cfg.Species) == 0 {
		return nil, fmt.Errorf("at least one species is required")
	}

	rng := rand.New(rand.NewPCG(cfg.RNGSeed, cfg.RNGSeed^0x9e3779b97f4a7c15))
	g := graph.New[particle.Particle]()
	ids := make([]graph.ID, cfg.Vertices)
	for i := range ids {
		ids[i] = g.CreateVertex(particle.Particle{
			Species: cfg.Species[rng.IntN(len(cfg.Species))],
			Energy:  cfg.Energy,
		})
	}
	for _, u := range ids {
		for _, v := range ids {
			if u != v && rng.Float64() < cfg.EdgeProbability {
				g.AddEdge(u, v)
			}
		}
	}
	return g, nil
}
