package graph

import "testing"

type counter struct {
	n *int
}

func cloneCounter(c counter) counter {
	n := *c.n
	return counter{n: &n}
}

func equalCounter(a, b counter) bool { return *a.n == *b.n }

func TestSnapshot_EqualAfterNoChange(t *testing.T) {
	g := New[string]()
	a := g.CreateVertex("a")
	b := g.CreateVertex("b")
	g.AddEdge(a, b)

	before := g.Snapshot(nil)
	after := g.Snapshot(nil)

	eq := func(x, y string) bool { return x == y }
	if !before.Equal(after, eq) {
		t.Error("identical snapshots compare unequal")
	}
	if before.Len() != 2 {
		t.Errorf("Len() = %d, want 2", before.Len())
	}
}

func TestSnapshot_DetectsChanges(t *testing.T) {
	eq := func(x, y string) bool { return x == y }

	tests := []struct {
		name   string
		mutate func(g *Graph[string])
	}{
		{"edge added", func(g *Graph[string]) { g.AddEdge(1, 0) }},
		{"edge removed", func(g *Graph[string]) { g.RemoveEdge(0, 1) }},
		{"vertex removed", func(g *Graph[string]) { g.RemoveVertex(1) }},
		{"vertex added", func(g *Graph[string]) { g.CreateVertex("c") }},
		{"payload changed", func(g *Graph[string]) {
			v, _ := g.Vertex(0)
			v.Payload = "z"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New[string]()
			g.InsertVertex(0, "a")
			g.InsertVertex(1, "b")
			g.AddEdge(0, 1)

			before := g.Snapshot(nil)
			tt.mutate(g)
			if before.Equal(g.Snapshot(nil), eq) {
				t.Error("snapshot did not detect change")
			}
		})
	}
}

func TestSnapshot_ClonesPayloads(t *testing.T) {
	g := New[counter]()
	n := 1
	id := g.CreateVertex(counter{n: &n})

	before := g.Snapshot(cloneCounter)
	v, _ := g.Vertex(id)
	*v.Payload.n = 2

	if before.Equal(g.Snapshot(cloneCounter), equalCounter) {
		t.Error("in-place payload mutation not detected; payload was not cloned")
	}
}
