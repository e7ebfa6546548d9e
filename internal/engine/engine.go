package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nvandessel/fission/internal/graph"
	"github.com/nvandessel/fission/internal/logging"
)

// Engine collects and applies interaction transactions against a graph.
type Engine[P any] struct {
	oracle Oracle[P]
	logger *slog.Logger
	trace  *logging.TraceLogger
}

// Option configures an Engine.
type Option[P any] func(*Engine[P])

// WithLogger sets the operational logger.
func WithLogger[P any](l *slog.Logger) Option[P] {
	return func(e *Engine[P]) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTrace records every collected and applied transaction.
func WithTrace[P any](t *logging.TraceLogger) Option[P] {
	return func(e *Engine[P]) { e.trace = t }
}

// New creates an engine that delegates interactions to oracle.
func New[P any](oracle Oracle[P], opts ...Option[P]) *Engine[P] {
	e := &Engine[P]{
		oracle: oracle,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ApplyReport summarizes one apply pass.
type ApplyReport struct {
	Applied  int // transactions fully applied
	Emitted  int // vertices inserted
	Consumed int // parent vertices removed
}

// Collect scans the graph and returns at most one transaction per source
// vertex. Vertices are visited in ascending id order and each vertex's
// adjacency set in ascending id order; the first eligible neighbor wins.
//
// A neighbor is eligible when it is not the vertex itself and is not already
// the source of a transaction collected this step. Being the target of
// another transaction does not exclude it, so one vertex may be the target
// of several transactions in the same step.
//
// The graph structure is not modified. Payloads may be, by the oracle.
func (e *Engine[P]) Collect(g *graph.Graph[P]) ([]Transaction[P], error) {
	var txs []Transaction[P]
	sources := make(map[graph.ID]struct{})

	for _, from := range g.IDs() {
		if _, taken := sources[from]; taken {
			continue
		}
		src, ok := g.Vertex(from)
		if !ok {
			continue
		}

		for _, to := range src.Adjacent() {
			if to == from {
				continue
			}
			if _, taken := sources[to]; taken {
				continue
			}
			dst, ok := g.Vertex(to)
			if !ok {
				continue
			}

			consumed, emitted, err := e.oracle.Interact(&src.Payload, &dst.Payload)
			if err != nil {
				return nil, fmt.Errorf("interact %d -> %d: %w", from, to, err)
			}

			txs = append(txs, Transaction[P]{
				Source:   from,
				Target:   to,
				Emitted:  emitted,
				Consumed: consumed,
			})
			sources[from] = struct{}{}

			e.trace.Log(map[string]any{
				"event":    "collect",
				"source":   from,
				"target":   to,
				"consumed": consumed,
				"emitted":  len(emitted),
			})
			break
		}
	}

	e.logger.Log(context.Background(), logging.LevelTrace, "collected transactions", "count", len(txs))
	return txs, nil
}

// Apply executes transactions in order. For each one it inserts the emitted
// vertices, links every new vertex to the union of both parents'
// neighborhoods, and removes both parents when the transaction consumes
// them.
//
// If a transaction references a vertex that is no longer present, Apply
// stops and returns a *StaleReferenceError together with the report of the
// transactions applied before it.
func (e *Engine[P]) Apply(g *graph.Graph[P], txs []Transaction[P]) (ApplyReport, error) {
	var report ApplyReport

	for i, tx := range txs {
		src, ok := g.Vertex(tx.Source)
		if !ok {
			return report, e.stale(i, tx, tx.Source, len(txs))
		}
		dst, ok := g.Vertex(tx.Target)
		if !ok {
			return report, e.stale(i, tx, tx.Target, len(txs))
		}

		// Neighborhoods are captured before any emission so every child of
		// this transaction inherits the same pre-interaction edges.
		srcAdj, srcInc := src.Adjacent(), src.Incident()
		dstAdj, dstInc := dst.Adjacent(), dst.Incident()

		base := graph.ID(g.Len())
		next := base
		for _, payload := range tx.Emitted {
			for g.Has(next) {
				next++
			}
			id := next
			g.InsertVertex(id, payload)
			next++

			link(g, id, srcAdj, srcInc)
			link(g, id, dstAdj, dstInc)
			report.Emitted++
		}

		if tx.Consumed {
			g.RemoveVertex(tx.Source)
			g.RemoveVertex(tx.Target)
			report.Consumed += 2
		}
		report.Applied++

		e.trace.Log(map[string]any{
			"event":    "apply",
			"source":   tx.Source,
			"target":   tx.Target,
			"consumed": tx.Consumed,
			"emitted":  len(tx.Emitted),
			"first_id": base,
		})
	}

	return report, nil
}

// Step runs Collect followed by Apply. The collected transactions are
// returned even when Apply stops early.
func (e *Engine[P]) Step(g *graph.Graph[P]) ([]Transaction[P], ApplyReport, error) {
	txs, err := e.Collect(g)
	if err != nil {
		return nil, ApplyReport{}, err
	}
	report, err := e.Apply(g, txs)
	return txs, report, err
}

func (e *Engine[P]) stale(i int, tx Transaction[P], missing graph.ID, total int) error {
	err := &StaleReferenceError{
		Index:     i,
		Source:    tx.Source,
		Target:    tx.Target,
		Missing:   missing,
		Discarded: total - i,
	}
	e.trace.Log(map[string]any{
		"event":     "stale",
		"source":    tx.Source,
		"target":    tx.Target,
		"missing":   missing,
		"discarded": err.Discarded,
	})
	return err
}

// link gives id an outgoing edge to every vertex in adj and an incoming edge
// from every vertex in inc.
func link[P any](g *graph.Graph[P], id graph.ID, adj, inc []graph.ID) {
	for _, to := range adj {
		g.AddEdge(id, to)
	}
	for _, from := range inc {
		g.AddEdge(from, id)
	}
}
