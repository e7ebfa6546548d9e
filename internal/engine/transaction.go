// Package engine implements the per-step graph rewrite: a read-only collect
// pass that pairs adjacent vertices and asks an Oracle what their
// interaction produces, followed by an apply pass that inserts the emitted
// vertices and removes consumed parents.
package engine

import (
	"errors"
	"fmt"

	"github.com/nvandessel/fission/internal/graph"
)

// Oracle computes the outcome of one interaction. It may modify both
// payloads in place. A returned error is treated as fatal for the step.
type Oracle[P any] interface {
	Interact(a, b *P) (consumed bool, emitted []P, err error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc[P any] func(a, b *P) (bool, []P, error)

// Interact calls f(a, b).
func (f OracleFunc[P]) Interact(a, b *P) (bool, []P, error) { return f(a, b) }

// Transaction is one proposed rewrite produced by an interacting pair.
// It lives for a single step.
type Transaction[P any] struct {
	Source   graph.ID
	Target   graph.ID
	Emitted  []P
	Consumed bool
}

// ErrStaleReference is matched by StaleReferenceError.
var ErrStaleReference = errors.New("engine: stale transaction reference")

// StaleReferenceError reports that a transaction referenced a vertex that an
// earlier transaction in the same step had already consumed. Apply stops at
// that transaction; the remaining ones are discarded.
type StaleReferenceError struct {
	Index     int      // position of the stale transaction in the batch
	Source    graph.ID
	Target    graph.ID
	Missing   graph.ID // the id that was no longer present
	Discarded int      // transactions not applied, including the stale one
}

func (e *StaleReferenceError) Error() string {
	return fmt.Sprintf("engine: transaction %d (%d -> %d) references removed vertex %d, %d transaction(s) discarded",
		e.Index, e.Source, e.Target, e.Missing, e.Discarded)
}

// Is reports whether target is ErrStaleReference.
func (e *StaleReferenceError) Is(target error) bool { return target == ErrStaleReference }
