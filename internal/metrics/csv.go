// Package metrics persists one row per simulation step to a CSV file:
//
//	iter,vertices,num_edges,iter_time[,mem]
//
// iter_time is the step's wall-clock duration in milliseconds. The mem
// column holds the process resident set size in bytes, as sampled by the
// driver, and is present only when memory sampling is enabled.
package metrics

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/nvandessel/fission/internal/simulation"
)

// Header returns the CSV header for the given sampling mode.
func Header(withMem bool) []string {
	h := []string{"iter", "vertices", "num_edges", "iter_time"}
	if withMem {
		h = append(h, "mem")
	}
	return h
}

// Writer appends step rows to a CSV stream. It implements
// simulation.StepObserver.
type Writer struct {
	w       *csv.Writer
	closer  io.Closer
	withMem bool
}

// Create truncates (or creates) path and writes the header. withMem adds
// the mem column.
func Create(path string, withMem bool) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating step log: %w", err)
	}
	w, err := NewWriter(f, withMem)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// NewWriter writes the header to out and returns a Writer for it.
func NewWriter(out io.Writer, withMem bool) (*Writer, error) {
	w := &Writer{w: csv.NewWriter(out), withMem: withMem}
	if err := w.w.Write(Header(withMem)); err != nil {
		return nil, fmt.Errorf("writing step log header: %w", err)
	}
	w.w.Flush()
	return w, w.w.Error()
}

// ObserveStep appends one row and flushes it. A step without a memory
// sample leaves the mem cell empty.
func (w *Writer) ObserveStep(r simulation.StepReport) error {
	row := []string{
		strconv.Itoa(r.Index),
		strconv.Itoa(r.Vertices),
		strconv.Itoa(r.Edges),
		strconv.FormatFloat(float64(r.Duration.Microseconds())/1000, 'f', 3, 64),
	}
	if w.withMem {
		mem := ""
		if r.Mem != nil {
			mem = strconv.FormatUint(*r.Mem, 10)
		}
		row = append(row, mem)
	}
	if err := w.w.Write(row); err != nil {
		return fmt.Errorf("writing step row: %w", err)
	}
	w.w.Flush()
	return w.w.Error()
}

// Close flushes and closes the underlying file if Create opened it.
func (w *Writer) Close() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}
