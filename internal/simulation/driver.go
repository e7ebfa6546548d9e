package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nvandessel/fission/internal/engine"
	"github.com/nvandessel/fission/internal/graph"
	"github.com/nvandessel/fission/internal/logging"
)

// Payload is the capability set the driver needs from vertex payloads:
// an independent copy for pre-step snapshots and structural equality for
// the convergence check.
type Payload[P any] interface {
	Clone() P
	Equal(other P) bool
}

// State is the driver's lifecycle state.
type State int

const (
	Running State = iota
	Stable
	Empty
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stable:
		return "stable"
	case Empty:
		return "empty"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further steps will run.
func (s State) Terminal() bool { return s == Stable || s == Empty }

// StalePolicy selects what the driver does when the apply phase stops on a
// transaction whose vertices are already gone.
type StalePolicy int

const (
	// StaleContinue keeps the partially applied step and moves on.
	StaleContinue StalePolicy = iota
	// StaleFail ends the run with the *engine.StaleReferenceError.
	StaleFail
)

// ParseStalePolicy maps "continue" and "fail" to a policy.
func ParseStalePolicy(s string) (StalePolicy, error) {
	switch s {
	case "", "continue":
		return StaleContinue, nil
	case "fail":
		return StaleFail, nil
	default:
		return StaleContinue, fmt.Errorf("invalid stale policy: %q (valid: continue, fail)", s)
	}
}

// ErrStepLimit is returned by Run when Options.MaxSteps steps completed
// without reaching a terminal state.
var ErrStepLimit = errors.New("simulation: step limit reached")

// Options configures a Driver.
type Options struct {
	// MaxSteps bounds Run. Zero means no bound.
	MaxSteps int

	// StalePolicy decides how stale references in the apply phase are handled.
	StalePolicy StalePolicy

	// Logger receives operational logs. Defaults to a discarding logger.
	Logger *slog.Logger

	// Trace receives one JSONL event per collected/applied transaction.
	Trace *logging.TraceLogger

	// Sampler, when set, is read once after every step and the value is
	// carried in StepReport.Mem.
	Sampler MemorySampler
}

// MemorySampler reports the current resident memory of the process.
type MemorySampler interface {
	RSS() (uint64, error)
}

// StepReport describes one completed step.
type StepReport struct {
	Index     int
	Collected int
	Applied   int
	Emitted   int
	Consumed  int
	Stale     bool // the apply phase stopped on a stale reference
	Vertices  int
	Edges     int
	Duration  time.Duration
	Mem       *uint64 // resident set size after the step; nil without a sampler
	State     State
}

// Result is the outcome of Run.
type Result struct {
	State State
	Steps int // completed steps
}

// StepObserver receives every completed step.
type StepObserver interface {
	ObserveStep(StepReport) error
}

// ObserverFunc adapts a function to StepObserver.
type ObserverFunc func(StepReport) error

// ObserveStep calls f(r).
func (f ObserverFunc) ObserveStep(r StepReport) error { return f(r) }

// Phase names the two halves of a step.
type Phase int

const (
	Collecting Phase = iota
	Applying
)

func (p Phase) String() string {
	switch p {
	case Collecting:
		return "collecting"
	case Applying:
		return "applying"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// PhaseEvent is sent when a phase starts. Transactions is the number of
// transactions about to be applied and is zero while collecting.
type PhaseEvent struct {
	Step         int
	Phase        Phase
	Transactions int
}

// PhaseObserver is told when each phase of a step starts.
type PhaseObserver interface {
	ObservePhase(PhaseEvent) error
}

// Driver repeatedly applies the engine to a graph it owns.
type Driver[P Payload[P]] struct {
	graph     *graph.Graph[P]
	engine    *engine.Engine[P]
	opts      Options
	logger    *slog.Logger
	observers []StepObserver
	phases    []PhaseObserver

	state State
	step  int
}

// NewDriver creates a driver in the Running state at step 0.
func NewDriver[P Payload[P]](g *graph.Graph[P], oracle engine.Oracle[P], opts Options) *Driver[P] {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Driver[P]{
		graph:  g,
		engine: engine.New(oracle, engine.WithLogger[P](logger), engine.WithTrace[P](opts.Trace)),
		opts:   opts,
		logger: logger,
		state:  Running,
	}
}

// Observe registers an observer for subsequent steps.
func (d *Driver[P]) Observe(o StepObserver) {
	d.observers = append(d.observers, o)
}

// ObservePhases registers an observer told when collection and
// application start.
func (d *Driver[P]) ObservePhases(o PhaseObserver) {
	d.phases = append(d.phases, o)
}

// Graph returns the graph being simulated.
func (d *Driver[P]) Graph() *graph.Graph[P] { return d.graph }

// State returns the current state.
func (d *Driver[P]) State() State { return d.state }

// Steps returns the number of completed steps.
func (d *Driver[P]) Steps() int { return d.completed() }

// Step runs one collect/apply pass and classifies the result. Calling Step
// in a terminal state is an error.
func (d *Driver[P]) Step(ctx context.Context) (StepReport, error) {
	if d.state.Terminal() {
		return StepReport{}, fmt.Errorf("simulation already %s after %d steps", d.state, d.completed())
	}
	if err := ctx.Err(); err != nil {
		return StepReport{}, err
	}

	start := time.Now()
	before := d.graph.Snapshot(clonePayload[P])

	report := StepReport{Index: d.step}
	if err := d.notifyPhase(PhaseEvent{Step: d.step, Phase: Collecting}); err != nil {
		return report, err
	}
	txs, err := d.engine.Collect(d.graph)
	if err != nil {
		return report, fmt.Errorf("step %d: %w", d.step, err)
	}
	report.Collected = len(txs)

	if err := d.notifyPhase(PhaseEvent{Step: d.step, Phase: Applying, Transactions: len(txs)}); err != nil {
		return report, err
	}
	applied, err := d.engine.Apply(d.graph, txs)
	report.Applied = applied.Applied
	report.Emitted = applied.Emitted
	report.Consumed = applied.Consumed
	if err != nil {
		var stale *engine.StaleReferenceError
		if !errors.As(err, &stale) {
			return report, fmt.Errorf("step %d: %w", d.step, err)
		}
		if d.opts.StalePolicy == StaleFail {
			return report, fmt.Errorf("step %d: %w", d.step, err)
		}
		report.Stale = true
		d.logger.Debug("apply phase stopped early",
			"step", d.step,
			"applied", applied.Applied,
			"discarded", stale.Discarded,
			"missing", stale.Missing)
	}

	report.Vertices = d.graph.Len()
	report.Edges = d.graph.EdgeCount()
	report.Duration = time.Since(start)
	if d.opts.Sampler != nil {
		rss, err := d.opts.Sampler.RSS()
		if err != nil {
			return report, fmt.Errorf("step %d: sampling memory: %w", d.step, err)
		}
		report.Mem = &rss
	}

	switch {
	case report.Vertices == 0:
		d.state = Empty
	case d.step > 0 && before.Equal(d.graph.Snapshot(nil), equalPayload[P]):
		d.state = Stable
	default:
		d.state = Running
	}
	report.State = d.state

	d.logger.Debug("step complete",
		"step", report.Index,
		"collected", report.Collected,
		"applied", report.Applied,
		"vertices", report.Vertices,
		"edges", report.Edges,
		"state", report.State.String())

	for _, o := range d.observers {
		if err := o.ObserveStep(report); err != nil {
			return report, fmt.Errorf("observing step %d: %w", report.Index, err)
		}
	}

	if !d.state.Terminal() {
		d.step++
	}
	return report, nil
}

func (d *Driver[P]) notifyPhase(ev PhaseEvent) error {
	for _, o := range d.phases {
		if err := o.ObservePhase(ev); err != nil {
			return fmt.Errorf("observing %s phase of step %d: %w", ev.Phase, ev.Step, err)
		}
	}
	return nil
}

// Run steps until the graph is Stable or Empty. It stops early with the
// context's error if ctx is cancelled between steps, or with ErrStepLimit
// when Options.MaxSteps is reached.
func (d *Driver[P]) Run(ctx context.Context) (Result, error) {
	for !d.state.Terminal() {
		if d.opts.MaxSteps > 0 && d.step >= d.opts.MaxSteps {
			return d.result(), ErrStepLimit
		}
		if _, err := d.Step(ctx); err != nil {
			return d.result(), err
		}
	}
	d.logger.Info("simulation finished", "state", d.state.String(), "steps", d.completed())
	return d.result(), nil
}

func (d *Driver[P]) result() Result {
	return Result{State: d.state, Steps: d.completed()}
}

// completed is the number of steps that have run. The step counter is not
// advanced by the step that reaches a terminal state.
func (d *Driver[P]) completed() int {
	if d.state.Terminal() {
		return d.step + 1
	}
	return d.step
}

func clonePayload[P Payload[P]](p P) P { return p.Clone() }

func equalPayload[P Payload[P]](a, b P) bool { return a.Equal(b) }
