package simulation

import (
	"context"
	"errors"
	"testing"

	"github.com/nvandessel/fission/internal/engine"
	"github.com/nvandessel/fission/internal/graph"
)

type tag string

func (t tag) Clone() tag           { return t }
func (t tag) Equal(other tag) bool { return t == other }

func fixedOracle(consumed bool, emitted ...tag) engine.Oracle[tag] {
	return engine.OracleFunc[tag](func(a, b *tag) (bool, []tag, error) {
		out := make([]tag, len(emitted))
		copy(out, emitted)
		return consumed, out, nil
	})
}

func newTagGraph(n int, edges ...[2]graph.ID) *graph.Graph[tag] {
	g := graph.New[tag]()
	for i := 0; i < n; i++ {
		g.InsertVertex(graph.ID(i), tag("v"))
	}
	for _, e := range edges {
		g.AddEdge(e[0], e[1])
	}
	return g
}

func TestRun_EdgelessGraphIsStable(t *testing.T) {
	d := NewDriver(newTagGraph(3), fixedOracle(true), Options{})

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.State != Stable {
		t.Errorf("state = %s, want stable", res.State)
	}
	// Step 0 never counts as stable.
	if res.Steps != 2 {
		t.Errorf("steps = %d, want 2", res.Steps)
	}
	if d.Steps() != 2 || d.State() != Stable {
		t.Errorf("driver reports %d steps in %s", d.Steps(), d.State())
	}
}

func TestRun_ConsumedPairIsEmpty(t *testing.T) {
	d := NewDriver(newTagGraph(2, [2]graph.ID{0, 1}), fixedOracle(true), Options{})

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.State != Empty || res.Steps != 1 {
		t.Errorf("result = %+v, want empty after 1 step", res)
	}
	if d.Graph().Len() != 0 {
		t.Errorf("graph has %d vertices, want 0", d.Graph().Len())
	}
}

func TestRun_EmptyGraph(t *testing.T) {
	d := NewDriver(graph.New[tag](), fixedOracle(false), Options{})

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.State != Empty || res.Steps != 1 {
		t.Errorf("result = %+v, want empty after 1 step", res)
	}
}

func TestRun_StepLimit(t *testing.T) {
	// Each step adds a child that inherits the edge, so the graph keeps growing.
	d := NewDriver(newTagGraph(2, [2]graph.ID{0, 1}), fixedOracle(false, "c"), Options{MaxSteps: 3})

	res, err := d.Run(context.Background())
	if !errors.Is(err, ErrStepLimit) {
		t.Fatalf("Run() error = %v, want ErrStepLimit", err)
	}
	if res.State != Running || res.Steps != 3 {
		t.Errorf("result = %+v, want running after 3 steps", res)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDriver(newTagGraph(2, [2]graph.ID{0, 1}), fixedOracle(true), Options{})
	res, err := d.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if res.Steps != 0 || d.Graph().Len() != 2 {
		t.Errorf("cancelled run touched the graph: %+v, %d vertices", res, d.Graph().Len())
	}
}

func TestStep_StalePolicy(t *testing.T) {
	// 0->1 consumes both ends, leaving 1->2 with a missing source.
	edges := [][2]graph.ID{{0, 1}, {1, 2}}

	t.Run("continue", func(t *testing.T) {
		d := NewDriver(newTagGraph(3, edges...), fixedOracle(true), Options{StalePolicy: StaleContinue})

		rep, err := d.Step(context.Background())
		if err != nil {
			t.Fatalf("Step() error = %v", err)
		}
		if !rep.Stale || rep.Collected != 2 || rep.Applied != 1 {
			t.Errorf("report = %+v, want stale with 1 of 2 applied", rep)
		}
		if rep.Vertices != 1 || rep.State != Running {
			t.Errorf("report = %+v, want 1 vertex and running", rep)
		}

		res, err := d.Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if res.State != Stable || res.Steps != 2 {
			t.Errorf("result = %+v, want stable after 2 steps", res)
		}
	})

	t.Run("fail", func(t *testing.T) {
		d := NewDriver(newTagGraph(3, edges...), fixedOracle(true), Options{StalePolicy: StaleFail})

		_, err := d.Run(context.Background())
		var stale *engine.StaleReferenceError
		if !errors.As(err, &stale) {
			t.Fatalf("Run() error = %v, want *engine.StaleReferenceError", err)
		}
		if stale.Missing != 1 {
			t.Errorf("missing = %d, want 1", stale.Missing)
		}
		if d.State() != Running || d.Steps() != 0 {
			t.Errorf("driver in %s after %d steps, want running after 0", d.State(), d.Steps())
		}
	})
}

func TestStep_TerminalIsError(t *testing.T) {
	d := NewDriver(graph.New[tag](), fixedOracle(false), Options{})
	if _, err := d.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Step(context.Background()); err == nil {
		t.Error("Step() after a terminal state should fail")
	}
}

func TestObservers(t *testing.T) {
	var reports []StepReport
	d := NewDriver(newTagGraph(2), fixedOracle(false), Options{})
	d.Observe(ObserverFunc(func(r StepReport) error {
		reports = append(reports, r)
		return nil
	}))

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("observed %d steps, want 2", len(reports))
	}
	for i, r := range reports {
		if r.Index != i || r.Vertices != 2 || r.Edges != 0 {
			t.Errorf("reports[%d] = %+v", i, r)
		}
	}
	if reports[0].State != Running || reports[1].State != Stable {
		t.Errorf("states = %s, %s", reports[0].State, reports[1].State)
	}
}

func TestObservers_ErrorStopsRun(t *testing.T) {
	boom := errors.New("disk full")
	calls := 0
	d := NewDriver(newTagGraph(2), fixedOracle(false), Options{})
	d.Observe(ObserverFunc(func(StepReport) error {
		calls++
		return boom
	}))

	_, err := d.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
	if calls != 1 {
		t.Errorf("observer called %d times, want 1", calls)
	}
}

func TestParseStalePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    StalePolicy
		wantErr bool
	}{
		{"", StaleContinue, false},
		{"continue", StaleContinue, false},
		{"fail", StaleFail, false},
		{"ignore", StaleContinue, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStalePolicy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStalePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseStalePolicy(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{Running: "running", Stable: "stable", Empty: "empty", State(7): "state(7)"} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}

type countingSampler struct {
	calls int
	err   error
}

func (s *countingSampler) RSS() (uint64, error) {
	s.calls++
	return uint64(s.calls * 1000), s.err
}

type phaseLog []PhaseEvent

func (l *phaseLog) ObservePhase(ev PhaseEvent) error {
	*l = append(*l, ev)
	return nil
}

func TestPhaseObservers(t *testing.T) {
	// 0->1 and 2->3 give two transactions in step 0.
	d := NewDriver(newTagGraph(4, [2]graph.ID{0, 1}, [2]graph.ID{2, 3}), fixedOracle(true), Options{})
	var phases phaseLog
	d.ObservePhases(&phases)

	var phasesBeforeObservers bool
	d.Observe(ObserverFunc(func(r StepReport) error {
		phasesBeforeObservers = len(phases) == 2
		return nil
	}))

	if _, err := d.Step(context.Background()); err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	want := []PhaseEvent{
		{Step: 0, Phase: Collecting},
		{Step: 0, Phase: Applying, Transactions: 2},
	}
	if len(phases) != len(want) {
		t.Fatalf("phases = %+v, want %+v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phases[%d] = %+v, want %+v", i, phases[i], want[i])
		}
	}
	if !phasesBeforeObservers {
		t.Error("both phases should be reported before the step observers run")
	}
}

func TestPhaseObservers_ErrorStopsStep(t *testing.T) {
	boom := errors.New("tty closed")
	d := NewDriver(newTagGraph(2, [2]graph.ID{0, 1}), fixedOracle(true), Options{})
	d.ObservePhases(phaseFunc(func(ev PhaseEvent) error {
		if ev.Phase == Applying {
			return boom
		}
		return nil
	}))

	if _, err := d.Step(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Step() error = %v, want %v", err, boom)
	}
	if d.Graph().Len() != 2 {
		t.Errorf("graph has %d vertices, apply should not have run", d.Graph().Len())
	}
}

type phaseFunc func(PhaseEvent) error

func (f phaseFunc) ObservePhase(ev PhaseEvent) error { return f(ev) }

func TestSampler_OncePerStep(t *testing.T) {
	sampler := &countingSampler{}
	d := NewDriver(newTagGraph(2), fixedOracle(false), Options{Sampler: sampler})

	var mems []uint64
	for i := 0; i < 3; i++ {
		d.Observe(ObserverFunc(func(r StepReport) error {
			if r.Mem == nil {
				return errors.New("report has no memory sample")
			}
			mems = append(mems, *r.Mem)
			return nil
		}))
	}

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sampler.calls != 2 {
		t.Errorf("sampler called %d times for 2 steps", sampler.calls)
	}
	// Every observer sees the same sample for a step.
	want := []uint64{1000, 1000, 1000, 2000, 2000, 2000}
	if len(mems) != len(want) {
		t.Fatalf("mems = %v, want %v", mems, want)
	}
	for i := range want {
		if mems[i] != want[i] {
			t.Errorf("mems = %v, want %v", mems, want)
			break
		}
	}
}

func TestSampler_ErrorFailsStep(t *testing.T) {
	boom := errors.New("no procfs")
	d := NewDriver(newTagGraph(1), fixedOracle(false), Options{Sampler: &countingSampler{err: boom}})
	if _, err := d.Step(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Step() error = %v, want %v", err, boom)
	}
}

func TestStep_NoSamplerLeavesMemEmpty(t *testing.T) {
	d := NewDriver(newTagGraph(1), fixedOracle(false), Options{})
	rep, err := d.Step(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Mem != nil {
		t.Errorf("Mem = %d, want nil", *rep.Mem)
	}
}

func TestPhase_String(t *testing.T) {
	for p, want := range map[Phase]string{Collecting: "collecting", Applying: "applying", Phase(9): "phase(9)"} {
		if got := p.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", int(p), got, want)
		}
	}
}
