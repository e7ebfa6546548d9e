package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/nvandessel/fission/internal/simulation"
)

// DefaultWidth is the frame width used when Options.Width is zero.
const DefaultWidth = 64

// Options configures a Console.
type Options struct {
	Width   int
	Redraw  bool // overwrite the previous frame in place with ANSI cursor moves
	MaxRows int  // vertex rows shown per frame; 0 means all
	Theme   *Theme

	// Vertices lists the current graph contents, one line per vertex.
	Vertices func() []string
}

// Console renders a progress line per phase and one frame per completed
// step. It implements simulation.StepObserver and simulation.PhaseObserver.
type Console struct {
	out       io.Writer
	opts      Options
	styles    Styles
	lastLines int
	progress  bool // a redraw-mode progress line is on screen
}

// NewConsole creates a console writing to out.
func NewConsole(out io.Writer, opts Options) *Console {
	if opts.Width == 0 {
		opts.Width = DefaultWidth
	}
	theme := DefaultTheme
	if opts.Theme != nil {
		theme = *opts.Theme
	}
	return &Console{
		out:    out,
		opts:   opts,
		styles: NewStyles(lipgloss.NewRenderer(out), theme),
	}
}

// Start prints the initial graph size before the first step.
func (c *Console) Start(vertices, edges int) error {
	line := c.styles.Title.Render("fission") + " " +
		c.styles.Help.Render(fmt.Sprintf("starting with %s vertices, %s edges",
			humanize.Comma(int64(vertices)), humanize.Comma(int64(edges))))
	_, err := fmt.Fprintln(c.out, line)
	return err
}

// ObservePhase prints what the current step is doing. In redraw mode the
// line is rewritten in place and cleared by the next frame.
func (c *Console) ObservePhase(ev simulation.PhaseEvent) error {
	text := fmt.Sprintf("step %d: collecting…", ev.Step)
	if ev.Phase == simulation.Applying {
		noun := "transactions"
		if ev.Transactions == 1 {
			noun = "transaction"
		}
		text = fmt.Sprintf("step %d: applying %s %s", ev.Step, humanize.Comma(int64(ev.Transactions)), noun)
	}
	line := c.styles.Help.Render(text)

	if c.opts.Redraw {
		c.progress = true
		_, err := fmt.Fprint(c.out, "\r\x1b[K"+line)
		return err
	}
	_, err := fmt.Fprintln(c.out, line)
	return err
}

// ObserveStep draws the frame for one step.
func (c *Console) ObserveStep(r simulation.StepReport) error {
	fields := []Field{
		{Label: "vertices", Value: humanize.Comma(int64(r.Vertices))},
		{Label: "edges", Value: humanize.Comma(int64(r.Edges))},
		{Label: "collected", Value: humanize.Comma(int64(r.Collected))},
		{Label: "applied", Value: fmt.Sprintf("%s (+%s / -%s)",
			humanize.Comma(int64(r.Applied)), humanize.Comma(int64(r.Emitted)), humanize.Comma(int64(r.Consumed)))},
		{Label: "iter time", Value: formatDuration(r.Duration)},
	}
	if r.Stale {
		fields = append(fields, Field{Label: "stale", Value: "apply phase stopped early", Warn: true})
	}
	if r.Mem != nil {
		fields = append(fields, Field{Label: "memory", Value: humanize.Bytes(*r.Mem)})
	}

	frame := Frame{
		Styles:  c.styles,
		Title:   fmt.Sprintf("step %d", r.Index),
		Status:  r.State.String(),
		Fields:  fields,
		MaxRows: c.opts.MaxRows,
	}
	if c.opts.Vertices != nil {
		frame.Sections = []Section{{Label: "particles", Content: c.opts.Vertices}}
	}

	out := frame.Render(c.opts.Width)
	if c.progress {
		if _, err := fmt.Fprint(c.out, "\r\x1b[K"); err != nil {
			return err
		}
		c.progress = false
	}
	if c.opts.Redraw && c.lastLines > 0 {
		// Cursor up over the previous frame, then clear to end of screen.
		if _, err := fmt.Fprintf(c.out, "\x1b[%dA\x1b[J", c.lastLines); err != nil {
			return err
		}
	}
	c.lastLines = strings.Count(out, "\n") + 1
	_, err := fmt.Fprintln(c.out, out)
	return err
}

// Summary prints the final line for a finished or interrupted run.
func (c *Console) Summary(res simulation.Result, runErr error, vertices, edges int, elapsed time.Duration) error {
	status := c.styles.Title.Render(res.State.String())
	switch {
	case runErr != nil:
		status = c.styles.Warn.Render("stopped: " + runErr.Error())
	case res.State == simulation.Running:
		status = c.styles.Warn.Render("running")
	}
	noun := "steps"
	if res.Steps == 1 {
		noun = "step"
	}
	line := fmt.Sprintf("%s after %s %s %s",
		status,
		humanize.Comma(int64(res.Steps)), noun,
		c.styles.Help.Render(fmt.Sprintf("(%s vertices, %s edges, %s)",
			humanize.Comma(int64(vertices)), humanize.Comma(int64(edges)), formatDuration(elapsed))))
	_, err := fmt.Fprintln(c.out, line)
	return err
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
}
