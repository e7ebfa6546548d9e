package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/fission/internal/config"
	"github.com/nvandessel/fission/internal/graph"
	"github.com/nvandessel/fission/internal/logging"
	"github.com/nvandessel/fission/internal/metrics"
	"github.com/nvandessel/fission/internal/particle"
	"github.com/nvandessel/fission/internal/render"
	"github.com/nvandessel/fission/internal/seed"
	"github.com/nvandessel/fission/internal/simulation"
	"github.com/nvandessel/fission/internal/store"
)

// runOutcome is the result of one `fission run`, printed with --json.
type runOutcome struct {
	RunID    string `json:"run_id"`
	State    string `json:"state"`
	Steps    int    `json:"steps"`
	Vertices int    `json:"vertices"`
	Edges    int    `json:"edges"`
	CSVPath  string `json:"csv_path,omitempty"`
	History  string `json:"history,omitempty"`
	Error    string `json:"error,omitempty"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation until it is stable or empty",
		Long: `Run a simulation from a seed file or a random graph.

Each step writes one row to the CSV step log and, unless disabled,
one row to the run history in <history dir>/fission.db.

Examples:
  fission run                              # Random graph from config defaults
  fission run --seed seed.yaml             # Explicit initial graph
  fission run --rules rules.yaml --csv -   # Custom reactions, no CSV
  fission run --random --rng-seed 7 --vertices 200`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			configPath, _ := cmd.Flags().GetString("config")

			cfg, err := config.LoadPath(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := applyRunFlags(cmd, cfg); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			if jsonOut {
				cfg.Output.Quiet = true
			}

			ctx, stop := withShutdownSignals(cmd.Context())
			defer stop()

			console := cmd.OutOrStdout()
			if jsonOut {
				console = io.Discard
			}
			outcome, runErr := runSimulation(ctx, cfg, console, cmd.ErrOrStderr())
			if jsonOut {
				if runErr != nil {
					outcome.Error = runErr.Error()
				}
				json.NewEncoder(cmd.OutOrStdout()).Encode(outcome)
			}
			return runErr
		},
	}

	cmd.Flags().String("seed", "", "YAML seed file")
	cmd.Flags().Bool("random", false, "Use a random graph even if a seed file is configured")
	cmd.Flags().Int("vertices", 0, "Random graph size")
	cmd.Flags().Float64("edge-probability", 0, "Random graph edge probability")
	cmd.Flags().Uint64("rng-seed", 0, "Random graph seed")
	cmd.Flags().String("rules", "", "YAML reaction table (default: built-in)")
	cmd.Flags().String("csv", "", "CSV step log path, or - to disable")
	cmd.Flags().String("history-dir", "", "Directory for fission.db and transactions.jsonl")
	cmd.Flags().Bool("no-history", false, "Do not record the run in the history database")
	cmd.Flags().Int("max-steps", 0, "Stop after this many steps (0 = unbounded)")
	cmd.Flags().String("stale-policy", "", "On a stale transaction: continue or fail")
	cmd.Flags().Bool("redraw", false, "Redraw the status frame in place")
	cmd.Flags().Bool("quiet", false, "Only print the final summary")
	cmd.Flags().String("log-level", "", "Log level: info, debug or trace")

	return cmd
}

// applyRunFlags copies explicitly set flags over the loaded config.
func applyRunFlags(cmd *cobra.Command, cfg *config.FissionConfig) error {
	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed.Path, _ = flags.GetString("seed")
	}
	if random, _ := flags.GetBool("random"); random {
		if flags.Changed("seed") {
			return fmt.Errorf("--seed and --random are mutually exclusive")
		}
		cfg.Seed.Path = ""
	}
	if flags.Changed("vertices") {
		cfg.Seed.Vertices, _ = flags.GetInt("vertices")
	}
	if flags.Changed("edge-probability") {
		cfg.Seed.EdgeProbability, _ = flags.GetFloat64("edge-probability")
	}
	if flags.Changed("rng-seed") {
		cfg.Seed.RNGSeed, _ = flags.GetUint64("rng-seed")
	}
	if flags.Changed("rules") {
		cfg.Simulation.RulesPath, _ = flags.GetString("rules")
	}
	if flags.Changed("csv") {
		path, _ := flags.GetString("csv")
		if path == "-" {
			path = ""
		}
		cfg.Output.CSVPath = path
	}
	if flags.Changed("history-dir") {
		cfg.Output.HistoryDir, _ = flags.GetString("history-dir")
	}
	if noHistory, _ := flags.GetBool("no-history"); noHistory {
		cfg.Output.History = false
	}
	if flags.Changed("max-steps") {
		cfg.Simulation.MaxSteps, _ = flags.GetInt("max-steps")
	}
	if flags.Changed("stale-policy") {
		cfg.Simulation.StalePolicy, _ = flags.GetString("stale-policy")
	}
	if redraw, _ := flags.GetBool("redraw"); redraw {
		cfg.Output.Redraw = true
	}
	if quiet, _ := flags.GetBool("quiet"); quiet {
		cfg.Output.Quiet = true
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	return nil
}

// runSimulation wires the seed graph, reaction oracle, driver and every step
// observer, then runs to completion. The final snapshot is recorded even
// when the run stops early.
func runSimulation(ctx context.Context, cfg *config.FissionConfig, stdout, stderr io.Writer) (runOutcome, error) {
	var outcome runOutcome
	logger := logging.NewLogger(cfg.Logging.Level, stderr)

	historyDir, err := store.ResolveHistoryDir(cfg.Output.HistoryDir)
	if err != nil {
		return outcome, err
	}

	g, source, err := buildGraph(cfg.Seed)
	if err != nil {
		return outcome, err
	}

	rules, rulesName, err := loadRules(cfg.Simulation.RulesPath)
	if err != nil {
		return outcome, err
	}

	policy, err := simulation.ParseStalePolicy(cfg.Simulation.StalePolicy)
	if err != nil {
		return outcome, err
	}

	sampler, err := metrics.DefaultSampler()
	if err != nil {
		return outcome, fmt.Errorf("failed to start memory sampling: %w", err)
	}

	trace := logging.NewTraceLogger(historyDir, cfg.Logging.Level)
	defer trace.Close()

	driver := simulation.NewDriver[particle.Particle](g, particle.NewOracle(rules), simulation.Options{
		MaxSteps:    cfg.Simulation.MaxSteps,
		StalePolicy: policy,
		Logger:      logger,
		Trace:       trace,
		Sampler:     sampler,
	})

	if cfg.Output.CSVPath != "" {
		w, err := metrics.Create(cfg.Output.CSVPath, sampler != nil)
		if err != nil {
			return outcome, err
		}
		defer w.Close()
		driver.Observe(w)
		outcome.CSVPath = cfg.Output.CSVPath
	}

	var history store.HistoryStore
	if cfg.Output.History {
		sqlStore, err := store.NewSQLiteHistoryStore(historyDir)
		if err != nil {
			return outcome, fmt.Errorf("failed to open history: %w", err)
		}
		history = sqlStore
		outcome.History = sqlStore.Path()
	} else {
		history = store.NewInMemoryHistoryStore()
	}
	defer history.Close()

	rec, err := store.NewRecorder(ctx, history, store.Run{Source: source, Rules: rulesName})
	if err != nil {
		return outcome, fmt.Errorf("failed to record run: %w", err)
	}
	driver.Observe(rec)
	outcome.RunID = rec.RunID()

	consoleOpts := render.Options{
		Redraw:  cfg.Output.Redraw,
		MaxRows: cfg.Output.MaxRows,
	}
	if cfg.Output.MaxRows > 0 {
		consoleOpts.Vertices = func() []string { return vertexLines(g) }
	}
	console := render.NewConsole(stdout, consoleOpts)
	if !cfg.Output.Quiet {
		if err := console.Start(g.Len(), g.EdgeCount()); err != nil {
			return outcome, err
		}
		driver.ObservePhases(console)
		driver.Observe(console)
	}

	logger.Info("starting simulation",
		"run", rec.RunID(),
		"source", source,
		"rules", rulesName,
		"vertices", g.Len(),
		"edges", g.EdgeCount())

	start := time.Now()
	res, runErr := driver.Run(ctx)
	elapsed := time.Since(start)

	outcome.State = res.State.String()
	outcome.Steps = res.Steps
	outcome.Vertices = g.Len()
	outcome.Edges = g.EdgeCount()

	finalState := outcome.State
	if runErr != nil {
		finalState = "aborted"
		logRunStop(logger, runErr, res)
	}

	snap, err := store.SnapshotOf(g)
	if err != nil {
		return outcome, errors.Join(runErr, err)
	}
	if err := rec.Finish(finalState, res.Steps, snap); err != nil {
		return outcome, errors.Join(runErr, fmt.Errorf("failed to finish run: %w", err))
	}

	if err := console.Summary(res, runErr, outcome.Vertices, outcome.Edges, elapsed); err != nil {
		return outcome, errors.Join(runErr, err)
	}
	return outcome, runErr
}

func logRunStop(logger *slog.Logger, err error, res simulation.Result) {
	switch {
	case errors.Is(err, context.Canceled):
		logger.Info("simulation interrupted", "steps", res.Steps)
	case errors.Is(err, simulation.ErrStepLimit):
		logger.Info("step limit reached", "steps", res.Steps)
	default:
		logger.Error("simulation failed", "steps", res.Steps, "error", err)
	}
}

// buildGraph loads the seed file or builds a random graph. source names the
// origin for the run history.
func buildGraph(sc config.SeedConfig) (*graph.Graph[particle.Particle], string, error) {
	if sc.Path != "" {
		g, err := seed.Load(sc.Path)
		if err != nil {
			return nil, "", err
		}
		return g, sc.Path, nil
	}
	g, err := seed.Random(seed.RandomConfig{
		Vertices:        sc.Vertices,
		EdgeProbability: sc.EdgeProbability,
		Species:         sc.Species,
		Energy:          sc.Energy,
		RNGSeed:         sc.RNGSeed,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to build random graph: %w", err)
	}
	return g, fmt.Sprintf("random:%d", sc.RNGSeed), nil
}

func loadRules(path string) (particle.Rules, string, error) {
	if path == "" {
		return particle.DefaultRules(), "default", nil
	}
	rules, err := particle.LoadRules(path)
	if err != nil {
		return particle.Rules{}, "", err
	}
	return rules, path, nil
}

// vertexLines lists each particle with the ids it points to.
func vertexLines(g *graph.Graph[particle.Particle]) []string {
	ids := g.IDs()
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		v, _ := g.Vertex(id)
		lines = append(lines, fmt.Sprintf("%4d  %-14s -> %v", id, v.Payload.String(), v.Adjacent()))
	}
	return lines
}
