package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/fission/internal/config"
	"github.com/nvandessel/fission/internal/seed"
	"github.com/nvandessel/fission/internal/store"
	"github.com/nvandessel/fission/internal/visualization"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded simulation runs",
		Long: `Inspect runs recorded in <history dir>/fission.db.

Examples:
  fission history list                      # Most recent runs
  fission history show <run-id>             # Steps and final state
  fission history show <run-id> --format dot | dot -Tsvg > run.svg
  fission history show <run-id> --format seed > next.yaml
  fission history export <run-id> -o run.jsonl
  fission history prune --keep 10 --older-than 30d`,
	}

	cmd.PersistentFlags().String("history-dir", "", "Directory holding fission.db")

	cmd.AddCommand(
		newHistoryListCmd(),
		newHistoryShowCmd(),
		newHistoryExportCmd(),
		newHistoryPruneCmd(),
	)

	return cmd
}

// openHistory opens the SQLite history selected by --history-dir, the
// config file, or ~/.fission, in that order.
func openHistory(cmd *cobra.Command) (*store.SQLiteHistoryStore, error) {
	dir, _ := cmd.Flags().GetString("history-dir")
	if dir == "" {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.LoadPath(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		dir = cfg.Output.HistoryDir
	}
	dir, err := store.ResolveHistoryDir(dir)
	if err != nil {
		return nil, err
	}
	return store.NewSQLiteHistoryStore(dir)
}

func newHistoryListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			hs, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer hs.Close()

			runs, err := hs.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if runs == nil {
					runs = []store.Run{}
				}
				return json.NewEncoder(out).Encode(runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTARTED\tSTATE\tSTEPS\tSOURCE")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					r.ID, humanize.Time(r.StartedAt), r.State, humanize.Comma(int64(r.Steps)), r.Source)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum runs to list (0 = all)")
	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run's steps and final graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			format, _ := cmd.Flags().GetString("format")

			hs, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer hs.Close()

			ctx := cmd.Context()
			runID := args[0]
			out := cmd.OutOrStdout()

			if format != "" {
				f, err := visualization.ParseFormat(format)
				if err != nil {
					return err
				}
				snap, err := hs.GetSnapshot(ctx, runID)
				if err != nil {
					return err
				}
				switch f {
				case visualization.FormatDOT:
					_, err = io.WriteString(out, visualization.RenderDOT(*snap))
					return err
				case visualization.FormatSeed:
					g, err := seed.Restore(*snap)
					if err != nil {
						return fmt.Errorf("failed to restore run %s: %w", runID, err)
					}
					data, err := seed.Export(g).Marshal()
					if err != nil {
						return err
					}
					_, err = out.Write(data)
					return err
				}
				return json.NewEncoder(out).Encode(visualization.RenderJSON(*snap))
			}

			run, err := hs.GetRun(ctx, runID)
			if err != nil {
				return err
			}
			steps, err := hs.GetSteps(ctx, runID)
			if err != nil {
				return err
			}
			snap, err := hs.GetSnapshot(ctx, runID)
			if err != nil {
				return err
			}
			issues := store.ValidateSnapshot(*snap)

			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"run":    run,
					"steps":  steps,
					"issues": issues,
				})
			}

			printRun(out, run, steps, *snap)
			for _, issue := range issues {
				fmt.Fprintf(out, "warning: %s\n", issue)
			}
			return nil
		},
	}
	cmd.Flags().String("format", "", "Print only the final graph: dot, json or seed")
	return cmd
}

func printRun(out io.Writer, run *store.Run, steps []store.StepRecord, snap store.Snapshot) {
	fmt.Fprintf(out, "Run %s\n", run.ID)
	fmt.Fprintf(out, "  started:  %s\n", run.StartedAt.Local().Format(time.RFC3339))
	if run.FinishedAt != nil {
		fmt.Fprintf(out, "  finished: %s (%s)\n",
			run.FinishedAt.Local().Format(time.RFC3339), run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(out, "  state:    %s after %s steps\n", run.State, humanize.Comma(int64(run.Steps)))
	fmt.Fprintf(out, "  source:   %s\n", run.Source)
	fmt.Fprintf(out, "  rules:    %s\n", run.Rules)
	fmt.Fprintf(out, "  final:    %s vertices, %s edges\n",
		humanize.Comma(int64(len(snap.Vertices))), humanize.Comma(int64(len(snap.Edges))))
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ITER\tVERTICES\tEDGES\tCOLLECTED\tAPPLIED\tITER_TIME\tMEM\t")
	for _, s := range steps {
		mem := "-"
		if s.Mem != nil {
			mem = humanize.Bytes(*s.Mem)
		}
		applied := humanize.Comma(int64(s.Applied))
		if s.Stale {
			applied += "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%.3fms\t%s\t\n",
			s.Iter, humanize.Comma(int64(s.Vertices)), humanize.Comma(int64(s.Edges)),
			humanize.Comma(int64(s.Collected)), applied,
			float64(s.IterTime.Microseconds())/1000, mem)
	}
	tw.Flush()
}

func newHistoryExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export a run as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")

			hs, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer hs.Close()

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.OpenFile(output, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
				if err != nil {
					return fmt.Errorf("failed to create export file: %w", err)
				}
				defer f.Close()
				w = f
			}
			return store.ExportJSONL(cmd.Context(), hs, args[0], w)
		},
	}
	cmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	return cmd
}

func newHistoryPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old runs",
		Long: `Delete recorded runs. A run survives if any given rule keeps it:
--keep keeps the newest N runs, --older-than keeps runs started within the
given age (e.g. 72h, 30d, 2w).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			keepCount, _ := cmd.Flags().GetInt("keep")
			olderThan, _ := cmd.Flags().GetString("older-than")

			var policies []store.RetentionPolicy
			if cmd.Flags().Changed("keep") {
				if keepCount < 0 {
					return fmt.Errorf("--keep must be non-negative, got %d", keepCount)
				}
				policies = append(policies, &store.CountPolicy{MaxCount: keepCount})
			}
			if olderThan != "" {
				age, err := store.ParseDuration(olderThan)
				if err != nil {
					return fmt.Errorf("invalid --older-than: %w", err)
				}
				policies = append(policies, &store.AgePolicy{MaxAge: age})
			}
			if len(policies) == 0 {
				return fmt.Errorf("nothing to prune by: set --keep and/or --older-than")
			}

			hs, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer hs.Close()

			deleted, err := store.PruneRuns(cmd.Context(), hs, &store.CompositePolicy{Policies: policies})
			if err != nil {
				return err
			}

			if jsonOut {
				if deleted == nil {
					deleted = []string{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"deleted": deleted,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s runs.\n", humanize.Comma(int64(len(deleted))))
			return nil
		},
	}
	cmd.Flags().Int("keep", 0, "Keep the newest N runs")
	cmd.Flags().String("older-than", "", "Keep runs started within this age")
	return cmd
}
