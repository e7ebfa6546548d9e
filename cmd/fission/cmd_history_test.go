package main

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/fission/internal/store"
)

// recordRun runs the annihilation seed into historyDir and returns the run id.
func recordRun(t *testing.T, dir, historyDir string) string {
	t.Helper()
	seedPath := writeFile(t, dir, "seed.yaml", annihilationSeed)
	out, _, err := execute(t, "run", "--json", "--seed", seedPath, "--csv", "-", "--history-dir", historyDir)
	if err != nil {
		t.Fatalf("run error = %v", err)
	}
	var outcome runOutcome
	decodeJSON(t, out, &outcome)
	return outcome.RunID
}

func TestHistoryList(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	historyDir := filepath.Join(dir, "history")

	out, _, err := execute(t, "history", "list", "--history-dir", historyDir)
	if err != nil {
		t.Fatalf("history list error = %v", err)
	}
	if !strings.Contains(out, "No runs recorded.") {
		t.Errorf("empty list output = %q", out)
	}

	id := recordRun(t, dir, historyDir)

	out, _, err = execute(t, "history", "list", "--history-dir", historyDir)
	if err != nil {
		t.Fatalf("history list error = %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "stable") {
		t.Errorf("list output missing run %s:\n%s", id, out)
	}

	out, _, err = execute(t, "history", "list", "--json", "--history-dir", historyDir)
	if err != nil {
		t.Fatalf("history list --json error = %v", err)
	}
	var runs []store.Run
	decodeJSON(t, out, &runs)
	if len(runs) != 1 || runs[0].ID != id || runs[0].Steps != 2 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestHistoryList_UsesGlobalDir(t *testing.T) {
	home := isolateHome(t)

	if _, _, err := execute(t, "history", "list"); err != nil {
		t.Fatalf("history list error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, ".fission", store.DBFile)); err != nil {
		t.Errorf("expected database under ~/.fission: %v", err)
	}
}

func TestHistoryShow(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	historyDir := filepath.Join(dir, "history")
	id := recordRun(t, dir, historyDir)

	out, _, err := execute(t, "history", "show", id, "--history-dir", historyDir)
	if err != nil {
		t.Fatalf("history show error = %v", err)
	}
	for _, want := range []string{"Run " + id, "stable after 2 steps", "2 vertices, 0 edges", "ITER"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "warning:") {
		t.Errorf("show output has validation warnings:\n%s", out)
	}

	out, _, err = execute(t, "history", "show", id, "--format", "dot", "--history-dir", historyDir)
	if err != nil {
		t.Fatalf("history show --format dot error = %v", err)
	}
	if !strings.Contains(out, "digraph fission") || !strings.Contains(out, "photon") {
		t.Errorf("DOT output = %s", out)
	}

	out, _, err = execute(t, "history", "show", id, "--json", "--history-dir", historyDir)
	if err != nil {
		t.Fatalf("history show --json error = %v", err)
	}
	var shown struct {
		Run   store.Run          `json:"run"`
		Steps []store.StepRecord `json:"steps"`
	}
	decodeJSON(t, out, &shown)
	if shown.Run.ID != id || len(shown.Steps) != 2 {
		t.Errorf("shown = %+v", shown)
	}
}

func TestHistoryShow_Errors(t *testing.T) {
	isolateHome(t)
	historyDir := filepath.Join(t.TempDir(), "history")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown run", []string{"history", "show", "missing", "--history-dir", historyDir}, "run not found"},
		{"bad format", []string{"history", "show", "missing", "--format", "svg", "--history-dir", historyDir}, "invalid format"},
		{"no args", []string{"history", "show", "--history-dir", historyDir}, "accepts 1 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestHistoryExport(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	historyDir := filepath.Join(dir, "history")
	id := recordRun(t, dir, historyDir)
	outPath := filepath.Join(dir, "run.jsonl")

	if _, _, err := execute(t, "history", "export", id, "-o", outPath, "--history-dir", historyDir); err != nil {
		t.Fatalf("history export error = %v", err)
	}

	f, err := os.Open(outPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	counts := map[string]int{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var line struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatalf("invalid line %q: %v", sc.Text(), err)
		}
		counts[line.Type]++
	}
	if counts["run"] != 1 || counts["step"] != 2 || counts["vertex"] != 2 || counts["edge"] != 0 {
		t.Errorf("line counts = %v", counts)
	}
}

func TestHistoryPrune(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	historyDir := filepath.Join(dir, "history")
	first := recordRun(t, dir, historyDir)
	second := recordRun(t, dir, historyDir)

	if _, _, err := execute(t, "history", "prune", "--history-dir", historyDir); err == nil {
		t.Error("prune without rules should fail")
	}

	out, _, err := execute(t, "history", "prune", "--keep", "1", "--json", "--history-dir", historyDir)
	if err != nil {
		t.Fatalf("history prune error = %v", err)
	}
	var pruned struct {
		Deleted []string `json:"deleted"`
	}
	decodeJSON(t, out, &pruned)
	if len(pruned.Deleted) != 1 {
		t.Fatalf("deleted = %v, want one run", pruned.Deleted)
	}
	if pruned.Deleted[0] != first && pruned.Deleted[0] != second {
		t.Errorf("deleted unknown run %s", pruned.Deleted[0])
	}

	out, _, err = execute(t, "history", "prune", "--older-than", "30d", "--history-dir", historyDir)
	if err != nil {
		t.Fatalf("history prune error = %v", err)
	}
	if !strings.Contains(out, "Deleted 0 runs.") {
		t.Errorf("prune output = %q", out)
	}
}

func TestHistoryShow_SeedFormatSeedsNextRun(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	historyDir := filepath.Join(dir, "history")
	id := recordRun(t, dir, historyDir)

	out, _, err := execute(t, "history", "show", id, "--format", "seed", "--history-dir", historyDir)
	if err != nil {
		t.Fatalf("history show --format seed error = %v", err)
	}
	if !strings.Contains(out, "species: photon") {
		t.Errorf("seed output = %s", out)
	}

	next := writeFile(t, dir, "next.yaml", out)
	out, _, err = execute(t, "run", "--json", "--seed", next, "--csv", "-", "--no-history")
	if err != nil {
		t.Fatalf("run from exported seed error = %v", err)
	}
	var outcome runOutcome
	decodeJSON(t, out, &outcome)
	// Two unlinked photons: nothing interacts, stable after two steps.
	if outcome.State != "stable" || outcome.Steps != 2 || outcome.Vertices != 2 {
		t.Errorf("outcome = %+v", outcome)
	}
}
