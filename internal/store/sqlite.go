package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// DBFile is the history database file name inside the history directory.
const DBFile = "fission.db"

// SQLiteHistoryStore implements HistoryStore using SQLite for persistence.
type SQLiteHistoryStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteHistoryStore opens (or creates) dir/fission.db.
func NewSQLiteHistoryStore(dir string) (*SQLiteHistoryStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	dbPath := filepath.Join(dir, DBFile)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteHistoryStore{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *SQLiteHistoryStore) Path() string { return s.dbPath }

// BeginRun inserts a run row in the running state.
func (s *SQLiteHistoryStore) BeginRun(ctx context.Context, run Run) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.State == "" {
		run.State = "running"
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, state, steps, source, rules)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(time.RFC3339Nano), run.State, run.Steps, run.Source, run.Rules)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return run.ID, nil
}

// RecordStep inserts one step row. Recording the same iter twice replaces it.
func (s *SQLiteHistoryStore) RecordStep(ctx context.Context, runID string, step StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireRun(ctx, runID); err != nil {
		return err
	}

	var mem sql.NullInt64
	if step.Mem != nil {
		mem = sql.NullInt64{Int64: int64(*step.Mem), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO steps
			(run_id, iter, vertices, num_edges, collected, applied, stale, iter_time_ns, mem)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, step.Iter, step.Vertices, step.Edges, step.Collected, step.Applied,
		boolToInt(step.Stale), int64(step.IterTime), mem)
	if err != nil {
		return fmt.Errorf("failed to insert step %d: %w", step.Iter, err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE runs SET steps = MAX(steps, ?) WHERE id = ?`, step.Iter+1, runID); err != nil {
		return fmt.Errorf("failed to update run steps: %w", err)
	}
	return nil
}

// FinishRun sets the final state and replaces the stored snapshot.
func (s *SQLiteHistoryStore) FinishRun(ctx context.Context, runID string, state string, steps int, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, state = ?, steps = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), state, steps, runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_vertices WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear snapshot vertices: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_edges WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear snapshot edges: %w", err)
	}

	for _, v := range snap.Vertices {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshot_vertices (run_id, vertex_id, payload) VALUES (?, ?, ?)`,
			runID, int64(v.ID), string(v.Payload)); err != nil {
			return fmt.Errorf("failed to insert snapshot vertex %d: %w", v.ID, err)
		}
	}
	for _, e := range snap.Edges {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO snapshot_edges (run_id, source, target) VALUES (?, ?, ?)`,
			runID, int64(e.Source), int64(e.Target)); err != nil {
			return fmt.Errorf("failed to insert snapshot edge %d->%d: %w", e.Source, e.Target, err)
		}
	}

	return tx.Commit()
}

// GetRun returns the run with the given id.
func (s *SQLiteHistoryStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, state, steps, source, rules
		FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteHistoryStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, started_at, finished_at, state, steps, source, rules
		FROM runs ORDER BY started_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetSteps returns a run's steps in iteration order.
func (s *SQLiteHistoryStore) GetSteps(ctx context.Context, runID string) ([]StepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT iter, vertices, num_edges, collected, applied, stale, iter_time_ns, mem
		FROM steps WHERE run_id = ? ORDER BY iter`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var (
			st     StepRecord
			stale  int
			iterNS int64
			mem    sql.NullInt64
		)
		if err := rows.Scan(&st.Iter, &st.Vertices, &st.Edges, &st.Collected, &st.Applied, &stale, &iterNS, &mem); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		st.Stale = stale != 0
		st.IterTime = time.Duration(iterNS)
		if mem.Valid {
			m := uint64(mem.Int64)
			st.Mem = &m
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// GetSnapshot returns the final snapshot stored for a run. A run that has
// not finished yields an empty snapshot.
func (s *SQLiteHistoryStore) GetSnapshot(ctx context.Context, runID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireRun(ctx, runID); err != nil {
		return nil, err
	}

	snap := &Snapshot{}

	vrows, err := s.db.QueryContext(ctx,
		`SELECT vertex_id, payload FROM snapshot_vertices WHERE run_id = ? ORDER BY vertex_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot vertices: %w", err)
	}
	defer vrows.Close()
	for vrows.Next() {
		var (
			id      int64
			payload string
		)
		if err := vrows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot vertex: %w", err)
		}
		snap.Vertices = append(snap.Vertices, VertexRecord{ID: uint64(id), Payload: []byte(payload)})
	}
	if err := vrows.Err(); err != nil {
		return nil, err
	}

	erows, err := s.db.QueryContext(ctx,
		`SELECT source, target FROM snapshot_edges WHERE run_id = ? ORDER BY source, target`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot edges: %w", err)
	}
	defer erows.Close()
	for erows.Next() {
		var src, dst int64
		if err := erows.Scan(&src, &dst); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot edge: %w", err)
		}
		snap.Edges = append(snap.Edges, EdgeRecord{Source: uint64(src), Target: uint64(dst)})
	}
	return snap, erows.Err()
}

// DeleteRun removes a run and everything recorded for it.
func (s *SQLiteHistoryStore) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireRun(ctx, runID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"snapshot_edges", "snapshot_vertices", "steps", "runs"} {
		col := "run_id"
		if table == "runs" {
			col = "id"
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE `+col+` = ?`, runID); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (s *SQLiteHistoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *SQLiteHistoryStore) requireRun(ctx context.Context, runID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return fmt.Errorf("failed to look up run: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run      Run
		started  string
		finished sql.NullString
	)
	if err := row.Scan(&run.ID, &started, &finished, &run.State, &run.Steps, &run.Source, &run.Rules); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at %q: %w", started, err)
	}
	run.StartedAt = t

	if finished.Valid {
		ft, err := time.Parse(time.RFC3339Nano, finished.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse finished_at %q: %w", finished.String, err)
		}
		run.FinishedAt = &ft
	}
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ HistoryStore = (*SQLiteHistoryStore)(nil)
