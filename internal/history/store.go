// Package history keeps a SQLite record of past runs so growth can be
// compared across engine versions.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"backtest-leakcheck/internal/analysis"
	"backtest-leakcheck/internal/harness"

	_ "modernc.org/sqlite" // SQLite driver
)

// timeLayout has fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one recorded measurement.
type Run struct {
	ID           string
	TestName     string
	Engine       string
	StartedAt    time.Time
	FinishedAt   time.Time
	Wall         time.Duration
	BatchSize    int
	ArtifactPath string
	Growth       analysis.Growth
}

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Record stores a completed run and its series in one transaction.
func (s *Store) Record(ctx context.Context, engine string, out *harness.Outcome) (Run, error) {
	g := analysis.ComputeGrowth(out.Rows)
	run := Run{
		ID:           out.RunID.String(),
		TestName:     out.TestName,
		Engine:       engine,
		StartedAt:    out.StartedAt.UTC(),
		FinishedAt:   out.FinishedAt.UTC(),
		Wall:         out.Wall,
		BatchSize:    out.BatchSize,
		ArtifactPath: out.ArtifactPath,
		Growth:       g,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, test_name, engine, started_at, finished_at, wall_secs,
			batch_size, batches, processed, first_gb, last_gb, peak_gb, delta_gb,
			slope_gb_per_million, artifact_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.TestName, run.Engine,
		run.StartedAt.Format(timeLayout), run.FinishedAt.Format(timeLayout),
		run.Wall.Seconds(), run.BatchSize, g.Batches, g.Processed,
		g.FirstGB, g.LastGB, g.MaxGB, g.DeltaGB, g.SlopeGBPerMillion, run.ArtifactPath,
	)
	if err != nil {
		return Run{}, fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (run_id, batch, processed, memory_usage_gb, elapsed_secs)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return Run{}, fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range out.Rows {
		if _, err := stmt.ExecContext(ctx, run.ID, i, r.Processed, r.MemoryUsageGB, r.ElapsedSecs); err != nil {
			return Run{}, fmt.Errorf("failed to insert sample %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("failed to commit run: %w", err)
	}
	return run, nil
}

// Recent returns up to limit runs, newest first. An empty testName matches
// every test.
func (s *Store) Recent(ctx context.Context, testName string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, test_name, engine, started_at, finished_at, wall_secs, batch_size,
			batches, processed, first_gb, last_gb, peak_gb, delta_gb,
			slope_gb_per_million, COALESCE(artifact_path, '')
		FROM runs
		WHERE ? = '' OR test_name = ?
		ORDER BY started_at DESC
		LIMIT ?`, testName, testName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
			wall              float64
		)
		if err := rows.Scan(&r.ID, &r.TestName, &r.Engine, &started, &finished, &wall,
			&r.BatchSize, &r.Growth.Batches, &r.Growth.Processed,
			&r.Growth.FirstGB, &r.Growth.LastGB, &r.Growth.MaxGB, &r.Growth.DeltaGB,
			&r.Growth.SlopeGBPerMillion, &r.ArtifactPath); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("run %s: started_at: %w", r.ID, err)
		}
		if r.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("run %s: finished_at: %w", r.ID, err)
		}
		r.Wall = time.Duration(wall * float64(time.Second))
		out = append(out, r)
	}
	return out, rows.Err()
}

// Samples returns the stored series of a run in batch order.
func (s *Store) Samples(ctx context.Context, runID string) ([]harness.MeasurementRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT processed, memory_usage_gb, elapsed_secs
		FROM samples WHERE run_id = ? ORDER BY batch`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var out []harness.MeasurementRow
	for rows.Next() {
		var r harness.MeasurementRow
		if err := rows.Scan(&r.Processed, &r.MemoryUsageGB, &r.ElapsedSecs); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
