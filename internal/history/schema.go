package history

import (
	"context"
	"database/sql"
	"fmt"
)

const SchemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    test_name TEXT NOT NULL,
    engine TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    wall_secs REAL NOT NULL,
    batch_size INTEGER NOT NULL,
    batches INTEGER NOT NULL,
    processed INTEGER NOT NULL,
    first_gb REAL NOT NULL,
    last_gb REAL NOT NULL,
    peak_gb REAL NOT NULL,
    delta_gb REAL NOT NULL,
    slope_gb_per_million REAL NOT NULL,
    artifact_path TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_test_started ON runs(test_name, started_at);

CREATE TABLE IF NOT EXISTS samples (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    batch INTEGER NOT NULL,
    processed INTEGER NOT NULL,
    memory_usage_gb REAL NOT NULL,
    elapsed_secs REAL NOT NULL,
    PRIMARY KEY (run_id, batch)
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL
);
`

// InitSchema creates the tables on a fresh database and refuses one written
// by a newer schema.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if !version.Valid {
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, SchemaVersion); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
		return nil
	}
	if version.Int64 > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version.Int64, SchemaVersion)
	}
	return nil
}
