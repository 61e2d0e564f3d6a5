package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    metric TEXT NOT NULL,
    linkage TEXT NOT NULL,
    criterion TEXT NOT NULL,
    threshold REAL NOT NULL,
    min_cluster_size INTEGER NOT NULL,
    top_k INTEGER NOT NULL,
    entity_count INTEGER DEFAULT 0,
    attribute_count INTEGER DEFAULT 0,
    pair_count INTEGER DEFAULT 0,
    cluster_count INTEGER DEFAULT 0,
    kept_count INTEGER DEFAULT 0,
    output_dir TEXT,
    summary_markdown TEXT,
    created_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ranked_pairs (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    rank INTEGER NOT NULL,
    herb_1 TEXT NOT NULL,
    herb_2 TEXT NOT NULL,
    shared_symptoms TEXT,
    distance REAL NOT NULL,
    PRIMARY KEY (run_id, rank)
);

CREATE TABLE IF NOT EXISTS clusters (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    cluster_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    entity TEXT NOT NULL,
    PRIMARY KEY (run_id, cluster_id, position)
);

CREATE TABLE IF NOT EXISTS leaves (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    entity TEXT NOT NULL,
    entity_index INTEGER NOT NULL,
    PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "symptom annotations",
		Up: func(tx *sql.Tx) error {
			var count int
			if err := tx.QueryRow(
				"SELECT COUNT(*) FROM pragma_table_info('runs') WHERE name = 'annotations'",
			).Scan(&count); err != nil {
				return err
			}
			if count > 0 {
				return nil
			}
			_, err := tx.Exec("ALTER TABLE runs ADD COLUMN annotations TEXT")
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
