package store

import "fmt"

// schemaDDL creates all tables idempotently. Schema evolution happens by
// appending guarded statements here, never by editing existing ones.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS clusters (
		id INTEGER PRIMARY KEY,
		centroid BLOB NOT NULL,
		dimensions INTEGER NOT NULL,
		member_count INTEGER NOT NULL CHECK (member_count >= 1),
		created_seq INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS embeddings (
		speech_id TEXT PRIMARY KEY,
		vector BLOB NOT NULL,
		dimensions INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS assignments (
		speech_id TEXT PRIMARY KEY,
		cluster_id INTEGER NOT NULL,
		similarity REAL NOT NULL,
		assigned_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_cluster ON assignments(cluster_id)`,
	`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', '1')`,
}

// migrate creates all tables if they don't exist.
func (s *SQLiteStore) migrate() error {
	for _, ddl := range schemaDDL {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("applying schema statement: %w", err)
		}
	}
	return nil
}
