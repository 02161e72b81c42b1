// Package store provides the SQLite persistence layer for the resolution
// engine:
// - topic cluster centroids with member counts and creation sequence
// - the precomputed speech embedding source (absent rows are valid)
// - speech-topic assignment records
//
// Everything lives in a single SQLite database file. The engine is a
// single-writer batch/stream processor, so the store carries no locking
// beyond SQLite's own.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.hansard/hansard.db"

// OutlierClusterID is the reserved sink for speeches the offline
// bootstrap clustering left unassigned. It has no centroid, is never a
// nearest-neighbor candidate, and is populated only by bootstrap import.
const OutlierClusterID = -1

// ErrNoEmbedding marks a speech with no stored embedding vector. The
// assigner reports such speeches as rejected instead of assigning them.
var ErrNoEmbedding = errors.New("no embedding for speech")

// ErrAlreadyAssigned marks an attempt to overwrite a write-once
// assignment without an explicit reassignment request.
var ErrAlreadyAssigned = errors.New("speech already assigned")

// TopicCluster is one discovered topic: a centroid that is the running
// mean of all member embeddings. MemberCount never drops below 1; an
// emptied cluster is deleted, not retained. CreatedSeq is a monotonic
// generation stamp, never reused.
type TopicCluster struct {
	ID          int64
	Centroid    []float32
	MemberCount int
	CreatedSeq  int64
}

// Assignment binds one speech to one cluster with the similarity that
// produced the binding. Spawned clusters record self-similarity 1.0.
type Assignment struct {
	SpeechID   string
	ClusterID  int64
	Similarity float64
}

// Stats holds observability counts for the store.
type Stats struct {
	Clusters    int64
	Embeddings  int64
	Assignments int64
	Outliers    int64
}

// Config holds configuration for Open.
type Config struct {
	DBPath string
}

// Store is the persistence interface the resolution engine writes
// through.
type Store interface {
	// Clusters
	PutCluster(ctx context.Context, c *TopicCluster) error
	GetCluster(ctx context.Context, id int64) (*TopicCluster, error)
	ListClusters(ctx context.Context) ([]*TopicCluster, error)
	DeleteCluster(ctx context.Context, id int64) error

	// Embeddings
	PutEmbedding(ctx context.Context, speechID string, vector []float32) error
	GetEmbedding(ctx context.Context, speechID string) ([]float32, error)
	ListUnassignedSpeechIDs(ctx context.Context) ([]string, error)

	// Assignments
	PutAssignment(ctx context.Context, a *Assignment, overwrite bool) error
	GetAssignment(ctx context.Context, speechID string) (*Assignment, error)

	// Meta is a small key/value area for counters and versions.
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error

	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// Open creates or opens the SQLite-backed store. Pass ":memory:" for
// in-memory databases (testing).
func Open(cfg Config) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Stats returns row counts across the store.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	queries := []struct {
		dst   *int64
		query string
	}{
		{&st.Clusters, "SELECT COUNT(*) FROM clusters"},
		{&st.Embeddings, "SELECT COUNT(*) FROM embeddings"},
		{&st.Assignments, "SELECT COUNT(*) FROM assignments WHERE cluster_id != " + fmt.Sprint(OutlierClusterID)},
		{&st.Outliers, "SELECT COUNT(*) FROM assignments WHERE cluster_id = " + fmt.Sprint(OutlierClusterID)},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dst); err != nil {
			return nil, fmt.Errorf("counting rows: %w", err)
		}
	}
	return st, nil
}

// expandPath expands ~ to the home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
