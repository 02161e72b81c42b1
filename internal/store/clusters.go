package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PutCluster inserts or updates a cluster row. The outlier sink has no
// centroid and is never stored as a cluster.
func (s *SQLiteStore) PutCluster(ctx context.Context, c *TopicCluster) error {
	if c.ID == OutlierClusterID {
		return fmt.Errorf("outlier sink %d is not a storable cluster", OutlierClusterID)
	}
	if c.MemberCount < 1 {
		return fmt.Errorf("cluster %d has member count %d; empty clusters are deleted, not stored", c.ID, c.MemberCount)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clusters (id, centroid, dimensions, member_count, created_seq)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			centroid = excluded.centroid,
			dimensions = excluded.dimensions,
			member_count = excluded.member_count`,
		c.ID, float32ToBytes(c.Centroid), len(c.Centroid), c.MemberCount, c.CreatedSeq,
	)
	if err != nil {
		return fmt.Errorf("storing cluster %d: %w", c.ID, err)
	}
	return nil
}

// GetCluster returns the cluster with the given id, or nil when absent.
func (s *SQLiteStore) GetCluster(ctx context.Context, id int64) (*TopicCluster, error) {
	c := &TopicCluster{ID: id}
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT centroid, member_count, created_seq FROM clusters WHERE id = ?", id,
	).Scan(&blob, &c.MemberCount, &c.CreatedSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting cluster %d: %w", id, err)
	}
	c.Centroid = bytesToFloat32(blob)
	return c, nil
}

// ListClusters returns every stored cluster ordered by id.
func (s *SQLiteStore) ListClusters(ctx context.Context) ([]*TopicCluster, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, centroid, member_count, created_seq FROM clusters ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("listing clusters: %w", err)
	}
	defer rows.Close()

	var clusters []*TopicCluster
	for rows.Next() {
		c := &TopicCluster{}
		var blob []byte
		if err := rows.Scan(&c.ID, &blob, &c.MemberCount, &c.CreatedSeq); err != nil {
			return nil, fmt.Errorf("scanning cluster row: %w", err)
		}
		c.Centroid = bytesToFloat32(blob)
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

// DeleteCluster removes a cluster row. Its id is a generation stamp and
// is never reallocated.
func (s *SQLiteStore) DeleteCluster(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM clusters WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting cluster %d: %w", id, err)
	}
	return nil
}
