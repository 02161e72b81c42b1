package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PutAssignment writes one speech-topic assignment. Assignments are
// write-once by default: an existing row yields ErrAlreadyAssigned
// unless overwrite is set (explicit re-assignment request).
func (s *SQLiteStore) PutAssignment(ctx context.Context, a *Assignment, overwrite bool) error {
	if overwrite {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO assignments (speech_id, cluster_id, similarity) VALUES (?, ?, ?)
			 ON CONFLICT(speech_id) DO UPDATE SET
				cluster_id = excluded.cluster_id,
				similarity = excluded.similarity,
				assigned_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')`,
			a.SpeechID, a.ClusterID, a.Similarity,
		)
		if err != nil {
			return fmt.Errorf("reassigning speech %s: %w", a.SpeechID, err)
		}
		return nil
	}

	existing, err := s.GetAssignment(ctx, a.SpeechID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("speech %s already in cluster %d: %w",
			a.SpeechID, existing.ClusterID, ErrAlreadyAssigned)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO assignments (speech_id, cluster_id, similarity) VALUES (?, ?, ?)",
		a.SpeechID, a.ClusterID, a.Similarity,
	)
	if err != nil {
		return fmt.Errorf("assigning speech %s: %w", a.SpeechID, err)
	}
	return nil
}

// GetAssignment returns the assignment for a speech, or nil when the
// speech has no topic yet. "No row" and "assigned to the outlier sink"
// are distinct states.
func (s *SQLiteStore) GetAssignment(ctx context.Context, speechID string) (*Assignment, error) {
	a := &Assignment{SpeechID: speechID}
	err := s.db.QueryRowContext(ctx,
		"SELECT cluster_id, similarity FROM assignments WHERE speech_id = ?", speechID,
	).Scan(&a.ClusterID, &a.Similarity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting assignment for speech %s: %w", speechID, err)
	}
	return a, nil
}
