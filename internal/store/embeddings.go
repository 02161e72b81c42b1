package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// PutEmbedding stores the embedding vector for a speech, replacing any
// existing vector for the same speech_id.
func (s *SQLiteStore) PutEmbedding(ctx context.Context, speechID string, vector []float32) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO embeddings (speech_id, vector, dimensions) VALUES (?, ?, ?)
		 ON CONFLICT(speech_id) DO UPDATE SET vector = excluded.vector, dimensions = excluded.dimensions`,
		speechID, float32ToBytes(vector), len(vector),
	)
	if err != nil {
		return fmt.Errorf("storing embedding for speech %s: %w", speechID, err)
	}
	return nil
}

// GetEmbedding retrieves the embedding for a speech. An absent row is a
// valid state (upstream keyword extraction can fail) and is reported as
// ErrNoEmbedding so the assigner can take the rejected path.
func (s *SQLiteStore) GetEmbedding(ctx context.Context, speechID string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT vector FROM embeddings WHERE speech_id = ?", speechID,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("speech %s: %w", speechID, ErrNoEmbedding)
	}
	if err != nil {
		return nil, fmt.Errorf("getting embedding for speech %s: %w", speechID, err)
	}
	return bytesToFloat32(blob), nil
}

// ListUnassignedSpeechIDs returns the ids of speeches that have an
// embedding but no assignment yet, in insertion order. Insertion order
// is arrival order, which the assigner must preserve.
func (s *SQLiteStore) ListUnassignedSpeechIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.speech_id FROM embeddings e
		 LEFT JOIN assignments a ON e.speech_id = a.speech_id
		 WHERE a.speech_id IS NULL
		 ORDER BY e.rowid`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing unassigned speeches: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning speech id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// float32ToBytes converts a float32 slice to a byte slice (little-endian).
func float32ToBytes(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// bytesToFloat32 converts a byte slice back to a float32 slice.
func bytesToFloat32(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
