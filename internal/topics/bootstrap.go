package topics

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/tbmmlab/hansard/internal/match"
	"github.com/tbmmlab/hansard/internal/store"
)

// BootstrapReport summarizes an offline clustering import.
type BootstrapReport struct {
	Clusters  int
	Members   int
	Outliers  int
	Malformed int
	Missing   int // members with no stored embedding
}

// ImportBootstrap seeds the cluster store from an offline clustering
// run. The input CSV has rows `speech_id,cluster_label`; label -1 marks
// an outlier. Member embeddings are read from the store, each cluster's
// centroid is the arithmetic mean of its member vectors, and every
// member gets an assignment row. Outliers are recorded under the -1
// sink with similarity 0; the sink has no centroid and never competes
// in nearest-centroid search.
func ImportBootstrap(ctx context.Context, st store.Store, path string, log zerolog.Logger) (*BootstrapReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening bootstrap file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading bootstrap file: %w", err)
	}

	rep := &BootstrapReport{}
	members := make(map[int64][]string) // label → speech IDs, file order
	var outliers []string

	for i, row := range rows {
		if i == 0 && len(row) >= 2 && row[0] == "speech_id" {
			continue // header
		}
		if len(row) < 2 || row[0] == "" {
			rep.Malformed++
			continue
		}
		label, err := strconv.ParseInt(row[1], 10, 64)
		if err != nil {
			rep.Malformed++
			log.Warn().Str("speech", row[0]).Str("label", row[1]).Msg("malformed cluster label, row skipped")
			continue
		}
		if label == store.OutlierClusterID {
			outliers = append(outliers, row[0])
			continue
		}
		if label < 0 {
			rep.Malformed++
			continue
		}
		members[label] = append(members[label], row[0])
	}

	labels := make([]int64, 0, len(members))
	for label := range members {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	seq := int64(0)
	for _, label := range labels {
		var centroid []float32
		var vecs [][]float32
		var ids []string
		for _, speechID := range members[label] {
			vec, err := st.GetEmbedding(ctx, speechID)
			if errors.Is(err, store.ErrNoEmbedding) {
				rep.Missing++
				log.Warn().Str("speech", speechID).Int64("label", label).Msg("bootstrap member has no embedding, skipped")
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("loading embedding for %s: %w", speechID, err)
			}
			if centroid == nil {
				centroid = make([]float32, len(vec))
			}
			for i := range vec {
				centroid[i] += vec[i]
			}
			vecs = append(vecs, vec)
			ids = append(ids, speechID)
		}
		if len(vecs) == 0 {
			continue
		}
		n := float32(len(vecs))
		for i := range centroid {
			centroid[i] /= n
		}

		c := &store.TopicCluster{
			ID:          label,
			Centroid:    centroid,
			MemberCount: len(vecs),
			CreatedSeq:  seq,
		}
		if err := st.PutCluster(ctx, c); err != nil {
			return nil, fmt.Errorf("storing bootstrap cluster %d: %w", label, err)
		}
		seq++
		rep.Clusters++

		for i, speechID := range ids {
			a := &store.Assignment{
				SpeechID:   speechID,
				ClusterID:  label,
				Similarity: match.Cosine(vecs[i], centroid),
			}
			if err := st.PutAssignment(ctx, a, true); err != nil {
				return nil, fmt.Errorf("storing bootstrap assignment for %s: %w", speechID, err)
			}
			rep.Members++
		}
	}

	// Advance the allocation counters past the imported labels so
	// streaming spawns never collide with bootstrap cluster IDs.
	if len(labels) > 0 {
		nextID := labels[len(labels)-1] + 1
		if cur, err := metaInt64(ctx, st, metaNextClusterID); err != nil {
			return nil, err
		} else if nextID > cur {
			if err := st.SetMeta(ctx, metaNextClusterID, strconv.FormatInt(nextID, 10)); err != nil {
				return nil, err
			}
		}
		if cur, err := metaInt64(ctx, st, metaNextClusterSeq); err != nil {
			return nil, err
		} else if seq > cur {
			if err := st.SetMeta(ctx, metaNextClusterSeq, strconv.FormatInt(seq, 10)); err != nil {
				return nil, err
			}
		}
	}

	for _, speechID := range outliers {
		a := &store.Assignment{SpeechID: speechID, ClusterID: store.OutlierClusterID, Similarity: 0}
		if err := st.PutAssignment(ctx, a, true); err != nil {
			return nil, fmt.Errorf("storing outlier assignment for %s: %w", speechID, err)
		}
		rep.Outliers++
	}

	log.Info().
		Int("clusters", rep.Clusters).
		Int("members", rep.Members).
		Int("outliers", rep.Outliers).
		Int("malformed", rep.Malformed).
		Int("missing", rep.Missing).
		Msg("bootstrap import complete")
	return rep, nil
}
