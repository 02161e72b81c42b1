// Package topics implements incremental topic assignment: speeches are
// matched against a working set of cluster centroids, joining the
// nearest cluster when it is similar enough and spawning a new cluster
// otherwise. Centroids are running means, updated as members arrive and
// persisted through the store.
package topics

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/tbmmlab/hansard/internal/ann"
	"github.com/tbmmlab/hansard/internal/match"
	"github.com/tbmmlab/hansard/internal/store"
)

// DefaultANNClusterThreshold is the cluster count above which Nearest
// switches from a linear centroid scan to an HNSW index.
const DefaultANNClusterThreshold = 256

// DefaultANNRebuildEvery is how many centroid mutations (member adds or
// spawns) the working set tolerates before rebuilding the HNSW index.
// Centroids drift under the running mean, so the index is always a
// slightly stale snapshot between rebuilds.
const DefaultANNRebuildEvery = 64

// annCandidates is how many index hits are re-scored exactly. The index
// ranks by approximate graph traversal; re-scoring a small candidate
// set with exact cosine keeps the final pick deterministic.
const annCandidates = 8

// metaNextClusterID is the meta key holding the next cluster ID.
// Persisting it keeps IDs monotonic across restarts even when the
// highest-numbered clusters have been deleted.
const metaNextClusterID = "next_cluster_id"

// metaNextClusterSeq is the meta key for the creation generation stamp.
const metaNextClusterSeq = "next_cluster_seq"

// ClusterSetOptions tunes the working set.
type ClusterSetOptions struct {
	ANNClusterThreshold int
	ANNRebuildEvery     int
}

// ClusterSet is the in-memory working set of topic clusters. It owns
// the nearest-centroid search and the running-mean updates; every
// mutation is written through to the store before the next lookup.
// Single-writer: the assigner processes speeches strictly in order.
type ClusterSet struct {
	st       store.Store
	clusters map[int64]*store.TopicCluster
	nextID   int64
	nextSeq  int64
	dims     int

	opts      ClusterSetOptions
	index     *ann.Index
	mutations int

	log zerolog.Logger
}

// LoadClusterSet reads all persisted clusters into a working set.
func LoadClusterSet(ctx context.Context, st store.Store, opts ClusterSetOptions, log zerolog.Logger) (*ClusterSet, error) {
	if opts.ANNClusterThreshold <= 0 {
		opts.ANNClusterThreshold = DefaultANNClusterThreshold
	}
	if opts.ANNRebuildEvery <= 0 {
		opts.ANNRebuildEvery = DefaultANNRebuildEvery
	}

	persisted, err := st.ListClusters(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading clusters: %w", err)
	}

	cs := &ClusterSet{
		st:       st,
		clusters: make(map[int64]*store.TopicCluster, len(persisted)),
		opts:     opts,
		log:      log,
	}
	for _, c := range persisted {
		cs.clusters[c.ID] = c
		if c.ID >= cs.nextID {
			cs.nextID = c.ID + 1
		}
		if c.CreatedSeq >= cs.nextSeq {
			cs.nextSeq = c.CreatedSeq + 1
		}
		if cs.dims == 0 {
			cs.dims = len(c.Centroid)
		}
	}

	// The persisted counters win over the max of surviving rows, so IDs
	// of deleted clusters are never handed out again.
	if v, err := metaInt64(ctx, st, metaNextClusterID); err != nil {
		return nil, err
	} else if v > cs.nextID {
		cs.nextID = v
	}
	if v, err := metaInt64(ctx, st, metaNextClusterSeq); err != nil {
		return nil, err
	} else if v > cs.nextSeq {
		cs.nextSeq = v
	}

	cs.maybeRebuildIndex(true)
	return cs, nil
}

func metaInt64(ctx context.Context, st store.Store, key string) (int64, error) {
	raw, err := st.GetMeta(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", key, err)
	}
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s = %q: %w", key, raw, err)
	}
	return v, nil
}

// Len returns the number of clusters in the working set.
func (cs *ClusterSet) Len() int {
	return len(cs.clusters)
}

// Nearest returns the cluster whose centroid is most cosine-similar to
// vec, or (-1, -1.0) when the set is empty. Ties break toward the
// lowest cluster ID so identical inputs always resolve identically.
func (cs *ClusterSet) Nearest(vec []float32) (int64, float64) {
	if len(cs.clusters) == 0 {
		return -1, -1.0
	}

	if cs.index != nil {
		if id, sim, ok := cs.nearestViaIndex(vec); ok {
			return id, sim
		}
	}

	bestID := int64(-1)
	bestSim := -1.0
	for id, c := range cs.clusters {
		sim := match.Cosine(vec, c.Centroid)
		if sim > bestSim || (sim == bestSim && id < bestID) {
			bestID = id
			bestSim = sim
		}
	}
	return bestID, bestSim
}

// nearestViaIndex asks the HNSW snapshot for candidates and re-scores
// them against the live (possibly drifted) centroids.
func (cs *ClusterSet) nearestViaIndex(vec []float32) (int64, float64, bool) {
	hits := cs.index.Search(vec, annCandidates)
	if len(hits) == 0 {
		return 0, 0, false
	}
	bestID := int64(-1)
	bestSim := -1.0
	for _, h := range hits {
		c, ok := cs.clusters[h.ID]
		if !ok {
			continue
		}
		sim := match.Cosine(vec, c.Centroid)
		if sim > bestSim || (sim == bestSim && h.ID < bestID) {
			bestID = h.ID
			bestSim = sim
		}
	}
	if bestID == -1 {
		return 0, 0, false
	}
	return bestID, bestSim, true
}

// AddMember folds vec into the cluster's running mean and persists the
// updated centroid. With n prior members the update is
// centroid += (vec - centroid) / (n+1), which keeps the centroid equal
// to the arithmetic mean of everything added so far.
func (cs *ClusterSet) AddMember(ctx context.Context, id int64, vec []float32) error {
	c, ok := cs.clusters[id]
	if !ok {
		return fmt.Errorf("adding member to cluster %d: unknown cluster", id)
	}
	if len(vec) != len(c.Centroid) {
		return fmt.Errorf("adding member to cluster %d: vector has %d dimensions, centroid has %d",
			id, len(vec), len(c.Centroid))
	}
	n := float32(c.MemberCount)
	for i := range c.Centroid {
		c.Centroid[i] += (vec[i] - c.Centroid[i]) / (n + 1)
	}
	c.MemberCount++

	if err := cs.st.PutCluster(ctx, c); err != nil {
		return fmt.Errorf("persisting cluster %d: %w", id, err)
	}
	cs.mutations++
	cs.maybeRebuildIndex(false)
	return nil
}

// Spawn creates a new single-member cluster whose centroid is a copy of
// vec and persists it. Cluster IDs are monotonic and never reused, even
// after deletions.
func (cs *ClusterSet) Spawn(ctx context.Context, vec []float32) (int64, error) {
	centroid := make([]float32, len(vec))
	copy(centroid, vec)

	c := &store.TopicCluster{
		ID:          cs.nextID,
		Centroid:    centroid,
		MemberCount: 1,
		CreatedSeq:  cs.nextSeq,
	}
	if err := cs.st.PutCluster(ctx, c); err != nil {
		return -1, fmt.Errorf("persisting spawned cluster %d: %w", c.ID, err)
	}

	cs.clusters[c.ID] = c
	cs.nextID++
	cs.nextSeq++
	if err := cs.st.SetMeta(ctx, metaNextClusterID, strconv.FormatInt(cs.nextID, 10)); err != nil {
		return -1, err
	}
	if err := cs.st.SetMeta(ctx, metaNextClusterSeq, strconv.FormatInt(cs.nextSeq, 10)); err != nil {
		return -1, err
	}
	if cs.dims == 0 {
		cs.dims = len(vec)
	}
	cs.mutations++
	cs.maybeRebuildIndex(false)
	return c.ID, nil
}

// maybeRebuildIndex (re)builds the HNSW snapshot when the set is large
// enough to benefit and enough mutations have accumulated, and drops it
// when the set shrinks below the threshold.
func (cs *ClusterSet) maybeRebuildIndex(force bool) {
	if len(cs.clusters) < cs.opts.ANNClusterThreshold {
		cs.index = nil
		return
	}
	if cs.index != nil && !force && cs.mutations < cs.opts.ANNRebuildEvery {
		return
	}

	centroids := make(map[int64][]float32, len(cs.clusters))
	for id, c := range cs.clusters {
		centroids[id] = c.Centroid
	}
	cs.index = ann.Build(cs.dims, centroids)
	cs.mutations = 0
	cs.log.Debug().Int("clusters", len(cs.clusters)).Msg("rebuilt centroid index")
}
