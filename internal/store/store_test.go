package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// newTestStore creates an in-memory store for testing.
func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := Open(Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesSchema(t *testing.T) {
	s := newTestStore(t).(*SQLiteStore)
	for _, table := range []string{"clusters", "embeddings", "assignments", "meta"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestClusterRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &TopicCluster{
		ID:          0,
		Centroid:    []float32{0.1, 0.2, 0.3},
		MemberCount: 4,
		CreatedSeq:  1,
	}
	if err := s.PutCluster(ctx, c); err != nil {
		t.Fatalf("PutCluster: %v", err)
	}

	got, err := s.GetCluster(ctx, 0)
	if err != nil {
		t.Fatalf("GetCluster: %v", err)
	}
	if got == nil || !reflect.DeepEqual(got.Centroid, c.Centroid) || got.MemberCount != 4 {
		t.Errorf("round trip = %+v", got)
	}

	// update path
	c.MemberCount = 5
	c.Centroid = []float32{0.2, 0.2, 0.2}
	if err := s.PutCluster(ctx, c); err != nil {
		t.Fatalf("PutCluster update: %v", err)
	}
	got, err = s.GetCluster(ctx, 0)
	if err != nil {
		t.Fatalf("GetCluster after update: %v", err)
	}
	if got.MemberCount != 5 {
		t.Errorf("member count = %d", got.MemberCount)
	}

	if missing, err := s.GetCluster(ctx, 99); err != nil || missing != nil {
		t.Errorf("absent cluster = (%v, %v), want (nil, nil)", missing, err)
	}
}

func TestPutClusterRejectsOutlierAndEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bad := &TopicCluster{ID: OutlierClusterID, Centroid: []float32{1}, MemberCount: 1}
	if err := s.PutCluster(ctx, bad); err == nil {
		t.Error("outlier sink stored as a cluster")
	}
	empty := &TopicCluster{ID: 3, Centroid: []float32{1}, MemberCount: 0}
	if err := s.PutCluster(ctx, empty); err == nil {
		t.Error("zero-member cluster stored")
	}
}

func TestListClustersOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []int64{2, 0, 1} {
		c := &TopicCluster{ID: id, Centroid: []float32{float32(id)}, MemberCount: 1, CreatedSeq: id}
		if err := s.PutCluster(ctx, c); err != nil {
			t.Fatalf("PutCluster %d: %v", id, err)
		}
	}

	clusters, err := s.ListClusters(ctx)
	if err != nil {
		t.Fatalf("ListClusters: %v", err)
	}
	if len(clusters) != 3 {
		t.Fatalf("clusters = %d", len(clusters))
	}
	for i, c := range clusters {
		if c.ID != int64(i) {
			t.Errorf("cluster[%d].ID = %d, want ordered by id", i, c.ID)
		}
	}
}

func TestEmbeddingRoundTripAndMiss(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	vec := []float32{0.5, -0.25, 1.0}
	if err := s.PutEmbedding(ctx, "speech-1", vec); err != nil {
		t.Fatalf("PutEmbedding: %v", err)
	}
	got, err := s.GetEmbedding(ctx, "speech-1")
	if err != nil {
		t.Fatalf("GetEmbedding: %v", err)
	}
	if !reflect.DeepEqual(got, vec) {
		t.Errorf("vector round trip = %v", got)
	}

	_, err = s.GetEmbedding(ctx, "missing")
	if !errors.Is(err, ErrNoEmbedding) {
		t.Errorf("missing embedding error = %v, want ErrNoEmbedding", err)
	}
}

func TestListUnassignedInInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"s3", "s1", "s2"} {
		if err := s.PutEmbedding(ctx, id, []float32{1}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.PutAssignment(ctx, &Assignment{SpeechID: "s1", ClusterID: 0, Similarity: 0.8}, false); err != nil {
		t.Fatal(err)
	}

	ids, err := s.ListUnassignedSpeechIDs(ctx)
	if err != nil {
		t.Fatalf("ListUnassignedSpeechIDs: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"s3", "s2"}) {
		t.Errorf("unassigned = %v, want insertion order [s3 s2]", ids)
	}
}

func TestAssignmentWriteOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &Assignment{SpeechID: "s1", ClusterID: 0, Similarity: 0.7}
	if err := s.PutAssignment(ctx, a, false); err != nil {
		t.Fatalf("PutAssignment: %v", err)
	}

	dup := &Assignment{SpeechID: "s1", ClusterID: 1, Similarity: 0.9}
	if err := s.PutAssignment(ctx, dup, false); !errors.Is(err, ErrAlreadyAssigned) {
		t.Errorf("duplicate assignment error = %v, want ErrAlreadyAssigned", err)
	}

	// explicit reassignment overwrites
	if err := s.PutAssignment(ctx, dup, true); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	got, err := s.GetAssignment(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ClusterID != 1 {
		t.Errorf("cluster after reassign = %d", got.ClusterID)
	}
}

func TestAssignmentAbsentVsOutlier(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// No row: no topic yet.
	got, err := s.GetAssignment(ctx, "unseen")
	if err != nil || got != nil {
		t.Errorf("absent assignment = (%v, %v), want (nil, nil)", got, err)
	}

	// Outlier sink membership is a real row with cluster_id -1.
	out := &Assignment{SpeechID: "noise", ClusterID: OutlierClusterID, Similarity: 0}
	if err := s.PutAssignment(ctx, out, false); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetAssignment(ctx, "noise")
	if err != nil || got == nil || got.ClusterID != OutlierClusterID {
		t.Errorf("outlier assignment = (%v, %v)", got, err)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.PutCluster(ctx, &TopicCluster{ID: 0, Centroid: []float32{1}, MemberCount: 2, CreatedSeq: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.PutEmbedding(ctx, "s1", []float32{1}); err != nil {
		t.Fatal(err)
	}
	if err := s.PutAssignment(ctx, &Assignment{SpeechID: "s1", ClusterID: 0, Similarity: 0.9}, false); err != nil {
		t.Fatal(err)
	}
	if err := s.PutAssignment(ctx, &Assignment{SpeechID: "noise", ClusterID: OutlierClusterID}, false); err != nil {
		t.Fatal(err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := Stats{Clusters: 1, Embeddings: 1, Assignments: 1, Outliers: 1}
	if *st != want {
		t.Errorf("stats = %+v, want %+v", *st, want)
	}
}

func TestMetaRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetMeta(ctx, "next_cluster_id")
	if err != nil || got != "" {
		t.Errorf("absent meta = (%q, %v), want empty", got, err)
	}

	if err := s.SetMeta(ctx, "next_cluster_id", "7"); err != nil {
		t.Fatalf("SetMeta: %v", err)
	}
	if err := s.SetMeta(ctx, "next_cluster_id", "8"); err != nil {
		t.Fatalf("SetMeta overwrite: %v", err)
	}
	got, err = s.GetMeta(ctx, "next_cluster_id")
	if err != nil || got != "8" {
		t.Errorf("meta = (%q, %v), want 8", got, err)
	}

	// Migrations seed the schema version.
	got, err = s.GetMeta(ctx, "schema_version")
	if err != nil || got != "1" {
		t.Errorf("schema_version = (%q, %v)", got, err)
	}
}

func TestVectorCodec(t *testing.T) {
	vecs := [][]float32{
		{},
		{0},
		{1.5, -2.25, 3.75},
	}
	for _, vec := range vecs {
		got := bytesToFloat32(float32ToBytes(vec))
		if len(got) != len(vec) {
			t.Errorf("codec length %d != %d", len(got), len(vec))
			continue
		}
		for i := range vec {
			if got[i] != vec[i] {
				t.Errorf("codec[%d] = %v, want %v", i, got[i], vec[i])
			}
		}
	}
}
