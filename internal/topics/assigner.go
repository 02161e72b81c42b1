package topics

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tbmmlab/hansard/internal/match"
	"github.com/tbmmlab/hansard/internal/store"
)

// DefaultSimilarityThreshold is the minimum cosine similarity for a
// speech to join an existing cluster. The threshold is inclusive.
const DefaultSimilarityThreshold = 0.6

// Outcome is the terminal state of one speech in the assignment stream.
type Outcome string

const (
	// OutcomeMatched means the speech joined an existing cluster.
	OutcomeMatched Outcome = "matched"
	// OutcomeSpawned means the speech became the seed of a new cluster.
	OutcomeSpawned Outcome = "spawned"
	// OutcomeRejected means the speech could not be assigned at all:
	// no stored embedding, or a zero-norm vector. No assignment row is
	// written, which keeps rejection distinguishable from outlier-sink
	// membership.
	OutcomeRejected Outcome = "rejected"
)

// Decision records what happened to one speech and why.
type Decision struct {
	SpeechID   string
	Outcome    Outcome
	ClusterID  int64
	Similarity float64
	Reason     string
}

// Report summarizes an assignment run.
type Report struct {
	Processed int
	Matched   int
	Spawned   int
	Rejected  int
	Decisions []Decision
}

// AssignerOptions tunes the assigner.
type AssignerOptions struct {
	// SimilarityThreshold is τ; <= 0 means DefaultSimilarityThreshold.
	SimilarityThreshold float64
	// Reassign permits overwriting existing assignment rows.
	// Assignments are write-once otherwise.
	Reassign bool
}

// Assigner processes speeches strictly in arrival order. Each centroid
// update is applied before the next speech is evaluated, so a run over
// a batch is equivalent to feeding the speeches one at a time.
type Assigner struct {
	st   store.Store
	set  *ClusterSet
	opts AssignerOptions
	log  zerolog.Logger
}

// NewAssigner builds an assigner over a loaded working set.
func NewAssigner(st store.Store, set *ClusterSet, opts AssignerOptions, log zerolog.Logger) *Assigner {
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = DefaultSimilarityThreshold
	}
	return &Assigner{st: st, set: set, opts: opts, log: log}
}

// AssignOne resolves a single speech: look up its embedding, match it
// against the working set, and write the assignment.
//
// The write-once check runs before anything else. Centroids and member
// counts only ever reflect speeches with an assignment row, so a
// refused re-assignment must leave the working set untouched.
func (a *Assigner) AssignOne(ctx context.Context, speechID string) (Decision, error) {
	if !a.opts.Reassign {
		existing, err := a.st.GetAssignment(ctx, speechID)
		if err != nil {
			return Decision{}, fmt.Errorf("checking assignment for %s: %w", speechID, err)
		}
		if existing != nil {
			return Decision{}, fmt.Errorf("speech %s already in cluster %d: %w",
				speechID, existing.ClusterID, store.ErrAlreadyAssigned)
		}
	}

	vec, err := a.st.GetEmbedding(ctx, speechID)
	if errors.Is(err, store.ErrNoEmbedding) {
		a.log.Warn().Str("speech", speechID).Msg("no embedding, speech rejected")
		return Decision{SpeechID: speechID, Outcome: OutcomeRejected, ClusterID: -1, Reason: "missing_embedding"}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("loading embedding for %s: %w", speechID, err)
	}
	if match.IsZeroVector(vec) {
		a.log.Warn().Str("speech", speechID).Msg("zero-norm embedding, speech rejected")
		return Decision{SpeechID: speechID, Outcome: OutcomeRejected, ClusterID: -1, Reason: "zero_vector"}, nil
	}

	id, sim := a.set.Nearest(vec)
	if id >= 0 && sim >= a.opts.SimilarityThreshold {
		if err := a.set.AddMember(ctx, id, vec); err != nil {
			return Decision{}, err
		}
		d := Decision{SpeechID: speechID, Outcome: OutcomeMatched, ClusterID: id, Similarity: sim}
		if err := a.record(ctx, d); err != nil {
			return Decision{}, err
		}
		a.log.Debug().
			Str("speech", speechID).
			Int64("cluster", id).
			Float64("similarity", sim).
			Msg("matched existing cluster")
		return d, nil
	}

	newID, err := a.set.Spawn(ctx, vec)
	if err != nil {
		return Decision{}, err
	}
	// A spawned cluster's only member is its own centroid.
	d := Decision{SpeechID: speechID, Outcome: OutcomeSpawned, ClusterID: newID, Similarity: 1.0}
	if err := a.record(ctx, d); err != nil {
		return Decision{}, err
	}
	a.log.Info().
		Str("speech", speechID).
		Int64("cluster", newID).
		Float64("best_similarity", sim).
		Msg("spawned new cluster")
	return d, nil
}

func (a *Assigner) record(ctx context.Context, d Decision) error {
	asn := &store.Assignment{SpeechID: d.SpeechID, ClusterID: d.ClusterID, Similarity: d.Similarity}
	if err := a.st.PutAssignment(ctx, asn, a.opts.Reassign); err != nil {
		return fmt.Errorf("recording assignment for %s: %w", d.SpeechID, err)
	}
	return nil
}

// Run assigns every speech that has an embedding but no assignment yet,
// in embedding insertion order.
func (a *Assigner) Run(ctx context.Context) (*Report, error) {
	ids, err := a.st.ListUnassignedSpeechIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing unassigned speeches: %w", err)
	}

	rep := &Report{}
	for _, speechID := range ids {
		d, err := a.AssignOne(ctx, speechID)
		if err != nil {
			return nil, err
		}
		rep.Processed++
		rep.Decisions = append(rep.Decisions, d)
		switch d.Outcome {
		case OutcomeMatched:
			rep.Matched++
		case OutcomeSpawned:
			rep.Spawned++
		case OutcomeRejected:
			rep.Rejected++
		}
	}
	a.log.Info().
		Int("processed", rep.Processed).
		Int("matched", rep.Matched).
		Int("spawned", rep.Spawned).
		Int("rejected", rep.Rejected).
		Msg("assignment run complete")
	return rep, nil
}
