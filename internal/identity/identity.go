// Package identity resolves noisy extracted speaker names into canonical
// MP identities.
//
// The batch engine walks a fixed pipeline: normalize every raw record,
// index the distinct normalized names into a blocking structure, group
// near-duplicates transitively with union-find, then pick one canonical
// representative per group and merge attributes. Every merge is recorded
// in an append-only audit log so any outcome can be reproduced after the
// fact.
package identity

// MergeReason labels why two raw names collapsed into one identity.
type MergeReason string

const (
	// ReasonExactNormalized marks raw spellings that became identical
	// after normalization alone.
	ReasonExactNormalized MergeReason = "exact_normalized"
	// ReasonFuzzyMatch marks normalized names merged on similarity score.
	ReasonFuzzyMatch MergeReason = "fuzzy_match"
)

// RawNameRecord is one extracted speech attribution as it arrives from
// upstream extraction. Immutable once created.
type RawNameRecord struct {
	RawName   string
	PartyHint string
	Terms     []int
}

// CanonicalIdentity is the single resolved representation of one MP
// after merging name variants. MemberRawNames is a nonempty partition
// element: every raw record belongs to exactly one identity. Identities
// are only ever merged further, never deleted.
type CanonicalIdentity struct {
	CanonicalName  string
	Party          string
	Terms          []int    // sorted, unique
	MemberRawNames []string // sorted, unique
}

// MergeDecision is one audit-log entry: a single pairwise merge with the
// score and reason that produced it.
type MergeDecision struct {
	RawNameA      string
	RawNameB      string
	Similarity    float64
	Reason        MergeReason
	CanonicalName string
}

// Ambiguity flags a merge group whose members carried materially
// conflicting party hints. Not an error: the merge still resolves
// deterministically, but a human should review it.
type Ambiguity struct {
	CanonicalName string
	Parties       []string // distinct conflicting values, sorted
}

// Suspect is a normalized name that looks like an extraction error
// (overlong, or an embedded conjunction joining two MPs). Suspects are
// still resolved against the table but excluded from representing a
// group.
type Suspect struct {
	Name    string
	Reasons []string
}
