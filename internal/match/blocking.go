package match

import (
	"sort"

	"github.com/tbmmlab/hansard/internal/normalize"
)

// DefaultBlockKeyWidth is the number of leading tokens in a blocking key.
// Width 1 (first token, lowercased) keeps recall high on sparse tables;
// width 2 cuts candidate sets on denser ones.
const DefaultBlockKeyWidth = 1

// CandidateIndex narrows O(n²) pairwise fuzzy comparison to names that
// share a cheap blocking key. Recall is lost only when two truly
// equivalent names share no key — an accepted tradeoff controlled by the
// key width, not a silent failure mode.
type CandidateIndex struct {
	width  int
	blocks map[string][]string
	seen   map[string]struct{}
}

// NewCandidateIndex creates an index with the given blocking-key width.
// width <= 0 selects DefaultBlockKeyWidth.
func NewCandidateIndex(width int) *CandidateIndex {
	if width <= 0 {
		width = DefaultBlockKeyWidth
	}
	return &CandidateIndex{
		width:  width,
		blocks: make(map[string][]string),
		seen:   make(map[string]struct{}),
	}
}

// BlockKey derives the blocking key for a normalized name: its first
// `width` tokens, lowercased under Turkish casing rules. Empty names
// produce an empty key and are never indexed.
func (ci *CandidateIndex) BlockKey(name string) string {
	return normalize.Lower(FirstTokens(name, ci.width))
}

// Add inserts a normalized name. Duplicate insertions and empty names
// are no-ops.
func (ci *CandidateIndex) Add(name string) {
	key := ci.BlockKey(name)
	if key == "" {
		return
	}
	if _, ok := ci.seen[name]; ok {
		return
	}
	ci.seen[name] = struct{}{}
	ci.blocks[key] = append(ci.blocks[key], name)
}

// Candidates returns the indexed names sharing a blocking key with name,
// excluding name itself, in sorted order for deterministic iteration.
func (ci *CandidateIndex) Candidates(name string) []string {
	key := ci.BlockKey(name)
	if key == "" {
		return nil
	}
	block := ci.blocks[key]
	out := make([]string, 0, len(block))
	for _, cand := range block {
		if cand != name {
			out = append(out, cand)
		}
	}
	sort.Strings(out)
	return out
}

// Len returns the number of distinct names indexed.
func (ci *CandidateIndex) Len() int {
	return len(ci.seen)
}
