// Package match provides the pairwise scoring and candidate-generation
// primitives behind identity deduplication and topic assignment: a
// sequence-matcher ratio for names, cosine similarity for embeddings, a
// blocking index that narrows fuzzy comparison to plausible candidates,
// and a union-find for transitive grouping.
package match

import (
	"math"
	"strings"

	"github.com/tbmmlab/hansard/internal/normalize"
)

// nameTokenWindow bounds how many leading tokens of a name participate in
// fuzzy scoring. Three tokens cover given name + middle name + surname
// while ignoring trailing title/suffix noise.
const nameTokenWindow = 3

// Ratio returns the character-level sequence-matcher similarity of two
// strings: 2·M/(len(a)+len(b)), with M the number of matched characters
// in the optimal alignment. Two empty strings score 1; empty against
// non-empty scores 0.
func Ratio(a, b string) float64 {
	ar := []rune(a)
	br := []rune(b)
	if len(ar) == 0 && len(br) == 0 {
		return 1
	}
	if len(ar) == 0 || len(br) == 0 {
		return 0
	}
	m := lcsLength(ar, br)
	return 2 * float64(m) / float64(len(ar)+len(br))
}

// NameSimilarity scores two normalized names over their first three
// whitespace tokens, lowercased under Turkish casing rules.
func NameSimilarity(a, b string) float64 {
	return Ratio(
		normalize.Lower(FirstTokens(a, nameTokenWindow)),
		normalize.Lower(FirstTokens(b, nameTokenWindow)),
	)
}

// FirstTokens returns the first n whitespace-delimited tokens of s,
// rejoined with single spaces.
func FirstTokens(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

// Cosine returns the cosine similarity of two vectors in [-1, 1].
// Mismatched dimensions or a zero-norm operand score 0 rather than
// dividing by zero.
func Cosine(u, v []float32) float64 {
	if len(u) != len(v) || len(u) == 0 {
		return 0
	}
	var dot, normU, normV float64
	for i := range u {
		dot += float64(u[i]) * float64(v[i])
		normU += float64(u[i]) * float64(u[i])
		normV += float64(v[i]) * float64(v[i])
	}
	if normU == 0 || normV == 0 {
		return 0
	}
	return dot / (math.Sqrt(normU) * math.Sqrt(normV))
}

// IsZeroVector reports whether v is empty or has zero norm. Zero-norm
// embeddings carry no signal and are rejected upstream of assignment.
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// lcsLength computes the longest-common-subsequence length of two rune
// slices with a two-row dynamic program.
func lcsLength(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
