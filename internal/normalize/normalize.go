// Package normalize cleans raw speaker names extracted from parliament
// session transcripts.
//
// Extraction appends descriptive clauses to the attributed name through a
// Turkish possessive suffix ("Ahmet Yıldırım'ın açıklaması ...") or a
// comma-separated fragment. Normalization cuts the name at the first such
// separator and canonicalizes whitespace, so that every spelling of the
// same attribution collapses to one candidate string before fuzzy
// matching runs.
package normalize

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxNameLength is the length above which a separator-free name is
// treated as a suspected extraction error. Real MP names stay well under
// this; longer strings are almost always a name with trailing prose glued
// on.
const DefaultMaxNameLength = 45

// apostrophes lists the apostrophe-family code points seen in transcript
// output: ASCII apostrophe, right single quotation mark, single
// high-reversed-9 quotation mark, grave accent.
const apostrophes = "'’‛`"

// Name maps a raw extracted speaker name to its cleaned candidate form.
//
// Steps, in fixed order:
//  1. NFKC fold, then cut at the first apostrophe-family code point.
//  2. Cut at the first comma or semicolon.
//  3. Trim and collapse whitespace runs to single spaces.
//
// Apostrophe splitting must run before comma splitting: when both
// separators appear in the appended clause, splitting on the comma first
// would leave an apostrophe-suffixed fragment behind.
//
// Name is deterministic, pure, and total; malformed input yields a
// best-effort result, never an error. It is also a projection:
// Name(Name(x)) == Name(x).
func Name(raw string) string {
	s := norm.NFKC.String(raw)
	if i := strings.IndexAny(s, apostrophes); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexAny(s, ",;"); i >= 0 {
		s = s[:i]
	}
	return strings.Join(strings.Fields(s), " ")
}

// Lower lowercases s under Turkish casing rules, so that dotted and
// dotless I fold the way a Turkish reader expects (İSTANBUL → istanbul,
// ILICA → ılıca). Used for blocking keys and similarity scoring.
func Lower(s string) string {
	return cases.Lower(language.Turkish).String(s)
}

// IsSuspect reports whether a normalized name exceeds maxLen runes.
// Suspect names are flagged for resolution against the canonical set,
// not truncated. maxLen <= 0 selects DefaultMaxNameLength.
func IsSuspect(name string, maxLen int) bool {
	if maxLen <= 0 {
		maxLen = DefaultMaxNameLength
	}
	return len([]rune(name)) > maxLen
}

// ContainsConjunction reports whether the name carries "ve" (and) or
// "ile" (with) as a standalone token. Such names are usually two MPs
// concatenated, or a name fused with a descriptive clause, and must not
// be merged into a single identity.
func ContainsConjunction(name string) bool {
	for _, word := range strings.Fields(name) {
		switch Lower(word) {
		case "ve", "ile":
			return true
		}
	}
	return false
}

// SuspectReasons lists why a normalized name looks like an extraction
// error: excessive length and/or an embedded conjunction. An empty
// result means the name passes both checks. The reason strings match the
// merge-audit vocabulary consumed by human reviewers.
func SuspectReasons(name string, maxLen int) []string {
	var reasons []string
	if IsSuspect(name, maxLen) {
		reasons = append(reasons, fmt.Sprintf("length=%d", len([]rune(name))))
	}
	if ContainsConjunction(name) {
		reasons = append(reasons, "contains_conjunction")
	}
	return reasons
}
