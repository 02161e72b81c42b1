package identity

import "sort"

// Candidate is one normalized name variant inside a merge group, with
// the attributes aggregated from every raw record that normalized to it.
// Order is the first input position at which the variant was seen; it
// fixes party precedence and makes selection reproducible.
type Candidate struct {
	Name     string
	Party    string
	Terms    []int
	RawNames []string
	Order    int
	Suspect  bool
}

// Select picks the canonical identity for one merge group and merges
// attributes across it.
//
// Per-variant score: 100·hasParty + 10·len(terms) − len(name in runes).
// Highest score wins; ties break to the shorter name, then lexicographic
// order, so repeated runs over identical input produce identical
// fixtures. Suspect variants only represent a group when no clean
// variant exists.
//
// Merged attributes: party is the first non-empty hint in input order,
// terms the sorted union, member raw names the sorted union of all raw
// spellings.
func Select(group []Candidate) CanonicalIdentity {
	if len(group) == 0 {
		return CanonicalIdentity{}
	}

	best := bestCandidate(group)

	// Party precedence follows first-seen input order across the group.
	ordered := append([]Candidate(nil), group...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	party := ""
	termSet := make(map[int]struct{})
	rawSet := make(map[string]struct{})
	for _, c := range ordered {
		if party == "" && c.Party != "" {
			party = c.Party
		}
		for _, term := range c.Terms {
			termSet[term] = struct{}{}
		}
		for _, raw := range c.RawNames {
			rawSet[raw] = struct{}{}
		}
	}

	terms := make([]int, 0, len(termSet))
	for term := range termSet {
		terms = append(terms, term)
	}
	sort.Ints(terms)

	raws := make([]string, 0, len(rawSet))
	for raw := range rawSet {
		raws = append(raws, raw)
	}
	sort.Strings(raws)

	return CanonicalIdentity{
		CanonicalName:  best.Name,
		Party:          party,
		Terms:          terms,
		MemberRawNames: raws,
	}
}

func bestCandidate(group []Candidate) Candidate {
	pool := make([]Candidate, 0, len(group))
	for _, c := range group {
		if !c.Suspect {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		pool = group
	}

	best := pool[0]
	bestScore := completenessScore(best)
	for _, c := range pool[1:] {
		score := completenessScore(c)
		switch {
		case score > bestScore:
			best, bestScore = c, score
		case score == bestScore && betterTiebreak(c, best):
			best = c
		}
	}
	return best
}

func completenessScore(c Candidate) int {
	score := -len([]rune(c.Name))
	if c.Party != "" {
		score += 100
	}
	score += 10 * len(c.Terms)
	return score
}

// betterTiebreak prefers the shorter name, then the lexicographically
// smaller one.
func betterTiebreak(a, b Candidate) bool {
	la, lb := len([]rune(a.Name)), len([]rune(b.Name))
	if la != lb {
		return la < lb
	}
	return a.Name < b.Name
}
