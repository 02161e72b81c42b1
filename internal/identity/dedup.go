package identity

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/tbmmlab/hansard/internal/match"
	"github.com/tbmmlab/hansard/internal/normalize"
)

// DefaultFuzzyThreshold is the minimum first-tokens similarity at which
// two normalized names are merged.
const DefaultFuzzyThreshold = 0.9

// Options configures a deduplication run.
type Options struct {
	// FuzzyThreshold is inclusive; <= 0 selects DefaultFuzzyThreshold.
	FuzzyThreshold float64
	// BlockKeyWidth is the number of leading tokens in a blocking key;
	// <= 0 selects match.DefaultBlockKeyWidth.
	BlockKeyWidth int
	// SuspectLength flags separator-free names longer than this many
	// runes; <= 0 selects normalize.DefaultMaxNameLength.
	SuspectLength int
}

// Engine runs the full-table batch deduplication. One-shot: build,
// Run once, read the report. No concurrent use.
type Engine struct {
	opts Options
	log  zerolog.Logger
}

// NewEngine creates an engine with the given options and decision
// logger. Pass zerolog.Nop() to silence decision logging.
func NewEngine(opts Options, log zerolog.Logger) *Engine {
	if opts.FuzzyThreshold <= 0 {
		opts.FuzzyThreshold = DefaultFuzzyThreshold
	}
	return &Engine{opts: opts, log: log}
}

// Report is the full outcome of one deduplication run. Identities and
// Decisions are deterministically ordered: identical input always yields
// an identical report.
type Report struct {
	InputRecords     int
	Identities       []CanonicalIdentity
	Decisions        []MergeDecision
	RejectedRawNames []string
	Suspects         []Suspect
	Ambiguities      []Ambiguity
	PairsScored      int
	FuzzyGroups      int
}

// entry aggregates every raw record that normalized to one name.
type entry struct {
	name     string
	party    string
	terms    map[int]struct{}
	rawNames []string
	order    int
	suspect  bool
	reasons  []string
}

// Run executes the pipeline over the batch:
// normalize -> block -> group -> canonicalize.
//
// Records whose name is empty after normalization are rejected and never
// grouped; merging on the empty string would corrupt every blocking key.
// A bad record never aborts the batch. Re-running over the output of a
// prior run performs zero further merges.
func (e *Engine) Run(records []RawNameRecord) *Report {
	report := &Report{InputRecords: len(records)}

	entries := e.normalizeRecords(records, report)
	index := e.block(entries)
	uf := e.group(entries, index, report)
	e.canonicalize(entries, uf, report)

	return report
}

// normalizeRecords applies name normalization to every record and
// aggregates records by normalized name, preserving input order for
// deterministic party precedence.
func (e *Engine) normalizeRecords(records []RawNameRecord, report *Report) map[string]*entry {
	entries := make(map[string]*entry)

	for i, rec := range records {
		name := normalize.Name(rec.RawName)
		if name == "" {
			report.RejectedRawNames = append(report.RejectedRawNames, rec.RawName)
			e.log.Warn().Str("raw_name", rec.RawName).
				Msg("rejected record: empty after normalization")
			continue
		}

		ent, ok := entries[name]
		if !ok {
			reasons := normalize.SuspectReasons(name, e.opts.SuspectLength)
			ent = &entry{
				name:    name,
				terms:   make(map[int]struct{}),
				order:   i,
				suspect: len(reasons) > 0,
				reasons: reasons,
			}
			entries[name] = ent
			if ent.suspect {
				report.Suspects = append(report.Suspects, Suspect{Name: name, Reasons: reasons})
				e.log.Warn().Str("name", name).Strs("reasons", reasons).
					Msg("suspect name flagged")
			}
		}

		if !containsString(ent.rawNames, rec.RawName) {
			ent.rawNames = append(ent.rawNames, rec.RawName)
		}
		if ent.party == "" && rec.PartyHint != "" {
			ent.party = rec.PartyHint
		}
		for _, term := range rec.Terms {
			ent.terms[term] = struct{}{}
		}
	}

	sort.Slice(report.Suspects, func(i, j int) bool {
		return report.Suspects[i].Name < report.Suspects[j].Name
	})
	return entries
}

func (e *Engine) block(entries map[string]*entry) *match.CandidateIndex {
	index := match.NewCandidateIndex(e.opts.BlockKeyWidth)
	for name := range entries {
		index.Add(name)
	}
	return index
}

// group unions every candidate pair scoring at or above the threshold.
// Grouping is transitive: A~B and B~C puts A, B, C in one group even
// when sim(A, C) is below the threshold.
func (e *Engine) group(entries map[string]*entry, index *match.CandidateIndex, report *Report) *match.UnionFind {
	names := sortedKeys(entries)

	uf := match.NewUnionFind()
	for _, name := range names {
		uf.Add(name)
		for _, cand := range index.Candidates(name) {
			if cand <= name {
				continue // each unordered pair is scored once
			}
			sim := match.NameSimilarity(name, cand)
			report.PairsScored++
			if sim >= e.opts.FuzzyThreshold {
				uf.Union(name, cand)
				e.log.Debug().Str("a", name).Str("b", cand).
					Float64("similarity", sim).Msg("fuzzy pair grouped")
			}
		}
	}
	return uf
}

// canonicalize selects one identity per group, merges attributes, and
// emits one MergeDecision per absorbed variant.
func (e *Engine) canonicalize(entries map[string]*entry, uf *match.UnionFind, report *Report) {
	groups := uf.Groups()

	for _, root := range sortedKeys(groups) {
		members := groups[root]

		candidates := make([]Candidate, 0, len(members))
		for _, name := range members {
			ent := entries[name]
			candidates = append(candidates, Candidate{
				Name:     ent.name,
				Party:    ent.party,
				Terms:    sortedTerms(ent.terms),
				RawNames: ent.rawNames,
				Order:    ent.order,
				Suspect:  ent.suspect,
			})
		}

		canonical := Select(candidates)
		report.Identities = append(report.Identities, canonical)
		if len(members) > 1 {
			report.FuzzyGroups++
		}

		e.emitDecisions(members, entries, canonical, report)
		e.flagAmbiguity(members, entries, canonical, report)
	}

	sort.Slice(report.Identities, func(i, j int) bool {
		return report.Identities[i].CanonicalName < report.Identities[j].CanonicalName
	})
}

func (e *Engine) emitDecisions(members []string, entries map[string]*entry, canonical CanonicalIdentity, report *Report) {
	for _, name := range members {
		ent := entries[name]

		// Raw spellings collapsed by normalization alone.
		for _, raw := range ent.rawNames[1:] {
			d := MergeDecision{
				RawNameA:      raw,
				RawNameB:      ent.rawNames[0],
				Similarity:    1.0,
				Reason:        ReasonExactNormalized,
				CanonicalName: canonical.CanonicalName,
			}
			report.Decisions = append(report.Decisions, d)
			e.logDecision(d)
		}

		// Normalized variants absorbed on similarity. The recorded score
		// is the variant's actual similarity to the canonical name, which
		// can sit below the threshold when the merge chained through an
		// intermediate.
		if name != canonical.CanonicalName {
			d := MergeDecision{
				RawNameA:      name,
				RawNameB:      canonical.CanonicalName,
				Similarity:    match.NameSimilarity(name, canonical.CanonicalName),
				Reason:        ReasonFuzzyMatch,
				CanonicalName: canonical.CanonicalName,
			}
			report.Decisions = append(report.Decisions, d)
			e.logDecision(d)
		}
	}
}

func (e *Engine) flagAmbiguity(members []string, entries map[string]*entry, canonical CanonicalIdentity, report *Report) {
	partySet := make(map[string]struct{})
	for _, name := range members {
		if p := entries[name].party; p != "" {
			partySet[p] = struct{}{}
		}
	}
	if len(partySet) < 2 {
		return
	}
	parties := sortedKeys(partySet)
	report.Ambiguities = append(report.Ambiguities, Ambiguity{
		CanonicalName: canonical.CanonicalName,
		Parties:       parties,
	})
	e.log.Warn().Str("canonical", canonical.CanonicalName).Strs("parties", parties).
		Msg("ambiguous merge: conflicting party data")
}

func (e *Engine) logDecision(d MergeDecision) {
	e.log.Info().
		Str("raw_name_a", d.RawNameA).
		Str("raw_name_b", d.RawNameB).
		Float64("similarity", d.Similarity).
		Str("reason", string(d.Reason)).
		Str("canonical", d.CanonicalName).
		Msg("merge")
}

func sortedTerms(set map[int]struct{}) []int {
	terms := make([]int, 0, len(set))
	for term := range set {
		terms = append(terms, term)
	}
	sort.Ints(terms)
	return terms
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
