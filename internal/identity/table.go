package identity

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// tableHeader is the identity CSV header, shared with every upstream
// producer and downstream consumer of the table.
var tableHeader = []string{"speech_giver", "political_party", "terms"}

// Table is an immutable per-run snapshot of the identity CSV. Callers
// never mutate a loaded table; the engine's output is written as a whole
// new version and swapped in atomically.
type Table struct {
	Records   []RawNameRecord
	Malformed int // rows skipped for missing name or short column count
}

// LoadTable reads the identity CSV at path. Rows with a malformed terms
// list get an empty terms slice; rows missing the name column are
// counted and skipped. A single bad row never fails the load.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening identity table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate ragged rows; validated per row below

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading identity table: %w", err)
	}

	t := &Table{}
	for i, row := range rows {
		if i == 0 && isHeaderRow(row) {
			continue
		}
		if len(row) < 1 || strings.TrimSpace(row[0]) == "" {
			t.Malformed++
			continue
		}
		rec := RawNameRecord{RawName: row[0]}
		if len(row) > 1 {
			rec.PartyHint = strings.TrimSpace(row[1])
		}
		if len(row) > 2 {
			rec.Terms = ParseTerms(row[2])
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

// ParseTerms parses a bracketed integer list ("[25, 26]") into a sorted
// slice. Any malformed content yields an empty list rather than failing
// the row.
func ParseTerms(s string) []int {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return nil
	}
	parts := strings.Split(inner, ",")
	terms := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil
		}
		terms = append(terms, n)
	}
	return terms
}

// FormatTerms renders a terms slice in the bracketed list form the table
// round-trips: "[25, 26]".
func FormatTerms(terms []int) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = strconv.Itoa(t)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// SaveTable writes the canonical identities as a new version of the
// identity table: a timestamped backup of any existing file first, then
// write-to-temp-and-rename in the same directory so readers only ever
// see a complete table.
func SaveTable(path string, identities []CanonicalIdentity) error {
	if err := backupExisting(path); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating temp table: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after successful rename

	w := csv.NewWriter(tmp)
	if err := w.Write(tableHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("writing table header: %w", err)
	}
	for _, id := range identities {
		row := []string{id.CanonicalName, id.Party, FormatTerms(id.Terms)}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("writing identity row %q: %w", id.CanonicalName, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing identity table: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing identity table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing identity table: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("swapping identity table: %w", err)
	}
	return nil
}

// backupExisting copies the current table aside before a swap. The first
// backup keeps a stable name; later ones are timestamped so no backup is
// ever overwritten.
func backupExisting(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading table for backup: %w", err)
	}

	backup := backupPath(path, "")
	if _, err := os.Stat(backup); err == nil {
		backup = backupPath(path, time.Now().Format("20060102_150405"))
	}
	if err := os.WriteFile(backup, data, 0644); err != nil {
		return fmt.Errorf("writing table backup: %w", err)
	}
	return nil
}

func backupPath(path, stamp string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	if stamp == "" {
		return base + "_backup" + ext
	}
	return base + "_backup_" + stamp + ext
}

// mergeLogHeader is the audit-log CSV header.
var mergeLogHeader = []string{
	"raw_name_a", "raw_name_b", "similarity", "reason", "canonical_name",
}

// AppendMergeLog appends one row per MergeDecision to the audit log at
// path, creating it (with header) when absent. The log is append-only;
// entries are never rewritten.
func AppendMergeLog(path string, decisions []MergeDecision) error {
	if len(decisions) == 0 {
		return nil
	}

	writeHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		writeHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening merge log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(mergeLogHeader); err != nil {
			return fmt.Errorf("writing merge log header: %w", err)
		}
	}
	for _, d := range decisions {
		row := []string{
			d.RawNameA,
			d.RawNameB,
			strconv.FormatFloat(d.Similarity, 'f', 4, 64),
			string(d.Reason),
			d.CanonicalName,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing merge log row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing merge log: %w", err)
	}
	return nil
}

func isHeaderRow(row []string) bool {
	return len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), tableHeader[0])
}
