package identity

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestParseTerms(t *testing.T) {
	cases := []struct {
		in   string
		want []int
	}{
		{"[25, 26]", []int{25, 26}},
		{"[17]", []int{17}},
		{"[]", nil},
		{"", nil},
		{"[25, abc]", nil}, // malformed content yields empty, not an error
		{"25, 26", nil},
		{"[25, 26", nil},
	}
	for _, c := range cases {
		if got := ParseTerms(c.in); !reflect.DeepEqual(got, c.want) {
			t.Errorf("ParseTerms(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestFormatTermsRoundTrip(t *testing.T) {
	terms := []int{17, 25, 26}
	if got := ParseTerms(FormatTerms(terms)); !reflect.DeepEqual(got, terms) {
		t.Errorf("round trip = %v", got)
	}
	if got := FormatTerms(nil); got != "[]" {
		t.Errorf("FormatTerms(nil) = %q", got)
	}
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mp_lookup.csv")
	content := strings.Join([]string{
		"speech_giver,political_party,terms",
		`Ahmet Yılmaz,Party A,"[25, 26]"`,
		`Mehmet Demir,,"[17]"`,
		`Ayşe Kaya,Party B,bozuk`,
		`,,"[25]"`, // missing name: counted, skipped
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if len(table.Records) != 3 {
		t.Fatalf("records = %d, want 3", len(table.Records))
	}
	if table.Malformed != 1 {
		t.Errorf("malformed = %d, want 1", table.Malformed)
	}

	first := table.Records[0]
	if first.RawName != "Ahmet Yılmaz" || first.PartyHint != "Party A" {
		t.Errorf("first record = %+v", first)
	}
	if !reflect.DeepEqual(first.Terms, []int{25, 26}) {
		t.Errorf("first terms = %v", first.Terms)
	}
	// malformed terms parse to empty, row survives
	if table.Records[2].Terms != nil {
		t.Errorf("malformed terms should be empty, got %v", table.Records[2].Terms)
	}
}

func TestSaveTableAtomicSwapAndBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mp_lookup.csv")

	v1 := []CanonicalIdentity{
		{CanonicalName: "Ahmet Yılmaz", Party: "Party A", Terms: []int{25}},
	}
	if err := SaveTable(path, v1); err != nil {
		t.Fatalf("SaveTable v1: %v", err)
	}

	v2 := []CanonicalIdentity{
		{CanonicalName: "Ahmet Yılmaz", Party: "Party A", Terms: []int{25, 26}},
		{CanonicalName: "Mehmet Demir", Terms: []int{17}},
	}
	if err := SaveTable(path, v2); err != nil {
		t.Fatalf("SaveTable v2: %v", err)
	}

	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if len(table.Records) != 2 {
		t.Errorf("records = %d, want 2", len(table.Records))
	}
	if !reflect.DeepEqual(table.Records[0].Terms, []int{25, 26}) {
		t.Errorf("terms did not round trip: %v", table.Records[0].Terms)
	}

	// Previous version survives as a backup.
	backup, err := LoadTable(filepath.Join(dir, "mp_lookup_backup.csv"))
	if err != nil {
		t.Fatalf("loading backup: %v", err)
	}
	if len(backup.Records) != 1 {
		t.Errorf("backup records = %d, want 1", len(backup.Records))
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestAppendMergeLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merges.csv")

	batch1 := []MergeDecision{
		{RawNameA: "John Kernell", RawNameB: "John Kernel", Similarity: 0.9565,
			Reason: ReasonFuzzyMatch, CanonicalName: "John Kernel"},
	}
	batch2 := []MergeDecision{
		{RawNameA: "Ahmet Yıldırım'ın açıklaması", RawNameB: "Ahmet Yıldırım", Similarity: 1,
			Reason: ReasonExactNormalized, CanonicalName: "Ahmet Yıldırım"},
	}
	if err := AppendMergeLog(path, batch1); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if err := AppendMergeLog(path, batch2); err != nil {
		t.Fatalf("append 2: %v", err)
	}
	if err := AppendMergeLog(path, nil); err != nil {
		t.Fatalf("append empty: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 { // header + 2 rows, appended not rewritten
		t.Fatalf("log lines = %d, want 3:\n%s", len(lines), data)
	}
	if !strings.HasPrefix(lines[0], "raw_name_a") {
		t.Errorf("missing header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "fuzzy_match") || !strings.Contains(lines[2], "exact_normalized") {
		t.Errorf("unexpected log body:\n%s", data)
	}
}
