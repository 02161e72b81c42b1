package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseArgs(t *testing.T) {
	p, err := parseArgs([]string{"table.csv", "--dry-run", "--threshold", "0.95", "--log", "out.csv"})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if len(p.positional) != 1 || p.positional[0] != "table.csv" {
		t.Errorf("positional = %v", p.positional)
	}
	if !p.dryRun || p.threshold != "0.95" || p.logPath != "out.csv" {
		t.Errorf("flags = %+v", p)
	}
}

func TestParseArgsUnknownFlag(t *testing.T) {
	if _, err := parseArgs([]string{"--bogus"}); err == nil {
		t.Error("unknown flag accepted")
	}
}

func TestParseArgsMissingValue(t *testing.T) {
	if _, err := parseArgs([]string{"--threshold"}); err == nil {
		t.Error("flag with missing value accepted")
	}
}

func TestRunDedupDryRun(t *testing.T) {
	dir := t.TempDir()
	tablePath := filepath.Join(dir, "table.csv")
	table := strings.Join([]string{
		"speech_giver,political_party,terms",
		`Ahmet Yıldırım,HDP,"[25, 26]"`,
		`Ahmet Yıldırım'ın açıklaması,HDP,"[26]"`,
		"",
	}, "\n")
	if err := os.WriteFile(tablePath, []byte(table), 0644); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(tablePath)
	if err != nil {
		t.Fatal(err)
	}

	if err := runDedup([]string{tablePath, "--dry-run"}); err != nil {
		t.Fatalf("runDedup: %v", err)
	}

	after, err := os.ReadFile(tablePath)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("dry run modified the identity table")
	}
}

func TestRunDedupRewritesTable(t *testing.T) {
	dir := t.TempDir()
	tablePath := filepath.Join(dir, "table.csv")
	logPath := filepath.Join(dir, "merges.csv")
	table := strings.Join([]string{
		"speech_giver,political_party,terms",
		`Ahmet Yıldırım,HDP,"[25, 26]"`,
		`Ahmet Yıldırım'ın açıklaması,HDP,"[26]"`,
		"",
	}, "\n")
	if err := os.WriteFile(tablePath, []byte(table), 0644); err != nil {
		t.Fatal(err)
	}

	if err := runDedup([]string{tablePath, "--log", logPath}); err != nil {
		t.Fatalf("runDedup: %v", err)
	}

	after, err := os.ReadFile(tablePath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(after)), "\n")
	if len(lines) != 2 {
		t.Errorf("rewritten table = %q, want header plus one identity", string(after))
	}
	if _, err := os.Stat(logPath); err != nil {
		t.Errorf("merge log not written: %v", err)
	}
}

func TestRunDedupMissingTable(t *testing.T) {
	if err := runDedup([]string{filepath.Join(t.TempDir(), "absent.csv")}); err == nil {
		t.Error("missing table did not fail")
	}
}
