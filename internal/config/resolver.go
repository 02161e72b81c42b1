// Package config resolves runtime settings from, in rising precedence:
// built-in defaults, a YAML config file, HANSARD_* environment
// variables, and CLI flags. Every resolved value remembers where it
// came from so reports and logs can say why a knob has the value it
// has.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceDefault ValueSource = "default"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
)

// ResolvedValue is one setting plus its provenance.
type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// Defaults for every tunable knob.
const (
	DefaultFuzzyThreshold      = 0.9
	DefaultBlockKeyWidth       = 1
	DefaultSuspectLength       = 45
	DefaultAssignThreshold     = 0.6
	DefaultANNClusterThreshold = 256
	DefaultANNRebuildEvery     = 64
	DefaultDBPath              = "~/.hansard/hansard.db"
	DefaultMergeLogPath        = "merges.csv"
)

// ResolveOptions carries the CLI-level overrides into resolution.
type ResolveOptions struct {
	ConfigPath string

	CLIDBPath          string
	CLIFuzzyThreshold  string
	CLIAssignThreshold string
	CLIMergeLogPath    string
}

// ResolvedConfig is the full resolved settings set.
type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath       ResolvedValue `json:"db_path"`
	MergeLogPath ResolvedValue `json:"merge_log_path"`

	FuzzyThreshold ResolvedValue `json:"fuzzy_threshold"`
	BlockKeyWidth  ResolvedValue `json:"block_key_width"`
	SuspectLength  ResolvedValue `json:"suspect_length"`

	AssignThreshold     ResolvedValue `json:"assign_threshold"`
	ANNClusterThreshold ResolvedValue `json:"ann_cluster_threshold"`
	ANNRebuildEvery     ResolvedValue `json:"ann_rebuild_every"`
}

type fileConfig struct {
	DBPath       string `yaml:"db_path"`
	MergeLogPath string `yaml:"merge_log_path"`
	Identity     struct {
		FuzzyThreshold string `yaml:"fuzzy_threshold"`
		BlockKeyWidth  string `yaml:"block_key_width"`
		SuspectLength  string `yaml:"suspect_length"`
	} `yaml:"identity"`
	Topics struct {
		AssignThreshold     string `yaml:"assign_threshold"`
		ANNClusterThreshold string `yaml:"ann_cluster_threshold"`
		ANNRebuildEvery     string `yaml:"ann_rebuild_every"`
	} `yaml:"topics"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".hansard", "config.yaml")
}

// Resolve builds the effective configuration. A missing config file is
// not an error; a malformed one is.
func Resolve(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath:          path,
		DBPath:              defaultValue(DefaultDBPath),
		MergeLogPath:        defaultValue(DefaultMergeLogPath),
		FuzzyThreshold:      defaultValue(formatFloat(DefaultFuzzyThreshold)),
		BlockKeyWidth:       defaultValue(strconv.Itoa(DefaultBlockKeyWidth)),
		SuspectLength:       defaultValue(strconv.Itoa(DefaultSuspectLength)),
		AssignThreshold:     defaultValue(formatFloat(DefaultAssignThreshold)),
		ANNClusterThreshold: defaultValue(strconv.Itoa(DefaultANNClusterThreshold)),
		ANNRebuildEvery:     defaultValue(strconv.Itoa(DefaultANNRebuildEvery)),
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}
	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.MergeLogPath, cfg.MergeLogPath, SourceConfig, path)
		apply(&out.FuzzyThreshold, cfg.Identity.FuzzyThreshold, SourceConfig, path)
		apply(&out.BlockKeyWidth, cfg.Identity.BlockKeyWidth, SourceConfig, path)
		apply(&out.SuspectLength, cfg.Identity.SuspectLength, SourceConfig, path)
		apply(&out.AssignThreshold, cfg.Topics.AssignThreshold, SourceConfig, path)
		apply(&out.ANNClusterThreshold, cfg.Topics.ANNClusterThreshold, SourceConfig, path)
		apply(&out.ANNRebuildEvery, cfg.Topics.ANNRebuildEvery, SourceConfig, path)
	}

	applyEnv(&out.DBPath, "HANSARD_DB")
	applyEnv(&out.MergeLogPath, "HANSARD_MERGE_LOG")
	applyEnv(&out.FuzzyThreshold, "HANSARD_FUZZY_THRESHOLD")
	applyEnv(&out.BlockKeyWidth, "HANSARD_BLOCK_KEY_WIDTH")
	applyEnv(&out.SuspectLength, "HANSARD_SUSPECT_LENGTH")
	applyEnv(&out.AssignThreshold, "HANSARD_ASSIGN_THRESHOLD")
	applyEnv(&out.ANNClusterThreshold, "HANSARD_ANN_CLUSTER_THRESHOLD")
	applyEnv(&out.ANNRebuildEvery, "HANSARD_ANN_REBUILD_EVERY")

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.MergeLogPath, opts.CLIMergeLogPath, SourceCLI, "--log")
	apply(&out.FuzzyThreshold, opts.CLIFuzzyThreshold, SourceCLI, "--threshold")
	apply(&out.AssignThreshold, opts.CLIAssignThreshold, SourceCLI, "--threshold")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}
	return out, nil
}

// Float parses a resolved value as a float, falling back when the text
// does not parse. Provenance is reported alongside so a bad override is
// visible in logs rather than silently ignored.
func (v ResolvedValue) Float(fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v.Value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// Int parses a resolved value as an int, falling back when the text
// does not parse.
func (v ResolvedValue) Int(fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v.Value))
	if err != nil {
		return fallback
	}
	return n
}

func defaultValue(v string) ResolvedValue {
	return ResolvedValue{Value: v, Source: SourceDefault, From: "built-in default"}
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
