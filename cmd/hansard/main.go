package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbmmlab/hansard/internal/config"
	"github.com/tbmmlab/hansard/internal/identity"
	"github.com/tbmmlab/hansard/internal/store"
	"github.com/tbmmlab/hansard/internal/topics"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "dedup":
		if err := runDedup(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "assign":
		if err := runAssign(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "bootstrap":
		if err := runBootstrap(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "stats":
		if err := runStats(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "version", "--version", "-v":
		fmt.Printf("hansard %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// newLogger builds the CLI logger. Human-readable console output on
// stderr; --verbose drops the level to debug so every scored pair and
// assignment decision is visible.
func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// parsed holds the flags shared across subcommands.
type parsed struct {
	positional []string
	dryRun     bool
	verbose    bool
	reassign   bool
	db         string
	logPath    string
	threshold  string
}

func parseArgs(args []string) (parsed, error) {
	var p parsed
	for i := 0; i < len(args); i++ {
		arg := args[i]
		next := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("flag %s needs a value", arg)
			}
			i++
			return args[i], nil
		}
		var err error
		switch {
		case arg == "--dry-run" || arg == "-n":
			p.dryRun = true
		case arg == "--verbose":
			p.verbose = true
		case arg == "--reassign":
			p.reassign = true
		case arg == "--db":
			p.db, err = next()
		case arg == "--log":
			p.logPath, err = next()
		case arg == "--threshold":
			p.threshold, err = next()
		case strings.HasPrefix(arg, "-"):
			return p, fmt.Errorf("unknown flag: %s", arg)
		default:
			p.positional = append(p.positional, arg)
		}
		if err != nil {
			return p, err
		}
	}
	return p, nil
}

func runDedup(args []string) error {
	p, err := parseArgs(args)
	if err != nil {
		return err
	}
	if len(p.positional) != 1 {
		return fmt.Errorf("usage: hansard dedup <table.csv> [--dry-run] [--log <merges.csv>] [--threshold F]")
	}
	tablePath := p.positional[0]

	cfg, err := config.Resolve(config.ResolveOptions{
		CLIFuzzyThreshold: p.threshold,
		CLIMergeLogPath:   p.logPath,
	})
	if err != nil {
		return err
	}
	log := newLogger(p.verbose)

	table, err := identity.LoadTable(tablePath)
	if err != nil {
		return fmt.Errorf("loading identity table: %w", err)
	}

	engine := identity.NewEngine(identity.Options{
		FuzzyThreshold: cfg.FuzzyThreshold.Float(config.DefaultFuzzyThreshold),
		BlockKeyWidth:  cfg.BlockKeyWidth.Int(config.DefaultBlockKeyWidth),
		SuspectLength:  cfg.SuspectLength.Int(config.DefaultSuspectLength),
	}, log)

	report := engine.Run(table.Records)

	fmt.Printf("Records:     %d (%d malformed rows skipped)\n", report.InputRecords, table.Malformed)
	fmt.Printf("Identities:  %d\n", len(report.Identities))
	fmt.Printf("Merges:      %d (%d fuzzy groups, %d pairs scored)\n",
		len(report.Decisions), report.FuzzyGroups, report.PairsScored)
	fmt.Printf("Rejected:    %d\n", len(report.RejectedRawNames))
	fmt.Printf("Suspects:    %d\n", len(report.Suspects))
	fmt.Printf("Ambiguities: %d\n", len(report.Ambiguities))

	if p.dryRun {
		fmt.Println("\nDry run — table not rewritten")
		return nil
	}

	if err := identity.SaveTable(tablePath, report.Identities); err != nil {
		return fmt.Errorf("saving identity table: %w", err)
	}
	if len(report.Decisions) > 0 {
		if err := identity.AppendMergeLog(cfg.MergeLogPath.Value, report.Decisions); err != nil {
			return fmt.Errorf("writing merge log: %w", err)
		}
	}
	fmt.Printf("\nTable rewritten: %s (merge log: %s)\n", tablePath, cfg.MergeLogPath.Value)
	return nil
}

func runAssign(args []string) error {
	p, err := parseArgs(args)
	if err != nil {
		return err
	}
	if len(p.positional) != 0 {
		return fmt.Errorf("usage: hansard assign [--db <path>] [--threshold F] [--reassign]")
	}

	cfg, err := config.Resolve(config.ResolveOptions{
		CLIDBPath:          p.db,
		CLIAssignThreshold: p.threshold,
	})
	if err != nil {
		return err
	}
	log := newLogger(p.verbose)

	st, err := store.Open(store.Config{DBPath: cfg.DBPath.Value})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	set, err := topics.LoadClusterSet(ctx, st, topics.ClusterSetOptions{
		ANNClusterThreshold: cfg.ANNClusterThreshold.Int(config.DefaultANNClusterThreshold),
		ANNRebuildEvery:     cfg.ANNRebuildEvery.Int(config.DefaultANNRebuildEvery),
	}, log)
	if err != nil {
		return err
	}

	asn := topics.NewAssigner(st, set, topics.AssignerOptions{
		SimilarityThreshold: cfg.AssignThreshold.Float(config.DefaultAssignThreshold),
		Reassign:            p.reassign,
	}, log)
	rep, err := asn.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Processed: %d\n", rep.Processed)
	fmt.Printf("Matched:   %d\n", rep.Matched)
	fmt.Printf("Spawned:   %d\n", rep.Spawned)
	fmt.Printf("Rejected:  %d\n", rep.Rejected)
	return nil
}

func runBootstrap(args []string) error {
	p, err := parseArgs(args)
	if err != nil {
		return err
	}
	if len(p.positional) != 1 {
		return fmt.Errorf("usage: hansard bootstrap <clusters.csv> [--db <path>]")
	}

	cfg, err := config.Resolve(config.ResolveOptions{CLIDBPath: p.db})
	if err != nil {
		return err
	}
	log := newLogger(p.verbose)

	st, err := store.Open(store.Config{DBPath: cfg.DBPath.Value})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	rep, err := topics.ImportBootstrap(context.Background(), st, p.positional[0], log)
	if err != nil {
		return err
	}

	fmt.Printf("Clusters:  %d\n", rep.Clusters)
	fmt.Printf("Members:   %d\n", rep.Members)
	fmt.Printf("Outliers:  %d\n", rep.Outliers)
	fmt.Printf("Malformed: %d\n", rep.Malformed)
	fmt.Printf("Missing:   %d\n", rep.Missing)
	return nil
}

func runStats(args []string) error {
	p, err := parseArgs(args)
	if err != nil {
		return err
	}

	cfg, err := config.Resolve(config.ResolveOptions{CLIDBPath: p.db})
	if err != nil {
		return err
	}

	st, err := store.Open(store.Config{DBPath: cfg.DBPath.Value})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	stats, err := st.Stats(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Clusters:    %d\n", stats.Clusters)
	fmt.Printf("Embeddings:  %d\n", stats.Embeddings)
	fmt.Printf("Assignments: %d\n", stats.Assignments)
	fmt.Printf("Outliers:    %d\n", stats.Outliers)
	return nil
}

func printUsage() {
	fmt.Printf(`hansard %s — Incremental identity and topic resolution for parliamentary speeches

Usage:
  hansard <command> [arguments]

Commands:
  dedup <table.csv>       Deduplicate speaker names into canonical identities
  assign                  Assign unprocessed speeches to topic clusters
  bootstrap <clusters.csv> Import an offline clustering as the initial state
  stats                   Show cluster, embedding and assignment counts
  version                 Print version

Dedup Flags:
  -n, --dry-run           Report merges without rewriting the table
      --log <path>        Merge audit log destination
      --threshold F       Fuzzy merge threshold (default %.2f)

Assign Flags:
      --db <path>         Database location
      --threshold F       Cluster match threshold (default %.2f)
      --reassign          Allow overwriting existing assignments

Flags:
      --verbose           Debug logging (every scored pair and decision)
  -h, --help              Show this help message
  -v, --version           Print version
`, version, config.DefaultFuzzyThreshold, config.DefaultAssignThreshold)
}
