package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/pulse/internal/cli"
	"horse.fit/pulse/internal/config"
	"horse.fit/pulse/internal/db"
	"horse.fit/pulse/internal/logging"
	"horse.fit/pulse/internal/pipeline"
)

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	keyword := fs.String("keyword", "", "Keyword to ingest (required)")
	sourceName := fs.String("source", "", "Content source (default: the registry default)")
	limit := fs.Int("limit", 0, "Maximum items to fetch (default: SCRAPE_LIMIT)")
	ignoreCache := fs.Bool("ignore-cache", false, "Fetch even when a fresh export exists")
	noAnalyze := fs.Bool("no-analyze", false, "Skip sentiment analysis, leaving items pending")
	engine := fs.String("engine", "", "Sentiment engine (default: SENTIMENT_ENGINE)")
	batchSize := fs.Int("batch-size", 0, "Items per inference call (default: ANALYSIS_BATCH_SIZE)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "ingest does not accept positional arguments")
		return 2
	}
	if strings.TrimSpace(*keyword) == "" {
		fmt.Fprintln(os.Stderr, "--keyword is required")
		return 2
	}
	if *limit < 0 {
		fmt.Fprintln(os.Stderr, "--limit must be >= 0")
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	svc, err := buildPipelineService(cfg, pool, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build pipeline: %v\n", err)
		return 1
	}

	fetchLimit := *limit
	if fetchLimit == 0 {
		fetchLimit = cfg.FetchLimit
	}
	analysisBatch := *batchSize
	if analysisBatch == 0 {
		analysisBatch = cfg.BatchSize
	}

	outcome, err := svc.Ingest(ctx, pipeline.IngestOptions{
		Keyword:      strings.TrimSpace(*keyword),
		Source:       strings.TrimSpace(*sourceName),
		Limit:        fetchLimit,
		IgnoreCache:  *ignoreCache,
		SkipAnalysis: *noAnalyze,
		Engine:       strings.TrimSpace(*engine),
		BatchSize:    analysisBatch,
		Events: func(ev pipeline.Event) {
			fmt.Printf("[%s] %s\n", ev.Stage, ev.Message)
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		return 1
	}

	fmt.Printf("keyword=%s status=%s fetched=%d stored=%d analyzed=%d\n",
		outcome.Keyword, outcome.Status, outcome.FetchedCount, outcome.StoredCount, outcome.Analysis.Analyzed)
	if outcome.ExportPath != "" {
		fmt.Printf("export=%s\n", outcome.ExportPath)
	}
	if outcome.Message != "" {
		fmt.Printf("message=%q\n", outcome.Message)
	}

	return printKeywordSummary(ctx, svc, outcome.Keyword)
}
