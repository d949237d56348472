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
	"horse.fit/pulse/internal/progress"
)

func runAnalyze(args []string) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	keyword := fs.String("keyword", "", "Keyword to analyze (empty analyzes every keyword)")
	limit := fs.Int("limit", 0, "Maximum pending items to analyze (0 = everything pending)")
	batchSize := fs.Int("batch-size", 0, "Items per inference call (default: ANALYSIS_BATCH_SIZE)")
	engine := fs.String("engine", "", "Sentiment engine (default: SENTIMENT_ENGINE)")
	jsonDump := fs.Bool("json", false, "Print analyzed items as JSON after the run")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "analyze does not accept positional arguments")
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

	analysisBatch := *batchSize
	if analysisBatch == 0 {
		analysisBatch = cfg.BatchSize
	}

	result, err := svc.AnalyzePending(ctx, pipeline.AnalyzeOptions{
		Keyword:   strings.TrimSpace(*keyword),
		Limit:     *limit,
		BatchSize: analysisBatch,
		Engine:    strings.TrimSpace(*engine),
		Observer: progress.Funcs{
			OnProgress: func(done, total int) {
				fmt.Printf("analyzed %d/%d pending items\n", done, total)
			},
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Analysis failed after %d of %d items: %v\n", result.Analyzed, result.Total, err)
		return 1
	}

	fmt.Printf("total=%d analyzed=%d missing=%d\n", result.Total, result.Analyzed, result.Missing)

	if *jsonDump {
		dumpLimit := *limit
		if dumpLimit <= 0 {
			dumpLimit = 100
		}
		items, err := pool.ListContentItems(ctx, db.ContentListOptions{
			Keyword: strings.TrimSpace(*keyword),
			Status:  "analyzed",
			Limit:   dumpLimit,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list analyzed items: %v\n", err)
			return 1
		}
		if err := printJSON(contentItemRows(items)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
	}

	return 0
}
