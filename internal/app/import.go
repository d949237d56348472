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
	"horse.fit/pulse/internal/export"
	"horse.fit/pulse/internal/logging"
	"horse.fit/pulse/internal/pipeline"
)

func runImport(args []string) int {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	file := fs.String("file", "", "Export CSV to import (required)")
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
		fmt.Fprintln(os.Stderr, "import does not accept positional arguments")
		return 2
	}
	exportFile := strings.TrimSpace(*file)
	if exportFile == "" {
		fmt.Fprintln(os.Stderr, "--file is required")
		return 2
	}

	items, skipped, err := export.ReadItems(exportFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read export file: %v\n", err)
		return 1
	}
	if skipped > 0 {
		fmt.Fprintf(os.Stderr, "Warning: skipped %d malformed rows\n", skipped)
	}
	if len(items) == 0 {
		fmt.Fprintf(os.Stderr, "No importable rows in %s\n", exportFile)
		return 1
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

	result, err := svc.Import(ctx, pipeline.ImportOptions{
		Items:        items,
		SkipAnalysis: *noAnalyze,
		Engine:       strings.TrimSpace(*engine),
		BatchSize:    analysisBatch,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
		return 1
	}

	fmt.Printf("file=%s read=%d skipped=%d stored=%d analyzed=%d\n",
		exportFile, result.Read, skipped, result.Stored, result.Analysis.Analyzed)
	fmt.Printf("keywords=%s\n", strings.Join(result.Keywords, ","))
	return 0
}
