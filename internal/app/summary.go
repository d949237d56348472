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

func runSummary(args []string) int {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	keyword := fs.String("keyword", "", "Keyword to summarize (required)")
	limit := fs.Int("limit", 0, "Sample cap for the aggregate (0 = all analyzed items)")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "summary does not accept positional arguments")
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

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
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

	summary, err := svc.SummarizeKeyword(ctx, strings.TrimSpace(*keyword), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to summarize keyword: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(summary); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Printf("keyword=%s\n", summary.Keyword)
	if err := writeTable([]string{"metric", "value"}, summaryMetricRows(summary)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render summary table: %v\n", err)
		return 1
	}
	return 0
}

// printKeywordSummary renders the aggregate block that follows a pipeline
// run: label distribution, dominant label, and sample size.
func printKeywordSummary(ctx context.Context, svc *pipeline.Service, keyword string) int {
	summary, err := svc.SummarizeKeyword(ctx, keyword, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to summarize keyword: %v\n", err)
		return 1
	}

	fmt.Println()
	if err := writeTable([]string{"metric", "value"}, summaryMetricRows(summary)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render summary table: %v\n", err)
		return 1
	}
	return 0
}

func summaryMetricRows(summary pipeline.KeywordSummary) [][]string {
	return [][]string{
		{"dominant_label", summary.Summary.Primary.Label},
		{"confidence", fmt.Sprintf("%.4f", summary.Summary.Primary.Confidence)},
		{"positive_pct", fmt.Sprintf("%.1f", summary.Summary.Primary.Positive*100)},
		{"negative_pct", fmt.Sprintf("%.1f", summary.Summary.Primary.Negative*100)},
		{"neutral_pct", fmt.Sprintf("%.1f", summary.Summary.Primary.Neutral*100)},
		{"sample_size", fmt.Sprintf("%d", summary.SampleSize)},
		{"total_analyzed", fmt.Sprintf("%d", summary.TotalAnalyzed)},
		{"latest_created_at", formatUTCTimestampPtr(summary.LatestCreatedAt)},
	}
}
