package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"horse.fit/pulse/internal/cli"
	"horse.fit/pulse/internal/config"
	"horse.fit/pulse/internal/db"
	"horse.fit/pulse/internal/export"
	"horse.fit/pulse/internal/narrative"
	"horse.fit/pulse/internal/report"
)

func runNarrate(args []string) int {
	fs := flag.NewFlagSet("narrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	keyword := fs.String("keyword", "", "Keyword to narrate (required)")
	output := fs.String("output", "", "Narrative output file (default: REPORT_DIR/summary_<keyword>.txt)")
	refresh := fs.Bool("refresh", false, "Rebuild the sentiment report before narrating")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "narrate does not accept positional arguments")
		return 2
	}
	trimmedKeyword := strings.TrimSpace(*keyword)
	if trimmedKeyword == "" {
		fmt.Fprintln(os.Stderr, "--keyword is required")
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

	if strings.TrimSpace(cfg.SummaryEndpoint) == "" || strings.TrimSpace(cfg.SummaryAPIKey) == "" {
		fmt.Fprintln(os.Stderr, "Narratives need SUMMARY_ENDPOINT and SUMMARY_API_KEY configured")
		return 1
	}
	summarizer, err := narrative.NewSummarizer(cfg.SummaryEndpoint, cfg.SummaryAPIKey, cfg.SummaryModel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure summarizer: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	reportPath := filepath.Join(cfg.ReportDir, report.FileName(trimmedKeyword))
	if *refresh || !fileExists(reportPath) {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
			return 1
		}
		defer pool.Close()

		path, stats, err := report.Write(ctx, pool, trimmedKeyword, cfg.ReportDir)
		if err != nil {
			if errors.Is(err, report.ErrNoAnalyzedItems) {
				fmt.Fprintf(os.Stderr, "No analyzed items for keyword %q\n", trimmedKeyword)
				return 1
			}
			fmt.Fprintf(os.Stderr, "Failed to write report: %v\n", err)
			return 1
		}
		reportPath = path
		fmt.Printf("report=%s rows=%d\n", path, stats.Total)
	}

	text, err := summarizer.Summarize(ctx, reportPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate narrative: %v\n", err)
		return 1
	}

	outputPath := strings.TrimSpace(*output)
	if outputPath == "" {
		outputPath = filepath.Join(cfg.ReportDir, "summary_"+export.Slug(trimmedKeyword)+".txt")
	}
	if err := os.WriteFile(outputPath, []byte(text), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write narrative file: %v\n", err)
		return 1
	}

	fmt.Println(text)
	fmt.Println()
	fmt.Printf("model=%s saved=%s\n", summarizer.ModelName(), outputPath)
	return 0
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
