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
	"horse.fit/pulse/internal/report"
)

func runReport(args []string) int {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 60*time.Second, "Command timeout")
	keyword := fs.String("keyword", "", "Keyword to report on (required)")
	dir := fs.String("dir", "", "Report directory (default: REPORT_DIR)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "report does not accept positional arguments")
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

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	reportDir := strings.TrimSpace(*dir)
	if reportDir == "" {
		reportDir = cfg.ReportDir
	}

	path, stats, err := report.Write(ctx, pool, trimmedKeyword, reportDir)
	if err != nil {
		if errors.Is(err, report.ErrNoAnalyzedItems) {
			fmt.Fprintf(os.Stderr, "No analyzed items for keyword %q\n", trimmedKeyword)
			return 1
		}
		fmt.Fprintf(os.Stderr, "Failed to write report: %v\n", err)
		return 1
	}

	fmt.Printf("report=%s rows=%d\n", path, stats.Total)

	tableRows := make([][]string, 0, len(stats.ByLabel))
	for _, label := range stats.Labels() {
		tableRows = append(tableRows, []string{
			label,
			fmt.Sprintf("%d", stats.ByLabel[label]),
			fmt.Sprintf("%.1f", stats.Percent(label)),
		})
	}
	if err := writeTable([]string{"label", "count", "percent"}, tableRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render distribution table: %v\n", err)
		return 1
	}

	return 0
}
