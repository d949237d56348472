package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/pulse/internal/cli"
	"horse.fit/pulse/internal/db"
)

// ingestRunRow is the CLI-facing shape of an ingest run ledger entry.
type ingestRunRow struct {
	IngestRunUUID  string     `json:"ingest_run_uuid"`
	Keyword        string     `json:"keyword"`
	Source         string     `json:"source"`
	Status         string     `json:"status"`
	RequestedLimit int        `json:"requested_limit"`
	ItemsFetched   int        `json:"items_fetched"`
	ItemsStored    int        `json:"items_stored"`
	ItemsAnalyzed  int        `json:"items_analyzed"`
	ExportPath     string     `json:"export_path,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

func ingestRunRows(runs []db.IngestRun) []ingestRunRow {
	rows := make([]ingestRunRow, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, ingestRunRow{
			IngestRunUUID:  run.IngestRunUUID,
			Keyword:        run.Keyword,
			Source:         run.Source,
			Status:         run.Status,
			RequestedLimit: run.RequestedLimit,
			ItemsFetched:   run.ItemsFetched,
			ItemsStored:    run.ItemsStored,
			ItemsAnalyzed:  run.ItemsAnalyzed,
			ExportPath:     pointerStringOrEmpty(run.ExportPath),
			ErrorMessage:   pointerStringOrEmpty(run.ErrorMessage),
			StartedAt:      run.StartedAt,
			FinishedAt:     run.FinishedAt,
		})
	}
	return rows
}

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	runs := fs.Int("runs", 5, "Recent ingest runs to include")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "stats does not accept positional arguments")
		return 2
	}
	if *runs < 0 {
		fmt.Fprintln(os.Stderr, "--runs must be >= 0")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, pool, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	dayStart := defaultUTCDay()
	_, dayEnd := utcDayBounds(dayStart)

	stats, err := pool.QueryPipelineStats(ctx, dayStart, dayEnd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query pipeline stats: %v\n", err)
		return 1
	}

	var recentRuns []db.IngestRun
	if *runs > 0 {
		recentRuns, err = pool.ListRecentIngestRuns(ctx, *runs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to query ingest runs: %v\n", err)
			return 1
		}
	}

	if outputFormat == outputFormatJSON {
		payload := struct {
			Stats      *db.PipelineStats `json:"stats"`
			RecentRuns []ingestRunRow    `json:"recent_runs"`
		}{Stats: stats, RecentRuns: ingestRunRows(recentRuns)}
		if err := printJSON(payload); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	sourceRows := make([][]string, 0, len(stats.Sources)+1)
	for _, row := range stats.Sources {
		sourceRows = append(sourceRows, []string{
			row.Source,
			fmt.Sprintf("%d", row.Items),
			fmt.Sprintf("%d", row.Analyzed),
			fmt.Sprintf("%d", row.Pending),
		})
	}
	sourceRows = append(sourceRows, []string{
		"TOTAL",
		fmt.Sprintf("%d", stats.Totals.Items),
		fmt.Sprintf("%d", stats.Totals.Analyzed),
		fmt.Sprintf("%d", stats.Totals.Pending),
	})

	if err := writeTable([]string{"source", "items", "analyzed", "pending"}, sourceRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render source table: %v\n", err)
		return 1
	}

	fmt.Println()
	throughputRows := [][]string{
		{"keywords", fmt.Sprintf("%d", stats.Totals.Keywords)},
		{"items_fetched_today", fmt.Sprintf("%d", stats.Throughput.ItemsFetchedToday)},
		{"items_analyzed_today", fmt.Sprintf("%d", stats.Throughput.ItemsAnalyzedToday)},
		{"runs_completed_today", fmt.Sprintf("%d", stats.Throughput.RunsCompletedToday)},
		{"runs_failed_today", fmt.Sprintf("%d", stats.Throughput.RunsFailedToday)},
	}
	if err := writeTable([]string{"metric", "value"}, throughputRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render throughput table: %v\n", err)
		return 1
	}

	if len(recentRuns) > 0 {
		fmt.Println()
		runRows := make([][]string, 0, len(recentRuns))
		for _, run := range recentRuns {
			runRows = append(runRows, []string{
				run.Keyword,
				run.Source,
				run.Status,
				fmt.Sprintf("%d", run.ItemsFetched),
				fmt.Sprintf("%d", run.ItemsStored),
				fmt.Sprintf("%d", run.ItemsAnalyzed),
				formatUTCTimestamp(run.StartedAt),
			})
		}
		if err := writeTable(
			[]string{"keyword", "source", "status", "fetched", "stored", "analyzed", "started_at"},
			runRows,
		); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render runs table: %v\n", err)
			return 1
		}
	}

	return 0
}
