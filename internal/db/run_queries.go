package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	IngestRunStatusRunning   = "running"
	IngestRunStatusCompleted = "completed"
	IngestRunStatusFailed    = "failed"
)

// Stored run errors are truncated so a misbehaving upstream cannot bloat the
// ledger.
const maxRunErrorLength = 4000

// IngestRunParams opens a ledger row for one real fetch cycle.
type IngestRunParams struct {
	Keyword        string
	Source         string
	RequestedLimit int
	StartedAt      time.Time
}

// IngestRunCounts closes out a completed run.
type IngestRunCounts struct {
	ItemsFetched  int
	ItemsStored   int
	ItemsAnalyzed int
}

// InsertIngestRun opens a running ledger row and returns its id.
func (p *Pool) InsertIngestRun(ctx context.Context, params IngestRunParams) (int64, error) {
	keyword := strings.TrimSpace(params.Keyword)
	if keyword == "" {
		return 0, fmt.Errorf("keyword is required")
	}
	source := strings.TrimSpace(params.Source)
	if source == "" {
		return 0, fmt.Errorf("source is required")
	}

	const q = `
INSERT INTO pulse.ingest_runs (
	keyword,
	source,
	status,
	requested_limit,
	started_at
) VALUES ($1, $2, $3, $4, $5)
RETURNING run_id
`

	var runID int64
	if err := p.QueryRow(ctx, q, keyword, source, IngestRunStatusRunning, params.RequestedLimit, params.StartedAt.UTC()).Scan(&runID); err != nil {
		return 0, fmt.Errorf("insert ingest run: %w", err)
	}
	return runID, nil
}

// CompleteIngestRun marks a run completed with its final counts.
func (p *Pool) CompleteIngestRun(ctx context.Context, runID int64, counts IngestRunCounts, exportPath string, finishedAt time.Time) error {
	const q = `
UPDATE pulse.ingest_runs
SET
	status = $2,
	items_fetched = $3,
	items_stored = $4,
	items_analyzed = $5,
	export_path = NULLIF($6, ''),
	finished_at = $7,
	updated_at = $7
WHERE run_id = $1
`

	tag, err := p.Exec(ctx, q,
		runID,
		IngestRunStatusCompleted,
		counts.ItemsFetched,
		counts.ItemsStored,
		counts.ItemsAnalyzed,
		strings.TrimSpace(exportPath),
		finishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("complete ingest run %d: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ingest run %d not found", runID)
	}
	return nil
}

// FailIngestRun marks a run failed, keeping whatever counts were reached.
func (p *Pool) FailIngestRun(ctx context.Context, runID int64, counts IngestRunCounts, runErr error, finishedAt time.Time) error {
	message := "unknown error"
	if runErr != nil {
		message = runErr.Error()
	}
	if len(message) > maxRunErrorLength {
		message = message[:maxRunErrorLength]
	}

	const q = `
UPDATE pulse.ingest_runs
SET
	status = $2,
	items_fetched = $3,
	items_stored = $4,
	items_analyzed = $5,
	error_message = $6,
	finished_at = $7,
	updated_at = $7
WHERE run_id = $1
`

	tag, err := p.Exec(ctx, q,
		runID,
		IngestRunStatusFailed,
		counts.ItemsFetched,
		counts.ItemsStored,
		counts.ItemsAnalyzed,
		message,
		finishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("fail ingest run %d: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ingest run %d not found", runID)
	}
	return nil
}

// ListRecentIngestRuns returns the newest ledger rows for stats and the API.
func (p *Pool) ListRecentIngestRuns(ctx context.Context, limit int) ([]IngestRun, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	r.run_id,
	r.ingest_run_uuid::text,
	r.keyword,
	r.source,
	r.status,
	r.requested_limit,
	r.items_fetched,
	r.items_stored,
	r.items_analyzed,
	r.export_path,
	r.error_message,
	r.started_at,
	r.finished_at,
	r.created_at,
	r.updated_at
FROM pulse.ingest_runs r
ORDER BY r.started_at DESC, r.run_id DESC
LIMIT $1
`

	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query ingest runs: %w", err)
	}
	defer rows.Close()

	runs := make([]IngestRun, 0, limit)
	for rows.Next() {
		var row IngestRun
		if err := rows.Scan(
			&row.RunID,
			&row.IngestRunUUID,
			&row.Keyword,
			&row.Source,
			&row.Status,
			&row.RequestedLimit,
			&row.ItemsFetched,
			&row.ItemsStored,
			&row.ItemsAnalyzed,
			&row.ExportPath,
			&row.ErrorMessage,
			&row.StartedAt,
			&row.FinishedAt,
			&row.CreatedAt,
			&row.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ingest run row: %w", err)
		}
		runs = append(runs, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ingest run rows: %w", err)
	}

	return runs, nil
}
