package db

import (
	"context"
	"fmt"
	"time"
)

// StatsSourceCount stores per-source item counts.
type StatsSourceCount struct {
	Source   string `json:"source"`
	Items    int64  `json:"items"`
	Analyzed int64  `json:"analyzed"`
	Pending  int64  `json:"pending"`
}

// StatsTotals stores totals across sources.
type StatsTotals struct {
	Items    int64 `json:"items"`
	Analyzed int64 `json:"analyzed"`
	Pending  int64 `json:"pending"`
	Keywords int64 `json:"keywords"`
}

// PipelineThroughput stores per-day counters.
type PipelineThroughput struct {
	ItemsFetchedToday  int64 `json:"items_fetched_today"`
	ItemsAnalyzedToday int64 `json:"items_analyzed_today"`
	RunsCompletedToday int64 `json:"runs_completed_today"`
	RunsFailedToday    int64 `json:"runs_failed_today"`
}

// PipelineStats is the read model returned by the stats command and API.
type PipelineStats struct {
	Day        string             `json:"day"`
	Sources    []StatsSourceCount `json:"sources"`
	Totals     StatsTotals        `json:"totals"`
	Throughput PipelineThroughput `json:"throughput"`
}

// QueryPipelineStats returns per-source and total counts plus daily throughput.
func (p *Pool) QueryPipelineStats(ctx context.Context, dayStart, dayEnd time.Time) (*PipelineStats, error) {
	startUTC := dayStart.UTC()
	endUTC := dayEnd.UTC()
	if !startUTC.Before(endUTC) {
		return nil, fmt.Errorf("dayStart must be before dayEnd")
	}

	stats := &PipelineStats{
		Day:     startUTC.Format("2006-01-02"),
		Sources: make([]StatsSourceCount, 0, 8),
	}

	const countsQuery = `
SELECT
	i.source,
	COUNT(*)::BIGINT AS items,
	COUNT(i.sentiment)::BIGINT AS analyzed,
	(COUNT(*) - COUNT(i.sentiment))::BIGINT AS pending
FROM pulse.content_items i
GROUP BY i.source
ORDER BY 1
`

	rows, err := p.Query(ctx, countsQuery)
	if err != nil {
		return nil, fmt.Errorf("query stats source counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row StatsSourceCount
		if err := rows.Scan(&row.Source, &row.Items, &row.Analyzed, &row.Pending); err != nil {
			return nil, fmt.Errorf("scan stats source row: %w", err)
		}
		stats.Sources = append(stats.Sources, row)
		stats.Totals.Items += row.Items
		stats.Totals.Analyzed += row.Analyzed
		stats.Totals.Pending += row.Pending
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats source rows: %w", err)
	}

	const keywordsQuery = `
SELECT COUNT(DISTINCT i.keyword) FROM pulse.content_items i
`
	if err := p.QueryRow(ctx, keywordsQuery).Scan(&stats.Totals.Keywords); err != nil {
		return nil, fmt.Errorf("query stats keyword count: %w", err)
	}

	const throughputQuery = `
SELECT
	(SELECT COUNT(*) FROM pulse.content_items i WHERE i.fetched_at >= $1 AND i.fetched_at < $2) AS items_fetched_today,
	(SELECT COUNT(*) FROM pulse.content_items i WHERE i.analyzed_at >= $1 AND i.analyzed_at < $2) AS items_analyzed_today,
	(SELECT COUNT(*) FROM pulse.ingest_runs r WHERE r.started_at >= $1 AND r.started_at < $2 AND r.status = 'completed') AS runs_completed_today,
	(SELECT COUNT(*) FROM pulse.ingest_runs r WHERE r.started_at >= $1 AND r.started_at < $2 AND r.status = 'failed') AS runs_failed_today
`

	if err := p.QueryRow(ctx, throughputQuery, startUTC, endUTC).Scan(
		&stats.Throughput.ItemsFetchedToday,
		&stats.Throughput.ItemsAnalyzedToday,
		&stats.Throughput.RunsCompletedToday,
		&stats.Throughput.RunsFailedToday,
	); err != nil {
		return nil, fmt.Errorf("query stats throughput: %w", err)
	}

	return stats, nil
}
