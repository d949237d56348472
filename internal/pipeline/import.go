package pipeline

import (
	"context"
	"fmt"
	"sort"

	"horse.fit/pulse/internal/db"
	"horse.fit/pulse/internal/globaltime"
	"horse.fit/pulse/internal/source"
)

// ImportOptions controls re-ingesting items recovered from an export file.
type ImportOptions struct {
	// Items are parsed export rows, typically from export.ReadItems.
	Items []source.Item
	// SkipAnalysis stops after persisting, leaving items pending.
	SkipAnalysis bool
	// Engine and BatchSize are handed to the analysis scheduler.
	Engine    string
	BatchSize int
}

// ImportResult reports what one import did.
type ImportResult struct {
	Read     int           `json:"read"`
	Stored   int           `json:"stored"`
	Keywords []string      `json:"keywords"`
	Analysis AnalyzeResult `json:"analysis"`
}

// Import persists previously exported items and analyzes the pending set of
// every keyword they cover. Items already in the store are skipped by the
// insert; their keywords still get an analysis pass, which also catches rows
// left pending by earlier runs.
func (s *Service) Import(ctx context.Context, opts ImportOptions) (ImportResult, error) {
	if s == nil || s.store == nil {
		return ImportResult{}, fmt.Errorf("pipeline service is not initialized")
	}
	if len(opts.Items) == 0 {
		return ImportResult{}, fmt.Errorf("no items to import")
	}
	if !opts.SkipAnalysis {
		if _, err := s.engines.Engine(opts.Engine); err != nil {
			return ImportResult{}, err
		}
	}

	fetchedAt := globaltime.UTC()
	rows := make([]db.ContentItem, 0, len(opts.Items))
	seen := make(map[string]struct{}, 1)
	keywords := make([]string, 0, 1)
	for _, item := range opts.Items {
		rows = append(rows, contentItemFromSource(item, fetchedAt))
		if _, ok := seen[item.Keyword]; !ok {
			seen[item.Keyword] = struct{}{}
			keywords = append(keywords, item.Keyword)
		}
	}
	sort.Strings(keywords)

	result := ImportResult{Read: len(opts.Items), Keywords: keywords}

	stored, err := s.store.InsertContentItems(ctx, rows)
	if err != nil {
		return result, err
	}
	result.Stored = int(stored)

	if !opts.SkipAnalysis {
		for _, keyword := range keywords {
			analysis, err := s.AnalyzePending(ctx, AnalyzeOptions{
				Keyword:   keyword,
				BatchSize: opts.BatchSize,
				Engine:    opts.Engine,
			})
			result.Analysis.Total += analysis.Total
			result.Analysis.Analyzed += analysis.Analyzed
			result.Analysis.Missing += analysis.Missing
			if err != nil {
				return result, err
			}
		}
	}

	s.logger.Info().
		Int("read", result.Read).
		Int("stored", result.Stored).
		Strs("keywords", keywords).
		Int("analyzed", result.Analysis.Analyzed).
		Msg("import finished")

	return result, nil
}
