package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"horse.fit/pulse/internal/db"
	"horse.fit/pulse/internal/globaltime"
	"horse.fit/pulse/internal/langdetect"
	"horse.fit/pulse/internal/language"
	"horse.fit/pulse/internal/progress"
	"horse.fit/pulse/internal/sentiment"
	"horse.fit/pulse/internal/source"
)

// Outcome statuses for one ingestion run.
const (
	StatusCached   = "cached"
	StatusCreated  = "created"
	StatusAppended = "appended"
	StatusSkipped  = "skipped"
)

// Event narrates one pipeline stage for streaming callers.
type Event struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// IngestOptions controls one ingestion run for a keyword.
type IngestOptions struct {
	Keyword string
	// Source names a registered fetcher; empty resolves to the default.
	Source string
	// Limit bounds the fetch; fetchers apply their own platform caps.
	Limit int
	// IgnoreCache forces a fetch even when a fresh export exists.
	IgnoreCache bool
	// SkipAnalysis stops after persisting, leaving items pending.
	SkipAnalysis bool
	// Engine and BatchSize are handed to the analysis scheduler.
	Engine    string
	BatchSize int
	// Events, when set, receives stage narration as the run progresses.
	Events func(Event)
}

// Outcome reports what one ingestion run did.
type Outcome struct {
	Keyword      string        `json:"keyword"`
	Status       string        `json:"status"`
	ExportPath   string        `json:"export_path,omitempty"`
	Message      string        `json:"message,omitempty"`
	FetchedCount int           `json:"fetched_count"`
	StoredCount  int           `json:"stored_count"`
	Analysis     AnalyzeResult `json:"analysis"`
}

// Ingest runs the full pipeline for one keyword: cache consult, fetch,
// export write, persist, analysis, enrichment. A *source.FetchError aborts
// before anything is written. An inference failure during the analysis stage
// is logged and noted in Message; the run still completes with partial
// analysis counts.
func (s *Service) Ingest(ctx context.Context, opts IngestOptions) (Outcome, error) {
	if s == nil || s.store == nil {
		return Outcome{}, fmt.Errorf("pipeline service is not initialized")
	}

	keyword := strings.TrimSpace(opts.Keyword)
	if keyword == "" {
		return Outcome{}, fmt.Errorf("keyword is required")
	}

	outcome := Outcome{Keyword: keyword}
	emit := func(stage, format string, args ...any) {
		if opts.Events != nil {
			opts.Events(Event{Stage: stage, Message: fmt.Sprintf(format, args...)})
		}
	}

	fetcher, err := s.sources.Fetcher(opts.Source)
	if err != nil {
		return outcome, err
	}

	existing, found, err := s.exports.Latest(keyword)
	if err != nil {
		return outcome, err
	}
	fresh := found && s.exports.IsFresh(existing.CreatedAt, globaltime.UTC())
	if fresh && !opts.IgnoreCache {
		outcome.Status = StatusCached
		outcome.ExportPath = existing.Path
		outcome.Message = fmt.Sprintf("reused export from %s", existing.CreatedAt.Format(time.RFC3339))
		emit("cache", "fresh export %s reused; skipping fetch", filepath.Base(existing.Path))
		s.logger.Info().
			Str("keyword", keyword).
			Str("export", existing.Path).
			Msg("fresh export found; skipping fetch")
		return outcome, nil
	}

	emit("fetch", "searching %s for %q", fetcher.Name(), keyword)
	runStart := globaltime.UTC()
	items, err := fetcher.Search(ctx, keyword, opts.Limit)
	if err != nil {
		return outcome, err
	}
	outcome.FetchedCount = len(items)
	if len(items) == 0 {
		outcome.Status = StatusSkipped
		outcome.Message = "no content matched"
		emit("fetch", "no content matched %q; nothing ingested", keyword)
		s.logger.Info().
			Str("keyword", keyword).
			Str("source", fetcher.Name()).
			Msg("fetch returned no items; skipping run")
		return outcome, nil
	}
	emit("fetch", "fetched %d items from %s", len(items), fetcher.Name())

	runID, err := s.store.InsertIngestRun(ctx, db.IngestRunParams{
		Keyword:        keyword,
		Source:         fetcher.Name(),
		RequestedLimit: opts.Limit,
		StartedAt:      runStart,
	})
	if err != nil {
		return outcome, err
	}
	failRun := func(runErr error) {
		if markErr := s.store.FailIngestRun(ctx, runID, s.runCounts(outcome), runErr, globaltime.UTC()); markErr != nil {
			s.logger.Error().
				Err(markErr).
				Int64("run_id", runID).
				Msg("could not mark ingest run failed")
		}
	}

	fillLanguages(items)

	if fresh {
		// Only reachable with IgnoreCache; the fresh file absorbs the refetch.
		err = s.exports.Append(existing.Path, items)
		switch {
		case err == nil:
			outcome.Status = StatusAppended
			outcome.ExportPath = existing.Path
		case errors.Is(err, fs.ErrNotExist):
			// The file vanished between lookup and write.
			outcome.ExportPath, err = s.exports.Create(keyword, items)
			if err != nil {
				failRun(err)
				return outcome, err
			}
			outcome.Status = StatusCreated
		default:
			failRun(err)
			return outcome, err
		}
	} else {
		outcome.ExportPath, err = s.exports.Create(keyword, items)
		if err != nil {
			failRun(err)
			return outcome, err
		}
		outcome.Status = StatusCreated
	}
	emit("export", "%s export %s", outcome.Status, filepath.Base(outcome.ExportPath))

	fetchedAt := globaltime.UTC()
	rows := make([]db.ContentItem, 0, len(items))
	for _, item := range items {
		rows = append(rows, contentItemFromSource(item, fetchedAt))
	}
	stored, err := s.store.InsertContentItems(ctx, rows)
	if err != nil {
		failRun(err)
		return outcome, err
	}
	outcome.StoredCount = int(stored)
	emit("store", "stored %d new items, %d duplicates", outcome.StoredCount, outcome.FetchedCount-outcome.StoredCount)

	if !opts.SkipAnalysis {
		var observer progress.Observer
		if opts.Events != nil {
			observer = progress.Funcs{
				OnProgress: func(done, total int) {
					emit("analyze", "analyzed %d/%d pending items", done, total)
				},
			}
		}

		analysis, analyzeErr := s.AnalyzePending(ctx, AnalyzeOptions{
			Keyword:   keyword,
			BatchSize: opts.BatchSize,
			Engine:    opts.Engine,
			Observer:  observer,
		})
		outcome.Analysis = analysis
		if analyzeErr != nil {
			var inferenceErr *sentiment.InferenceError
			if !errors.As(analyzeErr, &inferenceErr) {
				failRun(analyzeErr)
				return outcome, analyzeErr
			}
			outcome.Message = fmt.Sprintf("analysis aborted after %d of %d items: %v",
				analysis.Analyzed, analysis.Total, inferenceErr)
			emit("error", "analysis aborted after %d of %d items", analysis.Analyzed, analysis.Total)
			s.logger.Error().
				Err(inferenceErr).
				Str("keyword", keyword).
				Int("analyzed", analysis.Analyzed).
				Int("total", analysis.Total).
				Msg("sentiment analysis aborted; completed batches kept")
		}
	}

	if err := s.exports.Enrich(ctx, outcome.ExportPath, s.store); err != nil {
		failRun(err)
		return outcome, err
	}
	emit("export", "export ready at %s", outcome.ExportPath)

	if err := s.store.CompleteIngestRun(ctx, runID, s.runCounts(outcome), outcome.ExportPath, globaltime.UTC()); err != nil {
		return outcome, err
	}

	if outcome.Message == "" {
		outcome.Message = fmt.Sprintf("fetched %d, stored %d new, analyzed %d",
			outcome.FetchedCount, outcome.StoredCount, outcome.Analysis.Analyzed)
	}
	s.logger.Info().
		Str("keyword", keyword).
		Str("source", fetcher.Name()).
		Str("status", outcome.Status).
		Int("fetched", outcome.FetchedCount).
		Int("stored", outcome.StoredCount).
		Int("analyzed", outcome.Analysis.Analyzed).
		Msg("ingestion run finished")

	return outcome, nil
}

func (s *Service) runCounts(outcome Outcome) db.IngestRunCounts {
	return db.IngestRunCounts{
		ItemsFetched:  outcome.FetchedCount,
		ItemsStored:   outcome.StoredCount,
		ItemsAnalyzed: outcome.Analysis.Analyzed,
	}
}

// fillLanguages normalizes source-reported language codes and detects the
// language of items that arrived without one.
func fillLanguages(items []source.Item) {
	for i := range items {
		code := language.NormalizeCode(items[i].Language)
		if code == "" {
			code = langdetect.DetectISO6391(items[i].Body)
		}
		items[i].Language = code
	}
}

func contentItemFromSource(item source.Item, fetchedAt time.Time) db.ContentItem {
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = fetchedAt
	}
	return db.ContentItem{
		ExternalID:   item.ExternalID,
		Keyword:      item.Keyword,
		Source:       item.Source,
		Author:       nullableString(item.Author),
		Body:         item.Body,
		Language:     nullableString(item.Language),
		CreatedAt:    createdAt.UTC(),
		FetchedAt:    fetchedAt,
		URL:          nullableString(item.URL),
		LikeCount:    intPtr(item.LikeCount),
		ReplyCount:   intPtr(item.ReplyCount),
		ReshareCount: intPtr(item.ReshareCount),
		QuoteCount:   intPtr(item.QuoteCount),
	}
}

func nullableString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func intPtr(value int) *int {
	return &value
}
