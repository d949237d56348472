package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"horse.fit/pulse/internal/db"
	"horse.fit/pulse/internal/globaltime"
	"horse.fit/pulse/internal/progress"
	"horse.fit/pulse/internal/sentiment"
)

const DefaultAnalyzeBatchSize = 8

// AnalyzeOptions controls one scheduler run over the pending set.
type AnalyzeOptions struct {
	// Keyword scopes the pending set; empty analyzes every keyword.
	Keyword string
	// Limit bounds the pending set; <= 0 analyzes everything pending.
	Limit int
	// BatchSize is the number of bodies sent per inference call.
	BatchSize int
	// Engine names a registered engine; empty resolves to the default.
	Engine string
	// Observer, when set, receives batch-level progress.
	Observer progress.Observer
}

// AnalyzeResult reports scheduler counters. Total is fixed when the pending
// set is loaded; items stored after that point wait for the next run.
type AnalyzeResult struct {
	Total    int `json:"total"`
	Analyzed int `json:"analyzed"`
	Missing  int `json:"missing"`
}

// AnalyzePending analyzes stored items without sentiment in consecutive
// batches. An inference failure aborts the run as *sentiment.InferenceError;
// batches already written stay written and the partial result accompanies
// the error. Cancellation is honored at batch boundaries.
func (s *Service) AnalyzePending(ctx context.Context, opts AnalyzeOptions) (AnalyzeResult, error) {
	if s == nil || s.store == nil {
		return AnalyzeResult{}, fmt.Errorf("pipeline service is not initialized")
	}

	engine, err := s.engines.Engine(opts.Engine)
	if err != nil {
		return AnalyzeResult{}, err
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultAnalyzeBatchSize
	}

	pending, err := s.store.ListPendingItems(ctx, opts.Keyword, opts.Limit)
	if err != nil {
		return AnalyzeResult{}, err
	}

	result := AnalyzeResult{Total: len(pending)}
	if result.Total == 0 {
		return result, nil
	}

	if opts.Observer != nil {
		opts.Observer.TotalKnown(result.Total)
		opts.Observer.Progress(0, result.Total)
	}

	for start := 0; start < len(pending); start += batchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch := pending[start:min(start+batchSize, len(pending))]

		texts := make([]string, 0, len(batch))
		for _, item := range batch {
			texts = append(texts, item.Body)
		}

		payloads, err := engine.AnalyzeMany(ctx, texts)
		if err != nil {
			return result, sentiment.AsInferenceError(engine.Name(), err)
		}
		if len(payloads) != len(batch) {
			return result, sentiment.AsInferenceError(engine.Name(), fmt.Errorf(
				"inference response count mismatch: requested=%d returned=%d", len(batch), len(payloads)))
		}

		for i, item := range batch {
			encoded, err := json.Marshal(payloads[i])
			if err != nil {
				return result, fmt.Errorf("encode sentiment for item %q: %w", item.ExternalID, err)
			}

			if err := s.store.AttachSentiment(ctx, item.ContentItemID, encoded, globaltime.UTC()); err != nil {
				if errors.Is(err, db.ErrItemNotFound) {
					result.Missing++
					s.logger.Warn().
						Str("external_id", item.ExternalID).
						Msg("content item vanished before sentiment write; skipping")
					continue
				}
				return result, err
			}
			result.Analyzed++
		}

		if opts.Observer != nil {
			opts.Observer.Progress(result.Analyzed+result.Missing, result.Total)
		}
	}

	return result, nil
}
