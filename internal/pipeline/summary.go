package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"horse.fit/pulse/internal/sentiment"
)

// KeywordSummary is the aggregate sentiment picture for one keyword.
// SampleSize counts the payloads aggregated; TotalAnalyzed is the unbounded
// analyzed count, so callers can tell a capped sample from the full set.
type KeywordSummary struct {
	Keyword         string            `json:"keyword"`
	Summary         sentiment.Payload `json:"summary"`
	SampleSize      int               `json:"sample_size"`
	TotalAnalyzed   int64             `json:"total_analyzed"`
	LatestCreatedAt *time.Time        `json:"latest_created_at,omitempty"`
}

// SummarizeKeyword aggregates stored sentiment for a keyword over its newest
// analyzed items. Limit <= 0 aggregates everything analyzed. A blank keyword
// returns a zeroed summary without touching the store.
func (s *Service) SummarizeKeyword(ctx context.Context, keyword string, limit int) (KeywordSummary, error) {
	if s == nil || s.store == nil {
		return KeywordSummary{}, fmt.Errorf("pipeline service is not initialized")
	}

	trimmed := strings.TrimSpace(keyword)
	summary := KeywordSummary{Keyword: trimmed, Summary: sentiment.ZeroSummary()}
	if trimmed == "" {
		return summary, nil
	}

	items, err := s.store.ListAnalyzedItems(ctx, trimmed, limit)
	if err != nil {
		return summary, err
	}

	payloads := make([]sentiment.Payload, 0, len(items))
	for _, item := range items {
		if len(item.Sentiment) == 0 {
			continue
		}
		var payload sentiment.Payload
		if err := json.Unmarshal(item.Sentiment, &payload); err != nil {
			s.logger.Warn().
				Err(err).
				Str("external_id", item.ExternalID).
				Msg("stored sentiment payload does not decode; excluded from summary")
			continue
		}
		payload.Signals.Normalize()
		payloads = append(payloads, payload)
	}

	summary.Summary, summary.SampleSize = sentiment.Aggregate(payloads, s.minProbability)
	if len(items) > 0 {
		latest := items[0].CreatedAt
		summary.LatestCreatedAt = &latest
	}

	total, err := s.store.CountAnalyzedItems(ctx, trimmed)
	if err != nil {
		return summary, err
	}
	summary.TotalAnalyzed = total

	return summary, nil
}
