package pipeline

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"horse.fit/pulse/internal/db"
	"horse.fit/pulse/internal/sentiment"
)

func (f *fakeStore) seedAnalyzed(t *testing.T, keyword string, payloads []sentiment.Payload) {
	t.Helper()
	base := time.Date(2024, 8, 12, 9, 0, 0, 0, time.UTC)
	for i, payload := range payloads {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		f.nextID++
		f.items = append(f.items, &db.ContentItem{
			ContentItemID: f.nextID,
			ExternalID:    keyword + "_analyzed_" + string(rune('a'+i)),
			Keyword:       keyword,
			Source:        "stub",
			Body:          "analyzed body",
			CreatedAt:     base.Add(time.Duration(i) * time.Hour),
			Sentiment:     encoded,
		})
	}
}

func summaryPayload(positive, negative float64, label string) sentiment.Payload {
	payload := sentiment.EmptyPayload()
	payload.Primary = sentiment.Primary{
		Positive:   positive,
		Negative:   negative,
		Neutral:    1 - positive - negative,
		Label:      label,
		Confidence: math.Max(positive, negative),
	}
	return payload
}

func TestSummarizeKeyword_BlankKeywordSkipsStore(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(t, store, &scriptedFetcher{name: "stub"}, &stubEngine{name: "nice"})

	summary, err := svc.SummarizeKeyword(context.Background(), "   ", 0)
	if err != nil {
		t.Fatalf("SummarizeKeyword: %v", err)
	}
	if summary.SampleSize != 0 || summary.TotalAnalyzed != 0 {
		t.Fatalf("expected zero summary, got %+v", summary)
	}
	if summary.Summary.Primary.Label != sentiment.LabelNeutral {
		t.Fatalf("expected neutral label, got %q", summary.Summary.Primary.Label)
	}
	if store.listAnalyzedCalls != 0 {
		t.Fatalf("expected no store access for blank keyword, got %d calls", store.listAnalyzedCalls)
	}
}

func TestSummarizeKeyword_AggregatesNewestSample(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.seedAnalyzed(t, "solar", []sentiment.Payload{
		summaryPayload(0.9, 0.05, sentiment.LabelPositive),
		summaryPayload(0.7, 0.1, sentiment.LabelPositive),
		summaryPayload(0.1, 0.8, sentiment.LabelNegative),
	})
	svc := newTestService(t, store, &scriptedFetcher{name: "stub"}, &stubEngine{name: "nice"})

	// Limit 2 keeps only the two newest items: the negative one and the
	// middle positive one.
	summary, err := svc.SummarizeKeyword(context.Background(), "solar", 2)
	if err != nil {
		t.Fatalf("SummarizeKeyword: %v", err)
	}
	if summary.SampleSize != 2 {
		t.Fatalf("expected sample of 2, got %d", summary.SampleSize)
	}
	if summary.TotalAnalyzed != 3 {
		t.Fatalf("expected 3 analyzed in total, got %d", summary.TotalAnalyzed)
	}
	if summary.TotalAnalyzed < int64(summary.SampleSize) {
		t.Fatalf("stored count %d must cover the sample %d", summary.TotalAnalyzed, summary.SampleSize)
	}

	wantPositive := (0.7 + 0.1) / 2
	if math.Abs(summary.Summary.Primary.Positive-wantPositive) > 1e-9 {
		t.Fatalf("expected positive mean %.4f, got %.4f", wantPositive, summary.Summary.Primary.Positive)
	}

	wantLatest := time.Date(2024, 8, 12, 11, 0, 0, 0, time.UTC)
	if summary.LatestCreatedAt == nil || !summary.LatestCreatedAt.Equal(wantLatest) {
		t.Fatalf("expected latest %v, got %v", wantLatest, summary.LatestCreatedAt)
	}
}

func TestSummarizeKeyword_SkipsUndecodablePayloads(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.seedAnalyzed(t, "solar", []sentiment.Payload{
		summaryPayload(0.8, 0.1, sentiment.LabelPositive),
	})
	store.nextID++
	store.items = append(store.items, &db.ContentItem{
		ContentItemID: store.nextID,
		ExternalID:    "solar_broken",
		Keyword:       "solar",
		Source:        "stub",
		Body:          "broken payload",
		CreatedAt:     time.Date(2024, 8, 12, 12, 0, 0, 0, time.UTC),
		Sentiment:     json.RawMessage(`{not json`),
	})
	svc := newTestService(t, store, &scriptedFetcher{name: "stub"}, &stubEngine{name: "nice"})

	summary, err := svc.SummarizeKeyword(context.Background(), "solar", 0)
	if err != nil {
		t.Fatalf("SummarizeKeyword: %v", err)
	}
	if summary.SampleSize != 1 {
		t.Fatalf("expected the broken row excluded from the sample, got %d", summary.SampleSize)
	}
	if summary.TotalAnalyzed != 2 {
		t.Fatalf("expected both rows counted as analyzed, got %d", summary.TotalAnalyzed)
	}
}
