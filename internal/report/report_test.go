package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"horse.fit/pulse/internal/db"
	"horse.fit/pulse/internal/sentiment"
)

type fakeLister struct {
	items []db.ContentItem
	err   error
	calls int
}

func (f *fakeLister) ListAnalyzedItems(ctx context.Context, keyword string, limit int) ([]db.ContentItem, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []db.ContentItem
	for _, item := range f.items {
		if keyword == "" || item.Keyword == keyword {
			out = append(out, item)
		}
	}
	return out, nil
}

func labeledPayload(t *testing.T, label string, positive, negative float64) json.RawMessage {
	t.Helper()
	payload := sentiment.EmptyPayload()
	payload.Primary.Positive = positive
	payload.Primary.Negative = negative
	payload.Primary.Neutral = 1 - positive - negative
	payload.Primary.Label = label
	payload.Primary.Confidence = positive
	payload.Signals.Positive["joy"] = 0.63219
	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return encoded
}

func analyzedItem(id int64, externalID, keyword, body string, payload json.RawMessage) db.ContentItem {
	author := "commenter_" + externalID
	url := "https://example.test/" + externalID
	likes := 7
	analyzedAt := time.Date(2024, 8, 12, 12, 0, 0, 0, time.UTC)
	return db.ContentItem{
		ContentItemID: id,
		ExternalID:    externalID,
		Keyword:       keyword,
		Source:        "reddit",
		Author:        &author,
		Body:          body,
		CreatedAt:     time.Date(2024, 8, 12, 9, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Minute),
		FetchedAt:     time.Date(2024, 8, 12, 10, 0, 0, 0, time.UTC),
		URL:           &url,
		LikeCount:     &likes,
		Sentiment:     payload,
		AnalyzedAt:    &analyzedAt,
	}
}

func readReport(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open report: %v", err)
	}
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	return records
}

func columnIndex(t *testing.T, header []string, name string) int {
	t.Helper()
	for i, col := range header {
		if col == name {
			return i
		}
	}
	t.Fatalf("column %q not in header %v", name, header)
	return -1
}

func TestWrite_RendersLabelDistribution(t *testing.T) {
	t.Parallel()

	store := &fakeLister{items: []db.ContentItem{
		analyzedItem(1, "reddit_a1", "solar", "great panels", labeledPayload(t, "positive", 0.8, 0.1)),
		analyzedItem(2, "reddit_b2", "solar", "awful install", labeledPayload(t, "negative", 0.1, 0.8)),
		analyzedItem(3, "facebook_c3", "solar", "it exists", labeledPayload(t, "positive", 0.7, 0.1)),
	}}

	dir := t.TempDir()
	path, stats, err := Write(context.Background(), store, "solar", dir)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if want := filepath.Join(dir, "sentiment_solar.csv"); path != want {
		t.Fatalf("path = %q, want %q", path, want)
	}

	if stats.Total != 3 {
		t.Fatalf("stats.Total = %d, want 3", stats.Total)
	}
	if stats.ByLabel["positive"] != 2 || stats.ByLabel["negative"] != 1 {
		t.Fatalf("stats.ByLabel = %v", stats.ByLabel)
	}
	if got := stats.Labels(); len(got) != 2 || got[0] != "negative" || got[1] != "positive" {
		t.Fatalf("stats.Labels() = %v", got)
	}
	if pct := stats.Percent("negative"); pct < 33.3 || pct > 33.4 {
		t.Fatalf("Percent(negative) = %f", pct)
	}

	records := readReport(t, path)
	if len(records) != 4 {
		t.Fatalf("report has %d rows, want 4", len(records))
	}
	header := records[0]
	if len(header) != 15 {
		t.Fatalf("header has %d columns, want 15", len(header))
	}

	labelCol := columnIndex(t, header, "sentiment_label")
	sourceCol := columnIndex(t, header, "source")
	createdCol := columnIndex(t, header, "created_at")
	upvotesCol := columnIndex(t, header, "upvotes")
	positiveCol := columnIndex(t, header, "positive_score")
	emotionsCol := columnIndex(t, header, "emotions_positive")

	first := records[1]
	if first[labelCol] != "POSITIVE" {
		t.Fatalf("label = %q, want POSITIVE", first[labelCol])
	}
	if first[createdCol] != "2024-08-12 09:01:00" {
		t.Fatalf("created_at = %q", first[createdCol])
	}
	if first[sourceCol] != "REDDIT" {
		t.Fatalf("source = %q, want REDDIT", first[sourceCol])
	}
	if first[upvotesCol] != "7" {
		t.Fatalf("upvotes = %q, want 7", first[upvotesCol])
	}
	if first[positiveCol] != "0.8000" {
		t.Fatalf("positive_score = %q, want 0.8000", first[positiveCol])
	}
	if first[emotionsCol] != `{"joy":0.6322}` {
		t.Fatalf("emotions_positive = %q", first[emotionsCol])
	}

	third := records[3]
	if third[sourceCol] != "FACEBOOK" {
		t.Fatalf("source = %q, want FACEBOOK", third[sourceCol])
	}
}

func TestWrite_FlattensAndTruncatesContent(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("é", 501)
	store := &fakeLister{items: []db.ContentItem{
		analyzedItem(1, "reddit_a1", "solar", "line one\nline\ttwo  spaced", labeledPayload(t, "positive", 0.8, 0.1)),
		analyzedItem(2, "reddit_b2", "solar", long, labeledPayload(t, "positive", 0.8, 0.1)),
	}}

	path, _, err := Write(context.Background(), store, "solar", t.TempDir())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	records := readReport(t, path)
	contentCol := columnIndex(t, records[0], "content")

	if got := records[1][contentCol]; got != "line one line two spaced" {
		t.Fatalf("content = %q", got)
	}
	truncated := records[2][contentCol]
	if !strings.HasSuffix(truncated, "...") {
		t.Fatalf("long content not truncated: %q", truncated[len(truncated)-12:])
	}
	if runes := []rune(truncated); len(runes) != 503 {
		t.Fatalf("truncated content has %d runes, want 503", len(runes))
	}
}

func TestWrite_SourceFallsBackWithoutPrefix(t *testing.T) {
	t.Parallel()

	item := analyzedItem(1, "plainid", "solar", "body text", labeledPayload(t, "neutral", 0.1, 0.1))
	item.Source = "rss"
	store := &fakeLister{items: []db.ContentItem{item}}

	path, _, err := Write(context.Background(), store, "solar", t.TempDir())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	records := readReport(t, path)
	sourceCol := columnIndex(t, records[0], "source")
	if records[1][sourceCol] != "RSS" {
		t.Fatalf("source = %q, want RSS", records[1][sourceCol])
	}
}

func TestWrite_UndecodablePayloadLeavesSentimentBlank(t *testing.T) {
	t.Parallel()

	broken := analyzedItem(1, "reddit_a1", "solar", "body", json.RawMessage(`{not json`))
	store := &fakeLister{items: []db.ContentItem{
		broken,
		analyzedItem(2, "reddit_b2", "solar", "body", labeledPayload(t, "positive", 0.8, 0.1)),
	}}

	path, stats, err := Write(context.Background(), store, "solar", t.TempDir())
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if stats.Total != 2 {
		t.Fatalf("stats.Total = %d, want 2", stats.Total)
	}
	if len(stats.ByLabel) != 1 || stats.ByLabel["positive"] != 1 {
		t.Fatalf("stats.ByLabel = %v", stats.ByLabel)
	}

	records := readReport(t, path)
	labelCol := columnIndex(t, records[0], "sentiment_label")
	if records[1][labelCol] != "" {
		t.Fatalf("broken payload label = %q, want empty", records[1][labelCol])
	}
	if records[2][labelCol] != "POSITIVE" {
		t.Fatalf("intact payload label = %q, want POSITIVE", records[2][labelCol])
	}
}

func TestWrite_NoAnalyzedItems(t *testing.T) {
	t.Parallel()

	store := &fakeLister{}
	_, _, err := Write(context.Background(), store, "solar", t.TempDir())
	if !errors.Is(err, ErrNoAnalyzedItems) {
		t.Fatalf("err = %v, want ErrNoAnalyzedItems", err)
	}
}

func TestWrite_RequiresKeyword(t *testing.T) {
	t.Parallel()

	store := &fakeLister{}
	_, _, err := Write(context.Background(), store, "   ", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "keyword is required") {
		t.Fatalf("err = %v, want keyword is required", err)
	}
	if store.calls != 0 {
		t.Fatalf("store queried %d times for blank keyword", store.calls)
	}
}

func TestWrite_RerunReplacesReport(t *testing.T) {
	t.Parallel()

	store := &fakeLister{items: []db.ContentItem{
		analyzedItem(1, "reddit_a1", "solar", "first run", labeledPayload(t, "positive", 0.8, 0.1)),
		analyzedItem(2, "reddit_b2", "solar", "first run", labeledPayload(t, "positive", 0.8, 0.1)),
	}}
	dir := t.TempDir()

	firstPath, _, err := Write(context.Background(), store, "solar", dir)
	if err != nil {
		t.Fatalf("first Write: %v", err)
	}

	store.items = store.items[:1]
	secondPath, stats, err := Write(context.Background(), store, "solar", dir)
	if err != nil {
		t.Fatalf("second Write: %v", err)
	}
	if firstPath != secondPath {
		t.Fatalf("rerun wrote %q, want stable %q", secondPath, firstPath)
	}
	if stats.Total != 1 {
		t.Fatalf("stats.Total = %d, want 1", stats.Total)
	}
	if records := readReport(t, secondPath); len(records) != 2 {
		t.Fatalf("replaced report has %d rows, want 2", len(records))
	}
}
