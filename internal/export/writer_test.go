package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"horse.fit/pulse/internal/db"
	"horse.fit/pulse/internal/globaltime"
	"horse.fit/pulse/internal/source"
)

type stubLookup struct {
	items  []db.ContentItem
	gotIDs []string
}

func (s *stubLookup) ListItemsByExternalIDs(ctx context.Context, externalIDs []string) ([]db.ContentItem, error) {
	s.gotIDs = externalIDs
	return s.items, nil
}

func testItems() []source.Item {
	return []source.Item{
		{
			ExternalID: "reddit_abc",
			Keyword:    "solar",
			Source:     "reddit",
			Author:     "sunwatcher",
			Body:       "Solar power hits new record\n\nInstallations doubled.",
			Language:   "en",
			CreatedAt:  time.Date(2024, 8, 12, 9, 0, 0, 0, time.UTC),
			URL:        "https://reddit.example/abc",
			LikeCount:  42,
			ReplyCount: 7,
		},
		{
			ExternalID: "reddit_def",
			Keyword:    "solar",
			Source:     "reddit",
			Body:       "Rooftop program expands",
			CreatedAt:  time.Date(2024, 8, 11, 9, 0, 0, 0, time.UTC),
		},
	}
}

func readRecords(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	return records
}

func TestCreateWritesHeaderAndRawRows(t *testing.T) {
	globaltime.SetMockTime(time.Date(2024, 8, 12, 10, 0, 0, 0, time.UTC))
	defer globaltime.ResetTime()

	manager := NewManager(t.TempDir(), 10*time.Minute)
	path, err := manager.Create("solar", testItems())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(path) != "solar_20240812100000.csv" {
		t.Fatalf("unexpected export name: %q", path)
	}

	records := readRecords(t, path)
	if len(records) != 3 {
		t.Fatalf("expected header and two rows, got %d records", len(records))
	}
	if !reflect.DeepEqual(records[0], exportHeader) {
		t.Fatalf("unexpected header: %v", records[0])
	}

	row := records[1]
	if row[colExternalID] != "reddit_abc" || row[colKeyword] != "solar" || row[colAuthor] != "sunwatcher" {
		t.Fatalf("unexpected base cells: %v", row)
	}
	if row[colCreatedAt] != "2024-08-12T09:00:00Z" {
		t.Fatalf("unexpected created_at cell: %q", row[colCreatedAt])
	}
	if row[colLikeCount] != "42" || row[colReplyCount] != "7" || row[colReshareCount] != "0" {
		t.Fatalf("unexpected count cells: %v", row)
	}
	for col := colSentimentLabel; col <= colEmotionsNeutral; col++ {
		if row[col] != "" {
			t.Fatalf("expected empty sentiment cell at %d, got %q", col, row[col])
		}
	}
}

func TestAppendAddsRawRows(t *testing.T) {
	globaltime.SetMockTime(time.Date(2024, 8, 12, 10, 0, 0, 0, time.UTC))
	defer globaltime.ResetTime()

	manager := NewManager(t.TempDir(), 10*time.Minute)
	path, err := manager.Create("solar", testItems()[:1])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := manager.Append(path, testItems()[1:]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records := readRecords(t, path)
	if len(records) != 3 {
		t.Fatalf("expected header and two rows after append, got %d", len(records))
	}
	if records[2][colExternalID] != "reddit_def" {
		t.Fatalf("expected appended row last, got %v", records[2])
	}
}

func TestAppendMissingFileReportsNotExist(t *testing.T) {
	t.Parallel()

	manager := NewManager(t.TempDir(), 10*time.Minute)
	err := manager.Append(filepath.Join(manager.Dir(), "solar_20240812100000.csv"), testItems())
	if err == nil {
		t.Fatalf("expected error for missing export file")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected a not-exist error, got: %v", err)
	}
}

func TestEnrichFillsSentimentAndIsIdempotent(t *testing.T) {
	globaltime.SetMockTime(time.Date(2024, 8, 12, 10, 0, 0, 0, time.UTC))
	defer globaltime.ResetTime()

	manager := NewManager(t.TempDir(), 10*time.Minute)
	path, err := manager.Create("solar", testItems())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := json.RawMessage(`{
		"primary":{"positive":0.71239,"negative":0.1,"neutral":0.18761,"label":"positive","confidence":0.71239},
		"signals":{"positive":{"joy":0.6111,"trust":0.2},"negative":{},"neutral":{}}
	}`)
	lookup := &stubLookup{items: []db.ContentItem{
		{ExternalID: "reddit_abc", Sentiment: payload},
		{ExternalID: "reddit_def"},
	}}

	if err := manager.Enrich(context.Background(), path, lookup); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lookup.gotIDs) != 2 {
		t.Fatalf("expected both row ids looked up, got %v", lookup.gotIDs)
	}

	records := readRecords(t, path)
	enriched := records[1]
	if enriched[colSentimentLabel] != "positive" {
		t.Fatalf("expected label cell filled, got %q", enriched[colSentimentLabel])
	}
	if enriched[colPositiveScore] != "0.7124" {
		t.Fatalf("expected four-decimal positive score, got %q", enriched[colPositiveScore])
	}
	if enriched[colEmotionsPositive] != `{"joy":0.6111,"trust":0.2}` {
		t.Fatalf("expected sorted JSON bucket, got %q", enriched[colEmotionsPositive])
	}
	if enriched[colEmotionsNegative] != "{}" {
		t.Fatalf("expected empty JSON bucket, got %q", enriched[colEmotionsNegative])
	}
	if enriched[colExternalID] != "reddit_abc" || enriched[colContent] == "" {
		t.Fatalf("expected base cells preserved, got %v", enriched)
	}

	pending := records[2]
	if pending[colSentimentLabel] != "" {
		t.Fatalf("expected unanalyzed row to stay raw, got %v", pending)
	}

	firstPass, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read enriched export: %v", err)
	}
	if err := manager.Enrich(context.Background(), path, lookup); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	secondPass, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read re-enriched export: %v", err)
	}
	if string(firstPass) != string(secondPass) {
		t.Fatalf("expected enrichment to be byte-stable across runs")
	}
}
