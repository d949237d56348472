package pipeline

import (
	"context"
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"

	"horse.fit/pulse/internal/globaltime"
	"horse.fit/pulse/internal/source"
)

func columnIndex(t *testing.T, header []string, name string) int {
	t.Helper()
	for i, column := range header {
		if column == name {
			return i
		}
	}
	t.Fatalf("column %q not found in header %v", name, header)
	return -1
}

func exportEntryCount(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		t.Fatalf("read export dir: %v", err)
	}
	return len(entries)
}

func TestIngest_CreatesExportAndAnalyzes(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	fetcher := &scriptedFetcher{name: "stub", items: testSourceItems("solar", 3)}
	engine := &stubEngine{name: "nice"}
	svc := newTestService(t, store, fetcher, engine)

	outcome, err := svc.Ingest(context.Background(), IngestOptions{Keyword: "solar", Source: "stub", Limit: 10})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if outcome.Status != StatusCreated {
		t.Fatalf("expected status created, got %q", outcome.Status)
	}
	if outcome.FetchedCount != 3 || outcome.StoredCount != 3 {
		t.Fatalf("unexpected counts: %+v", outcome)
	}
	if outcome.Analysis.Total != 3 || outcome.Analysis.Analyzed != 3 {
		t.Fatalf("unexpected analysis result: %+v", outcome.Analysis)
	}

	records := readExportRecords(t, outcome.ExportPath)
	if len(records) != 4 {
		t.Fatalf("expected header and 3 rows, got %d records", len(records))
	}
	labelCol := columnIndex(t, records[0], "sentiment_label")
	confidenceCol := columnIndex(t, records[0], "sentiment_confidence")
	joyCol := columnIndex(t, records[0], "emotions_positive")
	for _, row := range records[1:] {
		if row[labelCol] != "positive" {
			t.Fatalf("expected enriched label, got %q", row[labelCol])
		}
		if row[confidenceCol] != "0.7000" {
			t.Fatalf("expected enriched confidence, got %q", row[confidenceCol])
		}
		if row[joyCol] != `{"joy":0.4}` {
			t.Fatalf("expected joy signal, got %q", row[joyCol])
		}
	}

	if len(store.runs) != 1 {
		t.Fatalf("expected one ingest run, got %d", len(store.runs))
	}
	if store.runs[0].Keyword != "solar" || store.runs[0].Source != "stub" || store.runs[0].RequestedLimit != 10 {
		t.Fatalf("unexpected run params: %+v", store.runs[0])
	}
	if len(store.completed) != 1 || len(store.failed) != 0 {
		t.Fatalf("expected a completed run, got completed=%d failed=%d", len(store.completed), len(store.failed))
	}
	completed := store.completed[0]
	if completed.counts.ItemsFetched != 3 || completed.counts.ItemsStored != 3 || completed.counts.ItemsAnalyzed != 3 {
		t.Fatalf("unexpected run counts: %+v", completed.counts)
	}
	if completed.exportPath != outcome.ExportPath {
		t.Fatalf("run export path %q does not match outcome %q", completed.exportPath, outcome.ExportPath)
	}
}

func TestIngest_FreshExportServesCache(t *testing.T) {
	start := time.Date(2024, 8, 12, 10, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(start)
	defer globaltime.ResetTime()

	store := newFakeStore()
	fetcher := &scriptedFetcher{name: "stub", items: testSourceItems("solar", 2)}
	svc := newTestService(t, store, fetcher, &stubEngine{name: "nice"})

	first, err := svc.Ingest(context.Background(), IngestOptions{Keyword: "solar", Source: "stub", Limit: 10})
	if err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	if first.Status != StatusCreated {
		t.Fatalf("expected created, got %q", first.Status)
	}

	// Five minutes later, and with a smaller limit: still inside the
	// freshness window, so no fetch happens.
	globaltime.SetMockTime(start.Add(5 * time.Minute))
	second, err := svc.Ingest(context.Background(), IngestOptions{Keyword: "solar", Source: "stub", Limit: 1})
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if second.Status != StatusCached {
		t.Fatalf("expected cached, got %q", second.Status)
	}
	if second.ExportPath != first.ExportPath {
		t.Fatalf("expected cached path %q, got %q", first.ExportPath, second.ExportPath)
	}
	if second.FetchedCount != 0 || second.StoredCount != 0 || second.Analysis.Total != 0 {
		t.Fatalf("cached outcome must not fetch or analyze: %+v", second)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected a single fetch, got %d", fetcher.calls)
	}
	if len(store.runs) != 1 {
		t.Fatalf("cached outcome must not open a run, got %d runs", len(store.runs))
	}

	// At exactly the window boundary the export is stale and a real fetch
	// runs again; the refetched items are duplicates and stay deduplicated.
	globaltime.SetMockTime(start.Add(10 * time.Minute))
	third, err := svc.Ingest(context.Background(), IngestOptions{Keyword: "solar", Source: "stub", Limit: 10})
	if err != nil {
		t.Fatalf("third Ingest: %v", err)
	}
	if third.Status != StatusCreated {
		t.Fatalf("expected created after staleness, got %q", third.Status)
	}
	if third.ExportPath == first.ExportPath {
		t.Fatalf("expected a new export file, got %q twice", third.ExportPath)
	}
	if fetcher.calls != 2 {
		t.Fatalf("expected a second fetch, got %d", fetcher.calls)
	}
	if third.FetchedCount != 2 || third.StoredCount != 0 {
		t.Fatalf("expected refetched duplicates to store nothing: %+v", third)
	}
	if len(store.runs) != 2 {
		t.Fatalf("expected a second ingest run, got %d", len(store.runs))
	}
}

func TestIngest_IgnoreCacheAppendsToFreshExport(t *testing.T) {
	start := time.Date(2024, 8, 12, 10, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(start)
	defer globaltime.ResetTime()

	store := newFakeStore()
	fetcher := &scriptedFetcher{name: "stub", items: testSourceItems("solar", 2)}
	svc := newTestService(t, store, fetcher, &stubEngine{name: "nice"})

	first, err := svc.Ingest(context.Background(), IngestOptions{Keyword: "solar", Source: "stub", Limit: 10})
	if err != nil {
		t.Fatalf("first Ingest: %v", err)
	}

	globaltime.SetMockTime(start.Add(5 * time.Minute))
	fetcher.items = []source.Item{{
		ExternalID: "stub_solar_fresh",
		Keyword:    "solar",
		Source:     "stub",
		Body:       "a brand new post about solar",
		Language:   "en",
		CreatedAt:  start,
	}}
	second, err := svc.Ingest(context.Background(), IngestOptions{Keyword: "solar", Source: "stub", Limit: 10, IgnoreCache: true})
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if second.Status != StatusAppended {
		t.Fatalf("expected appended, got %q", second.Status)
	}
	if second.ExportPath != first.ExportPath {
		t.Fatalf("expected append to reuse %q, got %q", first.ExportPath, second.ExportPath)
	}
	if second.StoredCount != 1 {
		t.Fatalf("expected one new item stored, got %d", second.StoredCount)
	}

	records := readExportRecords(t, second.ExportPath)
	if len(records) != 4 {
		t.Fatalf("expected header plus 3 rows after append, got %d", len(records))
	}
	if len(store.runs) != 2 || len(store.completed) != 2 {
		t.Fatalf("expected two completed runs, got runs=%d completed=%d", len(store.runs), len(store.completed))
	}
}

func TestIngest_AppendDegradesToCreateWhenExportVanishes(t *testing.T) {
	start := time.Date(2024, 8, 12, 10, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(start)
	defer globaltime.ResetTime()

	store := newFakeStore()
	fetcher := &scriptedFetcher{name: "stub", items: testSourceItems("solar", 2)}
	svc := newTestService(t, store, fetcher, &stubEngine{name: "nice"})

	first, err := svc.Ingest(context.Background(), IngestOptions{Keyword: "solar", Source: "stub", Limit: 10})
	if err != nil {
		t.Fatalf("first Ingest: %v", err)
	}

	globaltime.SetMockTime(start.Add(5 * time.Minute))
	fetcher.items = testSourceItems("solar", 1)
	fetcher.onSearch = func() {
		// The export disappears while the fetch is in flight.
		if err := os.Remove(first.ExportPath); err != nil {
			t.Errorf("remove export: %v", err)
		}
	}

	second, err := svc.Ingest(context.Background(), IngestOptions{Keyword: "solar", Source: "stub", Limit: 10, IgnoreCache: true})
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if second.Status != StatusCreated {
		t.Fatalf("expected degradation to created, got %q", second.Status)
	}
	if _, err := os.Stat(second.ExportPath); err != nil {
		t.Fatalf("expected recreated export on disk: %v", err)
	}
	records := readExportRecords(t, second.ExportPath)
	if len(records) != 2 {
		t.Fatalf("expected header plus the refetched row, got %d records", len(records))
	}
}

func TestIngest_FetchErrorWritesNothing(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	fetcher := &scriptedFetcher{name: "stub", err: errors.New("rate limited")}
	engine := &stubEngine{name: "nice"}
	svc := newTestService(t, store, fetcher, engine)

	outcome, err := svc.Ingest(context.Background(), IngestOptions{Keyword: "solar", Source: "stub", Limit: 10})
	var fetchErr *source.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if outcome.Status != "" || outcome.ExportPath != "" {
		t.Fatalf("expected empty outcome on fetch failure, got %+v", outcome)
	}
	if exportEntryCount(t, svc.Exports().Dir()) != 0 {
		t.Fatal("expected no export files after a fetch failure")
	}
	if len(store.items) != 0 || len(store.runs) != 0 {
		t.Fatalf("expected nothing persisted, got items=%d runs=%d", len(store.items), len(store.runs))
	}
	if len(engine.calls) != 0 {
		t.Fatalf("expected no analysis, got %d calls", len(engine.calls))
	}
}

func TestIngest_EmptyFetchSkips(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	fetcher := &scriptedFetcher{name: "stub"}
	engine := &stubEngine{name: "nice"}
	svc := newTestService(t, store, fetcher, engine)

	outcome, err := svc.Ingest(context.Background(), IngestOptions{Keyword: "solar", Source: "stub", Limit: 10})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if outcome.Status != StatusSkipped {
		t.Fatalf("expected skipped, got %q", outcome.Status)
	}
	if exportEntryCount(t, svc.Exports().Dir()) != 0 {
		t.Fatal("expected no export file for an empty fetch")
	}
	if len(store.runs) != 0 {
		t.Fatalf("skipped outcome must not open a run, got %d", len(store.runs))
	}
	if len(engine.calls) != 0 {
		t.Fatalf("expected no analysis, got %d calls", len(engine.calls))
	}
}

func TestIngest_InferenceErrorReportsPartialAnalysis(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	fetcher := &scriptedFetcher{name: "stub", items: testSourceItems("solar", 5)}
	engine := &stubEngine{name: "nice", failOn: 2}
	svc := newTestService(t, store, fetcher, engine)

	outcome, err := svc.Ingest(context.Background(), IngestOptions{Keyword: "solar", Source: "stub", Limit: 10, BatchSize: 2})
	if err != nil {
		t.Fatalf("an analysis failure must not fail the ingest, got %v", err)
	}
	if outcome.Status != StatusCreated {
		t.Fatalf("expected created, got %q", outcome.Status)
	}
	if outcome.Analysis.Total != 5 || outcome.Analysis.Analyzed != 2 {
		t.Fatalf("expected partial analysis counts, got %+v", outcome.Analysis)
	}
	if !strings.Contains(outcome.Message, "analysis aborted after 2 of 5") {
		t.Fatalf("expected abort notice in message, got %q", outcome.Message)
	}

	// The run still completes with partial counts, and the committed batch
	// is visible in the enriched export.
	if len(store.completed) != 1 || len(store.failed) != 0 {
		t.Fatalf("expected one completed run, got completed=%d failed=%d", len(store.completed), len(store.failed))
	}
	if store.completed[0].counts.ItemsAnalyzed != 2 {
		t.Fatalf("expected 2 analyzed in run counts, got %d", store.completed[0].counts.ItemsAnalyzed)
	}

	records := readExportRecords(t, outcome.ExportPath)
	labelCol := columnIndex(t, records[0], "sentiment_label")
	enriched := 0
	for _, row := range records[1:] {
		if row[labelCol] != "" {
			enriched++
		}
	}
	if enriched != 2 {
		t.Fatalf("expected 2 enriched rows, got %d", enriched)
	}
}

func TestIngest_ScenarioBatchProgress(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	items := testSourceItems("solar", 40)
	// Five of the fetched items are already stored from an earlier run.
	for i := 0; i < 5; i++ {
		store.seen[items[i].ExternalID] = true
	}
	fetcher := &scriptedFetcher{name: "stub", items: items}
	svc := newTestService(t, store, fetcher, &stubEngine{name: "nice"})

	var events []Event
	outcome, err := svc.Ingest(context.Background(), IngestOptions{
		Keyword:   "solar",
		Source:    "stub",
		Limit:     40,
		BatchSize: 8,
		Events:    func(event Event) { events = append(events, event) },
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if outcome.FetchedCount != 40 || outcome.StoredCount != 35 {
		t.Fatalf("expected 40 fetched and 35 stored, got %+v", outcome)
	}
	if outcome.Analysis.Total != 35 || outcome.Analysis.Analyzed != 35 {
		t.Fatalf("unexpected analysis result: %+v", outcome.Analysis)
	}

	var analyzeMessages []string
	for _, event := range events {
		if event.Stage == "analyze" {
			analyzeMessages = append(analyzeMessages, event.Message)
		}
	}
	want := []string{
		"analyzed 0/35 pending items",
		"analyzed 8/35 pending items",
		"analyzed 16/35 pending items",
		"analyzed 24/35 pending items",
		"analyzed 32/35 pending items",
		"analyzed 35/35 pending items",
	}
	if len(analyzeMessages) != len(want) {
		t.Fatalf("expected %d analyze events, got %d: %v", len(want), len(analyzeMessages), analyzeMessages)
	}
	for i, message := range want {
		if analyzeMessages[i] != message {
			t.Fatalf("analyze event %d: got %q, want %q", i, analyzeMessages[i], message)
		}
	}

	stages := make([]string, 0, len(events))
	for _, event := range events {
		if len(stages) == 0 || stages[len(stages)-1] != event.Stage {
			stages = append(stages, event.Stage)
		}
	}
	wantStages := []string{"fetch", "export", "store", "analyze", "export"}
	if !reflect.DeepEqual(stages, wantStages) {
		t.Fatalf("unexpected stage order: %v", stages)
	}
}

func TestIngest_RequiresKeyword(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, newFakeStore(), &scriptedFetcher{name: "stub"}, &stubEngine{name: "nice"})
	if _, err := svc.Ingest(context.Background(), IngestOptions{Keyword: "   "}); err == nil || !strings.Contains(err.Error(), "keyword is required") {
		t.Fatalf("expected keyword error, got %v", err)
	}
}

func TestIngest_UnknownSource(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, newFakeStore(), &scriptedFetcher{name: "stub"}, &stubEngine{name: "nice"})
	_, err := svc.Ingest(context.Background(), IngestOptions{Keyword: "solar", Source: "myspace"})
	if err == nil || !strings.Contains(err.Error(), "is not registered") {
		t.Fatalf("expected unknown source error, got %v", err)
	}
}
