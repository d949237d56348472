package export

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"horse.fit/pulse/internal/globaltime"
)

func TestSlug(t *testing.T) {
	t.Parallel()

	cases := []struct {
		keyword string
		want    string
	}{
		{keyword: "solar", want: "solar"},
		{keyword: "Solar Power", want: "solar_power"},
		{keyword: "c++ / rust!", want: "c_rust_"},
		{keyword: "already_safe-slug", want: "already_safe-slug"},
		{keyword: "日本語キーワード", want: "日本語キーワード"},
		{keyword: "", want: "search"},
	}
	for _, tc := range cases {
		if got := Slug(tc.keyword); got != tc.want {
			t.Fatalf("Slug(%q): expected %q, got %q", tc.keyword, tc.want, got)
		}
	}
}

func TestLatestPicksNewestMatchingExport(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"solar_20240812100000.csv",
		"solar_20240812110000.csv",
		"solar_power_20240812120000.csv",
		"solar_NOTATIMESTAMP.csv",
		"solar_20240812110000.txt",
		"unrelated.csv",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("external_id\n"), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
	}

	manager := NewManager(dir, 10*time.Minute)
	latest, ok, err := manager.Latest("solar")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a matching export")
	}
	if filepath.Base(latest.Path) != "solar_20240812110000.csv" {
		t.Fatalf("expected the newest solar export, got %q", latest.Path)
	}
	want := time.Date(2024, 8, 12, 11, 0, 0, 0, time.UTC)
	if !latest.CreatedAt.Equal(want) {
		t.Fatalf("expected created at %v, got %v", want, latest.CreatedAt)
	}
}

func TestLatestDoesNotMatchLongerSlug(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "solar_power_20240812120000.csv"), []byte("external_id\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	manager := NewManager(dir, 10*time.Minute)
	if _, ok, err := manager.Latest("solar"); err != nil || ok {
		t.Fatalf("expected no match for the shorter keyword, got ok=%v err=%v", ok, err)
	}

	latest, ok, err := manager.Latest("solar power")
	if err != nil || !ok {
		t.Fatalf("expected a match for the full keyword, got ok=%v err=%v", ok, err)
	}
	if filepath.Base(latest.Path) != "solar_power_20240812120000.csv" {
		t.Fatalf("unexpected export: %q", latest.Path)
	}
}

func TestLatestMissingDirectory(t *testing.T) {
	t.Parallel()

	manager := NewManager(filepath.Join(t.TempDir(), "does-not-exist"), 10*time.Minute)
	_, ok, err := manager.Latest("solar")
	if err != nil {
		t.Fatalf("expected missing directory to be treated as no exports, got %v", err)
	}
	if ok {
		t.Fatalf("expected no export")
	}
}

func TestIsFresh(t *testing.T) {
	t.Parallel()

	manager := NewManager(t.TempDir(), 10*time.Minute)
	now := time.Date(2024, 8, 12, 10, 0, 0, 0, time.UTC)

	if !manager.IsFresh(now.Add(-9*time.Minute), now) {
		t.Fatalf("expected nine-minute-old export to be fresh")
	}
	if manager.IsFresh(now.Add(-10*time.Minute), now) {
		t.Fatalf("expected export at exactly the window edge to be stale")
	}
	if manager.IsFresh(now.Add(-11*time.Minute), now) {
		t.Fatalf("expected eleven-minute-old export to be stale")
	}
}

func TestExportFileNameUsesUTC(t *testing.T) {
	globaltime.SetMockTime(time.Date(2024, 8, 12, 10, 30, 0, 0, time.FixedZone("JST", 9*60*60)))
	defer globaltime.ResetTime()

	if got := exportFileName("solar", nowUTC()); got != "solar_20240812013000.csv" {
		t.Fatalf("expected UTC timestamp in name, got %q", got)
	}
}
