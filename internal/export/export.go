// Package export manages the CSV export artifacts the pipeline writes per
// keyword: timestamped raw exports, freshness-based cache lookups, and the
// sentiment enrichment pass.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"horse.fit/pulse/internal/globaltime"
)

// DefaultFreshnessWindow is how long an export counts as fresh when no
// window is configured.
const DefaultFreshnessWindow = 10 * time.Minute

const exportTimestampLayout = "20060102150405"

var slugPattern = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)

// Slug converts a keyword into the filename-safe form used for export and
// report names: lowercased, with runs of other characters collapsed to a
// single underscore.
func Slug(keyword string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(keyword), "_")
	if slug == "" {
		return "search"
	}
	return slug
}

// Export identifies one export file and the creation time embedded in its
// name.
type Export struct {
	Path      string
	CreatedAt time.Time
}

// Manager owns the export directory.
type Manager struct {
	dir    string
	window time.Duration
}

// NewManager creates a manager over dir with the given freshness window.
// A non-positive window falls back to the default.
func NewManager(dir string, window time.Duration) *Manager {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	return &Manager{dir: dir, window: window}
}

// Dir returns the export directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Latest returns the newest export for keyword, going by the timestamp
// embedded in the filename. A missing directory or files that do not match
// the naming scheme are skipped, not errors.
func (m *Manager) Latest(keyword string) (Export, bool, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Export{}, false, nil
		}
		return Export{}, false, fmt.Errorf("read export directory: %w", err)
	}

	prefix := Slug(keyword) + "_"
	var (
		latest Export
		found  bool
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		createdAt, ok := parseExportName(entry.Name(), prefix)
		if !ok {
			continue
		}
		if !found || createdAt.After(latest.CreatedAt) {
			latest = Export{
				Path:      filepath.Join(m.dir, entry.Name()),
				CreatedAt: createdAt,
			}
			found = true
		}
	}
	return latest, found, nil
}

// IsFresh reports whether an export created at createdAt still counts as
// fresh at now.
func (m *Manager) IsFresh(createdAt, now time.Time) bool {
	return now.Sub(createdAt) < m.window
}

// exportFileName builds the timestamped name for a new keyword export.
func exportFileName(keyword string, now time.Time) string {
	return Slug(keyword) + "_" + now.UTC().Format(exportTimestampLayout) + ".csv"
}

// parseExportName extracts the creation time from a name of the form
// {slug}_{YYYYMMDDHHMMSS}.csv. The slug must match exactly so that one
// keyword's exports never satisfy another keyword whose slug is a prefix.
func parseExportName(name, prefix string) (time.Time, bool) {
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".csv") {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".csv")
	if len(stamp) != len(exportTimestampLayout) {
		return time.Time{}, false
	}
	for _, r := range stamp {
		if r < '0' || r > '9' {
			return time.Time{}, false
		}
	}
	createdAt, err := time.ParseInLocation(exportTimestampLayout, stamp, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return createdAt, true
}

func nowUTC() time.Time {
	return globaltime.UTC()
}
