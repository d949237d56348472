// Package report renders per-keyword sentiment reports as stable-named CSV
// files, the handoff format for the narrative summarizer and spreadsheets.
package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"horse.fit/pulse/internal/db"
	"horse.fit/pulse/internal/export"
	"horse.fit/pulse/internal/sentiment"
)

// ErrNoAnalyzedItems is returned when a keyword has nothing analyzed yet.
var ErrNoAnalyzedItems = errors.New("no analyzed items for keyword")

// Bodies are flattened to one line and cut here so the report stays
// skimmable in a spreadsheet.
const maxReportContentRunes = 500

var reportHeader = []string{
	"post_id",
	"source",
	"author",
	"created_at",
	"url",
	"upvotes",
	"content",
	"sentiment_label",
	"sentiment_confidence",
	"positive_score",
	"negative_score",
	"neutral_score",
	"emotions_positive",
	"emotions_negative",
	"emotions_neutral",
}

// AnalyzedLister is the slice of the content store the report needs.
// *db.Pool implements it.
type AnalyzedLister interface {
	ListAnalyzedItems(ctx context.Context, keyword string, limit int) ([]db.ContentItem, error)
}

// Stats summarizes the label distribution of a written report.
type Stats struct {
	Total   int
	ByLabel map[string]int
}

// Labels returns the distribution's label names, sorted.
func (s Stats) Labels() []string {
	labels := make([]string, 0, len(s.ByLabel))
	for label := range s.ByLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Percent returns the share of rows carrying label, in percent.
func (s Stats) Percent(label string) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.ByLabel[label]) / float64(s.Total) * 100
}

// Write renders the sentiment report for keyword into dir and returns the
// file path with its label distribution. The file name is stable per
// keyword, so a rerun replaces the previous report.
func Write(ctx context.Context, store AnalyzedLister, keyword, dir string) (string, Stats, error) {
	trimmed := strings.TrimSpace(keyword)
	if trimmed == "" {
		return "", Stats{}, fmt.Errorf("keyword is required")
	}

	items, err := store.ListAnalyzedItems(ctx, trimmed, 0)
	if err != nil {
		return "", Stats{}, err
	}
	if len(items) == 0 {
		return "", Stats{}, fmt.Errorf("%w: %q", ErrNoAnalyzedItems, trimmed)
	}

	stats := Stats{ByLabel: make(map[string]int)}
	rows := make([][]string, 0, len(items)+1)
	rows = append(rows, reportHeader)
	for _, item := range items {
		row, label := reportRow(item)
		rows = append(rows, row)
		stats.Total++
		if label != "" {
			stats.ByLabel[label]++
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", Stats{}, fmt.Errorf("create report directory: %w", err)
	}
	path := filepath.Join(dir, FileName(trimmed))

	file, err := os.Create(path)
	if err != nil {
		return "", Stats{}, fmt.Errorf("create report file: %w", err)
	}
	writer := csv.NewWriter(file)
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			_ = file.Close()
			return "", Stats{}, fmt.Errorf("write report row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		_ = file.Close()
		return "", Stats{}, fmt.Errorf("flush report: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", Stats{}, fmt.Errorf("close report file: %w", err)
	}

	return path, stats, nil
}

// FileName returns the stable report name for a keyword.
func FileName(keyword string) string {
	return "sentiment_" + export.Slug(keyword) + ".csv"
}

func reportRow(item db.ContentItem) ([]string, string) {
	row := make([]string, len(reportHeader))
	row[0] = item.ExternalID
	row[1] = strings.ToUpper(sourceFromExternalID(item.ExternalID, item.Source))
	if item.Author != nil {
		row[2] = *item.Author
	}
	row[3] = item.CreatedAt.UTC().Format("2006-01-02 15:04:05")
	if item.URL != nil {
		row[4] = *item.URL
	}
	upvotes := 0
	if item.LikeCount != nil {
		upvotes = *item.LikeCount
	}
	row[5] = strconv.Itoa(upvotes)
	row[6] = flattenContent(item.Body)

	payload, ok := decodePayload(item.Sentiment)
	if !ok {
		return row, ""
	}
	label := strings.ToLower(strings.TrimSpace(payload.Primary.Label))
	row[7] = strings.ToUpper(label)
	row[8] = formatScore(payload.Primary.Confidence)
	row[9] = formatScore(payload.Primary.Positive)
	row[10] = formatScore(payload.Primary.Negative)
	row[11] = formatScore(payload.Primary.Neutral)
	row[12] = encodeBucket(payload.Signals.Positive)
	row[13] = encodeBucket(payload.Signals.Negative)
	row[14] = encodeBucket(payload.Signals.Neutral)
	return row, label
}

func decodePayload(raw []byte) (sentiment.Payload, bool) {
	if len(raw) == 0 {
		return sentiment.Payload{}, false
	}
	var payload sentiment.Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return sentiment.Payload{}, false
	}
	payload.Signals.Normalize()
	return payload, true
}

// sourceFromExternalID reads the platform prefix off ids like "reddit_abc";
// ids without one keep the stored source. The report upper-cases the result.
func sourceFromExternalID(externalID, fallback string) string {
	if idx := strings.IndexByte(externalID, '_'); idx > 0 {
		return externalID[:idx]
	}
	return fallback
}

func flattenContent(body string) string {
	flat := strings.Join(strings.Fields(body), " ")
	runes := []rune(flat)
	if len(runes) <= maxReportContentRunes {
		return flat
	}
	return string(runes[:maxReportContentRunes]) + "..."
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func encodeBucket(bucket map[string]float64) string {
	rounded := make(map[string]float64, len(bucket))
	for name, score := range bucket {
		rounded[name] = math.Round(score*10000) / 10000
	}
	encoded, err := json.Marshal(rounded)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}
