package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"horse.fit/pulse/internal/db"
	"horse.fit/pulse/internal/sentiment"
	"horse.fit/pulse/internal/source"
)

// exportHeader is the stable 19-column header every export carries from
// creation. Raw writes leave the sentiment columns empty; Enrich fills them
// once analysis lands, so appends and enrichment never reshape the file.
var exportHeader = []string{
	"external_id",
	"keyword",
	"author",
	"content",
	"language",
	"created_at",
	"url",
	"like_count",
	"reply_count",
	"reshare_count",
	"quote_count",
	"sentiment_label",
	"sentiment_confidence",
	"positive_score",
	"negative_score",
	"neutral_score",
	"emotions_positive",
	"emotions_negative",
	"emotions_neutral",
}

const (
	colExternalID = iota
	colKeyword
	colAuthor
	colContent
	colLanguage
	colCreatedAt
	colURL
	colLikeCount
	colReplyCount
	colReshareCount
	colQuoteCount
	colSentimentLabel
	colSentimentConfidence
	colPositiveScore
	colNegativeScore
	colNeutralScore
	colEmotionsPositive
	colEmotionsNegative
	colEmotionsNeutral
)

// ItemLookup is the slice of the content store Enrich needs.
type ItemLookup interface {
	ListItemsByExternalIDs(ctx context.Context, externalIDs []string) ([]db.ContentItem, error)
}

// Create writes a new timestamped export for keyword and returns its path.
func (m *Manager) Create(keyword string, items []source.Item) (string, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	path := filepath.Join(m.dir, exportFileName(keyword, nowUTC()))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}

	rows := make([][]string, 0, len(items)+1)
	rows = append(rows, exportHeader)
	for _, item := range items {
		rows = append(rows, rawRow(item))
	}
	if err := writeRows(file, rows); err != nil {
		file.Close()
		return "", fmt.Errorf("write export rows: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close export file: %w", err)
	}
	return path, nil
}

// Append adds raw rows to an existing export. When the file vanished since
// the cache lookup, the error satisfies errors.Is(err, fs.ErrNotExist) and
// the caller degrades to Create.
func (m *Manager) Append(path string, items []source.Item) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("open export file: %w", err)
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, rawRow(item))
	}
	if err := writeRows(file, rows); err != nil {
		file.Close()
		return fmt.Errorf("append export rows: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	return nil
}

// Enrich rewrites the export at path with sentiment columns filled for every
// row whose item has stored analysis. Scores are written with fixed
// four-decimal precision and signal maps as JSON with sorted keys, so
// re-running enrichment leaves the file byte-identical. Rows without stored
// sentiment, and rows whose stored payload cannot be decoded, keep their
// current cells.
func (m *Manager) Enrich(ctx context.Context, path string, lookup ItemLookup) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open export file: %w", err)
	}
	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	closeErr := file.Close()
	if err != nil {
		return fmt.Errorf("read export file: %w", err)
	}
	if closeErr != nil {
		return fmt.Errorf("close export file: %w", closeErr)
	}
	if len(records) <= 1 {
		return nil
	}

	externalIDs := make([]string, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) > colExternalID && record[colExternalID] != "" {
			externalIDs = append(externalIDs, record[colExternalID])
		}
	}
	if len(externalIDs) == 0 {
		return nil
	}

	items, err := lookup.ListItemsByExternalIDs(ctx, externalIDs)
	if err != nil {
		return fmt.Errorf("look up export items: %w", err)
	}

	payloads := make(map[string]sentiment.Payload, len(items))
	for _, item := range items {
		if len(item.Sentiment) == 0 {
			continue
		}
		var payload sentiment.Payload
		if err := json.Unmarshal(item.Sentiment, &payload); err != nil {
			continue
		}
		payloads[item.ExternalID] = payload
	}

	for _, record := range records[1:] {
		if len(record) < len(exportHeader) {
			continue
		}
		payload, ok := payloads[record[colExternalID]]
		if !ok {
			continue
		}
		record[colSentimentLabel] = payload.Primary.Label
		record[colSentimentConfidence] = formatScore(payload.Primary.Confidence)
		record[colPositiveScore] = formatScore(payload.Primary.Positive)
		record[colNegativeScore] = formatScore(payload.Primary.Negative)
		record[colNeutralScore] = formatScore(payload.Primary.Neutral)
		record[colEmotionsPositive] = encodeBucket(payload.Signals.Positive)
		record[colEmotionsNegative] = encodeBucket(payload.Signals.Negative)
		record[colEmotionsNeutral] = encodeBucket(payload.Signals.Neutral)
	}

	return replaceFile(path, records)
}

func rawRow(item source.Item) []string {
	row := make([]string, len(exportHeader))
	row[colExternalID] = item.ExternalID
	row[colKeyword] = item.Keyword
	row[colAuthor] = item.Author
	row[colContent] = item.Body
	row[colLanguage] = item.Language
	row[colCreatedAt] = item.CreatedAt.UTC().Format(time.RFC3339)
	row[colURL] = item.URL
	row[colLikeCount] = strconv.Itoa(item.LikeCount)
	row[colReplyCount] = strconv.Itoa(item.ReplyCount)
	row[colReshareCount] = strconv.Itoa(item.ReshareCount)
	row[colQuoteCount] = strconv.Itoa(item.QuoteCount)
	return row
}

func writeRows(file *os.File, rows [][]string) error {
	writer := csv.NewWriter(file)
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// replaceFile writes records to a temp file next to path and renames it into
// place so a failed enrichment never leaves a half-written export.
func replaceFile(path string, records [][]string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp export file: %w", err)
	}
	if err := writeRows(file, records); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write enriched rows: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp export file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace export file: %w", err)
	}
	return nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// encodeBucket renders a signal bucket as JSON with values rounded to four
// decimals. encoding/json sorts map keys, which keeps the output stable.
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
