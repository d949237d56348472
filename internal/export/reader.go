package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"horse.fit/pulse/internal/source"
)

// ReadItems parses an export CSV back into source items, for re-ingesting a
// file into the store. Sentiment columns are ignored; analysis is re-run
// after import. Rows with a blank external_id or keyword, or an unparseable
// created_at, are skipped and counted.
func ReadItems(path string) ([]source.Item, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open export file: %w", err)
	}
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	closeErr := file.Close()
	if err != nil {
		return nil, 0, fmt.Errorf("read export file: %w", err)
	}
	if closeErr != nil {
		return nil, 0, fmt.Errorf("close export file: %w", closeErr)
	}
	if len(records) == 0 {
		return nil, 0, fmt.Errorf("export file %s is empty", path)
	}

	columns := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		columns[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"external_id", "keyword", "content", "created_at"} {
		if _, ok := columns[required]; !ok {
			return nil, 0, fmt.Errorf("export file %s is missing column %q", path, required)
		}
	}

	cell := func(record []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	items := make([]source.Item, 0, len(records)-1)
	skipped := 0
	for _, record := range records[1:] {
		externalID := strings.TrimSpace(cell(record, "external_id"))
		keyword := strings.TrimSpace(cell(record, "keyword"))
		if externalID == "" || keyword == "" {
			skipped++
			continue
		}
		createdAt, err := time.Parse(time.RFC3339, strings.TrimSpace(cell(record, "created_at")))
		if err != nil {
			skipped++
			continue
		}

		items = append(items, source.Item{
			ExternalID:   externalID,
			Keyword:      keyword,
			Source:       sourcePrefix(externalID),
			Author:       cell(record, "author"),
			Body:         cell(record, "content"),
			Language:     strings.TrimSpace(cell(record, "language")),
			CreatedAt:    createdAt.UTC(),
			URL:          strings.TrimSpace(cell(record, "url")),
			LikeCount:    parseCount(cell(record, "like_count")),
			ReplyCount:   parseCount(cell(record, "reply_count")),
			ReshareCount: parseCount(cell(record, "reshare_count")),
			QuoteCount:   parseCount(cell(record, "quote_count")),
		})
	}
	return items, skipped, nil
}

// sourcePrefix recovers the source name from the external id convention
// <source>_<native id>. Exports do not carry a source column.
func sourcePrefix(externalID string) string {
	if idx := strings.IndexByte(externalID, '_'); idx > 0 {
		return externalID[:idx]
	}
	return "import"
}

func parseCount(raw string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value < 0 {
		return 0
	}
	return value
}
