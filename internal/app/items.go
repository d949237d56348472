package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/pulse/internal/cli"
	"horse.fit/pulse/internal/db"
	"horse.fit/pulse/internal/sentiment"
)

// contentItemRow is the CLI-facing shape of a stored item. The db model only
// carries gorm tags, so JSON field names live here.
type contentItemRow struct {
	ContentItemUUID string          `json:"content_item_uuid"`
	ExternalID      string          `json:"external_id"`
	Keyword         string          `json:"keyword"`
	Source          string          `json:"source"`
	Author          string          `json:"author,omitempty"`
	Body            string          `json:"body"`
	Language        string          `json:"language,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	FetchedAt       time.Time       `json:"fetched_at"`
	URL             string          `json:"url,omitempty"`
	LikeCount       int             `json:"like_count"`
	ReplyCount      int             `json:"reply_count"`
	Sentiment       json.RawMessage `json:"sentiment,omitempty"`
	AnalyzedAt      *time.Time      `json:"analyzed_at,omitempty"`
}

func contentItemRowFrom(item db.ContentItem) contentItemRow {
	return contentItemRow{
		ContentItemUUID: item.ContentItemUUID,
		ExternalID:      item.ExternalID,
		Keyword:         item.Keyword,
		Source:          item.Source,
		Author:          pointerStringOrEmpty(item.Author),
		Body:            item.Body,
		Language:        pointerStringOrEmpty(item.Language),
		CreatedAt:       item.CreatedAt,
		FetchedAt:       item.FetchedAt,
		URL:             pointerStringOrEmpty(item.URL),
		LikeCount:       derefInt(item.LikeCount),
		ReplyCount:      derefInt(item.ReplyCount),
		Sentiment:       item.Sentiment,
		AnalyzedAt:      item.AnalyzedAt,
	}
}

func contentItemRows(items []db.ContentItem) []contentItemRow {
	rows := make([]contentItemRow, 0, len(items))
	for _, item := range items {
		rows = append(rows, contentItemRowFrom(item))
	}
	return rows
}

func derefInt(value *int) int {
	if value == nil {
		return 0
	}
	return *value
}

// sentimentLabelOf extracts the primary label for table rendering; rows
// without a payload render blank.
func sentimentLabelOf(item db.ContentItem) string {
	if len(item.Sentiment) == 0 {
		return ""
	}
	var payload sentiment.Payload
	if err := json.Unmarshal(item.Sentiment, &payload); err != nil {
		return ""
	}
	return payload.Primary.Label
}

func runItems(args []string) int {
	fs := flag.NewFlagSet("items", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	keyword := fs.String("keyword", "", "Filter by keyword")
	status := fs.String("status", "", "Filter by analysis status: pending or analyzed")
	contains := fs.String("contains", "", "Filter by body substring")
	limit := fs.Int("limit", 50, "Maximum items to return")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "items does not accept positional arguments")
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
		return 2
	}

	statusFilter := strings.TrimSpace(strings.ToLower(*status))
	switch statusFilter {
	case "", "pending", "analyzed":
	default:
		fmt.Fprintln(os.Stderr, "--status must be pending or analyzed")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, pool, err := connectReadPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	items, err := pool.ListContentItems(ctx, db.ContentListOptions{
		Keyword:  strings.TrimSpace(*keyword),
		Status:   statusFilter,
		Contains: strings.TrimSpace(*contains),
		Limit:    *limit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query items: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(contentItemRows(items)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	tableRows := make([][]string, 0, len(items))
	for _, item := range items {
		tableRows = append(tableRows, []string{
			item.ExternalID,
			item.Keyword,
			item.Source,
			pointerStringOrEmpty(item.Language),
			sentimentLabelOf(item),
			formatUTCTimestamp(item.CreatedAt),
			truncateForTable(item.Body, 60),
		})
	}

	if err := writeTable(
		[]string{"external_id", "keyword", "source", "language", "label", "created_at", "content"},
		tableRows,
	); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}

	return 0
}
