package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrItemNotFound is returned when a sentiment write targets a row that no
// longer exists.
var ErrItemNotFound = errors.New("content item not found")

const contentItemColumns = `
	i.content_item_id,
	i.content_item_uuid::text,
	i.external_id,
	i.keyword,
	i.source,
	i.author,
	i.body,
	i.language,
	i.created_at,
	i.fetched_at,
	i.url,
	i.like_count,
	i.reply_count,
	i.reshare_count,
	i.quote_count,
	i.sentiment,
	i.analyzed_at,
	i.updated_at`

// InsertContentItems inserts fetched items, skipping external_ids already
// present. Returns the number of rows actually inserted; the unique
// constraint on external_id is the authoritative dedup guard.
func (p *Pool) InsertContentItems(ctx context.Context, items []ContentItem) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const q = `
INSERT INTO pulse.content_items (
	external_id,
	keyword,
	source,
	author,
	body,
	language,
	created_at,
	fetched_at,
	url,
	like_count,
	reply_count,
	reshare_count,
	quote_count
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (external_id) DO NOTHING
`

	var inserted int64
	for _, item := range items {
		tag, err := tx.Exec(ctx, q,
			item.ExternalID,
			item.Keyword,
			item.Source,
			item.Author,
			item.Body,
			item.Language,
			item.CreatedAt.UTC(),
			item.FetchedAt.UTC(),
			item.URL,
			item.LikeCount,
			item.ReplyCount,
			item.ReshareCount,
			item.QuoteCount,
		)
		if err != nil {
			return 0, fmt.Errorf("insert content item %q: %w", item.ExternalID, err)
		}
		inserted += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return inserted, nil
}

// ListPendingItems returns items without sentiment, newest created_at first.
// Empty keyword matches all keywords; limit <= 0 means unbounded.
func (p *Pool) ListPendingItems(ctx context.Context, keyword string, limit int) ([]ContentItem, error) {
	q := `
SELECT` + contentItemColumns + `
FROM pulse.content_items i
WHERE i.sentiment IS NULL
  AND ($1 = '' OR i.keyword = $1)
ORDER BY i.created_at DESC, i.content_item_id DESC
LIMIT NULLIF($2, 0)
`

	rows, err := p.Query(ctx, q, strings.TrimSpace(keyword), limit)
	if err != nil {
		return nil, fmt.Errorf("query pending items: %w", err)
	}
	defer rows.Close()

	return scanContentItems(rows)
}

// ListAnalyzedItems returns items with stored sentiment for a keyword,
// newest created_at first. Limit <= 0 means unbounded.
func (p *Pool) ListAnalyzedItems(ctx context.Context, keyword string, limit int) ([]ContentItem, error) {
	q := `
SELECT` + contentItemColumns + `
FROM pulse.content_items i
WHERE i.sentiment IS NOT NULL
  AND i.keyword = $1
ORDER BY i.created_at DESC, i.content_item_id DESC
LIMIT NULLIF($2, 0)
`

	rows, err := p.Query(ctx, q, strings.TrimSpace(keyword), limit)
	if err != nil {
		return nil, fmt.Errorf("query analyzed items: %w", err)
	}
	defer rows.Close()

	return scanContentItems(rows)
}

// CountAnalyzedItems returns the unbounded analyzed count for a keyword, for
// "stored vs sampled" reporting.
func (p *Pool) CountAnalyzedItems(ctx context.Context, keyword string) (int64, error) {
	const q = `
SELECT COUNT(*)
FROM pulse.content_items i
WHERE i.sentiment IS NOT NULL
  AND i.keyword = $1
`

	var count int64
	if err := p.QueryRow(ctx, q, strings.TrimSpace(keyword)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count analyzed items: %w", err)
	}
	return count, nil
}

// AttachSentiment stores an analysis payload on an existing item. Returns
// ErrItemNotFound when the row vanished between scheduling and write.
func (p *Pool) AttachSentiment(ctx context.Context, contentItemID int64, payload []byte, analyzedAt time.Time) error {
	const q = `
UPDATE pulse.content_items
SET
	sentiment = $2,
	analyzed_at = $3,
	updated_at = $3
WHERE content_item_id = $1
`

	tag, err := p.Exec(ctx, q, contentItemID, payload, analyzedAt.UTC())
	if err != nil {
		return fmt.Errorf("attach sentiment to item %d: %w", contentItemID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// ListItemsByExternalIDs bulk-loads items for export enrichment, keyed lookup
// left to the caller.
func (p *Pool) ListItemsByExternalIDs(ctx context.Context, externalIDs []string) ([]ContentItem, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}

	q := `
SELECT` + contentItemColumns + `
FROM pulse.content_items i
WHERE i.external_id = ANY($1)
`

	rows, err := p.Query(ctx, q, externalIDs)
	if err != nil {
		return nil, fmt.Errorf("query items by external ids: %w", err)
	}
	defer rows.Close()

	return scanContentItems(rows)
}

// GetContentItemByUUID loads a single item; IsNoRows distinguishes absence.
func (p *Pool) GetContentItemByUUID(ctx context.Context, itemUUID string) (*ContentItem, error) {
	trimmedUUID := strings.TrimSpace(itemUUID)
	if trimmedUUID == "" {
		return nil, fmt.Errorf("content item UUID is required")
	}

	q := `
SELECT` + contentItemColumns + `
FROM pulse.content_items i
WHERE i.content_item_uuid = $1::uuid
`

	items, err := func() ([]ContentItem, error) {
		rows, err := p.Query(ctx, q, trimmedUUID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanContentItems(rows)
	}()
	if err != nil {
		return nil, fmt.Errorf("query content item %s: %w", trimmedUUID, err)
	}
	if len(items) == 0 {
		return nil, ErrNoRows
	}
	return &items[0], nil
}

// ContentListOptions controls the items CLI/API listing.
type ContentListOptions struct {
	Keyword  string
	Status   string // "", "pending", "analyzed"
	Contains string
	Limit    int
}

// ListContentItems lists recent items with optional keyword/status/substring
// filters.
func (p *Pool) ListContentItems(ctx context.Context, opts ContentListOptions) ([]ContentItem, error) {
	if opts.Limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	status := strings.ToLower(strings.TrimSpace(opts.Status))
	switch status {
	case "", "pending", "analyzed":
	default:
		return nil, fmt.Errorf("unknown status filter %q", opts.Status)
	}

	q := `
SELECT` + contentItemColumns + `
FROM pulse.content_items i
WHERE ($1 = '' OR i.keyword = $1)
  AND ($2 = ''
	OR ($2 = 'pending' AND i.sentiment IS NULL)
	OR ($2 = 'analyzed' AND i.sentiment IS NOT NULL))
  AND ($3 = '' OR i.body ILIKE '%' || $3 || '%')
ORDER BY i.created_at DESC, i.content_item_id DESC
LIMIT $4
`

	rows, err := p.Query(ctx, q, strings.TrimSpace(opts.Keyword), status, strings.TrimSpace(opts.Contains), opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("query content items: %w", err)
	}
	defer rows.Close()

	return scanContentItems(rows)
}

// KeywordCount is used by the keywords CLI command and API.
type KeywordCount struct {
	Keyword           string     `json:"keyword"`
	ItemCount         int64      `json:"item_count"`
	AnalyzedCount     int64      `json:"analyzed_count"`
	PendingCount      int64      `json:"pending_count"`
	EarliestCreatedAt *time.Time `json:"earliest_created_at,omitempty"`
	LatestCreatedAt   *time.Time `json:"latest_created_at,omitempty"`
}

// ListKeywordsWithCounts returns keyword-level item counts and date ranges.
func (p *Pool) ListKeywordsWithCounts(ctx context.Context) ([]KeywordCount, error) {
	const q = `
SELECT
	i.keyword,
	COUNT(*)::BIGINT AS item_count,
	COUNT(i.sentiment)::BIGINT AS analyzed_count,
	(COUNT(*) - COUNT(i.sentiment))::BIGINT AS pending_count,
	MIN(i.created_at) AS earliest_created_at,
	MAX(i.created_at) AS latest_created_at
FROM pulse.content_items i
GROUP BY i.keyword
ORDER BY 1
`

	rows, err := p.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query keywords with counts: %w", err)
	}
	defer rows.Close()

	items := make([]KeywordCount, 0, 16)
	for rows.Next() {
		var row KeywordCount
		if err := rows.Scan(
			&row.Keyword,
			&row.ItemCount,
			&row.AnalyzedCount,
			&row.PendingCount,
			&row.EarliestCreatedAt,
			&row.LatestCreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan keyword row: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keyword rows: %w", err)
	}

	return items, nil
}

func scanContentItems(rows *Rows) ([]ContentItem, error) {
	items := make([]ContentItem, 0, 32)
	for rows.Next() {
		var row ContentItem
		if err := rows.Scan(
			&row.ContentItemID,
			&row.ContentItemUUID,
			&row.ExternalID,
			&row.Keyword,
			&row.Source,
			&row.Author,
			&row.Body,
			&row.Language,
			&row.CreatedAt,
			&row.FetchedAt,
			&row.URL,
			&row.LikeCount,
			&row.ReplyCount,
			&row.ReshareCount,
			&row.QuoteCount,
			&row.Sentiment,
			&row.AnalyzedAt,
			&row.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan content item row: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content item rows: %w", err)
	}
	return items, nil
}
