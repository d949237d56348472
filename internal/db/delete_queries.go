package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DeleteFilter selects items for retention deletes. Keyword and Before can be
// combined; at least one must be set.
type DeleteFilter struct {
	Keyword string
	Before  time.Time
}

func (f DeleteFilter) validate() error {
	if strings.TrimSpace(f.Keyword) == "" && f.Before.IsZero() {
		return fmt.Errorf("keyword or before cutoff is required")
	}
	return nil
}

// CountItemsMatching returns how many items a delete would remove, for
// dry runs and confirmation prompts.
func (p *Pool) CountItemsMatching(ctx context.Context, filter DeleteFilter) (int64, error) {
	if err := filter.validate(); err != nil {
		return 0, err
	}

	const q = `
SELECT COUNT(*)
FROM pulse.content_items i
WHERE ($1 = '' OR i.keyword = $1)
  AND ($2::timestamptz IS NULL OR i.created_at < $2)
`

	var count int64
	if err := p.QueryRow(ctx, q, strings.TrimSpace(filter.Keyword), nullableTime(filter.Before)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count items for delete: %w", err)
	}
	return count, nil
}

// DeleteItems removes matching items. Ingest run rows are kept as audit
// history.
func (p *Pool) DeleteItems(ctx context.Context, filter DeleteFilter) (int64, error) {
	if err := filter.validate(); err != nil {
		return 0, err
	}

	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const q = `
DELETE FROM pulse.content_items i
WHERE ($1 = '' OR i.keyword = $1)
  AND ($2::timestamptz IS NULL OR i.created_at < $2)
`

	tag, err := tx.Exec(ctx, q, strings.TrimSpace(filter.Keyword), nullableTime(filter.Before))
	if err != nil {
		return 0, fmt.Errorf("delete items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return tag.RowsAffected(), nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}
