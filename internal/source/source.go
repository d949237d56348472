// Package source fetches keyword-matched content from external platforms
// and maps it onto the pipeline's item shape.
package source

import (
	"context"
	"fmt"
	"time"
)

// Bodies longer than this are cut at fetch time so a single post cannot
// dominate storage and inference budgets.
const maxItemBodyRunes = 10000

// Item is a fetched piece of content before it gains a database identity.
type Item struct {
	ExternalID   string
	Keyword      string
	Source       string
	Author       string
	Body         string
	Language     string
	CreatedAt    time.Time
	URL          string
	LikeCount    int
	ReplyCount   int
	ReshareCount int
	QuoteCount   int
}

// Fetcher searches one platform for keyword-matched content.
type Fetcher interface {
	// Name returns the fetcher identifier used for registry lookups and
	// external id prefixes.
	Name() string
	// Search returns up to limit items matching keyword, newest first when
	// the platform offers an ordering.
	Search(ctx context.Context, keyword string, limit int) ([]Item, error)
}

// FetchError reports a failed platform fetch. The pipeline aborts the run
// without writing anything when it sees one.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch from %s failed: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
