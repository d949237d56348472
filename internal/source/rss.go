package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"horse.fit/pulse/internal/globaltime"
)

const (
	// RSSFetcherName identifies the feed fetcher.
	RSSFetcherName = "rss"

	rssExternalIDPrefix = "rss_"
)

// RSSFetcher parses configured RSS/Atom feeds and keeps the entries whose
// title or description mentions the keyword.
type RSSFetcher struct {
	feedURLs []string
	parser   *gofeed.Parser
}

// NewRSSFetcher builds a fetcher over the given feed URLs.
func NewRSSFetcher(feedURLs []string) *RSSFetcher {
	urls := make([]string, 0, len(feedURLs))
	for _, feedURL := range feedURLs {
		trimmed := strings.TrimSpace(feedURL)
		if trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return &RSSFetcher{
		feedURLs: urls,
		parser:   gofeed.NewParser(),
	}
}

// Name implements Fetcher.
func (f *RSSFetcher) Name() string {
	return RSSFetcherName
}

// Search implements Fetcher. Feeds are read in configuration order; a feed
// that fails to parse aborts the search.
func (f *RSSFetcher) Search(ctx context.Context, keyword string, limit int) ([]Item, error) {
	trimmedKeyword := strings.TrimSpace(keyword)
	if trimmedKeyword == "" {
		return nil, &FetchError{Source: RSSFetcherName, Err: fmt.Errorf("keyword is required")}
	}
	if len(f.feedURLs) == 0 {
		return nil, &FetchError{Source: RSSFetcherName, Err: fmt.Errorf("no feed URLs configured")}
	}

	needle := strings.ToLower(trimmedKeyword)
	var items []Item
	for _, feedURL := range f.feedURLs {
		feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			return nil, &FetchError{Source: RSSFetcherName, Err: fmt.Errorf("parse feed %s: %w", feedURL, err)}
		}

		language := strings.TrimSpace(feed.Language)
		for _, entry := range feed.Items {
			if entry == nil {
				continue
			}
			if !strings.Contains(strings.ToLower(entry.Title+" "+entry.Description), needle) {
				continue
			}

			body := strings.TrimSpace(entry.Title)
			if description := strings.TrimSpace(entry.Description); description != "" {
				body = body + "\n\n" + description
			}

			createdAt := globaltime.UTC()
			if entry.PublishedParsed != nil {
				createdAt = entry.PublishedParsed.UTC()
			} else if entry.UpdatedParsed != nil {
				createdAt = entry.UpdatedParsed.UTC()
			}

			items = append(items, Item{
				ExternalID: rssExternalIDPrefix + rssEntryID(entry),
				Keyword:    trimmedKeyword,
				Source:     RSSFetcherName,
				Author:     rssEntryAuthor(entry),
				Body:       truncateRunes(strings.TrimSpace(body), maxItemBodyRunes),
				Language:   language,
				CreatedAt:  createdAt,
				URL:        strings.TrimSpace(entry.Link),
			})
			if limit > 0 && len(items) >= limit {
				return items, nil
			}
		}
	}
	return items, nil
}

// rssEntryID prefers the feed GUID and falls back to a hash of the link so
// entries stay deduplicatable across fetches.
func rssEntryID(entry *gofeed.Item) string {
	if guid := strings.TrimSpace(entry.GUID); guid != "" {
		return guid
	}
	seed := strings.TrimSpace(entry.Link)
	if seed == "" {
		seed = strings.TrimSpace(entry.Title)
	}
	hash := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(hash[:])[:16]
}

func rssEntryAuthor(entry *gofeed.Item) string {
	for _, author := range entry.Authors {
		if author == nil {
			continue
		}
		if name := strings.TrimSpace(author.Name); name != "" {
			return name
		}
	}
	if entry.Author != nil {
		return strings.TrimSpace(entry.Author.Name)
	}
	return ""
}
