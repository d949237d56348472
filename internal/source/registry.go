package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"horse.fit/pulse/internal/config"
)

const (
	// DefaultFetcherName is used when no source is named.
	DefaultFetcherName = RedditFetcherName
	// CompositeFetcherName fans a search out over every registered fetcher.
	CompositeFetcherName = "all"
)

// Registry resolves content fetchers by name.
type Registry struct {
	fetchers map[string]Fetcher
	// order preserves registration order for the composite fetcher.
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		fetchers: make(map[string]Fetcher),
	}
}

// NewRegistryFromConfig builds the standard registry: reddit is always
// registered; facebook when a page id is configured; rss when feed URLs are
// configured.
func NewRegistryFromConfig(cfg *config.Config) (*Registry, error) {
	registry := NewRegistry()

	var (
		redditBaseURL   string
		redditUserAgent string
	)
	if cfg != nil {
		redditBaseURL = cfg.RedditBaseURL
		redditUserAgent = cfg.RedditUserAgent
	}
	if err := registry.Register(NewRedditFetcher(redditBaseURL, redditUserAgent)); err != nil {
		return nil, err
	}

	if cfg != nil && strings.TrimSpace(cfg.FacebookPageID) != "" {
		fetcher := NewFacebookFetcher(cfg.FacebookBaseURL, cfg.FacebookPageID, cfg.FacebookAccessToken)
		if err := registry.Register(fetcher); err != nil {
			return nil, err
		}
	}

	if cfg != nil {
		if feeds := cfg.RSSFeedList(); len(feeds) > 0 {
			if err := registry.Register(NewRSSFetcher(feeds)); err != nil {
				return nil, err
			}
		}
	}

	return registry, nil
}

// Register adds a fetcher to the registry, replacing any fetcher registered
// under the same name.
func (r *Registry) Register(fetcher Fetcher) error {
	if fetcher == nil {
		return errors.New("cannot register nil fetcher")
	}
	name := normalizeFetcherName(fetcher.Name())
	if name == "" {
		return errors.New("cannot register fetcher with empty name")
	}
	if name == CompositeFetcherName {
		return fmt.Errorf("fetcher name %q is reserved", CompositeFetcherName)
	}
	if _, exists := r.fetchers[name]; !exists {
		r.order = append(r.order, name)
	}
	r.fetchers[name] = fetcher
	return nil
}

// Fetcher returns the fetcher registered under name. Empty resolves to the
// default source; "all" resolves to a composite over every registered
// fetcher in registration order.
func (r *Registry) Fetcher(name string) (Fetcher, error) {
	normalized := normalizeFetcherName(name)
	if normalized == "" {
		normalized = DefaultFetcherName
	}
	if normalized == CompositeFetcherName {
		if len(r.order) == 0 {
			return nil, errors.New("no fetchers registered")
		}
		fetchers := make([]Fetcher, 0, len(r.order))
		for _, registered := range r.order {
			fetchers = append(fetchers, r.fetchers[registered])
		}
		return &compositeFetcher{fetchers: fetchers}, nil
	}
	fetcher, ok := r.fetchers[normalized]
	if !ok {
		return nil, fmt.Errorf("source %q is not registered (available: %s)",
			name, strings.Join(r.FetcherNames(), ", "))
	}
	return fetcher, nil
}

// FetcherNames returns the sorted names of all registered fetchers plus the
// composite name.
func (r *Registry) FetcherNames() []string {
	names := make([]string, 0, len(r.fetchers)+1)
	for name := range r.fetchers {
		names = append(names, name)
	}
	names = append(names, CompositeFetcherName)
	sort.Strings(names)
	return names
}

func normalizeFetcherName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// compositeFetcher concatenates results from several fetchers. The limit
// applies per source; the first failed source aborts the whole search.
type compositeFetcher struct {
	fetchers []Fetcher
}

func (c *compositeFetcher) Name() string {
	return CompositeFetcherName
}

func (c *compositeFetcher) Search(ctx context.Context, keyword string, limit int) ([]Item, error) {
	var items []Item
	for _, fetcher := range c.fetchers {
		fetched, err := fetcher.Search(ctx, keyword, limit)
		if err != nil {
			return nil, err
		}
		items = append(items, fetched...)
	}
	return items, nil
}
