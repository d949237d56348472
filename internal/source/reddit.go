package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// RedditFetcherName identifies the reddit search fetcher.
	RedditFetcherName = "reddit"
	// DefaultRedditBaseURL is the public reddit endpoint.
	DefaultRedditBaseURL = "https://www.reddit.com"
	// DefaultRedditUserAgent is sent when none is configured. Reddit
	// throttles requests without a descriptive agent.
	DefaultRedditUserAgent = "pulse/1.0 (content research)"

	redditExternalIDPrefix = "reddit_"
	// Reddit caps search results at 100 per request.
	redditMaxLimit       = 100
	redditRequestTimeout = 30 * time.Second
)

// RedditFetcher searches reddit's public JSON search endpoint.
type RedditFetcher struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewRedditFetcher builds a reddit fetcher for the given base URL and
// User-Agent, falling back to the public endpoint defaults when blank.
func NewRedditFetcher(baseURL, userAgent string) *RedditFetcher {
	trimmedBase := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedBase == "" {
		trimmedBase = DefaultRedditBaseURL
	}
	trimmedAgent := strings.TrimSpace(userAgent)
	if trimmedAgent == "" {
		trimmedAgent = DefaultRedditUserAgent
	}
	return &RedditFetcher{
		baseURL:   trimmedBase,
		userAgent: trimmedAgent,
		client: &http.Client{
			Timeout: redditRequestTimeout,
		},
	}
}

// Name implements Fetcher.
func (f *RedditFetcher) Name() string {
	return RedditFetcherName
}

// Search implements Fetcher. Posts are mapped with the body built from the
// title and selftext, the score as likes, and the comment count as replies;
// reddit has no reshare or quote counts.
func (f *RedditFetcher) Search(ctx context.Context, keyword string, limit int) ([]Item, error) {
	trimmedKeyword := strings.TrimSpace(keyword)
	if trimmedKeyword == "" {
		return nil, &FetchError{Source: RedditFetcherName, Err: fmt.Errorf("keyword is required")}
	}
	if limit <= 0 || limit > redditMaxLimit {
		limit = redditMaxLimit
	}

	query := url.Values{}
	query.Set("q", trimmedKeyword)
	query.Set("sort", "relevance")
	query.Set("t", "month")
	query.Set("limit", strconv.Itoa(limit))
	endpoint := f.baseURL + "/search.json?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{Source: RedditFetcherName, Err: fmt.Errorf("build search request: %w", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: RedditFetcherName, Err: fmt.Errorf("send search request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Source: RedditFetcherName, Err: fmt.Errorf("read search response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{
			Source: RedditFetcherName,
			Err:    fmt.Errorf("search status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
		}
	}

	var parsed redditListing
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &FetchError{Source: RedditFetcherName, Err: fmt.Errorf("decode search response: %w", err)}
	}

	items := make([]Item, 0, len(parsed.Data.Children))
	for _, child := range parsed.Data.Children {
		post := child.Data
		id := strings.TrimSpace(post.ID)
		if id == "" {
			continue
		}

		body := post.Title
		if selftext := strings.TrimSpace(post.Selftext); selftext != "" {
			body = body + "\n\n" + selftext
		}

		items = append(items, Item{
			ExternalID: redditExternalIDPrefix + id,
			Keyword:    trimmedKeyword,
			Source:     RedditFetcherName,
			Author:     strings.TrimSpace(post.Author),
			Body:       truncateRunes(strings.TrimSpace(body), maxItemBodyRunes),
			CreatedAt:  time.Unix(int64(post.CreatedUTC), 0).UTC(),
			URL:        f.baseURL + post.Permalink,
			LikeCount:  post.Score,
			ReplyCount: post.NumComments,
		})
	}
	return items, nil
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	Permalink   string  `json:"permalink"`
	CreatedUTC  float64 `json:"created_utc"`
}
