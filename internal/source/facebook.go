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

	"horse.fit/pulse/internal/globaltime"
)

const (
	// FacebookFetcherName identifies the Graph API page fetcher.
	FacebookFetcherName = "facebook"
	// DefaultFacebookBaseURL is the Graph API endpoint.
	DefaultFacebookBaseURL = "https://graph.facebook.com/v22.0"

	facebookExternalIDPrefix = "facebook_"
	facebookPostFields       = "id,message,created_time,from,reactions.summary(total_count),comments.summary(total_count),shares,permalink_url"
	facebookPageSize         = 100
	facebookRequestTimeout   = 30 * time.Second
	// Keyword matching happens client side, so pagination is bounded to
	// keep a keyword with no matches from walking the entire page history.
	facebookMaxPages = 20
)

// FacebookFetcher lists a page's posts through the Graph API and filters
// them by keyword client side; the posts edge has no search parameter.
type FacebookFetcher struct {
	baseURL     string
	pageID      string
	accessToken string
	client      *http.Client
}

// NewFacebookFetcher builds a Graph API fetcher for one page.
func NewFacebookFetcher(baseURL, pageID, accessToken string) *FacebookFetcher {
	trimmedBase := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmedBase == "" {
		trimmedBase = DefaultFacebookBaseURL
	}
	return &FacebookFetcher{
		baseURL:     trimmedBase,
		pageID:      strings.TrimSpace(pageID),
		accessToken: strings.TrimSpace(accessToken),
		client: &http.Client{
			Timeout: facebookRequestTimeout,
		},
	}
}

// Name implements Fetcher.
func (f *FacebookFetcher) Name() string {
	return FacebookFetcherName
}

// Search implements Fetcher. Posts whose message contains the keyword
// (case-insensitive) are mapped with reactions as likes, comments as
// replies, and shares as reshares.
func (f *FacebookFetcher) Search(ctx context.Context, keyword string, limit int) ([]Item, error) {
	if f.accessToken == "" {
		return nil, &FetchError{Source: FacebookFetcherName, Err: fmt.Errorf("FACEBOOK_ACCESS_TOKEN is not set")}
	}
	if f.pageID == "" {
		return nil, &FetchError{Source: FacebookFetcherName, Err: fmt.Errorf("facebook page id is required")}
	}
	trimmedKeyword := strings.TrimSpace(keyword)
	if trimmedKeyword == "" {
		return nil, &FetchError{Source: FacebookFetcherName, Err: fmt.Errorf("keyword is required")}
	}
	if limit <= 0 {
		limit = facebookPageSize
	}

	query := url.Values{}
	query.Set("fields", facebookPostFields)
	query.Set("limit", strconv.Itoa(facebookPageSize))
	query.Set("access_token", f.accessToken)
	nextURL := f.baseURL + "/" + url.PathEscape(f.pageID) + "/posts?" + query.Encode()

	needle := strings.ToLower(trimmedKeyword)
	var items []Item
	for page := 0; nextURL != "" && len(items) < limit && page < facebookMaxPages; page++ {
		parsed, err := f.fetchPage(ctx, nextURL)
		if err != nil {
			return nil, err
		}

		for _, post := range parsed.Data {
			message := strings.TrimSpace(post.Message)
			if message == "" || !strings.Contains(strings.ToLower(message), needle) {
				continue
			}
			createdAt := parseFacebookTime(post.CreatedTime)
			if createdAt.IsZero() {
				createdAt = globaltime.UTC()
			}
			items = append(items, Item{
				ExternalID:   facebookExternalIDPrefix + post.ID,
				Keyword:      trimmedKeyword,
				Source:       FacebookFetcherName,
				Author:       strings.TrimSpace(post.From.Name),
				Body:         truncateRunes(message, maxItemBodyRunes),
				CreatedAt:    createdAt,
				URL:          post.PermalinkURL,
				LikeCount:    post.Reactions.Summary.TotalCount,
				ReplyCount:   post.Comments.Summary.TotalCount,
				ReshareCount: post.Shares.Count,
			})
			if len(items) >= limit {
				break
			}
		}
		nextURL = parsed.Paging.Next
	}
	return items, nil
}

func (f *FacebookFetcher) fetchPage(ctx context.Context, pageURL string) (*facebookPostsResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FetchError{Source: FacebookFetcherName, Err: fmt.Errorf("build posts request: %w", err)}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: FacebookFetcherName, Err: fmt.Errorf("send posts request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Source: FacebookFetcherName, Err: fmt.Errorf("read posts response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		var errPayload facebookErrorResponse
		if unmarshalErr := json.Unmarshal(respBody, &errPayload); unmarshalErr == nil {
			if msg := strings.TrimSpace(errPayload.Error.Message); msg != "" {
				return nil, &FetchError{
					Source: FacebookFetcherName,
					Err:    fmt.Errorf("graph status %d: %s", resp.StatusCode, msg),
				}
			}
		}
		return nil, &FetchError{
			Source: FacebookFetcherName,
			Err:    fmt.Errorf("graph status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
		}
	}

	var parsed facebookPostsResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &FetchError{Source: FacebookFetcherName, Err: fmt.Errorf("decode posts response: %w", err)}
	}
	return &parsed, nil
}

// parseFacebookTime decodes Graph API timestamps, which use a numeric zone
// offset without a colon.
func parseFacebookTime(raw string) time.Time {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}
	}
	if parsed, err := time.Parse("2006-01-02T15:04:05-0700", trimmed); err == nil {
		return parsed.UTC()
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return parsed.UTC()
	}
	return time.Time{}
}

type facebookPostsResponse struct {
	Data []struct {
		ID          string `json:"id"`
		Message     string `json:"message"`
		CreatedTime string `json:"created_time"`
		From        struct {
			Name string `json:"name"`
		} `json:"from"`
		Reactions struct {
			Summary struct {
				TotalCount int `json:"total_count"`
			} `json:"summary"`
		} `json:"reactions"`
		Comments struct {
			Summary struct {
				TotalCount int `json:"total_count"`
			} `json:"summary"`
		} `json:"comments"`
		Shares struct {
			Count int `json:"count"`
		} `json:"shares"`
		PermalinkURL string `json:"permalink_url"`
	} `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

type facebookErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
