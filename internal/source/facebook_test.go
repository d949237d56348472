package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFacebookFetcherRequiresAccessToken(t *testing.T) {
	t.Parallel()

	fetcher := NewFacebookFetcher("", "page-1", "")
	_, err := fetcher.Search(context.Background(), "solar", 10)
	if err == nil {
		t.Fatalf("expected error for missing access token")
	}
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected a fetch error, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "FACEBOOK_ACCESS_TOKEN") {
		t.Fatalf("expected the error to name the missing variable, got: %v", err)
	}
}

func TestFacebookFetcherSearchFiltersAndPaginates(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/page-1/posts":
			if got := r.URL.Query().Get("access_token"); got != "token-1" {
				t.Errorf("expected access token in query, got %q", got)
			}
			if got := r.URL.Query().Get("fields"); !strings.Contains(got, "permalink_url") {
				t.Errorf("expected post fields in query, got %q", got)
			}
			body := `{
				"data": [
					{
						"id": "111_1",
						"message": "Big solar announcement today",
						"created_time": "2024-08-12T10:00:00+0000",
						"from": {"name": "Example Page"},
						"reactions": {"summary": {"total_count": 12}},
						"comments": {"summary": {"total_count": 4}},
						"shares": {"count": 2},
						"permalink_url": "https://facebook.example/111_1"
					},
					{
						"id": "111_2",
						"message": "Quarterly results are in",
						"created_time": "2024-08-11T09:00:00+0000",
						"from": {"name": "Example Page"}
					}
				],
				"paging": {"next": "` + server.URL + `/second-page"}
			}`
			if _, err := w.Write([]byte(body)); err != nil {
				t.Errorf("write response: %v", err)
			}
		case "/second-page":
			body := `{
				"data": [
					{
						"id": "111_3",
						"message": "More solar news from the field",
						"created_time": "2024-08-10T08:00:00+0000",
						"from": {"name": "Example Page"},
						"reactions": {"summary": {"total_count": 1}},
						"comments": {"summary": {"total_count": 0}},
						"permalink_url": "https://facebook.example/111_3"
					}
				]
			}`
			if _, err := w.Write([]byte(body)); err != nil {
				t.Errorf("write response: %v", err)
			}
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	}))
	defer server.Close()

	fetcher := NewFacebookFetcher(server.URL, "page-1", "token-1")
	items, err := fetcher.Search(context.Background(), "solar", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(items) != 2 {
		t.Fatalf("expected two keyword-matched items across pages, got %d: %+v", len(items), items)
	}
	first := items[0]
	if first.ExternalID != "facebook_111_1" {
		t.Fatalf("expected prefixed external id, got %q", first.ExternalID)
	}
	if first.Author != "Example Page" {
		t.Fatalf("expected page author, got %q", first.Author)
	}
	if first.LikeCount != 12 || first.ReplyCount != 4 || first.ReshareCount != 2 {
		t.Fatalf("unexpected counts: %+v", first)
	}
	if first.CreatedAt.IsZero() {
		t.Fatalf("expected parsed created time, got zero")
	}
	if items[1].ExternalID != "facebook_111_3" {
		t.Fatalf("expected second page item, got %q", items[1].ExternalID)
	}
}

func TestFacebookFetcherStopsAtLimit(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := `{
			"data": [
				{"id": "1", "message": "solar one", "created_time": "2024-08-12T10:00:00+0000"},
				{"id": "2", "message": "solar two", "created_time": "2024-08-11T10:00:00+0000"}
			]
		}`
		if _, err := w.Write([]byte(body)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer server.Close()

	fetcher := NewFacebookFetcher(server.URL, "page-1", "token-1")
	items, err := fetcher.Search(context.Background(), "solar", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected the limit to cap results, got %d", len(items))
	}
}

func TestFacebookFetcherGraphError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		if _, err := w.Write([]byte(`{"error":{"message":"Invalid OAuth access token."}}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer server.Close()

	fetcher := NewFacebookFetcher(server.URL, "page-1", "bad-token")
	_, err := fetcher.Search(context.Background(), "solar", 10)
	if err == nil {
		t.Fatalf("expected error for graph error response")
	}
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected a fetch error, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "Invalid OAuth access token") {
		t.Fatalf("expected graph message in error, got: %v", err)
	}
}
