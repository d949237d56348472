package narrative

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var testReportHeader = []string{
	"post_id", "source", "author", "created_at", "url", "upvotes", "content",
	"sentiment_label", "sentiment_confidence", "positive_score",
	"negative_score", "neutral_score", "emotions_positive",
	"emotions_negative", "emotions_neutral",
}

func writeTestReport(t *testing.T, rows [][]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentiment_solar_power.csv")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create report fixture: %v", err)
	}
	writer := csv.NewWriter(file)
	if err := writer.Write(testReportHeader); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			t.Fatalf("write row: %v", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		t.Fatalf("flush fixture: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("close fixture: %v", err)
	}
	return path
}

func reportFixtureRow(id, label, content, positive, negative, neutral, emotionsPositive, emotionsNegative string) []string {
	return []string{
		id, "REDDIT", "tester", "2024-08-12 09:00:00", "https://example.test/" + id, "3", content,
		label, positive, positive, negative, neutral, emotionsPositive, emotionsNegative, "{}",
	}
}

func TestSummarizeBuildsPromptFromReport(t *testing.T) {
	t.Parallel()

	path := writeTestReport(t, [][]string{
		reportFixtureRow("reddit_a1", "POSITIVE", "panels paid for themselves", "0.8000", "0.1000", "0.1000", `{"joy":0.6,"trust":0.4}`, "{}"),
		reportFixtureRow("reddit_b2", "NEGATIVE", "installer ghosted us", "0.1000", "0.7000", "0.2000", "{}", `{"anger":0.5}`),
		reportFixtureRow("reddit_c3", "POSITIVE", "output meets the estimate", "0.6000", "0.2000", "0.2000", `{"joy":0.2}`, "{}"),
	})

	var gotRequest chatRequest
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"choices":[{"message":{"content":"  ## Sentiment Overview\nMostly positive.  "}}]}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer server.Close()

	summarizer, err := NewSummarizer(server.URL+"/v1/chat/completions", "test-key", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text, err := summarizer.Summarize(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "## Sentiment Overview\nMostly positive." {
		t.Fatalf("unexpected summary text: %q", text)
	}

	if gotAuth != "Bearer test-key" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if gotRequest.Model != DefaultModel {
		t.Fatalf("expected default model, got %q", gotRequest.Model)
	}
	if gotRequest.Temperature != 0.7 || gotRequest.TopP != 0.9 || gotRequest.MaxTokens != 4000 {
		t.Fatalf("unexpected sampling config: %+v", gotRequest)
	}
	if len(gotRequest.Messages) != 1 || gotRequest.Messages[0].Role != "user" {
		t.Fatalf("expected one user message, got %+v", gotRequest.Messages)
	}

	prompt := gotRequest.Messages[0].Content
	for _, want := range []string{
		"Topic: solar_power | Source: REDDIT | Posts: 3",
		"- Positive: 66.7% (2 posts)",
		"- Negative: 33.3% (1 posts)",
		"- Neutral: 0.0% (0 posts)",
		"Average scores: positive 0.50, negative 0.33, neutral 0.17",
		"- **Joy**: 0.40",
		"- **Trust**: 0.40",
		"- **Anger**: 0.50",
		"Positive: panels paid for themselves",
		"Negative: installer ghosted us",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestSummarizeSurfacesAPIError(t *testing.T) {
	t.Parallel()

	path := writeTestReport(t, [][]string{
		reportFixtureRow("reddit_a1", "POSITIVE", "good", "0.8000", "0.1000", "0.1000", "{}", "{}"),
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		if _, err := w.Write([]byte(`{"error":{"message":"quota exhausted"}}`)); err != nil {
			t.Errorf("write response: %v", err)
		}
	}))
	defer server.Close()

	summarizer, err := NewSummarizer(server.URL+"/v1/chat/completions", "test-key", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = summarizer.Summarize(context.Background(), path)
	if err == nil {
		t.Fatalf("expected error for 429 response")
	}
	if !strings.Contains(err.Error(), "status 429") || !strings.Contains(err.Error(), "quota exhausted") {
		t.Fatalf("expected status and service message in error, got: %v", err)
	}
}

func TestSummarizeEmptyReport(t *testing.T) {
	t.Parallel()

	path := writeTestReport(t, nil)
	summarizer, err := NewSummarizer("https://api.example.test", "test-key", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = summarizer.Summarize(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "no data rows") {
		t.Fatalf("expected no data rows error, got: %v", err)
	}
}

func TestSummarizeMissingReport(t *testing.T) {
	t.Parallel()

	summarizer, err := NewSummarizer("https://api.example.test", "test-key", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = summarizer.Summarize(context.Background(), filepath.Join(t.TempDir(), "sentiment_missing.csv"))
	if err == nil || !strings.Contains(err.Error(), "open report") {
		t.Fatalf("expected open error, got: %v", err)
	}
}

func TestNewSummarizerRequiresCredentials(t *testing.T) {
	t.Parallel()

	if _, err := NewSummarizer("", "key", ""); err == nil {
		t.Fatalf("expected error for blank endpoint")
	}
	if _, err := NewSummarizer("https://api.example.test", "   ", ""); err == nil {
		t.Fatalf("expected error for blank API key")
	}
}

func TestChatCompletionsURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{name: "scheme added", raw: "api.example.test/v1", want: "https://api.example.test/v1/chat/completions"},
		{name: "v1 suffix extended", raw: "https://api.example.test/v1/", want: "https://api.example.test/v1/chat/completions"},
		{name: "full path kept", raw: "https://gateway.example/forward/chat/completions", want: "https://gateway.example/forward/chat/completions"},
		{name: "bare host", raw: "https://api.example.test", want: "https://api.example.test/v1/chat/completions"},
		{name: "proxy path extended", raw: "https://gateway.example/proxy", want: "https://gateway.example/proxy/v1/chat/completions"},
	}
	for _, tc := range cases {
		got, err := chatCompletionsURL(tc.raw)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}
