// Package reader fetches a content item's URL and reduces the page to
// readable text for preview rendering.
package reader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
)

const (
	DefaultTimeout   = 12 * time.Second
	DefaultByteLimit = 2 * 1024 * 1024

	defaultUserAgent = "pulse-preview/1.0 (+https://horse.fit/pulse)"
)

// Options controls HTTP behavior for preview extraction.
type Options struct {
	Timeout   time.Duration
	ByteLimit int64
	UserAgent string
	Client    *http.Client
}

// Preview fetches rawURL and extracts its readable text. Plain-text
// responses skip article extraction entirely.
func Preview(ctx context.Context, rawURL string, opts Options) (string, error) {
	page := strings.TrimSpace(rawURL)
	if page == "" {
		return "", fmt.Errorf("preview URL is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	byteLimit := opts.ByteLimit
	if byteLimit <= 0 {
		byteLimit = DefaultByteLimit
	}

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, page, nil)
	if err != nil {
		return "", fmt.Errorf("build preview request: %w", err)
	}

	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch preview url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("preview fetch status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, byteLimit))
	if err != nil {
		return "", fmt.Errorf("read preview body: %w", err)
	}

	contentType := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type")))
	if strings.HasPrefix(contentType, "text/plain") {
		return CleanText(string(body)), nil
	}

	pageURL, err := url.Parse(page)
	if err != nil {
		return "", fmt.Errorf("parse preview url: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return "", fmt.Errorf("extract article: %w", err)
	}

	var rendered bytes.Buffer
	if err := article.RenderText(&rendered); err != nil {
		return "", fmt.Errorf("render article text: %w", err)
	}

	text := CleanText(rendered.String())
	if text == "" {
		text = CleanText(article.Excerpt())
	}
	if text == "" {
		return "", fmt.Errorf("no readable text at %s", page)
	}
	return text, nil
}

// CleanText normalizes line endings and collapses in-line whitespace,
// keeping paragraph breaks.
func CleanText(raw string) string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	lines := strings.Split(normalized, "\n")
	paragraphs := make([]string, 0, len(lines))
	for _, line := range lines {
		clean := strings.Join(strings.Fields(strings.TrimSpace(line)), " ")
		if clean == "" {
			continue
		}
		paragraphs = append(paragraphs, clean)
	}

	return strings.TrimSpace(strings.Join(paragraphs, "\n\n"))
}

// TruncateText clips text to maxRunes and appends an ellipsis when it cut
// anything off.
func TruncateText(raw string, maxRunes int) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	if maxRunes <= 0 {
		return trimmed, false
	}

	runes := []rune(trimmed)
	if len(runes) <= maxRunes {
		return trimmed, false
	}
	if maxRunes == 1 {
		return "…", true
	}

	clipped := strings.TrimSpace(string(runes[:maxRunes-1]))
	if clipped == "" {
		return "…", true
	}
	return clipped + "…", true
}
