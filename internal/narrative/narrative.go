// Package narrative turns a sentiment report CSV into a prose summary by
// calling an OpenAI-compatible chat completions endpoint.
package narrative

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

const (
	requestTimeout  = 120 * time.Second
	maxReplyTokens  = 4000
	topEmotionCount = 5
	sampleRuneLimit = 300
)

// Summarizer generates narrative summaries from sentiment reports.
type Summarizer struct {
	endpointURL string
	apiKey      string
	model       string
	client      *http.Client
}

// NewSummarizer builds a summarizer for the given chat completions endpoint.
// Endpoint and API key are both required; callers without them skip
// narrative generation instead of constructing a disabled summarizer.
func NewSummarizer(endpoint, apiKey, model string) (*Summarizer, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, fmt.Errorf("summary API key is required")
	}
	endpointURL, err := chatCompletionsURL(endpoint)
	if err != nil {
		return nil, err
	}
	trimmedModel := strings.TrimSpace(model)
	if trimmedModel == "" {
		trimmedModel = DefaultModel
	}
	return &Summarizer{
		endpointURL: endpointURL,
		apiKey:      trimmedKey,
		model:       trimmedModel,
		client: &http.Client{
			Timeout: requestTimeout,
		},
	}, nil
}

// ModelName returns the configured model identifier.
func (s *Summarizer) ModelName() string {
	if s == nil {
		return ""
	}
	return s.model
}

// Summarize reads the report at reportPath, distills its sentiment
// distribution into a prompt, and returns the model's narrative.
func (s *Summarizer) Summarize(ctx context.Context, reportPath string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("narrative summarizer is not initialized")
	}

	rows, err := readReport(reportPath)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("report %s has no data rows", filepath.Base(reportPath))
	}

	stats := buildStats(rows, keywordFromReportPath(reportPath))
	return s.complete(ctx, buildPrompt(stats))
}

func (s *Summarizer) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{
				Role:    "user",
				Content: prompt,
			},
		},
		MaxTokens:   maxReplyTokens,
		Temperature: 0.7,
		TopP:        0.9,
	})
	if err != nil {
		return "", fmt.Errorf("marshal summary request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpointURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build summary request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send summary request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read summary response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errPayload chatErrorResponse
		if unmarshalErr := json.Unmarshal(respBody, &errPayload); unmarshalErr == nil {
			if msg := strings.TrimSpace(errPayload.Error.Message); msg != "" {
				return "", fmt.Errorf("summary endpoint status %d: %s", resp.StatusCode, msg)
			}
		}
		return "", fmt.Errorf("summary endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode summary response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("summary response missing choices")
	}
	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("summary response was empty")
	}
	return text, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func chatCompletionsURL(raw string) (string, error) {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return "", fmt.Errorf("summary endpoint is required")
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse summary endpoint: %w", err)
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return "", fmt.Errorf("summary endpoint %q has no host", raw)
	}

	path := strings.TrimRight(parsed.Path, "/")
	switch {
	case strings.HasSuffix(path, "/chat/completions"):
		parsed.Path = path
	case strings.HasSuffix(path, "/v1"):
		parsed.Path = path + "/chat/completions"
	case path == "":
		parsed.Path = "/v1/chat/completions"
	default:
		parsed.Path = path + "/v1/chat/completions"
	}
	return parsed.String(), nil
}

// reportRow is one data row of the report CSV, keyed off the header so
// column order does not matter.
type reportRow struct {
	source           string
	content          string
	label            string
	positive         float64
	negative         float64
	neutral          float64
	positiveEmotions map[string]float64
	negativeEmotions map[string]float64
}

func readReport(path string) ([]reportRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("report %s is empty", filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("read report header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[name] = i
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read report rows: %w", err)
	}

	cell := func(record []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}
	rows := make([]reportRow, 0, len(records))
	for _, record := range records {
		rows = append(rows, reportRow{
			source:           cell(record, "source"),
			content:          cell(record, "content"),
			label:            cell(record, "sentiment_label"),
			positive:         parseScore(cell(record, "positive_score")),
			negative:         parseScore(cell(record, "negative_score")),
			neutral:          parseScore(cell(record, "neutral_score")),
			positiveEmotions: parseEmotions(cell(record, "emotions_positive")),
			negativeEmotions: parseEmotions(cell(record, "emotions_negative")),
		})
	}
	return rows, nil
}

func parseScore(raw string) float64 {
	score, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return score
}

// parseEmotions tolerates malformed cells: a report edited by hand should
// degrade to an empty bucket, not kill the narrative.
func parseEmotions(raw string) map[string]float64 {
	emotions := map[string]float64{}
	if strings.TrimSpace(raw) == "" {
		return emotions
	}
	if err := json.Unmarshal([]byte(raw), &emotions); err != nil {
		return map[string]float64{}
	}
	return emotions
}

// keywordFromReportPath recovers the keyword slug from the stable report
// name, e.g. reports/sentiment_solar_power.csv yields "solar_power".
func keywordFromReportPath(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.TrimPrefix(name, "sentiment_")
}

type emotionMean struct {
	name  string
	score float64
}

type reportStats struct {
	keyword      string
	source       string
	total        int
	counts       map[string]int
	avgPositive  float64
	avgNegative  float64
	avgNeutral   float64
	topPositive  []emotionMean
	topNegative  []emotionMean
	sampleByMood map[string]string
}

func buildStats(rows []reportRow, keyword string) reportStats {
	stats := reportStats{
		keyword:      keyword,
		source:       rows[0].source,
		total:        len(rows),
		counts:       map[string]int{},
		sampleByMood: map[string]string{},
	}

	positiveScores := map[string][]float64{}
	negativeScores := map[string][]float64{}
	for _, row := range rows {
		label := strings.ToUpper(strings.TrimSpace(row.label))
		if label == "" {
			label = "NEUTRAL"
		}
		stats.counts[label]++
		stats.avgPositive += row.positive
		stats.avgNegative += row.negative
		stats.avgNeutral += row.neutral

		for emotion, score := range row.positiveEmotions {
			positiveScores[emotion] = append(positiveScores[emotion], score)
		}
		for emotion, score := range row.negativeEmotions {
			negativeScores[emotion] = append(negativeScores[emotion], score)
		}

		if _, ok := stats.sampleByMood[label]; !ok {
			stats.sampleByMood[label] = truncateRunes(row.content, sampleRuneLimit)
		}
	}

	stats.avgPositive /= float64(stats.total)
	stats.avgNegative /= float64(stats.total)
	stats.avgNeutral /= float64(stats.total)
	stats.topPositive = topEmotions(positiveScores)
	stats.topNegative = topEmotions(negativeScores)
	return stats
}

// topEmotions ranks emotions by their mean over the rows that reported
// them, keeping the strongest few.
func topEmotions(scores map[string][]float64) []emotionMean {
	means := make([]emotionMean, 0, len(scores))
	for name, values := range scores {
		var sum float64
		for _, v := range values {
			sum += v
		}
		means = append(means, emotionMean{name: name, score: sum / float64(len(values))})
	}
	sort.Slice(means, func(i, j int) bool {
		if means[i].score != means[j].score {
			return means[i].score > means[j].score
		}
		return means[i].name < means[j].name
	})
	if len(means) > topEmotionCount {
		means = means[:topEmotionCount]
	}
	return means
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func buildPrompt(stats reportStats) string {
	var b strings.Builder
	b.WriteString("You are a data storyteller creating an engaging, scannable sentiment report.\n\n")
	b.WriteString("**DATA CONTEXT:**\n")
	fmt.Fprintf(&b, "Topic: %s | Source: %s | Posts: %d\n\n", stats.keyword, stats.source, stats.total)

	b.WriteString("Sentiment Distribution:\n")
	for _, label := range []string{"POSITIVE", "NEGATIVE", "NEUTRAL"} {
		count := stats.counts[label]
		pct := float64(count) / float64(stats.total) * 100
		fmt.Fprintf(&b, "- %s%s: %.1f%% (%d posts)\n", label[:1], strings.ToLower(label[1:]), pct, count)
	}
	fmt.Fprintf(&b, "Average scores: positive %.2f, negative %.2f, neutral %.2f\n", stats.avgPositive, stats.avgNegative, stats.avgNeutral)

	b.WriteString("\nEmotion Scores (0.00 to 1.00 scale):\n")
	b.WriteString("Positive Emotions:\n")
	writeEmotionLines(&b, stats.topPositive)
	b.WriteString("\nNegative Emotions:\n")
	writeEmotionLines(&b, stats.topNegative)

	b.WriteString("\nSample posts:\n")
	fmt.Fprintf(&b, "Positive: %s\n", sampleOrNA(stats.sampleByMood, "POSITIVE"))
	fmt.Fprintf(&b, "Negative: %s\n\n", sampleOrNA(stats.sampleByMood, "NEGATIVE"))

	b.WriteString(`**YOUR TASK:**
Write a concise, beautifully formatted sentiment report using proper Markdown.

**FORMAT REQUIREMENTS:**
1. Use **bold** for key terms and statistics
2. Keep paragraphs SHORT (2-3 sentences max)
3. Use line breaks for readability
4. Include exact percentages from the data
5. Be specific, not generic
6. Write in present tense
7. Total length: 400-600 words MAX

**STRUCTURE:**

## Sentiment Overview
[2-3 sentences max. State the dominant sentiment, key percentage, and one interesting insight]

## Emotion Breakdown
REQUIRED: Include the exact emotion scores from the data above, grouped
under **Positive Emotions:** and **Negative Emotions:** bullet lists, then
1-2 sentences explaining what these patterns reveal.

## What People Are Saying
[3-4 SHORT paragraphs. Each covers ONE specific theme. Use **bold** for theme names.]

## Positive Highlights
[2-3 sentences. What do people praise? Be specific.]

## Concerns & Critiques
[2-3 sentences. What are the main complaints? Be direct.]

## Key Insights
[Exactly 3 bullet points. Each bullet is ONE sentence. Start with action verbs.]

**STYLE GUIDE:**
- Friendly but professional tone
- Short, punchy sentences
- Avoid: "users express", "the data shows", "it appears that"
- Use specific numbers from the data provided
- DO NOT use emojis in the output

Begin writing now. Use proper Markdown formatting.`)
	return b.String()
}

func writeEmotionLines(b *strings.Builder, emotions []emotionMean) {
	if len(emotions) == 0 {
		b.WriteString("  - none recorded\n")
		return
	}
	for _, emotion := range emotions {
		fmt.Fprintf(b, "  - **%s**: %.2f\n", capitalize(emotion.name), emotion.score)
	}
}

func sampleOrNA(samples map[string]string, label string) string {
	if sample := strings.TrimSpace(samples[label]); sample != "" {
		return sample
	}
	return "N/A"
}

func capitalize(word string) string {
	if word == "" {
		return word
	}
	runes := []rune(word)
	return strings.ToUpper(string(runes[0])) + string(runes[1:])
}
