package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"horse.fit/pulse/internal/db"
	"horse.fit/pulse/internal/globaltime"
	"horse.fit/pulse/internal/reader"
)

const (
	defaultItemPageSize = 50
	maxItemPageSize     = 500

	defaultPreviewChars = 1000
	minPreviewChars     = 200
	maxPreviewChars     = 4000
)

// contentItemView mirrors db.ContentItem for JSON responses. The model only
// carries gorm tags, so the wire shape lives here.
type contentItemView struct {
	ContentItemUUID string          `json:"content_item_uuid"`
	ExternalID      string          `json:"external_id"`
	Keyword         string          `json:"keyword"`
	Source          string          `json:"source"`
	Author          *string         `json:"author,omitempty"`
	Body            string          `json:"body"`
	Language        *string         `json:"language,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	FetchedAt       time.Time       `json:"fetched_at"`
	URL             *string         `json:"url,omitempty"`
	LikeCount       *int            `json:"like_count,omitempty"`
	ReplyCount      *int            `json:"reply_count,omitempty"`
	ReshareCount    *int            `json:"reshare_count,omitempty"`
	QuoteCount      *int            `json:"quote_count,omitempty"`
	Sentiment       json.RawMessage `json:"sentiment,omitempty"`
	AnalyzedAt      *time.Time      `json:"analyzed_at,omitempty"`
}

type ingestRunView struct {
	IngestRunUUID  string     `json:"ingest_run_uuid"`
	Keyword        string     `json:"keyword"`
	Source         string     `json:"source"`
	Status         string     `json:"status"`
	RequestedLimit int        `json:"requested_limit"`
	ItemsFetched   int        `json:"items_fetched"`
	ItemsStored    int        `json:"items_stored"`
	ItemsAnalyzed  int        `json:"items_analyzed"`
	ExportPath     *string    `json:"export_path,omitempty"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

type statsResponse struct {
	Stats      *db.PipelineStats `json:"stats"`
	RecentRuns []ingestRunView   `json:"recent_runs"`
}

type itemPreviewResponse struct {
	ContentItemUUID string `json:"content_item_uuid"`
	PreviewText     string `json:"preview_text"`
	Source          string `json:"source"`
	CharCount       int    `json:"char_count"`
	Truncated       bool   `json:"truncated"`
	PreviewError    string `json:"preview_error,omitempty"`
}

func contentItemViewFrom(item db.ContentItem) contentItemView {
	return contentItemView{
		ContentItemUUID: item.ContentItemUUID,
		ExternalID:      item.ExternalID,
		Keyword:         item.Keyword,
		Source:          item.Source,
		Author:          item.Author,
		Body:            item.Body,
		Language:        item.Language,
		CreatedAt:       item.CreatedAt,
		FetchedAt:       item.FetchedAt,
		URL:             item.URL,
		LikeCount:       item.LikeCount,
		ReplyCount:      item.ReplyCount,
		ReshareCount:    item.ReshareCount,
		QuoteCount:      item.QuoteCount,
		Sentiment:       item.Sentiment,
		AnalyzedAt:      item.AnalyzedAt,
	}
}

func ingestRunViews(runs []db.IngestRun) []ingestRunView {
	views := make([]ingestRunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, ingestRunView{
			IngestRunUUID:  run.IngestRunUUID,
			Keyword:        run.Keyword,
			Source:         run.Source,
			Status:         run.Status,
			RequestedLimit: run.RequestedLimit,
			ItemsFetched:   run.ItemsFetched,
			ItemsStored:    run.ItemsStored,
			ItemsAnalyzed:  run.ItemsAnalyzed,
			ExportPath:     run.ExportPath,
			ErrorMessage:   run.ErrorMessage,
			StartedAt:      run.StartedAt,
			FinishedAt:     run.FinishedAt,
		})
	}
	return views
}

func (s *Server) handleStats(c echo.Context) error {
	store := s.dataStore()
	if store == nil {
		return internalError(c, "Storage is not configured")
	}

	runCount, err := parsePositiveInt(c.QueryParam("runs"), 5, 1, 50)
	if err != nil {
		return failValidation(c, map[string]string{"runs": err.Error()})
	}

	ctx := c.Request().Context()
	now := globaltime.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	stats, err := store.QueryPipelineStats(ctx, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		s.logger.Error().Err(err).Msg("query pipeline stats failed")
		return internalError(c, "Failed to load stats")
	}

	runs, err := store.ListRecentIngestRuns(ctx, runCount)
	if err != nil {
		s.logger.Error().Err(err).Msg("query recent ingest runs failed")
		return internalError(c, "Failed to load stats")
	}

	return success(c, statsResponse{Stats: stats, RecentRuns: ingestRunViews(runs)})
}

func (s *Server) handleKeywords(c echo.Context) error {
	store := s.dataStore()
	if store == nil {
		return internalError(c, "Storage is not configured")
	}

	rows, err := store.ListKeywordsWithCounts(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query keyword counts failed")
		return internalError(c, "Failed to load keywords")
	}

	return success(c, map[string]any{
		"items": rows,
	})
}

func (s *Server) handleKeywordSummary(c echo.Context) error {
	if s.service == nil {
		return internalError(c, "Pipeline is not configured")
	}

	keyword := strings.TrimSpace(c.Param("keyword"))
	if keyword == "" {
		return failValidation(c, map[string]string{"keyword": "is required"})
	}

	limit, err := parsePositiveInt(c.QueryParam("limit"), 0, 1, maxAnalyzeLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	summary, err := s.service.SummarizeKeyword(c.Request().Context(), keyword, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("keyword", keyword).Msg("summarize keyword failed")
		return internalError(c, "Failed to summarize keyword")
	}

	return success(c, summary)
}

func (s *Server) handleItems(c echo.Context) error {
	store := s.dataStore()
	if store == nil {
		return internalError(c, "Storage is not configured")
	}

	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultItemPageSize, 1, maxItemPageSize)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	status := strings.TrimSpace(strings.ToLower(c.QueryParam("status")))
	switch status {
	case "", "pending", "analyzed":
	default:
		return failValidation(c, map[string]string{"status": "must be pending or analyzed"})
	}

	opts := db.ContentListOptions{
		Keyword:  strings.TrimSpace(c.QueryParam("keyword")),
		Status:   status,
		Contains: strings.TrimSpace(c.QueryParam("contains")),
		Limit:    limit,
	}

	items, err := store.ListContentItems(c.Request().Context(), opts)
	if err != nil {
		s.logger.Error().Err(err).Msg("list content items failed")
		return internalError(c, "Failed to load content items")
	}

	views := make([]contentItemView, 0, len(items))
	for _, item := range items {
		views = append(views, contentItemViewFrom(item))
	}

	return success(c, map[string]any{
		"items": views,
		"filters": map[string]any{
			"keyword":  opts.Keyword,
			"status":   opts.Status,
			"contains": opts.Contains,
			"limit":    limit,
		},
	})
}

func (s *Server) handleItemPreview(c echo.Context) error {
	store := s.dataStore()
	if store == nil {
		return internalError(c, "Storage is not configured")
	}

	itemUUID := strings.TrimSpace(c.Param("content_item_uuid"))
	if itemUUID == "" {
		return failValidation(c, map[string]string{"content_item_uuid": "is required"})
	}

	maxChars, err := parsePositiveInt(c.QueryParam("max_chars"), defaultPreviewChars, minPreviewChars, maxPreviewChars)
	if err != nil {
		return failValidation(c, map[string]string{"max_chars": err.Error()})
	}

	ctx := c.Request().Context()
	item, err := store.GetContentItemByUUID(ctx, itemUUID)
	if err != nil {
		if db.IsNoRows(err) {
			return failNotFound(c, "Content item not found")
		}
		s.logger.Error().Err(err).Str("content_item_uuid", itemUUID).Msg("load content item failed")
		return internalError(c, "Failed to load content item")
	}

	itemURL := strings.TrimSpace(derefString(item.URL))
	if itemURL == "" {
		return fail(c, http.StatusPreconditionFailed, "Content item has no source URL", nil)
	}

	text, previewErr := reader.Preview(ctx, itemURL, reader.Options{})
	source := "reader"
	if previewErr != nil {
		s.logger.Warn().Err(previewErr).Str("url", itemURL).Msg("reader preview failed, falling back to stored body")
		text = reader.CleanText(item.Body)
		source = "body"
	}
	if strings.TrimSpace(text) == "" {
		return failNotFound(c, "No preview text available")
	}

	preview, truncated := reader.TruncateText(text, maxChars)
	resp := itemPreviewResponse{
		ContentItemUUID: item.ContentItemUUID,
		PreviewText:     preview,
		Source:          source,
		CharCount:       utf8.RuneCountInString(preview),
		Truncated:       truncated,
	}
	if previewErr != nil {
		resp.PreviewError = previewErr.Error()
	}
	return success(c, resp)
}
