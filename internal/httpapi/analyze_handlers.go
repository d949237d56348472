package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"horse.fit/pulse/internal/export"
	"horse.fit/pulse/internal/pipeline"
	"horse.fit/pulse/internal/report"
)

const maxAnalyzeLimit = 500

type analyzeRequest struct {
	Keyword string `json:"keyword"`
	Limit   int    `json:"limit"`
	Refresh bool   `json:"refresh"`
	Source  string `json:"source"`
	Engine  string `json:"engine"`
}

// analyzeResponse keeps the camelCase field names the dashboard consumes.
type analyzeResponse struct {
	Keyword         string     `json:"keyword"`
	StoredContent   int64      `json:"storedContent"`
	SampleSize      int        `json:"sampleSize"`
	LatestContentAt *time.Time `json:"latestContentAt"`
	Message         string     `json:"message"`
}

func analyzeResponseFrom(summary pipeline.KeywordSummary, message string) analyzeResponse {
	return analyzeResponse{
		Keyword:         summary.Keyword,
		StoredContent:   summary.TotalAnalyzed,
		SampleSize:      summary.SampleSize,
		LatestContentAt: summary.LatestCreatedAt,
		Message:         message,
	}
}

func (s *Server) validateAnalyzeRequest(req *analyzeRequest) map[string]string {
	fieldErrors := make(map[string]string)

	req.Keyword = strings.TrimSpace(req.Keyword)
	if req.Keyword == "" {
		fieldErrors["keyword"] = "is required"
	}
	if req.Limit < 0 || req.Limit > maxAnalyzeLimit {
		fieldErrors["limit"] = fmt.Sprintf("must be between 1 and %d", maxAnalyzeLimit)
	}

	req.Source = strings.TrimSpace(req.Source)
	if req.Source != "" && s.service != nil {
		if _, err := s.service.Sources().Fetcher(req.Source); err != nil {
			fieldErrors["source"] = err.Error()
		}
	}
	req.Engine = strings.TrimSpace(req.Engine)
	if req.Engine != "" && s.service != nil {
		if _, err := s.service.Engines().Engine(req.Engine); err != nil {
			fieldErrors["engine"] = err.Error()
		}
	}

	return fieldErrors
}

func (s *Server) runAnalysisIngest(ctx context.Context, req analyzeRequest, events func(pipeline.Event)) (pipeline.Outcome, error) {
	return s.service.Ingest(ctx, pipeline.IngestOptions{
		Keyword:     req.Keyword,
		Source:      req.Source,
		Limit:       req.Limit,
		IgnoreCache: true,
		Engine:      req.Engine,
		Events:      events,
	})
}

// handleAnalyze runs the blocking variant: optionally refresh, then report
// what is stored. A keyword with nothing analyzed yet forces one ingest so
// the first call on a new keyword returns data instead of zeros.
func (s *Server) handleAnalyze(c echo.Context) error {
	if s.service == nil {
		return internalError(c, "Pipeline is not configured")
	}

	var req analyzeRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	if fieldErrors := s.validateAnalyzeRequest(&req); len(fieldErrors) > 0 {
		return failValidation(c, fieldErrors)
	}

	ctx := c.Request().Context()

	message := ""
	if req.Refresh {
		outcome, err := s.runAnalysisIngest(ctx, req, nil)
		if err != nil {
			s.logger.Error().Err(err).Str("keyword", req.Keyword).Msg("analyze ingest failed")
			return internalError(c, "Ingestion failed: "+err.Error())
		}
		message = outcome.Message
	}

	summary, err := s.service.SummarizeKeyword(ctx, req.Keyword, req.Limit)
	if err != nil {
		s.logger.Error().Err(err).Str("keyword", req.Keyword).Msg("summarize keyword failed")
		return internalError(c, "Failed to read stored data")
	}

	if summary.TotalAnalyzed == 0 {
		outcome, runErr := s.runAnalysisIngest(ctx, req, nil)
		if runErr != nil {
			s.logger.Error().Err(runErr).Str("keyword", req.Keyword).Msg("analyze ingest failed")
			return internalError(c, "Ingestion failed: "+runErr.Error())
		}
		message = outcome.Message

		summary, err = s.service.SummarizeKeyword(ctx, req.Keyword, req.Limit)
		if err != nil {
			s.logger.Error().Err(err).Str("keyword", req.Keyword).Msg("summarize keyword failed")
			return internalError(c, "Failed to read stored data")
		}
	}

	if message == "" {
		message = storedMessage(summary)
	}
	return success(c, analyzeResponseFrom(summary, message))
}

func storedMessage(summary pipeline.KeywordSummary) string {
	return fmt.Sprintf("%d content entries currently stored for '%s'.", summary.TotalAnalyzed, summary.Keyword)
}

type streamEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type narrativePayload struct {
	Text        string `json:"text"`
	Keyword     string `json:"keyword"`
	CSVPath     string `json:"csvPath"`
	SummaryPath string `json:"summaryPath,omitempty"`
}

// eventStream writes newline-delimited JSON events and flushes after each
// one so clients see progress while the pipeline runs.
type eventStream struct {
	res *echo.Response
}

func (s *eventStream) send(event any) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	_, _ = s.res.Write(append(data, '\n'))
	s.res.Flush()
}

func (s *eventStream) Log(message string) {
	s.send(streamEvent{Type: "log", Message: message})
}

func (s *eventStream) Error(message string) {
	s.send(streamEvent{Type: "error", Message: message})
}

func (s *eventStream) Narrative(payload narrativePayload) {
	s.send(map[string]any{"type": "narrative", "message": payload})
}

func (s *eventStream) Summary(payload analyzeResponse) {
	s.send(map[string]any{"type": "summary", "payload": payload})
}

// handleAnalyzeStream runs the same flow as handleAnalyze but narrates it as
// an NDJSON event stream, then appends the sentiment report and, when a
// narrator is configured, a prose summary. A pipeline failure ends the
// stream with an error event; report and narrative failures only log.
func (s *Server) handleAnalyzeStream(c echo.Context) error {
	if s.service == nil {
		return internalError(c, "Pipeline is not configured")
	}

	var req analyzeRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	if fieldErrors := s.validateAnalyzeRequest(&req); len(fieldErrors) > 0 {
		return failValidation(c, fieldErrors)
	}

	ctx := c.Request().Context()
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "application/x-ndjson")
	res.WriteHeader(http.StatusOK)

	// Ingest runs can outlive the server write timeout; lift it for this
	// response.
	if err := http.NewResponseController(res).SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug().Err(err).Msg("could not clear stream write deadline")
	}

	stream := &eventStream{res: res}
	stream.Log(fmt.Sprintf("Checking stored data for '%s'...", req.Keyword))

	summary, err := s.service.SummarizeKeyword(ctx, req.Keyword, req.Limit)
	if err != nil {
		stream.Error("Failed to read stored data: " + err.Error())
		return nil
	}

	needsRefresh := req.Refresh || summary.TotalAnalyzed == 0
	message := ""
	if needsRefresh {
		stream.Log(fmt.Sprintf("Fetching fresh content for '%s'...", req.Keyword))
		outcome, runErr := s.runAnalysisIngest(ctx, req, func(ev pipeline.Event) {
			stream.Log(fmt.Sprintf("[%s] %s", ev.Stage, ev.Message))
		})
		if runErr != nil {
			stream.Error("Pipeline run failed: " + runErr.Error())
			return nil
		}
		message = outcome.Message

		summary, err = s.service.SummarizeKeyword(ctx, req.Keyword, req.Limit)
		if err != nil {
			stream.Error("Failed to read stored data: " + err.Error())
			return nil
		}
	}

	reportPath := ""
	if summary.TotalAnalyzed > 0 || needsRefresh {
		stream.Log("Generating combined sentiment CSV...")
		path, stats, reportErr := report.Write(ctx, s.dataStore(), req.Keyword, s.opts.ReportDir)
		switch {
		case errors.Is(reportErr, report.ErrNoAnalyzedItems):
			stream.Log("[report] Failed to generate sentiment CSV (no analyzed posts).")
		case reportErr != nil:
			s.logger.Error().Err(reportErr).Str("keyword", req.Keyword).Msg("sentiment report failed")
			stream.Log("[report] Failed to generate sentiment CSV: " + reportErr.Error())
		default:
			reportPath = path
			stream.Log(fmt.Sprintf("[report] Wrote %d analyzed posts to %s.", stats.Total, filepath.Base(path)))
		}
	}

	if reportPath != "" {
		if s.narrator != nil {
			s.streamNarrative(ctx, stream, req.Keyword, reportPath)
		} else {
			stream.Log("Narrative summary skipped (no summary credentials configured).")
		}
	}

	if message == "" {
		message = storedMessage(summary)
	}
	stream.Summary(analyzeResponseFrom(summary, message))
	return nil
}

func (s *Server) streamNarrative(ctx context.Context, stream *eventStream, keyword, reportPath string) {
	stream.Log(fmt.Sprintf("Generating narrative summary with %s...", s.narrator.ModelName()))

	text, err := s.narrator.Summarize(ctx, reportPath)
	if err != nil {
		s.logger.Error().Err(err).Str("keyword", keyword).Msg("narrative summary failed")
		stream.Log("[narrative] Failed to generate summary: " + err.Error())
		return
	}

	summaryPath := filepath.Join(s.opts.ReportDir, "summary_"+export.Slug(keyword)+".txt")
	if writeErr := os.WriteFile(summaryPath, []byte(text), 0o644); writeErr != nil {
		s.logger.Warn().Err(writeErr).Str("path", summaryPath).Msg("write narrative summary failed")
		summaryPath = ""
	}

	stream.Narrative(narrativePayload{
		Text:        text,
		Keyword:     keyword,
		CSVPath:     reportPath,
		SummaryPath: summaryPath,
	})
}
