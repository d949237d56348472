// Package httpapi serves the pipeline over HTTP: stored content and keyword
// queries, pipeline statistics, and on-demand analysis runs with NDJSON
// progress streaming.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/pulse/internal/auth"
	"horse.fit/pulse/internal/db"
	"horse.fit/pulse/internal/narrative"
	"horse.fit/pulse/internal/pipeline"
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// CORSOrigins restricts cross-origin callers; empty allows any origin.
	CORSOrigins []string
	// APITokenHash, when set, gates /api/v1 behind a bearer token that must
	// verify against this bcrypt hash. /healthz stays open.
	APITokenHash string
	// ReportDir is where analysis streams write sentiment CSVs and narrative
	// summaries.
	ReportDir string
}

type Server struct {
	pool     *db.Pool
	service  *pipeline.Service
	narrator *narrative.Summarizer
	logger   zerolog.Logger
	opts     Options

	// store overrides the pool-backed data store in tests.
	store apiStore
}

// apiStore is the slice of the database layer the HTTP handlers need.
// *db.Pool implements it.
type apiStore interface {
	ListContentItems(ctx context.Context, opts db.ContentListOptions) ([]db.ContentItem, error)
	ListKeywordsWithCounts(ctx context.Context) ([]db.KeywordCount, error)
	GetContentItemByUUID(ctx context.Context, itemUUID string) (*db.ContentItem, error)
	ListAnalyzedItems(ctx context.Context, keyword string, limit int) ([]db.ContentItem, error)
	QueryPipelineStats(ctx context.Context, dayStart, dayEnd time.Time) (*db.PipelineStats, error)
	ListRecentIngestRuns(ctx context.Context, limit int) ([]db.IngestRun, error)
}

func (s *Server) dataStore() apiStore {
	if s == nil {
		return nil
	}
	if s.store != nil {
		return s.store
	}
	if s.pool == nil {
		return nil
	}
	return s.pool
}

// NewServer wires the HTTP layer. narrator may be nil when no summary
// credentials are configured; the analysis stream then skips the narrative
// step.
func NewServer(pool *db.Pool, service *pipeline.Service, narrator *narrative.Summarizer, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	reportDir := strings.TrimSpace(opts.ReportDir)
	if reportDir == "" {
		reportDir = "data/reports"
	}

	return &Server{
		pool:     pool,
		service:  service,
		narrator: narrator,
		logger:   logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			CORSOrigins:     opts.CORSOrigins,
			APITokenHash:    strings.TrimSpace(opts.APITokenHash),
			ReportDir:       reportDir,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	corsOrigins := s.opts.CORSOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: corsOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	e.GET("/healthz", s.handleHealthz)

	api := e.Group("/api/v1")
	if s.opts.APITokenHash != "" {
		api.Use(s.requireToken())
	}
	api.GET("/stats", s.handleStats)
	api.GET("/keywords", s.handleKeywords)
	api.GET("/keywords/:keyword/summary", s.handleKeywordSummary)
	api.GET("/items", s.handleItems)
	api.GET("/items/:content_item_uuid/preview", s.handleItemPreview)
	api.POST("/analyze", s.handleAnalyze)
	api.POST("/analyze/stream", s.handleAnalyzeStream)

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("pulse api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("pulse api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	isAPI := strings.HasPrefix(c.Request().URL.Path, "/api/")
	if isAPI {
		if status >= 500 {
			_ = internalError(c, "Internal server error")
			return
		}
		_ = fail(c, status, message, nil)
		return
	}

	_ = c.String(status, message)
}

func (s *Server) requireToken() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || !auth.VerifyToken(token, s.opts.APITokenHash) {
				return fail(c, http.StatusUnauthorized, "Authentication required", nil)
			}
			return next(c)
		}
	}
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSONBody(c echo.Context, target any) error {
	if err := json.NewDecoder(c.Request().Body).Decode(target); err != nil {
		return fmt.Errorf("must be valid JSON")
	}
	return nil
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
