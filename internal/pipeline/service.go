// Package pipeline coordinates the keyword research flow: fetching content,
// persisting it, scheduling sentiment analysis, and keeping exports current.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/pulse/internal/db"
	"horse.fit/pulse/internal/export"
	"horse.fit/pulse/internal/sentiment"
	"horse.fit/pulse/internal/source"
)

// ContentStore is the slice of the database layer the pipeline needs.
// *db.Pool implements it.
type ContentStore interface {
	InsertContentItems(ctx context.Context, items []db.ContentItem) (int64, error)
	ListPendingItems(ctx context.Context, keyword string, limit int) ([]db.ContentItem, error)
	ListAnalyzedItems(ctx context.Context, keyword string, limit int) ([]db.ContentItem, error)
	CountAnalyzedItems(ctx context.Context, keyword string) (int64, error)
	AttachSentiment(ctx context.Context, contentItemID int64, payload []byte, analyzedAt time.Time) error
	ListItemsByExternalIDs(ctx context.Context, externalIDs []string) ([]db.ContentItem, error)
	InsertIngestRun(ctx context.Context, params db.IngestRunParams) (int64, error)
	CompleteIngestRun(ctx context.Context, runID int64, counts db.IngestRunCounts, exportPath string, finishedAt time.Time) error
	FailIngestRun(ctx context.Context, runID int64, counts db.IngestRunCounts, runErr error, finishedAt time.Time) error
}

// Service runs the pipeline end to end for CLI and HTTP callers.
type Service struct {
	store          ContentStore
	engines        *sentiment.Registry
	sources        *source.Registry
	exports        *export.Manager
	minProbability float64
	logger         zerolog.Logger
}

func NewService(
	store ContentStore,
	engines *sentiment.Registry,
	sources *source.Registry,
	exports *export.Manager,
	minProbability float64,
	logger zerolog.Logger,
) *Service {
	if minProbability < 0 {
		minProbability = sentiment.DefaultMinProbability
	}
	return &Service{
		store:          store,
		engines:        engines,
		sources:        sources,
		exports:        exports,
		minProbability: minProbability,
		logger:         logger,
	}
}

// Exports exposes the export manager for callers that resolve export paths
// directly.
func (s *Service) Exports() *export.Manager {
	if s == nil {
		return nil
	}
	return s.exports
}

// Sources exposes the fetcher registry for callers that list source names.
func (s *Service) Sources() *source.Registry {
	if s == nil {
		return nil
	}
	return s.sources
}

// Engines exposes the engine registry for callers that list engine names.
func (s *Service) Engines() *sentiment.Registry {
	if s == nil {
		return nil
	}
	return s.engines
}
