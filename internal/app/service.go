package app

import (
	"fmt"

	"github.com/rs/zerolog"

	"horse.fit/pulse/internal/config"
	"horse.fit/pulse/internal/db"
	"horse.fit/pulse/internal/export"
	"horse.fit/pulse/internal/pipeline"
	"horse.fit/pulse/internal/sentiment"
	"horse.fit/pulse/internal/source"
)

// buildPipelineService wires the registries and export manager for one
// command invocation. Serve uses the same wiring for the API server.
func buildPipelineService(cfg *config.Config, pool *db.Pool, logger zerolog.Logger) (*pipeline.Service, error) {
	engines, err := sentiment.NewRegistryFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure sentiment engines: %w", err)
	}
	sources, err := source.NewRegistryFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure content sources: %w", err)
	}
	exports := export.NewManager(cfg.ExportDir, cfg.ExportFreshness)
	return pipeline.NewService(pool, engines, sources, exports, cfg.MinProbability, logger), nil
}
