package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"PULSE_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"PULSE_DB_MAX_CONNS" default:"8"`

	ExportDir       string        `envconfig:"EXPORT_DIR" default:"data/exports"`
	ExportFreshness time.Duration `envconfig:"EXPORT_FRESHNESS" default:"10m"`
	ReportDir       string        `envconfig:"REPORT_DIR" default:"data/reports"`

	FetchLimit     int     `envconfig:"SCRAPE_LIMIT" default:"100"`
	BatchSize      int     `envconfig:"ANALYSIS_BATCH_SIZE" default:"8"`
	MinProbability float64 `envconfig:"MIN_PROBABILITY" default:"0.05"`

	SentimentEngine   string `envconfig:"SENTIMENT_ENGINE" default:"lexicon"`
	SentimentEndpoint string `envconfig:"SENTIMENT_ENDPOINT" default:""`
	SentimentModel    string `envconfig:"SENTIMENT_MODEL" default:"pulse-sentiment-v1"`

	RedditBaseURL   string `envconfig:"REDDIT_BASE_URL" default:"https://www.reddit.com"`
	RedditUserAgent string `envconfig:"REDDIT_USER_AGENT" default:"pulse/1.0 (content research)"`

	FacebookBaseURL     string `envconfig:"FACEBOOK_BASE_URL" default:"https://graph.facebook.com/v22.0"`
	FacebookAccessToken string `envconfig:"FACEBOOK_ACCESS_TOKEN" default:""`
	FacebookPageID      string `envconfig:"FACEBOOK_PAGE_ID" default:""`

	RSSFeeds string `envconfig:"RSS_FEEDS" default:""`

	SummaryEndpoint string `envconfig:"SUMMARY_ENDPOINT" default:""`
	SummaryAPIKey   string `envconfig:"SUMMARY_API_KEY" default:""`
	SummaryModel    string `envconfig:"SUMMARY_MODEL" default:"gpt-4o-mini"`

	APITokenHash       string `envconfig:"API_TOKEN_HASH" default:""`
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("PULSE_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("PULSE_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("PULSE_DB_MIN_CONNS (%d) cannot exceed PULSE_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if strings.TrimSpace(c.ExportDir) == "" {
		return fmt.Errorf("EXPORT_DIR is required")
	}
	if c.ExportFreshness <= 0 {
		return fmt.Errorf("EXPORT_FRESHNESS must be positive")
	}
	if c.FetchLimit < 1 {
		return fmt.Errorf("SCRAPE_LIMIT must be >= 1")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("ANALYSIS_BATCH_SIZE must be >= 1")
	}
	if c.MinProbability < 0 || c.MinProbability >= 1 {
		return fmt.Errorf("MIN_PROBABILITY must be in [0, 1)")
	}
	return nil
}

func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		if _, exists := seen[origin]; exists {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	return origins
}

// RSSFeedList splits RSS_FEEDS into trimmed, de-duplicated URLs.
func (c *Config) RSSFeedList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.RSSFeeds, ",")
	feeds := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		feed := strings.TrimSpace(part)
		if feed == "" {
			continue
		}
		if _, exists := seen[feed]; exists {
			continue
		}
		seen[feed] = struct{}{}
		feeds = append(feeds, feed)
	}
	return feeds
}
