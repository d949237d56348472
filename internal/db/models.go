package db

import (
	"encoding/json"
	"time"
)

// ContentItem maps pulse.content_items. One scraped unit; external_id is the
// dedup key, sentiment NULL means pending analysis.
type ContentItem struct {
	ContentItemID   int64           `gorm:"column:content_item_id;primaryKey;autoIncrement"`
	ContentItemUUID string          `gorm:"column:content_item_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	ExternalID      string          `gorm:"column:external_id;type:text;not null;unique"`
	Keyword         string          `gorm:"column:keyword;type:text;not null"`
	Source          string          `gorm:"column:source;type:text;not null"`
	Author          *string         `gorm:"column:author;type:text"`
	Body            string          `gorm:"column:body;type:text;not null"`
	Language        *string         `gorm:"column:language;type:text"`
	CreatedAt       time.Time       `gorm:"column:created_at;type:timestamptz;not null"`
	FetchedAt       time.Time       `gorm:"column:fetched_at;type:timestamptz;not null;default:now()"`
	URL             *string         `gorm:"column:url;type:text"`
	LikeCount       *int            `gorm:"column:like_count;type:integer"`
	ReplyCount      *int            `gorm:"column:reply_count;type:integer"`
	ReshareCount    *int            `gorm:"column:reshare_count;type:integer"`
	QuoteCount      *int            `gorm:"column:quote_count;type:integer"`
	Sentiment       json.RawMessage `gorm:"column:sentiment;type:jsonb"`
	AnalyzedAt      *time.Time      `gorm:"column:analyzed_at;type:timestamptz"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (ContentItem) TableName() string { return "pulse.content_items" }

// IngestRun maps pulse.ingest_runs. One row per real fetch cycle; cached and
// skipped outcomes do not open a run.
type IngestRun struct {
	RunID          int64      `gorm:"column:run_id;primaryKey;autoIncrement"`
	IngestRunUUID  string     `gorm:"column:ingest_run_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Keyword        string     `gorm:"column:keyword;type:text;not null"`
	Source         string     `gorm:"column:source;type:text;not null"`
	Status         string     `gorm:"column:status;type:pulse.ingest_run_status;not null;default:running"`
	RequestedLimit int        `gorm:"column:requested_limit;type:integer;not null;default:0"`
	ItemsFetched   int        `gorm:"column:items_fetched;type:integer;not null;default:0"`
	ItemsStored    int        `gorm:"column:items_stored;type:integer;not null;default:0"`
	ItemsAnalyzed  int        `gorm:"column:items_analyzed;type:integer;not null;default:0"`
	ExportPath     *string    `gorm:"column:export_path;type:text"`
	ErrorMessage   *string    `gorm:"column:error_message;type:text"`
	StartedAt      time.Time  `gorm:"column:started_at;type:timestamptz;not null;default:now()"`
	FinishedAt     *time.Time `gorm:"column:finished_at;type:timestamptz"`
	CreatedAt      time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (IngestRun) TableName() string { return "pulse.ingest_runs" }

func autoMigrateModels() []any {
	return []any{
		&ContentItem{},
		&IngestRun{},
	}
}
