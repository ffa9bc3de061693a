package models

import (
	"time"

	"github.com/google/uuid"
)

// Scheduler cadences a project can opt into. A nil SchedulerFrequency on a
// Project means the nightly scheduler skips it.
const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// Project owns prompts and carries the nightly re-run cadence.
type Project struct {
	ID                 uuid.UUID  `db:"id"                   json:"id"`
	UserID             uuid.UUID  `db:"user_id"              json:"user_id"`
	Name               string     `db:"name"                 json:"name"`
	SchedulerFrequency *string    `db:"scheduler_frequency"  json:"scheduler_frequency,omitempty"`
	LastNightlyRunAt   *time.Time `db:"last_nightly_run_at"  json:"last_nightly_run_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at"           json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"           json:"updated_at"`
}

// Prompt is a tracked query. BrandMentions and DomainMentions are ordered;
// order is preserved through storage and enrichment.
type Prompt struct {
	ID             uuid.UUID `db:"id"              json:"id"`
	ProjectID      uuid.UUID `db:"project_id"      json:"project_id"`
	UserID         uuid.UUID `db:"user_id"         json:"user_id"`
	Text           string    `db:"text"            json:"text"`
	Enabled        bool      `db:"enabled"         json:"enabled"`
	BrandMentions  []string  `db:"brand_mentions"  json:"brand_mentions"`
	DomainMentions []string  `db:"domain_mentions" json:"domain_mentions"`
	Country        string    `db:"country"         json:"country,omitempty"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"      json:"updated_at"`
}

// Tag labels prompts within a project. Names are matched case-insensitively
// within the project scope on upsert.
type Tag struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	ProjectID uuid.UUID `db:"project_id" json:"project_id"`
	Name      string    `db:"name"       json:"name"`
	Color     string    `db:"color"      json:"color"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DefaultTagColor is assigned when a tag is created implicitly by enqueue.
const DefaultTagColor = "#6366f1"

// UserSettings carries per-user credentials consumed by the nightly path.
type UserSettings struct {
	UserID      uuid.UUID `db:"user_id"      json:"user_id"`
	OpenAIKey   string    `db:"openai_key"   json:"-"`
	OpenAIModel string    `db:"openai_model" json:"openai_model"`
	UpdatedAt   time.Time `db:"updated_at"   json:"updated_at"`
}
