package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ResultStatusPending    = "pending"
	ResultStatusProcessing = "processing"
	ResultStatusFulfilled  = "fulfilled"
	ResultStatusFailed     = "failed"
)

// Source values recorded on a TrackingResult. The -nightly variants mark rows
// inserted by the scheduler rather than updated from a pending stub.
const (
	SourceBrightData        = "brightdata"
	SourceDataForSEO        = "dataforseo"
	SourceBrightDataNightly = "brightdata-nightly"
	SourceDataForSEONightly = "dataforseo-nightly"
)

// Citation is one cited source attached to a scraped answer. URL is stored
// with scheme, www., query and fragment stripped; Domain is the bare host.
type Citation struct {
	Title  string `json:"title"`
	Domain string `json:"domain"`
	URL    string `json:"url"`
}

// MonthlyTrend is one month of AI search volume for a prompt.
type MonthlyTrend struct {
	Year   int `json:"year"`
	Month  int `json:"month"`
	Volume int `json:"volume"`
}

// TrackingResult is one prompt's outcome within a submission. Score fields
// are nil until the row reaches fulfilled; a fulfilled row is never
// downgraded by late failure callbacks.
type TrackingResult struct {
	ID                 uuid.UUID      `db:"id"                     json:"id"`
	PromptID           uuid.UUID      `db:"prompt_id"              json:"prompt_id"`
	Prompt             string         `db:"prompt"                 json:"prompt"`
	ProjectID          uuid.UUID      `db:"project_id"             json:"project_id"`
	UserID             uuid.UUID      `db:"user_id"                json:"user_id"`
	JobBatchID         *uuid.UUID     `db:"job_batch_id"           json:"job_batch_id,omitempty"`
	BatchNumber        int            `db:"batch_number"           json:"batch_number"`
	ExternalTaskID     *string        `db:"external_task_id"       json:"external_task_id,omitempty"`
	Status             string         `db:"status"                 json:"status"`
	IsPresent          *bool          `db:"is_present"             json:"is_present,omitempty"`
	IsDomainPresent    *bool          `db:"is_domain_present"      json:"is_domain_present,omitempty"`
	Sentiment          *int           `db:"sentiment"              json:"sentiment,omitempty"`
	Salience           *int           `db:"salience"               json:"salience,omitempty"`
	Response           []byte         `db:"response"               json:"response,omitempty"`
	Citations          []Citation     `db:"citations"              json:"citations,omitempty"`
	MentionCount       *int           `db:"mention_count"          json:"mention_count,omitempty"`
	DomainMentionCount *int           `db:"domain_mention_count"   json:"domain_mention_count,omitempty"`
	WebSearch          bool           `db:"web_search"             json:"web_search"`
	LCP                *int           `db:"lcp"                    json:"lcp,omitempty"`
	Actionability      *int           `db:"actionability"          json:"actionability,omitempty"`
	Intent             *string        `db:"intent_classification"  json:"intent_classification,omitempty"`
	SERPFeatures       map[string]int `db:"serp"                   json:"serp,omitempty"`
	AISearchVolume     *int           `db:"ai_search_volume"       json:"ai_search_volume,omitempty"`
	AIMonthlyTrends    []MonthlyTrend `db:"ai_monthly_trends"      json:"ai_monthly_trends,omitempty"`
	AIVolumeFetchedAt  *time.Time     `db:"ai_volume_fetched_at"   json:"ai_volume_fetched_at,omitempty"`
	AIVolumeLocation   *int           `db:"ai_volume_location_code" json:"ai_volume_location_code,omitempty"`
	Timestamp          int64          `db:"timestamp"              json:"timestamp"`
	Source             string         `db:"source"                 json:"source"`
	CreatedAt          time.Time      `db:"created_at"             json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"             json:"updated_at"`
}
