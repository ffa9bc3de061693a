// Package models contains shared data models used across the rank tracker codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	BatchStatusPending             = "pending"
	BatchStatusProcessing          = "processing"
	BatchStatusCompleted           = "completed"
	BatchStatusCompletedWithErrors = "completed_with_errors"
	BatchStatusFailed              = "failed"
)

// JobBatch is the aggregate tracking a single API submission. Its counters
// are advanced by the dispatcher workers as shards finish; the worker whose
// increment closes the sum writes the terminal status.
type JobBatch struct {
	ID               uuid.UUID  `db:"id"                json:"id"`
	UserID           uuid.UUID  `db:"user_id"           json:"user_id"`
	ProjectID        uuid.UUID  `db:"project_id"        json:"project_id"`
	Email            string     `db:"email"             json:"email"`
	TotalPrompts     int        `db:"total_prompts"     json:"total_prompts"`
	TotalBatches     int        `db:"total_batches"     json:"total_batches"`
	CompletedBatches int        `db:"completed_batches" json:"completed_batches"`
	FailedBatches    int        `db:"failed_batches"    json:"failed_batches"`
	Status           string     `db:"status"            json:"status"`
	OpenAIKey        string     `db:"openai_key"        json:"-"`
	OpenAIModel      string     `db:"openai_model"      json:"openai_model"`
	WebSearch        bool       `db:"web_search"        json:"web_search"`
	Country          string     `db:"country"           json:"country,omitempty"`
	BrandMentions    []string   `db:"brand_mentions"    json:"brand_mentions"`
	DomainMentions   []string   `db:"domain_mentions"   json:"domain_mentions"`
	Tags             []string   `db:"tags"              json:"tags,omitempty"`
	ErrorMessage     *string    `db:"error_message"     json:"error_message,omitempty"`
	CompletedAt      *time.Time `db:"completed_at"      json:"completed_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at"        json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"        json:"updated_at"`
}

// Terminal reports whether status is one of the terminal batch states.
func (b *JobBatch) Terminal() bool {
	return TerminalBatchStatus(b.Status)
}

func TerminalBatchStatus(status string) bool {
	switch status {
	case BatchStatusCompleted, BatchStatusCompletedWithErrors, BatchStatusFailed:
		return true
	}
	return false
}
