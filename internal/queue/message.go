// Package queue carries shard messages between the submission side and the
// dispatcher workers over SQS, one queue per scraping provider.
package queue

import "github.com/google/uuid"

// ShardPrompt is one prompt job inside a shard message.
type ShardPrompt struct {
	PromptID       uuid.UUID `json:"prompt_id"`
	TrackingID     uuid.UUID `json:"tracking_id"`
	Text           string    `json:"text"`
	Country        string    `json:"country,omitempty"`
	BrandMentions  []string  `json:"brand_mentions"`
	DomainMentions []string  `json:"domain_mentions"`
}

// ShardMessage is the payload published once per shard. Nightly messages
// carry no job batch and no email; their results are inserted rather than
// updated.
type ShardMessage struct {
	Service      string        `json:"service"`
	UserID       uuid.UUID     `json:"user_id"`
	ProjectID    uuid.UUID     `json:"project_id"`
	JobBatchID   *uuid.UUID    `json:"job_batch_id,omitempty"`
	BatchNumber  int           `json:"batch_number"`
	TotalBatches int           `json:"total_batches"`
	Email        string        `json:"email,omitempty"`
	OpenAIKey    string        `json:"openai_key"`
	OpenAIModel  string        `json:"openai_model"`
	WebSearch    bool          `json:"web_search"`
	Country      string        `json:"country,omitempty"`
	Nightly      bool          `json:"nightly"`
	TaskID       string        `json:"task_id,omitempty"`
	Prompts      []ShardPrompt `json:"prompts"`
}
