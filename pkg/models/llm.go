package models

import "context"

// LLMClient is the interface for the generative model used during submission
// validation and enrichment. Never call a vendor SDK directly from the
// pipeline — always inject this interface. A client is built per queue
// message from the key carried in the payload and is never shared.
type LLMClient interface {
	// ValidateKey issues a minimal completion to prove the key and model work.
	ValidateKey(ctx context.Context) error
	// Sentiment scores brand sentiment 0-100 for the given answer text.
	Sentiment(ctx context.Context, brand, text string) (int, error)
	// Salience scores brand prominence 0-100 for the given answer text.
	Salience(ctx context.Context, brand, text string) (int, error)
	// Model returns the model name the client was built with.
	Model() string
}

// VolumeData is the aggregated AI search volume for a single prompt. A nil
// *VolumeData element means the lookup failed for that prompt; a zero-volume
// VolumeData is a valid result and is never coerced to nil.
type VolumeData struct {
	Keyword       string         `json:"keyword"`
	CurrentVolume int            `json:"current_volume"`
	MonthlyTrends []MonthlyTrend `json:"monthly_trends"`
	AverageVolume int            `json:"average_volume"`
	PeakVolume    int            `json:"peak_volume"`
	LocationCode  int            `json:"location_code"`
}
