// Package providers selects between the two scraping providers and holds
// the failure vocabulary shared by their clients and the dispatch workers.
package providers

import (
	"errors"
	"fmt"
)

// Provider names. These double as the service tag on queue messages and the
// source prefix on tracking results.
const (
	BrightData = "brightdata"
	DataForSEO = "dataforseo"
)

var (
	// ErrAllProvidersDown means the latest probe round found no healthy
	// provider. Submission returns 503 and queues nothing.
	ErrAllProvidersDown = errors.New("all providers down")

	// ErrUpstreamFailed is a scrape the provider itself reported as failed,
	// or one that exhausted its polling budget. Not retryable.
	ErrUpstreamFailed = errors.New("upstream scrape failed")

	// ErrUpstreamEmpty is a completed scrape with zero results. Not
	// retryable.
	ErrUpstreamEmpty = errors.New("upstream returned no results")

	// ErrNoResponse marks a prompt the provider returned nothing for even
	// though the shard as a whole succeeded.
	ErrNoResponse = errors.New("no response for prompt")
)

// StatusError carries an upstream HTTP status so callers can classify
// retryability without string matching.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the status indicates a transient condition.
func (e *StatusError) Retryable() bool {
	return e.Code == 429 || e.Code >= 500
}
