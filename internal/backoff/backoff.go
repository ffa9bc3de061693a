// Package backoff wraps retry-go with the pipeline's two delay policies:
// generic failures back off from 1s doubling to a 10s cap, rate-limited
// failures from 2s doubling to a 30s cap. Both are bounded to 5 attempts.
package backoff

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
)

// ErrRateLimited marks an upstream 429. Wrap it so Do can pick the slower
// delay curve: fmt.Errorf("%w: ...", backoff.ErrRateLimited).
var ErrRateLimited = errors.New("rate limited")

// ErrPermanent marks a failure retrying cannot fix. Do gives up on it
// immediately instead of burning the remaining attempts.
var ErrPermanent = errors.New("permanent failure")

const (
	maxAttempts      = 5
	genericBase      = 1 * time.Second
	genericLimit     = 10 * time.Second
	rateLimitedBase  = 2 * time.Second
	rateLimitedLimit = 30 * time.Second
)

// Do runs op with bounded exponential backoff. The delay after each failure
// depends on the failure itself: rate-limited errors wait longer.
func Do(ctx context.Context, op func() error) error {
	return retry.Do(op,
		retry.Context(ctx),
		retry.Attempts(maxAttempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrPermanent)
		}),
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			base, limit := genericBase, genericLimit
			if errors.Is(err, ErrRateLimited) {
				base, limit = rateLimitedBase, rateLimitedLimit
			}
			d := base << n
			if d > limit || d <= 0 {
				return limit
			}
			return d
		}),
	)
}
