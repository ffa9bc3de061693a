package llm

import "errors"

// Sentinel errors for key validation. Handlers map these to 400-level
// responses; everything else is treated as an upstream outage.
var (
	ErrAuthFailed          = errors.New("openai key rejected")
	ErrQuotaExceeded       = errors.New("openai quota exceeded")
	ErrModelForbidden      = errors.New("openai model forbidden for this key")
	ErrModelNotFound       = errors.New("openai model not found")
	ErrUpstreamUnavailable = errors.New("openai unavailable")
)
