// Package llm talks to the generative model used for submission validation
// and for the two LLM-driven enrichment scores. Clients are built per queue
// message from the key carried in the payload.
package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/backoff"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

// Score prompts are part of the binary contract: changing a rubric changes
// the score distribution, so any edit must bump these names.
const (
	sentimentRubricV1 = "You are a brand sentiment rater. Rate the sentiment toward the brand %q " +
		"in the following text on a scale from 0 (extremely negative) to 100 (extremely positive), " +
		"where 50 is neutral. Respond with only the integer.\n\nText:\n%s"
	salienceRubricV1 = "You are a brand salience rater. Rate how prominently the brand %q features " +
		"in the following text on a scale from 0 (not mentioned or incidental) to 100 (the central subject). " +
		"Respond with only the integer.\n\nText:\n%s"
)

var firstInt = regexp.MustCompile(`\d+`)

// OpenAIClient implements models.LLMClient using the official OpenAI SDK.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates a client bound to one API key and model.
func NewOpenAIClient(apiKey, model string, opts ...option.RequestOption) *OpenAIClient {
	allOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIClient{
		client: openai.NewClient(allOpts...),
		model:  model,
	}
}

func (c *OpenAIClient) Model() string { return c.model }

// ValidateKey issues a 1-token probe and maps the provider's refusal modes
// to sentinel errors.
func (c *OpenAIClient) ValidateKey(ctx context.Context) error {
	_, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("ping"),
		},
		MaxTokens: openai.Int(1),
	})
	if err == nil {
		return nil
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401:
			return ErrAuthFailed
		case 403:
			return ErrModelForbidden
		case 404:
			return ErrModelNotFound
		case 429:
			return ErrQuotaExceeded
		}
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}

// Sentiment rates brand sentiment 0-100 with a deterministic rubric.
func (c *OpenAIClient) Sentiment(ctx context.Context, brand, text string) (int, error) {
	return c.score(ctx, fmt.Sprintf(sentimentRubricV1, brand, text), 0.1, 3)
}

// Salience rates brand prominence 0-100 with a deterministic rubric.
func (c *OpenAIClient) Salience(ctx context.Context, brand, text string) (int, error) {
	return c.score(ctx, fmt.Sprintf(salienceRubricV1, brand, text), 0.2, 4)
}

func (c *OpenAIClient) score(ctx context.Context, prompt string, temperature float64, maxTokens int64) (int, error) {
	var content string
	err := backoff.Do(ctx, func() error {
		resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(c.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Temperature: openai.Float(temperature),
			MaxTokens:   openai.Int(maxTokens),
		})
		if err != nil {
			var apiErr *openai.Error
			if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
				return fmt.Errorf("%w: %v", backoff.ErrRateLimited, err)
			}
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("empty completion")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return 0, err
	}

	return ParseScore(content)
}

// ParseScore extracts the first integer from a completion and clamps it to
// [0,100]. A completion with no integer is a parse failure.
func ParseScore(content string) (int, error) {
	match := firstInt.FindString(strings.TrimSpace(content))
	if match == "" {
		return 0, fmt.Errorf("no integer in completion %q", content)
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, fmt.Errorf("parse score %q: %w", match, err)
	}
	if n < 0 {
		n = 0
	}
	if n > 100 {
		n = 100
	}
	return n, nil
}

var _ models.LLMClient = (*OpenAIClient)(nil)
