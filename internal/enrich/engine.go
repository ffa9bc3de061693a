package enrich

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

// scoreSpacer separates the sentiment and salience calls so one result never
// fires two completions back to back.
const scoreSpacer = 300 * time.Millisecond

// Defaults applied when a score's LLM call fails after retries.
const (
	defaultSentiment = 50
	defaultSalience  = 0
)

// Input is everything the engine needs for one result.
type Input struct {
	Prompt   string
	Brands   []string
	Domains  []string
	Response NormalizedResponse
}

// Enrichment is the computed record for one fulfilled result.
type Enrichment struct {
	SanitizedText      string
	Response           []byte
	Citations          []models.Citation
	Features           map[string]int
	IsPresent          bool
	IsDomainPresent    bool
	MentionCount       int
	DomainMentionCount int
	Sentiment          int
	Salience           int
	LCP                int
	Actionability      int
	Intent             string
	IntentConfidence   int
}

// Apply copies the enrichment onto a tracking result's nullable fields.
func (e *Enrichment) Apply(r *models.TrackingResult) {
	r.Response = e.Response
	r.Citations = e.Citations
	r.SERPFeatures = e.Features
	r.IsPresent = boolPtr(e.IsPresent)
	r.IsDomainPresent = boolPtr(e.IsDomainPresent)
	r.MentionCount = intPtr(e.MentionCount)
	r.DomainMentionCount = intPtr(e.DomainMentionCount)
	r.Sentiment = intPtr(e.Sentiment)
	r.Salience = intPtr(e.Salience)
	r.LCP = intPtr(e.LCP)
	r.Actionability = intPtr(e.Actionability)
	r.Intent = strPtr(e.Intent)
}

// Engine computes all enrichment scores for a normalized response. The
// deterministic scores never fail; the two LLM scores degrade to defaults.
type Engine struct {
	llm    models.LLMClient
	logger *slog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration)
}

func NewEngine(llm models.LLMClient, logger *slog.Logger) *Engine {
	return &Engine{
		llm:    llm,
		logger: logger,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Enrich runs the full scoring pipeline for one result.
func (e *Engine) Enrich(ctx context.Context, in Input) Enrichment {
	sanitized := Sanitize(in.Response.AnswerText)
	citations := NormalizeCitations(in.Response.Citations)
	domains := UnionDomains(DistinctDomains(citations), in.Response.LinkURLs)
	features := DetectFeatures(in.Response, sanitized)

	brands := MatchMentions(in.Brands, sanitized)
	targetDomains := MatchDomains(in.Domains, domains)

	now := e.now()
	intent, confidence := ClassifyIntent(in.Prompt, sanitized, features)

	out := Enrichment{
		SanitizedText:      sanitized,
		Response:           encodeAnswer(sanitized),
		Citations:          citations,
		Features:           features,
		IsPresent:          brands.Any,
		IsDomainPresent:    targetDomains.Any,
		MentionCount:       brands.Total,
		DomainMentionCount: targetDomains.Total,
		LCP:                LCPScore(len(domains), in.Response.CitationDates, features, now),
		Actionability:      ActionabilityScore(features, in.Response.CitationDates, now),
		Intent:             intent,
		IntentConfidence:   confidence,
	}

	if brands.Any {
		out.Sentiment, out.Salience = e.llmScores(ctx, firstMatched(in.Brands, brands), sanitized)
	}

	return out
}

// llmScores issues sentiment then salience sequentially with a spacer
// between them. A failed call degrades to its default rather than failing
// the result.
func (e *Engine) llmScores(ctx context.Context, brand, text string) (int, int) {
	sentiment, err := e.llm.Sentiment(ctx, brand, text)
	if err != nil {
		e.logger.Warn("sentiment scoring failed, using default", "brand", brand, "error", err)
		sentiment = defaultSentiment
	}

	e.sleep(ctx, scoreSpacer)

	salience, err := e.llm.Salience(ctx, brand, text)
	if err != nil {
		e.logger.Warn("salience scoring failed, using default", "brand", brand, "error", err)
		salience = defaultSalience
	}

	return clamp(sentiment), clamp(salience)
}

// firstMatched picks the first brand with at least one mention, preserving
// the prompt's brand order.
func firstMatched(brands []string, m Mentions) string {
	for _, b := range brands {
		if m.PerTerm[b] > 0 {
			return b
		}
	}
	if len(brands) > 0 {
		return brands[0]
	}
	return ""
}

func encodeAnswer(text string) []byte {
	blob, err := json.Marshal(map[string]string{"answer_text": text})
	if err != nil {
		return []byte(`{"answer_text":""}`)
	}
	return blob
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func boolPtr(b bool) *bool    { return &b }
func intPtr(n int) *int       { return &n }
func strPtr(s string) *string { return &s }
