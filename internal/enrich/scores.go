package enrich

import (
	"strings"
	"time"
)

// Intent categories in tie-break precedence order.
const (
	IntentCommercial    = "commercial"
	IntentTransactional = "transactional"
	IntentLocal         = "local"
	IntentNavigational  = "navigational"
	IntentInformational = "informational"
)

var intentOrder = []string{
	IntentCommercial,
	IntentTransactional,
	IntentLocal,
	IntentNavigational,
	IntentInformational,
}

var intentKeywords = map[string][]string{
	IntentCommercial: {
		"compare", "review", "rating", "best", "top", "price", "cost",
		"features", "vs", "versus", "pros", "cons", "recommendation",
		"brand", "model",
	},
	IntentLocal: {
		"near me", "nearby", "local", "address", "location", "directions",
		"hours", "map", "restaurant", "store", "business", "service area",
		"city", "town",
	},
	IntentTransactional: {
		"buy", "purchase", "order", "booking", "reservation", "hire",
		"contact", "call", "quote", "estimate", "appointment", "schedule",
		"book now",
	},
	IntentNavigational: {
		"website", "homepage", "official site", "main page", "portal",
		"directory", "login", "sign in", "dashboard", "menu", "navigation",
		"sitemap",
	},
	IntentInformational: {
		"what", "why", "how", "when", "where", "definition", "meaning",
		"explain", "guide", "tutorial", "learn", "understand", "compare",
		"difference", "overview",
	},
}

// Feature weights per intent category.
var intentFeatureWeights = map[string]map[string]int{
	IntentCommercial:    {FeatureProducts: 30, FeatureTable: 15},
	IntentTransactional: {FeatureProducts: 20},
	IntentLocal:         {FeatureLocal: 40},
	IntentNavigational:  {FeatureNavList: 25},
	IntentInformational: {FeatureText: 10},
}

const (
	informationalBaseline = 20
	keywordPoints         = 4
	perKeywordCap         = 3
	perCategoryKeywordCap = 40
	recencyWindow         = 90 * 24 * time.Hour
	stalenessWindow       = 365 * 24 * time.Hour
)

// LCPScore computes linked-citation potential from domain diversity,
// citation recency and structural variety.
func LCPScore(distinctDomains int, dates []time.Time, features map[string]int, now time.Time) int {
	n := distinctDomains
	if n > 8 {
		n = 8
	}
	score := n * 8

	for _, d := range dates {
		if !d.IsZero() && now.Sub(d) <= recencyWindow {
			score += 10
			break
		}
	}

	if len(features) >= 2 {
		score += 10
	}
	if _, ok := features[FeatureNavList]; ok {
		score += 6
	}

	return clamp(score)
}

// ActionabilityScore rewards decision-supporting structures plus a staleness
// opportunity bonus when the freshest citation is over a year old.
func ActionabilityScore(features map[string]int, dates []time.Time, now time.Time) int {
	score := 0
	if _, ok := features[FeatureTable]; ok {
		score += 30
	}
	if _, ok := features[FeatureProducts]; ok {
		score += 20
	}
	if _, ok := features[FeatureLocal]; ok {
		score += 20
	}
	if _, ok := features[FeatureImages]; ok {
		score += 10
	}
	if _, ok := features[FeatureNavList]; ok {
		score += 10
	}

	if newest := newestDate(dates); !newest.IsZero() && now.Sub(newest) > stalenessWindow {
		score += 10
	}

	return clamp(score)
}

// ClassifyIntent scores the five categories from feature presence and capped
// keyword counts over the prompt and answer text, returning the winner and a
// separation-based confidence.
func ClassifyIntent(prompt, answer string, features map[string]int) (string, int) {
	text := strings.ToLower(prompt + " " + answer)

	scores := make(map[string]int, len(intentOrder))
	for _, cat := range intentOrder {
		s := 0
		for feature, weight := range intentFeatureWeights[cat] {
			if _, ok := features[feature]; ok {
				s += weight
			}
		}
		kw := 0
		for _, word := range intentKeywords[cat] {
			n := strings.Count(text, word)
			if n > perKeywordCap {
				n = perKeywordCap
			}
			kw += n * keywordPoints
		}
		if kw > perCategoryKeywordCap {
			kw = perCategoryKeywordCap
		}
		scores[cat] = s + kw
	}
	scores[IntentInformational] += informationalBaseline

	primary := IntentInformational
	top, second := -1, -1
	for _, cat := range intentOrder {
		s := scores[cat]
		if s > top {
			second = top
			top = s
			primary = cat
		} else if s > second {
			second = s
		}
	}

	confidence := 0
	if top > 0 {
		confidence = (top - second) * 100 / top
	}
	return primary, confidence
}

func newestDate(dates []time.Time) time.Time {
	var newest time.Time
	for _, d := range dates {
		if d.After(newest) {
			newest = d
		}
	}
	return newest
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
