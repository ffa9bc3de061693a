package enrich

import (
	"regexp"
	"strings"
	"time"

	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

// Feature names recorded in the serp map.
const (
	FeatureText     = "text"
	FeatureProducts = "products"
	FeatureImages   = "images"
	FeatureTable    = "table"
	FeatureNavList  = "navigation_list"
	FeatureLocal    = "local_businesses"
)

// NormalizedResponse is the provider-agnostic envelope a dispatcher hands to
// the enrichment engine. Provider-specific payload shapes are flattened here
// so the engine never inspects raw provider JSON.
type NormalizedResponse struct {
	AnswerText    string
	Citations     []models.Citation
	CitationDates []time.Time

	// LinkURLs carries the attached-link and source URLs so their hosts
	// count toward the distinct-domain set alongside citation hosts.
	LinkURLs      []string
	LinksAttached int
	HasSources    bool

	ProductCount   int
	HasProducts    bool
	ImageItemCount int
	LocalCount     int
	HasLocalFlag   bool
}

var (
	reMarkdownImage = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	reTableLine     = regexp.MustCompile(`^\s*\|.*\|\s*$`)
)

// DetectFeatures builds the presence-with-count feature map. Absent features
// get no key at all. Markdown signals (images, tables) read the raw answer
// text since sanitization strips the markers.
func DetectFeatures(resp NormalizedResponse, sanitized string) map[string]int {
	features := make(map[string]int)

	if strings.TrimSpace(sanitized) != "" {
		features[FeatureText] = 1
	}

	if resp.HasProducts || resp.ProductCount > 0 {
		features[FeatureProducts] = maxInt(resp.ProductCount, 1)
	}

	if n := len(reMarkdownImage.FindAllString(resp.AnswerText, -1)) + resp.ImageItemCount; n > 0 {
		features[FeatureImages] = n
	}

	if n := countTables(resp.AnswerText); n > 0 {
		features[FeatureTable] = n
	}

	switch {
	case resp.LinksAttached > 3:
		features[FeatureNavList] = resp.LinksAttached
	case resp.HasSources:
		features[FeatureNavList] = 1
	}

	if resp.HasLocalFlag || resp.LocalCount > 0 {
		features[FeatureLocal] = maxInt(resp.LocalCount, 1)
	}

	return features
}

// countTables counts runs of at least three consecutive |...| lines, the
// minimum for a markdown table (header, separator, one row).
func countTables(text string) int {
	tables, run := 0, 0
	for _, line := range strings.Split(text, "\n") {
		if reTableLine.MatchString(line) {
			run++
			if run == 3 {
				tables++
			}
			continue
		}
		run = 0
	}
	return tables
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
