package enrich

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Mentions is the outcome of matching a term list against a text.
type Mentions struct {
	PerTerm map[string]int
	Total   int
	Any     bool
}

var quoteNormalizer = strings.NewReplacer(
	"‘", "'", "’", "'", "‚", "'", "‛", "'",
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`,
)

var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

// NormalizeText decomposes to NFD, drops combining marks and maps curly
// quotes to straight ones, so "Nescafé" and "Nescafe" match each other.
func NormalizeText(s string) string {
	out, _, err := transform.String(accentStripper, s)
	if err != nil {
		out = s
	}
	return quoteNormalizer.Replace(out)
}

// MatchMentions counts case-insensitive word-boundary occurrences of each
// term in text. Both sides are normalized before matching; terms that fail
// to compile (or are blank) count zero.
func MatchMentions(terms []string, text string) Mentions {
	m := Mentions{PerTerm: make(map[string]int, len(terms))}
	normalized := NormalizeText(text)
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		re, err := regexp.Compile(fmt.Sprintf(`(?i)\b%s\b`, regexp.QuoteMeta(NormalizeText(term))))
		if err != nil {
			m.PerTerm[term] = 0
			continue
		}
		n := len(re.FindAllStringIndex(normalized, -1))
		m.PerTerm[term] = n
		m.Total += n
	}
	m.Any = m.Total > 0
	return m
}

// MatchDomains counts word-boundary occurrences of each target domain in
// the citation host list.
func MatchDomains(domains []string, citationDomains []string) Mentions {
	return MatchMentions(domains, strings.Join(citationDomains, " "))
}
