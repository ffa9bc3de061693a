// Package enrich turns a normalized scrape response into the scored,
// brand-matched record persisted on a tracking result. The deterministic
// scorers are pure CPU; only the two LLM scores leave the process.
package enrich

import (
	"regexp"
	"strings"
)

// SanitizeOptions control list handling and blank-line collapsing.
type SanitizeOptions struct {
	PreserveLists bool
	MaxBlankLines int
}

// DefaultSanitizeOptions keep lists as "- " bullets and allow one blank line
// between paragraphs.
var DefaultSanitizeOptions = SanitizeOptions{PreserveLists: true, MaxBlankLines: 1}

var (
	reMarkdownLink = regexp.MustCompile(`\[([^\]]*)\]\(([^)]*)\)`)
	reCodeFence    = regexp.MustCompile("(?m)^```[^\n]*$\n?")
	reInlineCode   = regexp.MustCompile("`([^`]*)`")
	reHeading      = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	reBoldStars    = regexp.MustCompile(`(\*{1,3})([^*\n]+?)(\*{1,3})`)
	reBoldUnder    = regexp.MustCompile(`(_{1,3})([^_\n]+?)(_{1,3})`)
	reBullet       = regexp.MustCompile(`(?m)^[ \t]*[*•\-][ \t]+`)
	reNumBullet    = regexp.MustCompile(`(?m)^[ \t]*\d+\.[ \t]+`)
	reEscape       = regexp.MustCompile(`\\([\\` + "`" + `*_{}\[\]()#+\-.!>])`)
	reHTMLTag      = regexp.MustCompile(`<[^<>]+>`)
	rePunctSpace   = regexp.MustCompile(`([.?!;:])([^\s])`)
	reSpaceRun     = regexp.MustCompile(`[ \t]{2,}`)
)

var htmlEntities = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&apos;", "'",
	"&nbsp;", " ",
	"&ndash;", "–",
	"&mdash;", "—",
)

// Sanitize normalizes opaque answer text into plain prose using the default
// options. The output is a fixpoint: Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(s string) string {
	return SanitizeWith(s, DefaultSanitizeOptions)
}

// SanitizeWith applies the sanitization steps in order, repeating the whole
// pass until the text stops changing. A single pass is not a fixpoint:
// decoded entities can expose markup for the earlier steps, so we iterate.
func SanitizeWith(s string, opts SanitizeOptions) string {
	return replaceToFixpoint(s, func(s string) string {
		return sanitizePass(s, opts)
	})
}

func sanitizePass(s string, opts SanitizeOptions) string {
	// 1. Literal \n escapes become real newlines.
	s = strings.ReplaceAll(s, `\n`, "\n")

	// 2. [text](url) -> text (url).
	s = reMarkdownLink.ReplaceAllString(s, "$1 ($2)")

	// 3. Code fences and inline code markers go, content stays.
	s = reCodeFence.ReplaceAllString(s, "")
	s = reInlineCode.ReplaceAllString(s, "$1")

	// 4. Heading markers.
	s = reHeading.ReplaceAllString(s, "")

	// 5. Emphasis markers, iterated so nested emphasis unwraps fully.
	s = replaceToFixpoint(s, func(s string) string {
		s = reBoldStars.ReplaceAllString(s, "$2")
		return reBoldUnder.ReplaceAllString(s, "$2")
	})

	// 6. List bullets.
	if opts.PreserveLists {
		s = reBullet.ReplaceAllString(s, "- ")
		s = reNumBullet.ReplaceAllString(s, "- ")
	} else {
		s = reBullet.ReplaceAllString(s, "")
		s = reNumBullet.ReplaceAllString(s, "")
	}

	// 7. Backslash escapes.
	s = reEscape.ReplaceAllString(s, "$1")

	// 8. HTML tags.
	s = reHTMLTag.ReplaceAllString(s, "")

	// 9. Named entities, iterated so double-encoded input settles.
	s = replaceToFixpoint(s, htmlEntities.Replace)

	// 10. Single space after sentence punctuation.
	s = rePunctSpace.ReplaceAllString(s, "$1 $2")

	// 11. Whitespace cleanup.
	s = reSpaceRun.ReplaceAllString(s, " ")
	s = collapseBlankLines(s, opts.MaxBlankLines)

	return strings.TrimSpace(s)
}

// replaceToFixpoint applies f until the string stops changing. Bounded to
// keep hostile input from looping.
func replaceToFixpoint(s string, f func(string) string) string {
	for i := 0; i < 10; i++ {
		next := f(s)
		if next == s {
			return s
		}
		s = next
	}
	return s
}

// collapseBlankLines trims each line and limits blank-line runs to max.
func collapseBlankLines(s string, max int) string {
	if max < 0 {
		max = 0
	}
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			blanks++
			if blanks > max {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
