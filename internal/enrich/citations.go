package enrich

import (
	"net/url"
	"strings"

	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

// Hostname extracts the bare host from a URL, tolerating scheme-less input
// and stripping a leading www.
func Hostname(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		u, err = url.Parse("https://" + raw)
		if err != nil || u.Host == "" {
			return ""
		}
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// CleanURL strips scheme, www., query and fragment, keeping host and path.
func CleanURL(raw string) string {
	host := Hostname(raw)
	if host == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		u, _ = url.Parse("https://" + raw)
	}
	path := ""
	if u != nil {
		path = strings.TrimSuffix(u.Path, "/")
	}
	return host + path
}

// NormalizeCitations rewrites raw citations into the stored shape and drops
// entries with no resolvable host.
func NormalizeCitations(raw []models.Citation) []models.Citation {
	out := make([]models.Citation, 0, len(raw))
	for _, c := range raw {
		host := Hostname(c.URL)
		if host == "" {
			continue
		}
		out = append(out, models.Citation{
			Title:  strings.TrimSpace(c.Title),
			Domain: host,
			URL:    CleanURL(c.URL),
		})
	}
	return out
}

// DistinctDomains returns the unique citation hosts in first-seen order.
func DistinctDomains(citations []models.Citation) []string {
	seen := make(map[string]struct{}, len(citations))
	out := make([]string, 0, len(citations))
	for _, c := range citations {
		if c.Domain == "" {
			continue
		}
		if _, ok := seen[c.Domain]; ok {
			continue
		}
		seen[c.Domain] = struct{}{}
		out = append(out, c.Domain)
	}
	return out
}

// UnionDomains folds the hosts of additional link URLs into a domain list,
// preserving first-seen order and uniqueness.
func UnionDomains(domains []string, links []string) []string {
	seen := make(map[string]struct{}, len(domains)+len(links))
	out := make([]string, 0, len(domains)+len(links))
	for _, d := range domains {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	for _, l := range links {
		host := Hostname(l)
		if host == "" {
			continue
		}
		if _, ok := seen[host]; ok {
			continue
		}
		seen[host] = struct{}{}
		out = append(out, host)
	}
	return out
}
