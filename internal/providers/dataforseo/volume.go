package dataforseo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/internal/providers"
	"github.com/jmorabitoseo/chatgpt-rank-tracker-backend/pkg/models"
)

// maxVolumeKeywords is the provider's per-request keyword limit.
const maxVolumeKeywords = 50

// maxTrendMonths caps the stored monthly history per prompt.
const maxTrendMonths = 12

// Typed volume-lookup failures. Anything else degrades to nil entries
// instead of failing the batch.
var (
	ErrVolumeAuth        = errors.New("volume lookup: authentication failed")
	ErrVolumeCredits     = errors.New("volume lookup: out of credits")
	ErrVolumeRateLimited = errors.New("volume lookup: rate limited")
)

type volumeRequest struct {
	Keywords     []string `json:"keywords"`
	LocationCode int      `json:"location_code"`
	LanguageName string   `json:"language_name"`
}

type volumeEnvelope struct {
	StatusCode int          `json:"status_code"`
	Tasks      []volumeTask `json:"tasks"`
}

type volumeTask struct {
	StatusCode int            `json:"status_code"`
	Result     []volumeResult `json:"result"`
}

type volumeResult struct {
	Items []volumeItem `json:"items"`
}

type volumeItem struct {
	Keyword         string          `json:"keyword"`
	SearchVolume    int             `json:"ai_search_volume"`
	MonthlySearches []monthlySearch `json:"ai_monthly_searches"`
}

type monthlySearch struct {
	Year         int `json:"year"`
	Month        int `json:"month"`
	SearchVolume int `json:"ai_search_volume"`
}

// BatchVolumes looks up AI search volume for each prompt and returns a
// slice aligned index-for-index with the input. Elements are independently
// nullable: a failed or missing lookup yields nil, a zero-volume lookup
// yields a real entry.
func (c *Client) BatchVolumes(ctx context.Context, prompts []string, locationCode int) ([]*models.VolumeData, error) {
	out := make([]*models.VolumeData, len(prompts))
	if len(prompts) == 0 {
		return out, nil
	}

	keywords := uniqueLowercase(prompts, maxVolumeKeywords)
	payload := []volumeRequest{{
		Keywords:     keywords,
		LocationCode: locationCode,
		LanguageName: "English",
	}}

	var env volumeEnvelope
	err := c.post(ctx, "/v3/ai_optimization/ai_keyword_data/keywords_search_volume/live", payload, &env)
	if err != nil {
		var statusErr *providers.StatusError
		if errors.As(err, &statusErr) {
			switch statusErr.Code {
			case 401:
				return nil, fmt.Errorf("%w: %v", ErrVolumeAuth, err)
			case 402:
				return nil, fmt.Errorf("%w: %v", ErrVolumeCredits, err)
			case 429:
				return nil, fmt.Errorf("%w: %v", ErrVolumeRateLimited, err)
			}
		}
		c.logger.Warn("volume lookup failed, returning empty volumes", "error", err)
		return out, nil
	}

	items := collectItems(env)
	for i, prompt := range prompts {
		out[i] = aggregateVolume(strings.ToLower(prompt), items, locationCode)
	}
	return out, nil
}

func uniqueLowercase(prompts []string, limit int) []string {
	seen := make(map[string]struct{}, len(prompts))
	out := make([]string, 0, len(prompts))
	for _, p := range prompts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out
}

func collectItems(env volumeEnvelope) []volumeItem {
	var items []volumeItem
	for _, task := range env.Tasks {
		for _, result := range task.Result {
			items = append(items, result.Items...)
		}
	}
	return items
}

// aggregateVolume sums all items matching the prompt and folds their
// monthly history. Returns nil when the provider sent nothing back for the
// keyword.
func aggregateVolume(keyword string, items []volumeItem, locationCode int) *models.VolumeData {
	matched := false
	current := 0
	byMonth := make(map[[2]int]int)

	for _, item := range items {
		if strings.ToLower(item.Keyword) != keyword {
			continue
		}
		matched = true
		current += item.SearchVolume
		for _, m := range item.MonthlySearches {
			byMonth[[2]int{m.Year, m.Month}] += m.SearchVolume
		}
	}
	if !matched {
		return nil
	}

	trends := make([]models.MonthlyTrend, 0, len(byMonth))
	for ym, volume := range byMonth {
		trends = append(trends, models.MonthlyTrend{Year: ym[0], Month: ym[1], Volume: volume})
	}
	sort.Slice(trends, func(i, j int) bool {
		if trends[i].Year != trends[j].Year {
			return trends[i].Year > trends[j].Year
		}
		return trends[i].Month > trends[j].Month
	})
	if len(trends) > maxTrendMonths {
		trends = trends[:maxTrendMonths]
	}

	average, peak := 0, 0
	if len(trends) > 0 {
		sum := 0
		for _, tr := range trends {
			sum += tr.Volume
			if tr.Volume > peak {
				peak = tr.Volume
			}
		}
		average = sum / len(trends)
	}

	return &models.VolumeData{
		Keyword:       keyword,
		CurrentVolume: current,
		MonthlyTrends: trends,
		AverageVolume: average,
		PeakVolume:    peak,
		LocationCode:  locationCode,
	}
}
