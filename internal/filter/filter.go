// Package filter evaluates one stock snapshot against the screening thresholds.
// Everything here is pure: no I/O, no shared state, safe to call from any worker.
package filter

import (
	"fmt"
	"strings"

	"momentum-screener/internal/types"
)

// Evaluate runs the four technical criteria in a fixed order.
func Evaluate(s *types.StockSnapshot, cfg types.ScreeningConfig) []types.CriterionResult {
	return []types.CriterionResult{
		PriceIncrease(s, cfg),
		VolumeSurge(s, cfg),
		PriceRange(s, cfg),
		Float(s, cfg),
	}
}

// PriceIncrease passes when the move from the previous close is at least MinPriceIncrease.
func PriceIncrease(s *types.StockSnapshot, cfg types.ScreeningConfig) types.CriterionResult {
	r := types.CriterionResult{Name: types.CriterionPriceIncrease}
	pct, ok := s.PriceChange()
	if !ok {
		r.Indeterminate = true
		r.Detail = "previous close unavailable"
		return r
	}
	r.Passed = pct >= cfg.MinPriceIncrease
	r.Detail = fmt.Sprintf("%+.2f%% (need >= %.2f%%)", pct*100, cfg.MinPriceIncrease*100)
	return r
}

// VolumeSurge passes when today's volume is at least MinVolumeMultiplier times the average.
// A missing or zero baseline never passes.
func VolumeSurge(s *types.StockSnapshot, cfg types.ScreeningConfig) types.CriterionResult {
	r := types.CriterionResult{Name: types.CriterionVolumeSurge}
	if s.AverageVolume == nil || *s.AverageVolume <= 0 {
		r.Indeterminate = true
		r.Detail = "average volume unavailable"
		return r
	}
	avg := *s.AverageVolume
	r.Passed = float64(s.CurrentVolume) >= avg*cfg.MinVolumeMultiplier
	r.Detail = fmt.Sprintf("%.1fx average (need >= %.1fx)", float64(s.CurrentVolume)/avg, cfg.MinVolumeMultiplier)
	return r
}

// PriceRange passes when MinStockPrice <= price <= MaxStockPrice; both bounds are inclusive.
func PriceRange(s *types.StockSnapshot, cfg types.ScreeningConfig) types.CriterionResult {
	r := types.CriterionResult{Name: types.CriterionPriceRange}
	if s.CurrentPrice <= 0 {
		r.Indeterminate = true
		r.Detail = "current price unavailable"
		return r
	}
	r.Passed = cfg.MinStockPrice <= s.CurrentPrice && s.CurrentPrice <= cfg.MaxStockPrice
	r.Detail = fmt.Sprintf("$%.2f (range $%.2f-$%.2f)", s.CurrentPrice, cfg.MinStockPrice, cfg.MaxStockPrice)
	return r
}

// Float passes when float shares do not exceed MaxFloatMillions.
func Float(s *types.StockSnapshot, cfg types.ScreeningConfig) types.CriterionResult {
	r := types.CriterionResult{Name: types.CriterionFloat}
	if s.FloatShares == nil {
		r.Indeterminate = true
		r.Detail = "float unavailable"
		return r
	}
	shares := float64(*s.FloatShares)
	r.Passed = shares <= cfg.MaxFloatShares()
	r.Detail = fmt.Sprintf("%.2fM (need <= %.2fM)", shares/1_000_000, cfg.MaxFloatMillions)
	return r
}

// EvaluateNews checks headlines for any configured keyword, case-insensitively.
// It returns the criterion plus the headlines that matched. No headlines is a plain fail.
func EvaluateNews(headlines, keywords []string) (types.CriterionResult, []string) {
	r := types.CriterionResult{Name: types.CriterionNews}
	matched := MatchHeadlines(headlines, keywords)
	r.Passed = len(matched) > 0
	switch {
	case len(headlines) == 0:
		r.Detail = "no headlines found"
	case r.Passed:
		r.Detail = fmt.Sprintf("%d of %d headlines matched a keyword", len(matched), len(headlines))
	default:
		r.Detail = fmt.Sprintf("none of %d headlines matched a keyword", len(headlines))
	}
	return r, matched
}

// MatchHeadlines returns the headlines containing at least one keyword, in input order.
func MatchHeadlines(headlines, keywords []string) []string {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}

	var matched []string
	for _, h := range headlines {
		lh := strings.ToLower(h)
		for _, k := range lowered {
			if strings.Contains(lh, k) {
				matched = append(matched, h)
				break
			}
		}
	}
	return matched
}

// technical are the criteria that gate the news lookup.
var technical = []string{
	types.CriterionPriceIncrease,
	types.CriterionVolumeSurge,
	types.CriterionPriceRange,
	types.CriterionFloat,
}

// TechnicalPass reports whether every technical criterion was evaluated and passed.
// A news result in results is ignored.
func TechnicalPass(results []types.CriterionResult) bool {
	for _, name := range technical {
		found := false
		for _, r := range results {
			if r.Name != name {
				continue
			}
			if !r.Passed {
				return false
			}
			found = true
		}
		if !found {
			return false
		}
	}
	return true
}

// AllPassed reports whether every result passed. An empty set does not pass.
func AllPassed(results []types.CriterionResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
