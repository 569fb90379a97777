package analysis

import (
	"fmt"
	"sort"

	models "trading-journal/database/models_pkg"
)

// timePatterns groups trades by entry hour and keeps hours whose success rate
// clears the threshold. Trades without an entry time have no hour and are skipped.
func (e *Engine) timePatterns(userID string, trades []models.Trade) []models.TradePattern {
	byHour := map[int][]models.Trade{}
	for _, t := range trades {
		if t.EntryTime == nil {
			continue
		}
		h := t.EntryTime.Hour()
		byHour[h] = append(byHour[h], t)
	}

	hours := make([]int, 0, len(byHour))
	for h := range byHour {
		hours = append(hours, h)
	}
	sort.Ints(hours)

	var out []models.TradePattern
	for _, h := range hours {
		bucket := byHour[h]
		n := len(bucket)
		if n < e.cfg.MinTimeSamples {
			continue
		}
		successRate := winRate(bucket)
		if successRate <= e.cfg.MinSuccessRate {
			continue
		}

		var durations []float64
		wins := 0
		for _, t := range bucket {
			durations = append(durations, t.DurationMinutes())
			if t.IsWin() {
				wins++
			}
		}
		pnls := netPnLs(bucket)

		data := map[string]any{
			"hour":                 h,
			"avg_profit":           round2(mean(pnls)),
			"avg_duration_minutes": round2(mean(durations)),
			"total_profit":         round2(sum(pnls)),
			"wins":                 wins,
			"losses":               n - wins,
		}
		out = append(out, e.newPattern(userID, models.PatternTypeTimeBased,
			fmt.Sprintf("hour_%02d", h), fmt.Sprintf("hour:%d", h),
			data, successRate, n, nil, matchAll(bucket)))
	}
	return out
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

// matchAll links every trade of a bucket with full match score
func matchAll(trades []models.Trade) []models.PatternMatch {
	out := make([]models.PatternMatch, 0, len(trades))
	for _, t := range trades {
		out = append(out, models.PatternMatch{TradeID: t.ID, MatchScore: 1})
	}
	return out
}
