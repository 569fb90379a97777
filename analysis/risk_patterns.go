package analysis

import (
	"math"

	models "trading-journal/database/models_pkg"
)

// Risk pattern sub types
const (
	RiskPositionSize = "position_size"
	RiskDrawdown     = "drawdown"
	RiskVolatility   = "volatility"
	RiskTimeOfDay    = "time_of_day"
)

// minHourTrades is the smallest hour bucket the time-of-day check scores
const minHourTrades = 3

// riskCheck is one independent risk analysis over the full history
type riskCheck struct {
	subType string
	score   func(trades []models.Trade) (float64, map[string]any, []models.PatternMatch, bool)
}

// riskPatterns runs every risk check and keeps those scoring above the threshold
func (e *Engine) riskPatterns(userID string, trades []models.Trade) []models.TradePattern {
	if len(trades) < e.cfg.MinRiskSamples {
		return nil
	}

	checks := []riskCheck{
		{RiskPositionSize, positionSizeRisk},
		{RiskDrawdown, drawdownRisk},
		{RiskVolatility, volatilityRisk},
		{RiskTimeOfDay, timeOfDayRisk},
	}

	successRate := winRate(trades)
	var out []models.TradePattern
	for _, c := range checks {
		score, data, matches, ok := c.score(trades)
		if !ok || score <= e.cfg.MinRiskScore {
			continue
		}
		s := round2(score)
		data["risk_score"] = s
		out = append(out, e.newPattern(userID, models.PatternTypeRisk,
			c.subType, "all", data, successRate, len(trades), &s, matches))
	}
	return out
}

// positionSizeRisk: min(50*(std/mean) + 50*(max/(2*mean)), 100)
func positionSizeRisk(trades []models.Trade) (float64, map[string]any, []models.PatternMatch, bool) {
	sizes := make([]float64, len(trades))
	for i, t := range trades {
		sizes[i] = float64(t.Size)
	}
	m := mean(sizes)
	if m <= 0 {
		return 0, nil, nil, false
	}
	sd := stddev(sizes)
	mx := maxOf(sizes)
	score := math.Min(50*(sd/m)+50*(mx/(2*m)), 100)

	var matches []models.PatternMatch
	for _, t := range trades {
		if float64(t.Size) > m {
			matches = append(matches, models.PatternMatch{TradeID: t.ID, MatchScore: round4(float64(t.Size) / mx)})
		}
	}
	data := map[string]any{
		"mean_size":   round2(m),
		"size_stddev": round2(sd),
		"max_size":    mx,
	}
	return score, data, matches, true
}

// drawdownRisk: min(50*(max_drawdown/peak) + 50*(max_consecutive_losses/5), 100).
// The drawdown ratio is clamped to [0,1]; a drop with no positive peak counts as 1.
func drawdownRisk(trades []models.Trade) (float64, map[string]any, []models.PatternMatch, bool) {
	dd := computeDrawdown(chronological(trades))

	var ratio float64
	switch {
	case dd.MaxDrawdown <= 0:
		ratio = 0
	case dd.PeakAtMaxDrawdown <= 0:
		ratio = 1
	default:
		ratio = clamp(dd.MaxDrawdown/dd.PeakAtMaxDrawdown, 0, 1)
	}
	score := math.Min(50*ratio+50*(float64(dd.MaxConsecutiveLosses)/5), 100)

	var matches []models.PatternMatch
	for _, t := range trades {
		if t.NetPnL < 0 {
			matches = append(matches, models.PatternMatch{TradeID: t.ID, MatchScore: 1})
		}
	}
	data := map[string]any{
		"max_drawdown":           round2(dd.MaxDrawdown),
		"peak_equity":            round2(dd.PeakAtMaxDrawdown),
		"drawdown_ratio":         round4(ratio),
		"max_consecutive_losses": dd.MaxConsecutiveLosses,
	}
	return score, data, matches, true
}

// volatilityRisk: min(100*(std/|mean|), 100); a zero mean with any spread scores 100
func volatilityRisk(trades []models.Trade) (float64, map[string]any, []models.PatternMatch, bool) {
	pnls := netPnLs(trades)
	m := mean(pnls)
	sd := stddev(pnls)

	var score float64
	switch {
	case sd == 0:
		score = 0
	case m == 0:
		score = 100
	default:
		score = math.Min(100*(sd/math.Abs(m)), 100)
	}

	var matches []models.PatternMatch
	for _, t := range trades {
		if sd > 0 && math.Abs(t.NetPnL-m) > sd {
			matches = append(matches, models.PatternMatch{TradeID: t.ID, MatchScore: 1})
		}
	}
	data := map[string]any{
		"mean_pnl":   round2(m),
		"pnl_stddev": round2(sd),
	}
	return score, data, matches, true
}

// timeOfDayRisk finds the hour with the largest loss_rate*avg_loss and scores
// min(50*min(risk_amount/overall_avg_loss, 1) + 50*loss_rate, 100)
func timeOfDayRisk(trades []models.Trade) (float64, map[string]any, []models.PatternMatch, bool) {
	byHour := map[int][]models.Trade{}
	var allLosses []float64
	for _, t := range trades {
		if t.NetPnL < 0 {
			allLosses = append(allLosses, -t.NetPnL)
		}
		if t.EntryTime != nil {
			h := t.EntryTime.Hour()
			byHour[h] = append(byHour[h], t)
		}
	}
	overallAvgLoss := mean(allLosses)
	if overallAvgLoss <= 0 {
		return 0, nil, nil, false
	}

	bestHour := -1
	var bestRisk, bestLossRate, bestAvgLoss float64
	for h := 0; h < 24; h++ {
		bucket := byHour[h]
		if len(bucket) < minHourTrades {
			continue
		}
		var losses []float64
		for _, t := range bucket {
			if t.NetPnL < 0 {
				losses = append(losses, -t.NetPnL)
			}
		}
		if len(losses) == 0 {
			continue
		}
		lossRate := float64(len(losses)) / float64(len(bucket))
		avgLoss := mean(losses)
		if risk := lossRate * avgLoss; risk > bestRisk {
			bestHour, bestRisk, bestLossRate, bestAvgLoss = h, risk, lossRate, avgLoss
		}
	}
	if bestHour < 0 {
		return 0, nil, nil, false
	}

	score := math.Min(50*math.Min(bestRisk/overallAvgLoss, 1)+50*bestLossRate, 100)

	matches := matchAll(byHour[bestHour])
	data := map[string]any{
		"hour":             bestHour,
		"loss_rate":        round4(bestLossRate),
		"avg_loss":         round2(bestAvgLoss),
		"risk_amount":      round2(bestRisk),
		"overall_avg_loss": round2(overallAvgLoss),
		"trades_in_hour":   len(byHour[bestHour]),
	}
	return score, data, matches, true
}
