package analysis

import (
	"math"
	"time"

	models "trading-journal/database/models_pkg"
)

// Stop and target multipliers applied to the worst loss and best profit
const (
	stopLossFactor   = 1.1
	takeProfitFactor = 0.9
)

// BuildRecommendation derives a recommendation from a pattern and its matched
// trades (newest first). Stop and target are P&L levels: 1.1x the worst loss and
// 0.9x the best profit. When the sample has no losing (or no winning) trade the
// most recent trade's absolute net P&L stands in.
func BuildRecommendation(p models.TradePattern, trades []models.Trade, now time.Time, window time.Duration) models.PatternRecommendation {
	ticker, direction := dominantInstrument(trades)

	var worstLoss, bestProfit float64
	var hasLoss, hasProfit bool
	for _, t := range trades {
		if t.NetPnL < 0 && (!hasLoss || t.NetPnL < worstLoss) {
			worstLoss, hasLoss = t.NetPnL, true
		}
		if t.NetPnL > 0 && (!hasProfit || t.NetPnL > bestProfit) {
			bestProfit, hasProfit = t.NetPnL, true
		}
	}
	fallback := 0.0
	if len(trades) > 0 {
		fallback = math.Abs(trades[0].NetPnL)
	}
	if !hasLoss {
		worstLoss = -fallback
	}
	if !hasProfit {
		bestProfit = fallback
	}

	series := referenceSeries(trades)
	m, sd := mean(series), stddev(series)

	return models.PatternRecommendation{
		UserID:        p.UserID,
		PatternID:     p.ID,
		Ticker:        ticker,
		Direction:     direction,
		EntryZoneLow:  round4(m - sd),
		EntryZoneHigh: round4(m + sd),
		StopLoss:      round2(worstLoss * stopLossFactor),
		TakeProfit:    round2(bestProfit * takeProfitFactor),
		Confidence:    round4(math.Min(p.ConfidenceScore*p.SuccessRate, 1)),
		ExpiresAt:     now.Add(window),
		Status:        models.RecommendationPending,
	}
}

// referenceSeries is the entry price (or planned entry) of each trade that has one,
// or the net P&L series when none do
func referenceSeries(trades []models.Trade) []float64 {
	var prices []float64
	for _, t := range trades {
		if p, ok := t.ReferencePrice(); ok {
			prices = append(prices, p)
		}
	}
	if len(prices) > 0 {
		return prices
	}
	return netPnLs(trades)
}

// dominantInstrument returns the most frequent ticker and direction.
// Ties go to whichever appears first, i.e. the more recent trade.
func dominantInstrument(trades []models.Trade) (string, models.Direction) {
	tickers := map[string]int{}
	dirs := map[models.Direction]int{}
	for _, t := range trades {
		tickers[t.Ticker]++
		dirs[t.Direction]++
	}

	var ticker string
	var dir models.Direction
	bestTicker, bestDir := 0, 0
	for _, t := range trades {
		if n := tickers[t.Ticker]; n > bestTicker {
			ticker, bestTicker = t.Ticker, n
		}
		if n := dirs[t.Direction]; n > bestDir {
			dir, bestDir = t.Direction, n
		}
	}
	return ticker, dir
}
