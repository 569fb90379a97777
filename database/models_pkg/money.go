package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// pointValues maps a futures root symbol to its dollar value per point
var pointValues = map[string]float64{
	"ES":  50,
	"MES": 5,
	"NQ":  20,
	"MNQ": 2,
	"YM":  5,
	"MYM": 0.5,
	"RTY": 50,
	"M2K": 5,
	"CL":  1000,
	"MCL": 100,
	"GC":  100,
	"MGC": 10,
}

// PointValue returns the dollar value of one point for a ticker.
// Contract months are ignored ("ESZ4" -> "ES"); unknown tickers are worth 1 per point.
func PointValue(ticker string) float64 {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if v, ok := pointValues[t]; ok {
		return v
	}
	// Longest matching root wins so "MESZ4" resolves to MES, not ES
	best, bestLen := 1.0, 0
	for root, v := range pointValues {
		if strings.HasPrefix(t, root) && len(root) > bestLen {
			best, bestLen = v, len(root)
		}
	}
	return best
}

// NetPnL computes raw - commission*size without float drift
func NetPnL(raw, commissionPerContract float64, size int) float64 {
	net := decimal.NewFromFloat(raw).
		Sub(decimal.NewFromFloat(commissionPerContract).Mul(decimal.NewFromInt(int64(size))))
	f, _ := net.Round(2).Float64()
	return f
}

// ApplyNetPnL sets NetPnL from PnL, Commission and Size
func (t *Trade) ApplyNetPnL() {
	t.NetPnL = NetPnL(t.PnL, t.Commission, t.Size)
}

// ApplyRiskReward derives RiskAmount and RewardAmount:
// risk = |entry-stop| * size * point value, reward = |target-entry| * size * point value.
func (s *TradeSetup) ApplyRiskReward() {
	pv := decimal.NewFromFloat(PointValue(s.Ticker))
	size := decimal.NewFromInt(int64(s.PositionSize))
	entry := decimal.NewFromFloat(s.EntryPrice)

	risk := entry.Sub(decimal.NewFromFloat(s.StopLoss)).Abs().Mul(size).Mul(pv)
	reward := decimal.NewFromFloat(s.TakeProfit).Sub(entry).Abs().Mul(size).Mul(pv)

	s.RiskAmount, _ = risk.Round(2).Float64()
	s.RewardAmount, _ = reward.Round(2).Float64()
}
