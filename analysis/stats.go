package analysis

import (
	"math"
	"sort"
	"time"

	models "trading-journal/database/models_pkg"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// profitFactorCap stands in for an infinite ratio when there are no losses
const profitFactorCap = 99.99

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// stddev is the population standard deviation
func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	_, sd := stat.PopMeanStdDev(xs, nil)
	if math.IsNaN(sd) {
		return 0
	}
	return sd
}

func maxOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return floats.Max(xs)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// confidence grows linearly with sample size and saturates at 20 trades
func confidence(n int) float64 {
	return math.Min(float64(n)/20, 1)
}

// round2 keeps persisted ratios and scores at two decimals
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}

func netPnLs(trades []models.Trade) []float64 {
	out := make([]float64, len(trades))
	for i, t := range trades {
		out[i] = t.NetPnL
	}
	return out
}

func winRate(trades []models.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.IsWin() {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

// chronological returns a copy of trades ordered by entry time, then date.
// Trades without an entry time sort by their date at midnight.
func chronological(trades []models.Trade) []models.Trade {
	out := make([]models.Trade, len(trades))
	copy(out, trades)
	sort.SliceStable(out, func(i, j int) bool {
		return sortKey(out[i]).Before(sortKey(out[j]))
	})
	return out
}

func sortKey(t models.Trade) time.Time {
	if t.EntryTime != nil {
		return *t.EntryTime
	}
	return t.Date
}

// drawdownStats walks the equity curve starting at zero
type drawdownStats struct {
	MaxDrawdown          float64 // largest peak-to-trough drop, positive dollars
	PeakAtMaxDrawdown    float64 // equity peak the largest drop was measured from
	MaxConsecutiveLosses int
}

func computeDrawdown(chrono []models.Trade) drawdownStats {
	var s drawdownStats
	var equity, peak float64
	streak := 0
	for _, t := range chrono {
		equity += t.NetPnL
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > s.MaxDrawdown {
			s.MaxDrawdown = dd
			s.PeakAtMaxDrawdown = peak
		}
		if t.NetPnL < 0 {
			streak++
			if streak > s.MaxConsecutiveLosses {
				s.MaxConsecutiveLosses = streak
			}
		} else {
			streak = 0
		}
	}
	return s
}

// riskMetrics are the aggregate metrics attached to setup patterns
type riskMetrics struct {
	WinRate         float64 `json:"win_rate"`
	ProfitFactor    float64 `json:"profit_factor"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	RiskRewardRatio float64 `json:"risk_reward_ratio"`
}

func computeRiskMetrics(trades []models.Trade) riskMetrics {
	var grossWin, grossLoss float64
	var wins, losses int
	for _, t := range trades {
		switch {
		case t.NetPnL > 0:
			grossWin += t.NetPnL
			wins++
		case t.NetPnL < 0:
			grossLoss += -t.NetPnL
			losses++
		}
	}

	m := riskMetrics{
		WinRate:     round4(winRate(trades)),
		MaxDrawdown: round2(computeDrawdown(chronological(trades)).MaxDrawdown),
	}
	switch {
	case grossLoss > 0:
		m.ProfitFactor = round2(math.Min(grossWin/grossLoss, profitFactorCap))
	case grossWin > 0:
		m.ProfitFactor = profitFactorCap
	}

	if wins > 0 && losses > 0 {
		avgWin := grossWin / float64(wins)
		avgLoss := grossLoss / float64(losses)
		m.RiskRewardRatio = round2(math.Min(avgWin/avgLoss, profitFactorCap))
	} else if wins > 0 {
		m.RiskRewardRatio = profitFactorCap
	}
	return m
}
