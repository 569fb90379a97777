package analysis

import (
	"fmt"
	"sort"

	models "trading-journal/database/models_pkg"
)

// setupPatterns classifies each sufficiently traded ticker's trades into setup
// archetypes and keeps archetypes that beat the ticker's overall win rate.
func (e *Engine) setupPatterns(userID string, trades []models.Trade) []models.TradePattern {
	byTicker := map[string][]models.Trade{}
	for _, t := range trades {
		byTicker[t.Ticker] = append(byTicker[t.Ticker], t)
	}

	tickers := make([]string, 0, len(byTicker))
	for k := range byTicker {
		tickers = append(tickers, k)
	}
	sort.Strings(tickers)

	var out []models.TradePattern
	for _, ticker := range tickers {
		group := byTicker[ticker]
		if len(group) < e.cfg.MinSetupTickerSamples {
			continue
		}

		sizes := make([]float64, len(group))
		for i, t := range group {
			sizes[i] = float64(t.Size)
		}
		tc := TickerContext{Ticker: ticker, MeanSize: mean(sizes)}
		tickerWinRate := winRate(group)

		classified := map[SetupType][]models.Trade{}
		for _, t := range group {
			for _, s := range e.classifier.Classify(t, tc) {
				classified[s] = append(classified[s], t)
			}
		}

		for _, setup := range SetupTypes {
			subset := classified[setup]
			if len(subset) < e.cfg.MinSetupSamples {
				continue
			}
			successRate := winRate(subset)
			if successRate <= tickerWinRate {
				continue
			}
			desc, err := setup.describe()
			if err != nil {
				e.logger.Warn().Err(err).Msg("Skipping setup without description")
				continue
			}

			data := map[string]any{
				"ticker":           ticker,
				"setup_type":       string(setup),
				"entry_conditions": desc.EntryConditions,
				"exit_conditions":  desc.ExitConditions,
				"tags":             desc.Tags,
				"risk_metrics":     computeRiskMetrics(subset),
				"ticker_win_rate":  round4(tickerWinRate),
				"avg_profit":       round2(mean(netPnLs(subset))),
			}
			out = append(out, e.newPattern(userID, models.PatternTypeSetup,
				string(setup), fmt.Sprintf("ticker:%s", ticker),
				data, successRate, len(subset), nil, matchAll(subset)))
		}
	}
	return out
}
