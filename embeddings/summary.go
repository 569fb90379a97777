package embeddings

import (
	"fmt"
	"strings"

	models "trading-journal/database/models_pkg"
	"trading-journal/helpers"
)

const timeLayout = "2006-01-02 15:04"

// TradeSummary renders the canonical text embedded for a trade.
// Output depends only on the trade's fields so unchanged trades embed identically.
func TradeSummary(t models.Trade) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Trade on %s\n", t.Date.Format("2006-01-02"))
	fmt.Fprintf(&sb, "Ticker: %s\n", t.Ticker)
	fmt.Fprintf(&sb, "Direction: %s\n", t.Direction)
	fmt.Fprintf(&sb, "Size: %d contracts\n", t.Size)
	if t.EntryTime != nil {
		fmt.Fprintf(&sb, "Entry time: %s\n", t.EntryTime.Format(timeLayout))
	}
	if t.ExitTime != nil {
		fmt.Fprintf(&sb, "Exit time: %s\n", t.ExitTime.Format(timeLayout))
	}
	if d := t.DurationSeconds(); d > 0 {
		fmt.Fprintf(&sb, "Duration: %s\n", helpers.FormatDuration(d))
	}
	if t.EntryPrice != nil {
		fmt.Fprintf(&sb, "Entry price: %.2f\n", *t.EntryPrice)
	}
	if t.ExitPrice != nil {
		fmt.Fprintf(&sb, "Exit price: %.2f\n", *t.ExitPrice)
	}
	fmt.Fprintf(&sb, "P&L: %s\n", helpers.FormatUSD(t.PnL))
	fmt.Fprintf(&sb, "Net P&L: %s\n", helpers.FormatUSD(t.NetPnL))
	switch {
	case t.NetPnL > 0:
		sb.WriteString("Result: win\n")
	case t.NetPnL < 0:
		sb.WriteString("Result: loss\n")
	default:
		sb.WriteString("Result: breakeven\n")
	}
	if t.PlannedEntry != nil || t.PlannedStop != nil || t.PlannedTarget != nil {
		fmt.Fprintf(&sb, "Plan: entry %s, stop %s, target %s\n",
			priceOrDash(t.PlannedEntry), priceOrDash(t.PlannedStop), priceOrDash(t.PlannedTarget))
	}
	if notes := strings.TrimSpace(t.Notes); notes != "" {
		fmt.Fprintf(&sb, "Notes: %s\n", notes)
	}
	fmt.Fprintf(&sb, "Has strategy: %s\n", yesNo(t.StrategyID != nil && *t.StrategyID != ""))
	fmt.Fprintf(&sb, "Has snapshot: %s", yesNo(t.SnapshotURL != ""))
	return sb.String()
}

// PlanSummary renders the canonical text embedded for a trading plan
func PlanSummary(p models.TradingPlan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Trading plan for %s\n", p.Date.Format("2006-01-02"))
	if p.MarketBias != "" {
		fmt.Fprintf(&sb, "Market bias: %s\n", p.MarketBias)
	}
	if len(p.KeyLevels) > 0 {
		fmt.Fprintf(&sb, "Key levels: %s\n", strings.Join(p.KeyLevels, ", "))
	}
	if len(p.EconomicEvents) > 0 {
		fmt.Fprintf(&sb, "Economic events: %s\n", strings.Join(p.EconomicEvents, ", "))
	}
	if p.MaxDailyLoss > 0 {
		fmt.Fprintf(&sb, "Max daily loss: %s\n", helpers.FormatUSD(p.MaxDailyLoss))
	}
	for i, s := range p.Setups {
		fmt.Fprintf(&sb, "Setup %d: %s %s entry %.2f stop %.2f target %.2f size %d risk %s reward %s\n",
			i+1, s.Ticker, s.Direction, s.EntryPrice, s.StopLoss, s.TakeProfit, s.PositionSize,
			helpers.FormatUSD(s.RiskAmount), helpers.FormatUSD(s.RewardAmount))
	}
	if notes := strings.TrimSpace(p.Notes); notes != "" {
		fmt.Fprintf(&sb, "Notes: %s\n", notes)
	}
	fmt.Fprintf(&sb, "Setups: %d", len(p.Setups))
	return sb.String()
}

func priceOrDash(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
