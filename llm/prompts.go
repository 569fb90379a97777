package llm

import (
	"fmt"
	"sort"
	"strings"

	models "trading-journal/database/models_pkg"
	"trading-journal/helpers"
)

const (
	maxPromptTrades = 50
	maxNoteLength   = 200
)

// chatSystemMessage frames every assistant conversation
const chatSystemMessage = `You are an experienced trading coach reviewing a trader's own journal.
Base every statement on the journal data provided below. If the data does not answer the question, say so plainly.
Answer in plain conversational prose. Never output JSON, code blocks, raw field names or role labels such as "Assistant:".
Keep answers focused and practical.`

// insightJSONShape is the exact object every insight reply must contain
const insightJSONShape = `{
  "title": "short headline",
  "description": "two to four sentence summary",
  "metrics": {
    "strengths": ["..."],
    "weaknesses": ["..."],
    "patterns": ["..."],
    "concerns": ["..."],
    "positives": ["..."],
    "effective": ["..."]
  },
  "recommendations": ["..."]
}`

// ChatPromptInput is the evidence rendered into the chat system prompt
type ChatPromptInput struct {
	Stats  map[string]float64
	Trades []models.Trade
	Plans  []models.TradingPlan
}

// BuildChatSystemPrompt renders the system prompt for one chat turn
func BuildChatSystemPrompt(in ChatPromptInput) string {
	var sb strings.Builder
	sb.Grow(1024 + len(in.Trades)*120 + len(in.Plans)*160)

	sb.WriteString(chatSystemMessage)
	sb.WriteString("\n\n")

	if len(in.Stats) > 0 {
		sb.WriteString("Account statistics:\n")
		keys := make([]string, 0, len(in.Stats))
		for k := range in.Stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %.2f\n", strings.ReplaceAll(k, "_", " "), in.Stats[k])
		}
		sb.WriteString("\n")
	}

	if len(in.Trades) > 0 {
		sb.WriteString("Relevant past trades:\n")
		for _, t := range in.Trades {
			sb.WriteString("- ")
			sb.WriteString(FormatTradeLine(t))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if len(in.Plans) > 0 {
		sb.WriteString("Relevant trading plans:\n")
		for _, p := range in.Plans {
			sb.WriteString("- ")
			sb.WriteString(formatPlanLine(p))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if len(in.Trades) == 0 && len(in.Plans) == 0 {
		sb.WriteString("No specific past trades or plans matched this question.\n")
	}

	return sb.String()
}

// FormatTradeLine renders a trade as one compact prompt line
func FormatTradeLine(t models.Trade) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s %s x%d, net %s",
		t.Date.Format("2006-01-02"), t.Ticker, t.Direction, t.Size, helpers.FormatUSD(t.NetPnL))
	if d := t.DurationSeconds(); d > 0 {
		fmt.Fprintf(&sb, ", held %s", helpers.FormatDuration(d))
	}
	if t.EntryTime != nil {
		fmt.Fprintf(&sb, ", entered %s", t.EntryTime.Format("15:04"))
	}
	if notes := strings.TrimSpace(t.Notes); notes != "" {
		fmt.Fprintf(&sb, ", notes: %s", clip(notes, maxNoteLength))
	}
	return sb.String()
}

func formatPlanLine(p models.TradingPlan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s bias %s", p.Date.Format("2006-01-02"), orNone(p.MarketBias))
	if len(p.KeyLevels) > 0 {
		fmt.Fprintf(&sb, ", key levels %s", strings.Join(p.KeyLevels, ", "))
	}
	if p.MaxDailyLoss > 0 {
		fmt.Fprintf(&sb, ", max daily loss %s", helpers.FormatUSD(p.MaxDailyLoss))
	}
	for _, s := range p.Setups {
		fmt.Fprintf(&sb, "; setup %s %s entry %.2f stop %.2f target %.2f",
			s.Ticker, s.Direction, s.EntryPrice, s.StopLoss, s.TakeProfit)
	}
	return sb.String()
}

// InsightSystemPrompt returns the category prompt for an insight type
func InsightSystemPrompt(t models.InsightType) (string, error) {
	var focus string
	switch t {
	case models.InsightPerformance:
		focus = "Evaluate overall performance: win rate, average win versus average loss, profit factor, consistency across days and instruments."
	case models.InsightPsychology:
		focus = "Evaluate trading psychology: revenge trading after losses, overtrading, hesitation, discipline with planned stops and targets, emotional notes."
	case models.InsightPattern:
		focus = "Identify recurring behavioral patterns: time of day, holding time, instruments and setups that repeatedly win or lose."
	case models.InsightRisk:
		focus = "Evaluate risk management: position sizing consistency, drawdowns, losing streaks, loss size relative to wins, adherence to planned stops."
	default:
		return "", fmt.Errorf("%w: %q", models.ErrUnknownInsightType, string(t))
	}

	var sb strings.Builder
	sb.WriteString("You are a professional trading performance analyst.\n")
	sb.WriteString(focus)
	sb.WriteString("\nRespond with a single JSON object and nothing else, using exactly this shape:\n")
	sb.WriteString(insightJSONShape)
	sb.WriteString("\nEvery list must be present; use an empty list when you have nothing to say.")
	return sb.String(), nil
}

// InsightUserPrompt lists the analyzed trades, at most 50
func InsightUserPrompt(t models.InsightType, trades []models.Trade) string {
	if len(trades) > maxPromptTrades {
		trades = trades[:maxPromptTrades]
	}

	var wins int
	var net float64
	for _, tr := range trades {
		if tr.IsWin() {
			wins++
		}
		net += tr.NetPnL
	}

	var sb strings.Builder
	sb.Grow(256 + len(trades)*120)
	fmt.Fprintf(&sb, "Produce a %s analysis of these %d trades.\n", strings.ToLower(t.Title()), len(trades))
	if len(trades) > 0 {
		fmt.Fprintf(&sb, "Wins: %d of %d, total net %s.\n", wins, len(trades), helpers.FormatUSD(net))
	}
	sb.WriteString("Trades (most recent first):\n")
	for _, tr := range trades {
		sb.WriteString("- ")
		sb.WriteString(FormatTradeLine(tr))
		sb.WriteString("\n")
	}
	return sb.String()
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}
