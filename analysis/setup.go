package analysis

import (
	"errors"
	"fmt"
	"math"

	models "trading-journal/database/models_pkg"
)

// SetupType is the closed set of setup archetypes
type SetupType string

const (
	SetupBreakout          SetupType = "breakout"
	SetupPullback          SetupType = "pullback"
	SetupReversal          SetupType = "reversal"
	SetupTrendContinuation SetupType = "trend_continuation"
	SetupRangeBound        SetupType = "range_bound"
	SetupMomentum          SetupType = "momentum"
)

// SetupTypes lists every archetype in evaluation order
var SetupTypes = []SetupType{
	SetupBreakout, SetupPullback, SetupReversal,
	SetupTrendContinuation, SetupRangeBound, SetupMomentum,
}

// ErrUnknownSetupType is returned for names outside SetupTypes
var ErrUnknownSetupType = errors.New("unknown setup type")

// ParseSetupType converts a stored sub type back into a SetupType
func ParseSetupType(s string) (SetupType, error) {
	for _, t := range SetupTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSetupType, s)
}

// setupDescription is the text attached to a setup pattern
type setupDescription struct {
	EntryConditions []string
	ExitConditions  []string
	Tags            []string
}

// describe returns the entry/exit conditions and tags of an archetype
func (s SetupType) describe() (setupDescription, error) {
	switch s {
	case SetupBreakout:
		return setupDescription{
			EntryConditions: []string{"Price clears a key level with expanding volume", "Entry on the first push through the level"},
			ExitConditions:  []string{"Exit within 30 minutes if follow-through stalls", "Stop back inside the broken level"},
			Tags:            []string{"breakout", "short_duration", "level_break"},
		}, nil
	case SetupPullback:
		return setupDescription{
			EntryConditions: []string{"Established trend retraces to support or a moving average", "Entry as the retracement holds"},
			ExitConditions:  []string{"Target the prior swing extreme", "Stop below the pullback low"},
			Tags:            []string{"pullback", "trend", "medium_duration"},
		}, nil
	case SetupReversal:
		return setupDescription{
			EntryConditions: []string{"Extended move shows exhaustion at a key level", "Entry on confirmation of the turn"},
			ExitConditions:  []string{"Scale out into the reversal", "Stop beyond the exhaustion extreme"},
			Tags:            []string{"reversal", "counter_trend", "large_winner"},
		}, nil
	case SetupTrendContinuation:
		return setupDescription{
			EntryConditions: []string{"Higher timeframe trend intact", "Entry on consolidation resolving with the trend"},
			ExitConditions:  []string{"Trail the stop behind structure", "Hold while the trend persists"},
			Tags:            []string{"trend_continuation", "long_duration", "trend"},
		}, nil
	case SetupRangeBound:
		return setupDescription{
			EntryConditions: []string{"Price rotates inside a defined range", "Entry near the range edge"},
			ExitConditions:  []string{"Target the opposite side of the range", "Exit on a range break"},
			Tags:            []string{"range_bound", "mean_reversion", "small_result"},
		}, nil
	case SetupMomentum:
		return setupDescription{
			EntryConditions: []string{"Strong directional impulse", "Entry with above-average size"},
			ExitConditions:  []string{"Exit quickly once momentum fades", "Hard stop on the first opposing bar"},
			Tags:            []string{"momentum", "scalp", "size_up"},
		}, nil
	default:
		return setupDescription{}, fmt.Errorf("%w: %q", ErrUnknownSetupType, string(s))
	}
}

// TickerContext is the per-ticker information a classifier may use
type TickerContext struct {
	Ticker   string
	MeanSize float64
}

// Classifier assigns setup archetypes to a trade
type Classifier interface {
	Classify(t models.Trade, ctx TickerContext) []SetupType
}

// HeuristicClassifier classifies by holding time and result only.
// Trades with no usable duration are never matched by the duration rules.
type HeuristicClassifier struct{}

// Classify returns every archetype whose heuristic the trade satisfies
func (HeuristicClassifier) Classify(t models.Trade, ctx TickerContext) []SetupType {
	var out []SetupType
	for _, s := range SetupTypes {
		if heuristicMatch(s, t, ctx) {
			out = append(out, s)
		}
	}
	return out
}

func heuristicMatch(s SetupType, t models.Trade, ctx TickerContext) bool {
	minutes := t.DurationMinutes()
	timed := minutes > 0

	switch s {
	case SetupBreakout:
		return timed && minutes < 30
	case SetupPullback:
		return timed && minutes >= 30 && minutes < 120
	case SetupReversal:
		return t.NetPnL > 100
	case SetupTrendContinuation:
		return timed && minutes > 240
	case SetupRangeBound:
		return timed && minutes >= 120 && minutes <= 240 && math.Abs(t.NetPnL) < 50
	case SetupMomentum:
		return timed && minutes < 15 && float64(t.Size) > ctx.MeanSize
	default:
		return false
	}
}
