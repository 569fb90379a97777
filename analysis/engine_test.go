package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-journal/config"
	"trading-journal/database"
	models "trading-journal/database/models_pkg"
)

type fakeTrades struct {
	trades []models.Trade
	err    error
}

func (f *fakeTrades) ListByUser(_ context.Context, userID string, _ int) ([]models.Trade, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Trade
	for _, t := range f.trades {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakePatternStore struct {
	patterns  map[string]*models.TradePattern // keyed by pattern key
	recs      map[string]*models.PatternRecommendation
	evidence  []models.Trade
	upsertErr error
	upserts   int
	nextID    int
}

func newFakePatternStore() *fakePatternStore {
	return &fakePatternStore{
		patterns: map[string]*models.TradePattern{},
		recs:     map[string]*models.PatternRecommendation{},
	}
}

func patternKey(p *models.TradePattern) string {
	return fmt.Sprintf("%s|%s|%s|%s", p.UserID, p.PatternType, p.SubType, p.BucketKey)
}

func (f *fakePatternStore) UpsertPattern(_ context.Context, p *models.TradePattern) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts++
	key := patternKey(p)
	if existing, ok := f.patterns[key]; ok {
		p.ID = existing.ID
	} else {
		f.nextID++
		p.ID = fmt.Sprintf("pattern-%d", f.nextID)
	}
	stored := *p
	f.patterns[key] = &stored
	return nil
}

func (f *fakePatternStore) RetireStale(_ context.Context, userID string, keep []string) (int64, error) {
	live := map[string]bool{}
	for _, id := range keep {
		live[id] = true
	}
	var n int64
	for k, p := range f.patterns {
		if p.UserID == userID && !live[p.ID] {
			delete(f.patterns, k)
			n++
		}
	}
	return n, nil
}

func (f *fakePatternStore) GetPattern(_ context.Context, userID, id string) (*models.TradePattern, error) {
	for _, p := range f.patterns {
		if p.ID == id && p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, database.NewNotFoundErrorWithID("pattern", id)
}

func (f *fakePatternStore) RecentMatchedTrades(_ context.Context, _, _ string, limit int) ([]models.Trade, error) {
	if len(f.evidence) > limit {
		return f.evidence[:limit], nil
	}
	return f.evidence, nil
}

func (f *fakePatternStore) SaveRecommendation(_ context.Context, rec *models.PatternRecommendation) error {
	rec.ID = fmt.Sprintf("rec-%d", len(f.recs)+1)
	cp := *rec
	f.recs[rec.ID] = &cp
	return nil
}

func (f *fakePatternStore) GetRecommendation(_ context.Context, userID, id string) (*models.PatternRecommendation, error) {
	r, ok := f.recs[id]
	if !ok || r.UserID != userID {
		return nil, database.NewNotFoundErrorWithID("recommendation", id)
	}
	cp := *r
	return &cp, nil
}

func (f *fakePatternStore) ListRecommendations(_ context.Context, userID string, _ int) ([]models.PatternRecommendation, error) {
	var out []models.PatternRecommendation
	for _, r := range f.recs {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakePatternStore) UpdateRecommendationStatus(_ context.Context, _, id string, status models.RecommendationStatus) error {
	f.recs[id].Status = status
	return nil
}

func (f *fakePatternStore) byType(pt models.PatternType) []*models.TradePattern {
	var out []*models.TradePattern
	for _, p := range f.patterns {
		if p.PatternType == pt {
			out = append(out, p)
		}
	}
	return out
}

func testConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		MinTimeSamples:        5,
		MinSetupTickerSamples: 10,
		MinSetupSamples:       5,
		MinRiskSamples:        2,
		MinSuccessRate:        0.6,
		MinRiskScore:          30,
		RecommendationWindow:  24 * time.Hour,
	}
}

var baseDay = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

// mkTrade builds a trade entered at hour:minute on day offset, held for the given minutes
func mkTrade(id string, day, hour, minute, held int, pnl float64) models.Trade {
	entry := baseDay.AddDate(0, 0, day).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
	exit := entry.Add(time.Duration(held) * time.Minute)
	return models.Trade{
		ID:        id,
		UserID:    "user-1",
		Date:      baseDay.AddDate(0, 0, day),
		Ticker:    "ES",
		Direction: models.DirectionLong,
		Size:      1,
		EntryTime: &entry,
		ExitTime:  &exit,
		PnL:       pnl,
		NetPnL:    pnl,
	}
}

func newTestEngine(trades []models.Trade, store *fakePatternStore, c Classifier) *Engine {
	e := NewEngine(&fakeTrades{trades: trades}, store, c, testConfig(), zerolog.Nop())
	e.now = func() time.Time { return baseDay.Add(12 * time.Hour) }
	return e
}

func TestAnalyzeTimePatterns(t *testing.T) {
	var trades []models.Trade
	// hour 9: 4 of 5 win -> 0.8, emitted
	for i, pnl := range []float64{50, 60, 70, 80, -20} {
		trades = append(trades, mkTrade(fmt.Sprintf("a%d", i), i, 9, 30, 20, pnl))
	}
	// hour 10: 3 of 5 win -> 0.6, not strictly above the threshold
	for i, pnl := range []float64{50, 60, 70, -80, -20} {
		trades = append(trades, mkTrade(fmt.Sprintf("b%d", i), i, 10, 0, 20, pnl))
	}
	// hour 11: all win but only 4 trades
	for i := 0; i < 4; i++ {
		trades = append(trades, mkTrade(fmt.Sprintf("c%d", i), i, 11, 0, 20, 40))
	}

	store := newFakePatternStore()
	report, err := newTestEngine(trades, store, nil).Analyze(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 14, report.TradesAnalyzed)

	timeBased := store.byType(models.PatternTypeTimeBased)
	require.Len(t, timeBased, 1)
	p := timeBased[0]
	assert.Equal(t, "hour_09", p.SubType)
	assert.Equal(t, "hour:9", p.BucketKey)
	assert.Equal(t, 0.8, p.SuccessRate)
	assert.Equal(t, 5, p.SampleSize)
	assert.Equal(t, 0.25, p.ConfidenceScore)
	assert.Len(t, p.Matches, 5)

	var data map[string]any
	require.NoError(t, json.Unmarshal(p.PatternData, &data))
	assert.Equal(t, 48.0, data["avg_profit"])
	assert.Equal(t, 20.0, data["avg_duration_minutes"])
}

func TestTimePatternConfidenceSaturates(t *testing.T) {
	var trades []models.Trade
	for i := 0; i < 30; i++ {
		trades = append(trades, mkTrade(fmt.Sprintf("t%d", i), i, 14, 0, 10, 25))
	}
	e := newTestEngine(trades, newFakePatternStore(), nil)

	patterns := e.timePatterns("user-1", trades)
	require.Len(t, patterns, 1)
	assert.Equal(t, 1.0, patterns[0].ConfidenceScore)
	assert.Equal(t, 1.0, patterns[0].SuccessRate)
}

func TestTimePatternsSkipUntimedTrades(t *testing.T) {
	var trades []models.Trade
	for i := 0; i < 6; i++ {
		tr := mkTrade(fmt.Sprintf("t%d", i), i, 9, 0, 10, 25)
		tr.EntryTime = nil
		trades = append(trades, tr)
	}
	e := newTestEngine(trades, newFakePatternStore(), nil)
	assert.Empty(t, e.timePatterns("user-1", trades))
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	var trades []models.Trade
	for i := 0; i < 6; i++ {
		trades = append(trades, mkTrade(fmt.Sprintf("t%d", i), i, 9, 0, 10, 25))
	}
	store := newFakePatternStore()
	e := newTestEngine(trades, store, nil)

	first, err := e.Analyze(context.Background(), "user-1")
	require.NoError(t, err)
	count := len(store.patterns)

	second, err := e.Analyze(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, store.patterns, count)
	assert.Equal(t, first.Patterns[0].ID, second.Patterns[0].ID)
	assert.Zero(t, second.Retired)
}

func TestAnalyzeRetiresPatternsNoLongerProduced(t *testing.T) {
	var trades []models.Trade
	for i := 0; i < 6; i++ {
		trades = append(trades, mkTrade(fmt.Sprintf("t%d", i), i, 9, 0, 10, 25))
	}
	fake := &fakeTrades{trades: trades}
	store := newFakePatternStore()
	e := NewEngine(fake, store, nil, testConfig(), zerolog.Nop())

	_, err := e.Analyze(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, store.byType(models.PatternTypeTimeBased), 1)

	// the hour turns into a losing one
	for i := range fake.trades {
		fake.trades[i].NetPnL = -25
	}
	report, err := e.Analyze(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, store.byType(models.PatternTypeTimeBased))
	assert.GreaterOrEqual(t, report.Retired, int64(1))
}

func TestAnalyzePropagatesPersistenceFailure(t *testing.T) {
	var trades []models.Trade
	for i := 0; i < 6; i++ {
		trades = append(trades, mkTrade(fmt.Sprintf("t%d", i), i, 9, 0, 10, 25))
	}
	dbErr := errors.New("connection reset")
	store := newFakePatternStore()
	store.upsertErr = dbErr

	report, err := newTestEngine(trades, store, nil).Analyze(context.Background(), "user-1")
	assert.Nil(t, report)
	assert.ErrorIs(t, err, dbErr)
}

func TestAnalyzeRequiresUser(t *testing.T) {
	_, err := newTestEngine(nil, newFakePatternStore(), nil).Analyze(context.Background(), "")
	assert.True(t, database.IsValidation(err))
}

func TestAnalyzeEmptyHistory(t *testing.T) {
	store := newFakePatternStore()
	report, err := newTestEngine(nil, store, nil).Analyze(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Zero(t, report.TradesAnalyzed)
	assert.Zero(t, store.upserts)
}

// stubClassifier tags trades by id
type stubClassifier map[string][]SetupType

func (s stubClassifier) Classify(t models.Trade, _ TickerContext) []SetupType {
	return s[t.ID]
}

func TestSetupPatterns(t *testing.T) {
	// 12 ES trades, 6 wins overall -> ticker win rate 0.5
	var trades []models.Trade
	classes := stubClassifier{}
	for i := 0; i < 12; i++ {
		pnl := -30.0
		if i < 6 {
			pnl = 60
		}
		id := fmt.Sprintf("t%d", i)
		trades = append(trades, mkTrade(id, i, 9+i%3, 0, 10, pnl))
		if i < 5 || i == 11 {
			// five winners and a loser -> 5/6 beats the ticker
			classes[id] = append(classes[id], SetupBreakout)
		}
		if i >= 6 && i < 11 {
			// losers only -> never beats the ticker
			classes[id] = append(classes[id], SetupReversal)
		}
	}
	// a second ticker below the sample threshold
	for i := 0; i < 9; i++ {
		tr := mkTrade(fmt.Sprintf("nq%d", i), i, 9, 0, 10, 80)
		tr.Ticker = "NQ"
		trades = append(trades, tr)
		classes[tr.ID] = []SetupType{SetupMomentum}
	}

	e := newTestEngine(trades, newFakePatternStore(), classes)
	patterns := e.setupPatterns("user-1", trades)
	require.Len(t, patterns, 1)

	p := patterns[0]
	assert.Equal(t, models.PatternTypeSetup, p.PatternType)
	assert.Equal(t, "breakout", p.SubType)
	assert.Equal(t, "ticker:ES", p.BucketKey)
	assert.Equal(t, 6, p.SampleSize)
	assert.InDelta(t, 5.0/6, p.SuccessRate, 1e-4)

	var data struct {
		Ticker          string      `json:"ticker"`
		EntryConditions []string    `json:"entry_conditions"`
		Tags            []string    `json:"tags"`
		RiskMetrics     riskMetrics `json:"risk_metrics"`
	}
	require.NoError(t, json.Unmarshal(p.PatternData, &data))
	assert.Equal(t, "ES", data.Ticker)
	assert.NotEmpty(t, data.EntryConditions)
	assert.Contains(t, data.Tags, "breakout")
	assert.Equal(t, 10.0, data.RiskMetrics.ProfitFactor)
	assert.Equal(t, 2.0, data.RiskMetrics.RiskRewardRatio)
}

func TestHeuristicClassifier(t *testing.T) {
	c := HeuristicClassifier{}
	ctx := TickerContext{Ticker: "ES", MeanSize: 2}

	quick := mkTrade("q", 0, 9, 0, 10, 20)
	quick.Size = 3
	assert.ElementsMatch(t, []SetupType{SetupBreakout, SetupMomentum}, c.Classify(quick, ctx))

	assert.Equal(t, []SetupType{SetupPullback}, c.Classify(mkTrade("p", 0, 9, 0, 60, 20), ctx))
	assert.Equal(t, []SetupType{SetupRangeBound}, c.Classify(mkTrade("r", 0, 9, 0, 180, 20), ctx))
	assert.ElementsMatch(t, []SetupType{SetupTrendContinuation, SetupReversal},
		c.Classify(mkTrade("l", 0, 9, 0, 300, 500), ctx))

	untimed := mkTrade("u", 0, 9, 0, 0, 20)
	assert.Empty(t, c.Classify(untimed, ctx))
}

func TestSetupTypeDescriptions(t *testing.T) {
	for _, s := range SetupTypes {
		d, err := s.describe()
		require.NoError(t, err, s)
		assert.NotEmpty(t, d.EntryConditions)
		assert.NotEmpty(t, d.ExitConditions)
		assert.NotEmpty(t, d.Tags)
	}
	_, err := SetupType("scalp").describe()
	assert.ErrorIs(t, err, ErrUnknownSetupType)

	_, err = ParseSetupType("wedge")
	assert.ErrorIs(t, err, ErrUnknownSetupType)
}
