// Package analysis mines a user's trade history for statistically supported
// patterns and turns patterns into time-boxed trade recommendations.
//
// Three independent passes run over the full history:
//   - time based: win rate per entry hour
//   - setup based: heuristic setup archetypes per ticker
//   - risk based: position sizing, drawdown, P&L volatility and time of day
//
// Patterns are upserted by (user, type, sub type, bucket) so repeated runs refresh
// the same rows. Patterns a run no longer produces are retired.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"trading-journal/config"
	"trading-journal/database"
	models "trading-journal/database/models_pkg"
)

// ErrNoMatchedTrades is returned when a pattern has no matched trades to build a recommendation from
var ErrNoMatchedTrades = errors.New("pattern has no matched trades")

// TradeLister loads a user's trades, newest first
type TradeLister interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Trade, error)
}

// PatternStore persists patterns, matches and recommendations
type PatternStore interface {
	UpsertPattern(ctx context.Context, p *models.TradePattern) error
	RetireStale(ctx context.Context, userID string, keep []string) (int64, error)
	GetPattern(ctx context.Context, userID, id string) (*models.TradePattern, error)
	RecentMatchedTrades(ctx context.Context, userID, patternID string, limit int) ([]models.Trade, error)
	SaveRecommendation(ctx context.Context, rec *models.PatternRecommendation) error
	GetRecommendation(ctx context.Context, userID, id string) (*models.PatternRecommendation, error)
	ListRecommendations(ctx context.Context, userID string, limit int) ([]models.PatternRecommendation, error)
	UpdateRecommendationStatus(ctx context.Context, userID, id string, status models.RecommendationStatus) error
}

// Engine runs the analysis passes for one user at a time
type Engine struct {
	trades     TradeLister
	store      PatternStore
	classifier Classifier
	cfg        config.AnalysisConfig
	logger     zerolog.Logger
	now        func() time.Time
}

// NewEngine creates an engine. A nil classifier selects HeuristicClassifier.
func NewEngine(trades TradeLister, store PatternStore, classifier Classifier, cfg config.AnalysisConfig, logger zerolog.Logger) *Engine {
	if classifier == nil {
		classifier = HeuristicClassifier{}
	}
	return &Engine{
		trades:     trades,
		store:      store,
		classifier: classifier,
		cfg:        cfg,
		logger:     logger.With().Str("component", "pattern_engine").Logger(),
		now:        time.Now,
	}
}

// Report summarises one Analyze run
type Report struct {
	UserID         string                `json:"user_id"`
	TradesAnalyzed int                   `json:"trades_analyzed"`
	Patterns       []models.TradePattern `json:"patterns"`
	Retired        int64                 `json:"retired"`
}

// Analyze runs every pass over the user's full history and persists the result.
// The first persistence failure aborts the run and is returned.
func (e *Engine) Analyze(ctx context.Context, userID string) (*Report, error) {
	if userID == "" {
		return nil, database.NewValidationError("user_id", "required")
	}

	trades, err := e.trades.ListByUser(ctx, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("Analyze: load trades: %w", err)
	}

	report := &Report{UserID: userID, TradesAnalyzed: len(trades)}
	if len(trades) == 0 {
		return report, nil
	}

	var found []models.TradePattern
	found = append(found, e.timePatterns(userID, trades)...)
	found = append(found, e.setupPatterns(userID, trades)...)
	found = append(found, e.riskPatterns(userID, trades)...)

	keep := make([]string, 0, len(found))
	for i := range found {
		if err := e.store.UpsertPattern(ctx, &found[i]); err != nil {
			e.logger.Error().Err(err).
				Str("user_id", userID).
				Str("pattern_type", string(found[i].PatternType)).
				Str("sub_type", found[i].SubType).
				Msg("Failed to persist pattern")
			return nil, fmt.Errorf("Analyze: %w", err)
		}
		keep = append(keep, found[i].ID)
	}

	retired, err := e.store.RetireStale(ctx, userID, keep)
	if err != nil {
		return nil, fmt.Errorf("Analyze: retire stale patterns: %w", err)
	}

	report.Patterns = found
	report.Retired = retired

	e.logger.Info().
		Str("user_id", userID).
		Int("trades", len(trades)).
		Int("patterns", len(found)).
		Int64("retired", retired).
		Msg("Pattern analysis complete")
	return report, nil
}

// newPattern assembles a pattern row; confidence derives from the sample size
func (e *Engine) newPattern(userID string, pt models.PatternType, subType, bucket string, data map[string]any,
	successRate float64, n int, riskScore *float64, matches []models.PatternMatch) models.TradePattern {

	raw, err := json.Marshal(data)
	if err != nil {
		e.logger.Warn().Err(err).Str("sub_type", subType).Msg("Pattern data not serializable")
		raw = []byte("{}")
	}
	for i := range matches {
		matches[i].UserID = userID
	}
	return models.TradePattern{
		UserID:          userID,
		PatternType:     pt,
		SubType:         subType,
		BucketKey:       bucket,
		PatternData:     datatypes.JSON(raw),
		ConfidenceScore: round4(confidence(n)),
		SuccessRate:     round4(successRate),
		SampleSize:      n,
		RiskScore:       riskScore,
		Matches:         matches,
	}
}

// GenerateRecommendation builds and stores a recommendation from the pattern's
// most recent matched trades. A pattern without matches yields ErrNoMatchedTrades
// and nothing is written.
func (e *Engine) GenerateRecommendation(ctx context.Context, userID, patternID string) (*models.PatternRecommendation, error) {
	pattern, err := e.store.GetPattern(ctx, userID, patternID)
	if err != nil {
		return nil, err
	}

	trades, err := e.store.RecentMatchedTrades(ctx, userID, pattern.ID, database.RecommendationEvidenceLimit)
	if err != nil {
		return nil, fmt.Errorf("GenerateRecommendation: %w", err)
	}
	if len(trades) == 0 {
		return nil, ErrNoMatchedTrades
	}

	rec := BuildRecommendation(*pattern, trades, e.now(), e.cfg.RecommendationWindow)
	if err := e.store.SaveRecommendation(ctx, &rec); err != nil {
		return nil, fmt.Errorf("GenerateRecommendation: %w", err)
	}

	e.logger.Info().
		Str("user_id", userID).
		Str("pattern_id", pattern.ID).
		Str("ticker", rec.Ticker).
		Float64("confidence", rec.Confidence).
		Msg("Recommendation created")
	return &rec, nil
}

// TransitionRecommendation applies an explicit user action (trigger or invalidate)
func (e *Engine) TransitionRecommendation(ctx context.Context, userID, id string, to models.RecommendationStatus) (*models.PatternRecommendation, error) {
	rec, err := e.store.GetRecommendation(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := rec.Transition(to, e.now()); err != nil {
		return nil, err
	}
	if err := e.store.UpdateRecommendationStatus(ctx, userID, id, to); err != nil {
		return nil, fmt.Errorf("TransitionRecommendation: %w", err)
	}
	return rec, nil
}

// Recommendations lists a user's recommendations with expiry applied to the status
func (e *Engine) Recommendations(ctx context.Context, userID string, limit int) ([]models.PatternRecommendation, error) {
	recs, err := e.store.ListRecommendations(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	now := e.now()
	for i := range recs {
		recs[i].Status = recs[i].EffectiveStatus(now)
	}
	return recs, nil
}
