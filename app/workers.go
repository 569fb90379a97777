package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trading-journal/analysis"
	"trading-journal/embeddings"
	"trading-journal/realtime"
)

// activityWindow selects users whose journal changed recently enough to revisit
const activityWindow = 24 * time.Hour

// ActiveUserSource lists users with recent trades
type ActiveUserSource interface {
	ActiveUsers(ctx context.Context, since time.Time) ([]string, error)
}

// Analyzer runs pattern analysis for one user
type Analyzer interface {
	Analyze(ctx context.Context, userID string) (*analysis.Report, error)
}

// IndexerSource opens a user's embedding index
type IndexerSource interface {
	Initialize(ctx context.Context, userID string) (*embeddings.Indexer, bool)
}

// Publisher delivers realtime events
type Publisher interface {
	Publish(ctx context.Context, userID, eventType string, payload interface{})
}

// loop runs fn immediately and then on every tick until ctx is done or stop is closed
func loop(ctx context.Context, interval time.Duration, stop <-chan struct{}, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fn(ctx)
	for {
		select {
		case <-ticker.C:
			fn(ctx)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// PatternScheduler periodically re-analyzes users with recent trades
type PatternScheduler struct {
	users    ActiveUserSource
	engine   Analyzer
	events   Publisher
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
}

// NewPatternScheduler creates a new pattern scheduler
func NewPatternScheduler(users ActiveUserSource, engine Analyzer, events Publisher, interval time.Duration, logger zerolog.Logger) *PatternScheduler {
	return &PatternScheduler{
		users:    users,
		engine:   engine,
		events:   events,
		interval: interval,
		logger:   logger.With().Str("component", "pattern_scheduler").Logger(),
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Start begins the analysis loop; it blocks until Stop or ctx is done
func (ps *PatternScheduler) Start(ctx context.Context) {
	ps.logger.Info().Dur("interval", ps.interval).Msg("Pattern scheduler started")
	loop(ctx, ps.interval, ps.done, ps.runOnce)
	ps.logger.Info().Msg("Pattern scheduler stopped")
}

// Stop stops the analysis loop
func (ps *PatternScheduler) Stop() {
	ps.stopOnce.Do(func() { close(ps.done) })
}

func (ps *PatternScheduler) runOnce(ctx context.Context) {
	users, err := ps.users.ActiveUsers(ctx, ps.now().Add(-activityWindow))
	if err != nil {
		ps.logger.Error().Err(err).Msg("Failed to list active users")
		return
	}

	analyzed := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			return
		}
		report, err := ps.engine.Analyze(ctx, userID)
		if err != nil {
			ps.logger.Error().Err(err).Str("user_id", userID).Msg("Pattern analysis failed")
			continue
		}
		analyzed++
		ps.events.Publish(ctx, userID, realtime.EventPatternsAnalyzed, map[string]interface{}{
			"trades_analyzed": report.TradesAnalyzed,
			"patterns":        len(report.Patterns),
			"retired":         report.Retired,
		})
	}
	ps.logger.Info().Int("users", len(users)).Int("analyzed", analyzed).Msg("Pattern analysis run complete")
}

// BackfillWorker periodically indexes trades and plans that have no embedding yet
type BackfillWorker struct {
	users    ActiveUserSource
	indexers IndexerSource
	events   Publisher
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
}

// NewBackfillWorker creates a new backfill worker
func NewBackfillWorker(users ActiveUserSource, indexers IndexerSource, events Publisher, interval time.Duration, logger zerolog.Logger) *BackfillWorker {
	return &BackfillWorker{
		users:    users,
		indexers: indexers,
		events:   events,
		interval: interval,
		logger:   logger.With().Str("component", "backfill_worker").Logger(),
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Start begins the backfill loop; it blocks until Stop or ctx is done
func (bw *BackfillWorker) Start(ctx context.Context) {
	bw.logger.Info().Dur("interval", bw.interval).Msg("Backfill worker started")
	loop(ctx, bw.interval, bw.done, bw.runOnce)
	bw.logger.Info().Msg("Backfill worker stopped")
}

// Stop stops the backfill loop
func (bw *BackfillWorker) Stop() {
	bw.stopOnce.Do(func() { close(bw.done) })
}

func (bw *BackfillWorker) runOnce(ctx context.Context) {
	users, err := bw.users.ActiveUsers(ctx, bw.now().Add(-activityWindow))
	if err != nil {
		bw.logger.Error().Err(err).Msg("Failed to list active users")
		return
	}

	for _, userID := range users {
		if ctx.Err() != nil {
			return
		}
		indexer, ok := bw.indexers.Initialize(ctx, userID)
		if !ok {
			bw.logger.Debug().Str("user_id", userID).Str("degraded", string(indexer.Degraded())).Msg("Skipping backfill")
			continue
		}

		report := indexer.Backfill(ctx)
		if report.Indexed > 0 || report.Pruned > 0 {
			bw.events.Publish(ctx, userID, realtime.EventEmbeddingsBackfilled, report)
		}
		bw.logger.Info().
			Str("user_id", userID).
			Int("pending", report.Pending).
			Int("indexed", report.Indexed).
			Int("failed", report.Failed).
			Int("pruned", report.Pruned).
			Msg("Backfill complete")
	}
}
