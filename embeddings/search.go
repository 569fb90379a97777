package embeddings

import (
	"context"
	"sort"
	"time"

	dbembeddings "trading-journal/database/embeddings"
	models "trading-journal/database/models_pkg"
)

// SearchQuery is a similarity lookup over a user's trades and plans
type SearchQuery struct {
	Text      string
	Threshold float64 // zero uses the configured threshold
	Limit     int     // zero uses the configured limit
	From      *time.Time
	To        *time.Time
}

// SearchResult holds hydrated matches, most similar first.
// It is empty, never nil-erroring, when any stage fails; Degraded says which.
type SearchResult struct {
	Trades     []models.Trade       `json:"trades"`
	Plans      []models.TradingPlan `json:"plans"`
	Similarity map[string]float64   `json:"similarity"`
	Degraded   Degraded             `json:"degraded,omitempty"`
}

// Empty reports whether nothing was retrieved
func (r SearchResult) Empty() bool {
	return len(r.Trades) == 0 && len(r.Plans) == 0
}

// Search embeds the query and returns the nearest trades and plans of the user
func (x *Indexer) Search(ctx context.Context, q SearchQuery) SearchResult {
	result := SearchResult{
		Trades:     []models.Trade{},
		Plans:      []models.TradingPlan{},
		Similarity: map[string]float64{},
	}
	if x.userID == "" {
		result.Degraded = DegradedNoOwner
		return result
	}
	if !x.Ready() {
		result.Degraded = x.degraded
		return result
	}

	vec, ok := x.queryVector(ctx, q.Text)
	if !ok {
		result.Degraded = DegradedProviderError
		return result
	}

	params := dbembeddings.SearchParams{
		UserID:    x.userID,
		Threshold: q.Threshold,
		Limit:     q.Limit,
		From:      q.From,
		To:        q.To,
	}
	if params.Threshold <= 0 {
		params.Threshold = x.svc.cfg.SearchThreshold
	}
	if params.Limit <= 0 {
		params.Limit = x.svc.cfg.SearchLimit
	}

	if trades, scores, degraded := x.searchTrades(ctx, vec, params); degraded == NotDegraded {
		result.Trades = trades
		for id, s := range scores {
			result.Similarity[id] = s
		}
	} else {
		result.Degraded = degraded
	}

	if plans, scores, degraded := x.searchPlans(ctx, vec, params); degraded == NotDegraded {
		result.Plans = plans
		for id, s := range scores {
			result.Similarity[id] = s
		}
	} else if result.Degraded == NotDegraded {
		result.Degraded = degraded
	}

	return result
}

func (x *Indexer) queryVector(ctx context.Context, text string) ([]float32, bool) {
	model := x.svc.factory.EmbeddingModel()
	if vec, ok := x.svc.cache.GetQueryVector(ctx, model, text); ok {
		return vec, true
	}

	vec, err := x.embedder.Embed(ctx, text)
	if err != nil {
		x.log.Warn().Err(err).Msg("Failed to embed search query")
		return nil, false
	}
	if err := x.svc.cache.SetQueryVector(ctx, model, text, vec, x.svc.cfg.QueryCacheTTL); err != nil {
		x.log.Debug().Err(err).Msg("Query vector not cached")
	}
	return vec, true
}

func (x *Indexer) searchTrades(ctx context.Context, vec []float32, p dbembeddings.SearchParams) ([]models.Trade, map[string]float64, Degraded) {
	matches, err := x.svc.store.SearchTrades(ctx, vec, p)
	if err != nil {
		x.log.Warn().Err(err).Msg("Trade similarity search failed")
		return nil, nil, DegradedStoreError
	}
	if len(matches) == 0 {
		return []models.Trade{}, nil, NotDegraded
	}

	scores, ids := scoreIndex(matches)
	trades, err := x.svc.trades.ListByIDs(ctx, x.userID, ids)
	if err != nil {
		x.log.Warn().Err(err).Msg("Failed to hydrate matched trades")
		return nil, nil, DegradedHydration
	}
	sort.SliceStable(trades, func(i, j int) bool {
		return scores[trades[i].ID] > scores[trades[j].ID]
	})
	return trades, scores, NotDegraded
}

func (x *Indexer) searchPlans(ctx context.Context, vec []float32, p dbembeddings.SearchParams) ([]models.TradingPlan, map[string]float64, Degraded) {
	matches, err := x.svc.store.SearchPlans(ctx, vec, p)
	if err != nil {
		x.log.Warn().Err(err).Msg("Plan similarity search failed")
		return nil, nil, DegradedStoreError
	}
	if len(matches) == 0 {
		return []models.TradingPlan{}, nil, NotDegraded
	}

	scores, ids := scoreIndex(matches)
	plans, err := x.svc.plans.ListByIDs(ctx, x.userID, ids)
	if err != nil {
		x.log.Warn().Err(err).Msg("Failed to hydrate matched plans")
		return nil, nil, DegradedHydration
	}
	sort.SliceStable(plans, func(i, j int) bool {
		return scores[plans[i].ID] > scores[plans[j].ID]
	})
	return plans, scores, NotDegraded
}

func scoreIndex(matches []dbembeddings.Match) (map[string]float64, []string) {
	scores := make(map[string]float64, len(matches))
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		scores[m.ID] = m.Similarity
		ids = append(ids, m.ID)
	}
	return scores, ids
}
