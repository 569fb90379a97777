// Package embeddings keeps the semantic index of trades and plans in sync and
// answers similarity queries against it.
//
// Indexing is best-effort: no operation here returns a provider or store failure
// to its caller. Failures are logged and reported as a Degraded reason so callers
// can continue without retrieved context.
package embeddings

import (
	"context"
	"errors"
	"time"

	"trading-journal/config"
	dbembeddings "trading-journal/database/embeddings"
	models "trading-journal/database/models_pkg"
	"trading-journal/llm"

	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"
)

// Degraded explains why an operation ran without embedding capability
type Degraded string

const (
	NotDegraded           Degraded = ""
	DegradedNoProvider    Degraded = "no_embedding_provider"
	DegradedProviderError Degraded = "embedding_request_failed"
	DegradedStoreError    Degraded = "index_store_failed"
	DegradedInvalidEntity Degraded = "invalid_entity"
	DegradedHydration     Degraded = "hydration_failed"
	DegradedNoOwner       Degraded = "missing_owner"
)

// Store is the similarity store
type Store interface {
	UpsertTrade(ctx context.Context, e *models.TradeEmbedding) error
	UpsertPlan(ctx context.Context, e *models.PlanEmbedding) error
	DeleteByEntity(ctx context.Context, userID, entityID string) error
	IndexedTradeIDs(ctx context.Context, userID string) ([]string, error)
	IndexedPlanIDs(ctx context.Context, userID string) ([]string, error)
	SearchTrades(ctx context.Context, query []float32, p dbembeddings.SearchParams) ([]dbembeddings.Match, error)
	SearchPlans(ctx context.Context, query []float32, p dbembeddings.SearchParams) ([]dbembeddings.Match, error)
}

// TradeSource lists and hydrates trades
type TradeSource interface {
	ListIDs(ctx context.Context, userID string) ([]string, error)
	ListByIDs(ctx context.Context, userID string, ids []string) ([]models.Trade, error)
}

// PlanSource lists and hydrates trading plans
type PlanSource interface {
	ListIDs(ctx context.Context, userID string) ([]string, error)
	ListByIDs(ctx context.Context, userID string, ids []string) ([]models.TradingPlan, error)
}

// KeyResolver finds the embedding credential of a user
type KeyResolver interface {
	EmbeddingKey(ctx context.Context, userID string) (string, error)
}

// EmbedderFactory builds embedding clients
type EmbedderFactory interface {
	Embedder(apiKey string) llm.Embedder
	EmbeddingModel() string
}

// Cache holds query vectors and the per-user backfill slot
type Cache interface {
	GetQueryVector(ctx context.Context, model, text string) ([]float32, bool)
	SetQueryVector(ctx context.Context, model, text string, vec []float32, ttl time.Duration) error
	AcquireBackfill(ctx context.Context, userID string, ttl time.Duration) (bool, error)
	ReleaseBackfill(ctx context.Context, userID string) error
}

// Service wires the indexer's collaborators; Initialize binds it to one user
type Service struct {
	store   Store
	trades  TradeSource
	plans   PlanSource
	keys    KeyResolver
	factory EmbedderFactory
	cache   Cache
	cfg     config.EmbeddingConfig
	logger  zerolog.Logger
}

// NewService creates the embedding service
func NewService(store Store, trades TradeSource, plans PlanSource, keys KeyResolver,
	factory EmbedderFactory, cache Cache, cfg config.EmbeddingConfig, logger zerolog.Logger) *Service {
	return &Service{
		store:   store,
		trades:  trades,
		plans:   plans,
		keys:    keys,
		factory: factory,
		cache:   cache,
		cfg:     cfg,
		logger:  logger.With().Str("component", "embeddings").Logger(),
	}
}

// Indexer is the embedding index of one user.
// An Indexer built without credentials is still usable: every call reports DegradedNoProvider.
type Indexer struct {
	svc      *Service
	userID   string
	embedder llm.Embedder
	degraded Degraded
	log      zerolog.Logger
}

// IndexOutcome is the result of indexing one entity
type IndexOutcome struct {
	Indexed  bool
	Degraded Degraded
}

// Initialize loads the user's embedding credentials.
// The boolean reports whether embedding capability is available.
func (s *Service) Initialize(ctx context.Context, userID string) (*Indexer, bool) {
	idx := &Indexer{
		svc:    s,
		userID: userID,
		log:    s.logger.With().Str("user_id", userID).Logger(),
	}
	if userID == "" {
		idx.degraded = DegradedNoOwner
		return idx, false
	}

	key, err := s.keys.EmbeddingKey(ctx, userID)
	if err != nil {
		idx.degraded = DegradedNoProvider
		idx.log.Warn().Err(err).Msg("Embedding provider unavailable")
		return idx, false
	}
	idx.embedder = s.factory.Embedder(key)
	return idx, true
}

// Ready reports whether the indexer can embed
func (x *Indexer) Ready() bool {
	return x.embedder != nil
}

// Degraded returns why the indexer cannot embed, if it cannot
func (x *Indexer) Degraded() Degraded {
	return x.degraded
}

// IndexTrade embeds a trade and upserts its index row
func (x *Indexer) IndexTrade(ctx context.Context, t models.Trade) IndexOutcome {
	if !x.Ready() {
		return IndexOutcome{Degraded: x.degraded}
	}
	if t.ID == "" || t.UserID == "" || t.UserID != x.userID {
		x.log.Warn().Str("trade_id", t.ID).Msg("Trade lacks identifying fields, not indexed")
		return IndexOutcome{Degraded: DegradedInvalidEntity}
	}

	content := TradeSummary(t)
	vec, err := x.embedder.Embed(ctx, content)
	if err != nil {
		x.log.Warn().Err(err).Str("trade_id", t.ID).Msg("Failed to embed trade")
		return IndexOutcome{Degraded: DegradedProviderError}
	}

	err = x.svc.store.UpsertTrade(ctx, &models.TradeEmbedding{
		UserID:    t.UserID,
		TradeID:   t.ID,
		Content:   content,
		Embedding: pgvector.NewVector(vec),
	})
	if err != nil {
		x.log.Error().Err(err).Str("trade_id", t.ID).Msg("Failed to store trade embedding")
		return IndexOutcome{Degraded: DegradedStoreError}
	}
	return IndexOutcome{Indexed: true}
}

// IndexPlan embeds a trading plan with its setups and upserts its index row
func (x *Indexer) IndexPlan(ctx context.Context, p models.TradingPlan) IndexOutcome {
	if !x.Ready() {
		return IndexOutcome{Degraded: x.degraded}
	}
	if p.ID == "" || p.UserID == "" || p.UserID != x.userID {
		x.log.Warn().Str("plan_id", p.ID).Msg("Plan lacks identifying fields, not indexed")
		return IndexOutcome{Degraded: DegradedInvalidEntity}
	}

	content := PlanSummary(p)
	vec, err := x.embedder.Embed(ctx, content)
	if err != nil {
		x.log.Warn().Err(err).Str("plan_id", p.ID).Msg("Failed to embed plan")
		return IndexOutcome{Degraded: DegradedProviderError}
	}

	err = x.svc.store.UpsertPlan(ctx, &models.PlanEmbedding{
		UserID:        p.UserID,
		TradingPlanID: p.ID,
		Content:       content,
		Embedding:     pgvector.NewVector(vec),
	})
	if err != nil {
		x.log.Error().Err(err).Str("plan_id", p.ID).Msg("Failed to store plan embedding")
		return IndexOutcome{Degraded: DegradedStoreError}
	}
	return IndexOutcome{Indexed: true}
}

// Remove deletes the index row of a trade or plan
func (x *Indexer) Remove(ctx context.Context, entityID string) error {
	return x.svc.Remove(ctx, x.userID, entityID)
}

// Remove deletes the index row of a trade or plan. It needs no embedding
// credentials, so deletions keep the index a subset of live records even when
// the provider is unavailable.
func (s *Service) Remove(ctx context.Context, userID, entityID string) error {
	if userID == "" || entityID == "" {
		return errors.New("remove embedding: owner and entity id are required")
	}
	if err := s.store.DeleteByEntity(ctx, userID, entityID); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("entity_id", entityID).Msg("Failed to remove embedding")
		return err
	}
	return nil
}
