package embeddings

import (
	"context"
	"fmt"
	"time"

	models "trading-journal/database/models_pkg"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Match is one row returned by a similarity search function
type Match struct {
	ID         string  `gorm:"column:id"`
	Similarity float64 `gorm:"column:similarity"`
}

// SearchParams bounds a similarity search
type SearchParams struct {
	UserID    string
	Threshold float64
	Limit     int
	From      *time.Time
	To        *time.Time
}

// Repository stores and queries trade and plan embeddings
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new embeddings repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// UpsertTrade writes the embedding of a trade, updating the existing row in place
func (r *Repository) UpsertTrade(ctx context.Context, e *models.TradeEmbedding) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "trade_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "embedding", "updated_at"}),
	}).Create(e).Error
	if err != nil {
		return fmt.Errorf("UpsertTradeEmbedding: %w", err)
	}
	return nil
}

// UpsertPlan writes the embedding of a trading plan, updating the existing row in place
func (r *Repository) UpsertPlan(ctx context.Context, e *models.PlanEmbedding) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "trading_plan_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "embedding", "updated_at"}),
	}).Create(e).Error
	if err != nil {
		return fmt.Errorf("UpsertPlanEmbedding: %w", err)
	}
	return nil
}

// DeleteByEntity removes any embedding whose source is entityID.
// Trade and plan ids are UUIDs so both tables can be cleared unconditionally.
func (r *Repository) DeleteByEntity(ctx context.Context, userID, entityID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND trade_id = ?", userID, entityID).
			Delete(&models.TradeEmbedding{}).Error; err != nil {
			return fmt.Errorf("DeleteEmbedding trade: %w", err)
		}
		if err := tx.Where("user_id = ? AND trading_plan_id = ?", userID, entityID).
			Delete(&models.PlanEmbedding{}).Error; err != nil {
			return fmt.Errorf("DeleteEmbedding plan: %w", err)
		}
		return nil
	})
}

// IndexedTradeIDs returns the ids of trades that already have an embedding
func (r *Repository) IndexedTradeIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.TradeEmbedding{}).
		Where("user_id = ?", userID).
		Pluck("trade_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("IndexedTradeIDs: %w", err)
	}
	return ids, nil
}

// IndexedPlanIDs returns the ids of plans that already have an embedding
func (r *Repository) IndexedPlanIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.PlanEmbedding{}).
		Where("user_id = ?", userID).
		Pluck("trading_plan_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("IndexedPlanIDs: %w", err)
	}
	return ids, nil
}

// SearchTrades calls search_trade_embeddings, most similar first
func (r *Repository) SearchTrades(ctx context.Context, query []float32, p SearchParams) ([]Match, error) {
	var matches []Match
	err := r.db.WithContext(ctx).Raw(
		"SELECT trade_id AS id, similarity FROM search_trade_embeddings(?, ?, ?, ?, ?, ?)",
		pgvector.NewVector(query), p.Threshold, p.Limit, p.UserID, p.From, p.To,
	).Scan(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("SearchTrades: %w", err)
	}
	return matches, nil
}

// SearchPlans calls search_plan_embeddings, most similar first
func (r *Repository) SearchPlans(ctx context.Context, query []float32, p SearchParams) ([]Match, error) {
	var matches []Match
	err := r.db.WithContext(ctx).Raw(
		"SELECT trading_plan_id AS id, similarity FROM search_plan_embeddings(?, ?, ?, ?, ?, ?)",
		pgvector.NewVector(query), p.Threshold, p.Limit, p.UserID, p.From, p.To,
	).Scan(&matches).Error
	if err != nil {
		return nil, fmt.Errorf("SearchPlans: %w", err)
	}
	return matches, nil
}
