package trades

import (
	"context"
	"fmt"
	"time"

	"trading-journal/database"
	models "trading-journal/database/models_pkg"

	"gorm.io/gorm"
)

// Repository handles database operations for journal trades.
// Every method is scoped by the owning user id.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new trades repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a trade, deriving its net P&L first
func (r *Repository) Create(ctx context.Context, trade *models.Trade) error {
	trade.ApplyNetPnL()
	if err := r.db.WithContext(ctx).Create(trade).Error; err != nil {
		return fmt.Errorf("CreateTrade: %w", err)
	}
	return nil
}

// Get retrieves one trade owned by userID
func (r *Repository) Get(ctx context.Context, userID, id string) (*models.Trade, error) {
	var trade models.Trade
	err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&trade).Error
	if err != nil {
		return nil, database.NotFoundOr("GetTrade", "trade", id, err)
	}
	return &trade, nil
}

// ListByUser returns a user's trades, most recent entry first.
// A limit of 0 returns the full history.
func (r *Repository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Trade, error) {
	var trades []models.Trade
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("entry_time DESC NULLS LAST").
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("ListTrades: %w", err)
	}
	return trades, nil
}

// ListByIDs hydrates trade ids returned from similarity search
func (r *Repository) ListByIDs(ctx context.Context, userID string, ids []string) ([]models.Trade, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var trades []models.Trade
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, ids).
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("ListTradesByIDs: %w", err)
	}
	return trades, nil
}

// ListIDs returns every trade id of a user
func (r *Repository) ListIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("ListTradeIDs: %w", err)
	}
	return ids, nil
}

// Delete removes a trade together with its embedding and pattern matches
func (r *Repository) Delete(ctx context.Context, userID, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND trade_id = ?", userID, id).
			Delete(&models.PatternMatch{}).Error; err != nil {
			return fmt.Errorf("DeleteTrade matches: %w", err)
		}
		if err := tx.Where("user_id = ? AND trade_id = ?", userID, id).
			Delete(&models.TradeEmbedding{}).Error; err != nil {
			return fmt.Errorf("DeleteTrade embedding: %w", err)
		}
		res := tx.Where("user_id = ? AND id = ?", userID, id).Delete(&models.Trade{})
		if res.Error != nil {
			return fmt.Errorf("DeleteTrade: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return database.NewNotFoundErrorWithID("trade", id)
		}
		return nil
	})
}

// ActiveUsers returns users who logged a trade since the given time
func (r *Repository) ActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	var users []string
	err := r.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("created_at >= ?", since).
		Distinct("user_id").
		Pluck("user_id", &users).Error
	if err != nil {
		return nil, fmt.Errorf("ActiveUsers: %w", err)
	}
	return users, nil
}
