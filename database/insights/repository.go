package insights

import (
	"context"
	"fmt"

	"trading-journal/database"
	models "trading-journal/database/models_pkg"

	"gorm.io/gorm"
)

// Repository stores generated insights. Insights are immutable once written.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new insights repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Save inserts an insight
func (r *Repository) Save(ctx context.Context, insight *models.AIInsight) error {
	if err := r.db.WithContext(ctx).Create(insight).Error; err != nil {
		return fmt.Errorf("SaveInsight: %w", err)
	}
	return nil
}

// List returns a user's insights, newest first. An empty insightType returns all.
func (r *Repository) List(ctx context.Context, userID string, insightType models.InsightType, limit int) ([]models.AIInsight, error) {
	var out []models.AIInsight
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if insightType != "" {
		query = query.Where("type = ?", insightType)
	}
	err := query.
		Order("created_at DESC").
		Limit(database.NormalizeLimit(limit, database.DefaultLimit)).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("ListInsights: %w", err)
	}
	return out, nil
}

// Delete removes an insight
func (r *Repository) Delete(ctx context.Context, userID, id string) error {
	res := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).Delete(&models.AIInsight{})
	if res.Error != nil {
		return fmt.Errorf("DeleteInsight: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.NewNotFoundErrorWithID("insight", id)
	}
	return nil
}
