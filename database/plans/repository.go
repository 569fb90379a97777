package plans

import (
	"context"
	"errors"
	"fmt"

	"trading-journal/database"
	models "trading-journal/database/models_pkg"

	"gorm.io/gorm"
)

// Repository handles database operations for trading plans and their setups
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new plans repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Upsert saves the plan for (user, date), replacing any existing plan and its setups.
// Setup risk and reward amounts are recomputed before writing.
func (r *Repository) Upsert(ctx context.Context, plan *models.TradingPlan) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.TradingPlan
		err := tx.Where("user_id = ? AND date = ?", plan.UserID, plan.Date).First(&existing).Error
		switch {
		case err == nil:
			plan.ID = existing.ID
			plan.CreatedAt = existing.CreatedAt
			if err := tx.Omit("Setups").Save(plan).Error; err != nil {
				return fmt.Errorf("UpsertPlan update: %w", err)
			}
			if err := tx.Where("trading_plan_id = ?", plan.ID).Delete(&models.TradeSetup{}).Error; err != nil {
				return fmt.Errorf("UpsertPlan clear setups: %w", err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Omit("Setups").Create(plan).Error; err != nil {
				return fmt.Errorf("UpsertPlan create: %w", err)
			}
		default:
			return fmt.Errorf("UpsertPlan lookup: %w", err)
		}

		for i := range plan.Setups {
			s := &plan.Setups[i]
			s.ID = ""
			s.TradingPlanID = plan.ID
			s.UserID = plan.UserID
			s.ApplyRiskReward()
		}
		if len(plan.Setups) > 0 {
			if err := tx.Create(&plan.Setups).Error; err != nil {
				return fmt.Errorf("UpsertPlan setups: %w", err)
			}
		}
		return nil
	})
}

// Get retrieves one plan with its setups
func (r *Repository) Get(ctx context.Context, userID, id string) (*models.TradingPlan, error) {
	var plan models.TradingPlan
	err := r.db.WithContext(ctx).
		Preload("Setups").
		Where("user_id = ? AND id = ?", userID, id).
		First(&plan).Error
	if err != nil {
		return nil, database.NotFoundOr("GetPlan", "trading plan", id, err)
	}
	return &plan, nil
}

// ListByIDs hydrates plan ids returned from similarity search
func (r *Repository) ListByIDs(ctx context.Context, userID string, ids []string) ([]models.TradingPlan, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var plans []models.TradingPlan
	err := r.db.WithContext(ctx).
		Preload("Setups").
		Where("user_id = ? AND id IN ?", userID, ids).
		Find(&plans).Error
	if err != nil {
		return nil, fmt.Errorf("ListPlansByIDs: %w", err)
	}
	return plans, nil
}

// ListIDs returns every plan id of a user
func (r *Repository) ListIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.TradingPlan{}).
		Where("user_id = ?", userID).
		Order("date ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("ListPlanIDs: %w", err)
	}
	return ids, nil
}

// Delete removes a plan, its setups and its embedding
func (r *Repository) Delete(ctx context.Context, userID, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND trading_plan_id = ?", userID, id).
			Delete(&models.PlanEmbedding{}).Error; err != nil {
			return fmt.Errorf("DeletePlan embedding: %w", err)
		}
		if err := tx.Where("user_id = ? AND trading_plan_id = ?", userID, id).
			Delete(&models.TradeSetup{}).Error; err != nil {
			return fmt.Errorf("DeletePlan setups: %w", err)
		}
		res := tx.Where("user_id = ? AND id = ?", userID, id).Delete(&models.TradingPlan{})
		if res.Error != nil {
			return fmt.Errorf("DeletePlan: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return database.NewNotFoundErrorWithID("trading plan", id)
		}
		return nil
	})
}
