package patterns

import (
	"context"
	"fmt"

	"trading-journal/database"
	models "trading-journal/database/models_pkg"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists detected patterns, their matches and recommendations
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new patterns repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// UpsertPattern writes a pattern keyed by (user, type, sub type, bucket) and
// replaces its matches with p.Matches. p.ID is set to the stored row's id.
func (r *Repository) UpsertPattern(ctx context.Context, p *models.TradePattern) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "user_id"}, {Name: "pattern_type"}, {Name: "sub_type"}, {Name: "bucket_key"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"pattern_data", "confidence_score", "success_rate", "sample_size", "risk_score", "updated_at",
			}),
		}).Create(p).Error
		if err != nil {
			return fmt.Errorf("UpsertPattern: %w", err)
		}

		// On conflict the stored id differs from the one BeforeCreate generated
		var ids []string
		if err := tx.Model(&models.TradePattern{}).
			Where("user_id = ? AND pattern_type = ? AND sub_type = ? AND bucket_key = ?",
				p.UserID, p.PatternType, p.SubType, p.BucketKey).
			Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("UpsertPattern lookup: %w", err)
		}
		if len(ids) == 0 {
			return fmt.Errorf("UpsertPattern: row missing after upsert")
		}
		p.ID = ids[0]

		if err := tx.Where("pattern_id = ?", p.ID).Delete(&models.PatternMatch{}).Error; err != nil {
			return fmt.Errorf("UpsertPattern clear matches: %w", err)
		}
		if len(p.Matches) == 0 {
			return nil
		}
		for i := range p.Matches {
			p.Matches[i].ID = ""
			p.Matches[i].PatternID = p.ID
			p.Matches[i].UserID = p.UserID
		}
		if err := tx.Create(&p.Matches).Error; err != nil {
			return fmt.Errorf("UpsertPattern matches: %w", err)
		}
		return nil
	})
}

// RetireStale deletes the user's patterns, and their matches, whose ids are not in keep.
// An analysis run calls it so only signals present in the latest history stay live.
func (r *Repository) RetireStale(ctx context.Context, userID string, keep []string) (int64, error) {
	var retired int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := tx.Model(&models.TradePattern{}).Select("id").Where("user_id = ?", userID)
		if len(keep) > 0 {
			stale = stale.Where("id NOT IN ?", keep)
		}
		if err := tx.Where("user_id = ? AND pattern_id IN (?)", userID, stale).
			Delete(&models.PatternMatch{}).Error; err != nil {
			return fmt.Errorf("RetireStale matches: %w", err)
		}

		del := tx.Where("user_id = ?", userID)
		if len(keep) > 0 {
			del = del.Where("id NOT IN ?", keep)
		}
		res := del.Delete(&models.TradePattern{})
		if res.Error != nil {
			return fmt.Errorf("RetireStale: %w", res.Error)
		}
		retired = res.RowsAffected
		return nil
	})
	return retired, err
}

// ListPatterns returns a user's patterns, highest confidence first.
// An empty patternType returns every type.
func (r *Repository) ListPatterns(ctx context.Context, userID string, patternType models.PatternType, limit int) ([]models.TradePattern, error) {
	var patterns []models.TradePattern
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if patternType != "" {
		query = query.Where("pattern_type = ?", patternType)
	}
	err := query.
		Order("confidence_score DESC").
		Order("updated_at DESC").
		Limit(database.NormalizeLimit(limit, database.DefaultLimit)).
		Find(&patterns).Error
	if err != nil {
		return nil, fmt.Errorf("ListPatterns: %w", err)
	}
	return patterns, nil
}

// GetPattern retrieves one pattern
func (r *Repository) GetPattern(ctx context.Context, userID, id string) (*models.TradePattern, error) {
	var p models.TradePattern
	err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&p).Error
	if err != nil {
		return nil, database.NotFoundOr("GetPattern", "pattern", id, err)
	}
	return &p, nil
}

// RecentMatchedTrades returns the most recent trades that support a pattern
func (r *Repository) RecentMatchedTrades(ctx context.Context, userID, patternID string, limit int) ([]models.Trade, error) {
	var trades []models.Trade
	err := r.db.WithContext(ctx).
		Model(&models.Trade{}).
		Joins("JOIN pattern_matches pm ON pm.trade_id = trades.id").
		Where("pm.pattern_id = ? AND pm.user_id = ? AND trades.user_id = ?", patternID, userID, userID).
		Order("trades.entry_time DESC NULLS LAST").
		Order("trades.created_at DESC").
		Limit(database.NormalizeLimit(limit, database.RecommendationEvidenceLimit)).
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("RecentMatchedTrades: %w", err)
	}
	return trades, nil
}

// SaveRecommendation inserts a new recommendation
func (r *Repository) SaveRecommendation(ctx context.Context, rec *models.PatternRecommendation) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("SaveRecommendation: %w", err)
	}
	return nil
}

// GetRecommendation retrieves one recommendation
func (r *Repository) GetRecommendation(ctx context.Context, userID, id string) (*models.PatternRecommendation, error) {
	var rec models.PatternRecommendation
	err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&rec).Error
	if err != nil {
		return nil, database.NotFoundOr("GetRecommendation", "recommendation", id, err)
	}
	return &rec, nil
}

// ListRecommendations returns a user's recommendations, newest first
func (r *Repository) ListRecommendations(ctx context.Context, userID string, limit int) ([]models.PatternRecommendation, error) {
	var recs []models.PatternRecommendation
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(database.NormalizeLimit(limit, database.DefaultLimit)).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("ListRecommendations: %w", err)
	}
	return recs, nil
}

// UpdateRecommendationStatus stores a new status for a recommendation
func (r *Repository) UpdateRecommendationStatus(ctx context.Context, userID, id string, status models.RecommendationStatus) error {
	res := r.db.WithContext(ctx).
		Model(&models.PatternRecommendation{}).
		Where("user_id = ? AND id = ?", userID, id).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("UpdateRecommendationStatus: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.NewNotFoundErrorWithID("recommendation", id)
	}
	return nil
}
