package settings

import (
	"context"
	"errors"
	"fmt"

	"trading-journal/database"
	models "trading-journal/database/models_pkg"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository stores per-user AI provider credentials
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new provider key repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// SaveKey inserts or replaces the key of (user, provider).
// When key.IsPreferred is set every other provider of the user loses the flag.
func (r *Repository) SaveKey(ctx context.Context, key *models.AIProviderKey) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if key.IsPreferred {
			if err := tx.Model(&models.AIProviderKey{}).
				Where("user_id = ? AND provider <> ?", key.UserID, key.Provider).
				Update("is_preferred", false).Error; err != nil {
				return fmt.Errorf("SaveKey clear preferred: %w", err)
			}
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider"}},
			DoUpdates: clause.AssignmentColumns([]string{"encrypted_key", "model", "is_preferred", "updated_at"}),
		}).Create(key).Error
		if err != nil {
			return fmt.Errorf("SaveKey: %w", err)
		}
		return nil
	})
}

// Preferred returns the user's preferred key, or nil when the user stored none
func (r *Repository) Preferred(ctx context.Context, userID string) (*models.AIProviderKey, error) {
	var key models.AIProviderKey
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_preferred DESC").
		Order("updated_at DESC").
		First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("PreferredKey: %w", err)
	}
	return &key, nil
}

// Get returns the user's key for one provider, or nil when none is stored
func (r *Repository) Get(ctx context.Context, userID, provider string) (*models.AIProviderKey, error) {
	var key models.AIProviderKey
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetKey: %w", err)
	}
	return &key, nil
}

// DeleteKey removes the user's key for a provider
func (r *Repository) DeleteKey(ctx context.Context, userID, provider string) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		Delete(&models.AIProviderKey{})
	if res.Error != nil {
		return fmt.Errorf("DeleteKey: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.NewNotFoundErrorWithID("provider key", provider)
	}
	return nil
}
