package chat

import (
	"context"
	"errors"
	"fmt"

	"trading-journal/database"
	models "trading-journal/database/models_pkg"

	"gorm.io/gorm"
)

// Repository stores assistant conversation history
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new chat history repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Append stores an exchange at the end of its conversation.
// MessageOrder is claimed as max+1; a concurrent writer taking the same slot
// hits the unique index and the claim is retried.
func (r *Repository) Append(ctx context.Context, ex *models.ChatExchange) error {
	var lastErr error
	for attempt := 0; attempt < database.MessageOrderRetries; attempt++ {
		var next int
		err := r.db.WithContext(ctx).
			Model(&models.ChatExchange{}).
			Where("user_id = ? AND conversation_id = ?", ex.UserID, ex.ConversationID).
			Select("COALESCE(MAX(message_order) + 1, 0)").
			Scan(&next).Error
		if err != nil {
			return fmt.Errorf("AppendExchange order: %w", err)
		}

		ex.MessageOrder = next
		err = r.db.WithContext(ctx).Create(ex).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("AppendExchange: %w", err)
		}
		lastErr = err
	}
	return fmt.Errorf("AppendExchange: message order contention: %w", lastErr)
}

// Recent returns the last n exchanges of a conversation in chronological order
func (r *Repository) Recent(ctx context.Context, userID, conversationID string, n int) ([]models.ChatExchange, error) {
	var exchanges []models.ChatExchange
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND conversation_id = ?", userID, conversationID).
		Order("message_order DESC").
		Limit(n).
		Find(&exchanges).Error
	if err != nil {
		return nil, fmt.Errorf("RecentExchanges: %w", err)
	}
	for i, j := 0, len(exchanges)-1; i < j; i, j = i+1, j-1 {
		exchanges[i], exchanges[j] = exchanges[j], exchanges[i]
	}
	return exchanges, nil
}

// Conversation returns a full conversation in order
func (r *Repository) Conversation(ctx context.Context, userID, conversationID string) ([]models.ChatExchange, error) {
	var exchanges []models.ChatExchange
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND conversation_id = ?", userID, conversationID).
		Order("message_order ASC").
		Find(&exchanges).Error
	if err != nil {
		return nil, fmt.Errorf("GetConversation: %w", err)
	}
	return exchanges, nil
}

// DeleteConversation removes every exchange of a conversation
func (r *Repository) DeleteConversation(ctx context.Context, userID, conversationID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND conversation_id = ?", userID, conversationID).
		Delete(&models.ChatExchange{})
	if res.Error != nil {
		return 0, fmt.Errorf("DeleteConversation: %w", res.Error)
	}
	return res.RowsAffected, nil
}
