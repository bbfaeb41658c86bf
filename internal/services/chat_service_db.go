package services

import (
	"context"
	"errors"
	"time"

	"persona_chat_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultChatStore implements ChatStore on top of gorm/PostgreSQL.
type DefaultChatStore struct {
	db *gorm.DB
}

var _ ChatStore = (*DefaultChatStore)(nil)

func NewChatStore(db *gorm.DB) *DefaultChatStore {
	return &DefaultChatStore{db: db}
}

func (s *DefaultChatStore) CreateChat(userID uuid.UUID, title string) (*models.Chat, error) {
	if title == "" {
		title = models.DefaultChatTitle
	}
	chat := &models.Chat{
		UserID: userID,
		Title:  title,
	}
	if err := s.db.Create(chat).Error; err != nil {
		return nil, err
	}
	return chat, nil
}

// GetChat loads a chat with its messages in creation order. Ownership is part
// of the lookup, so another user's chat behaves like a missing one.
func (s *DefaultChatStore) GetChat(userID, chatID uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	err := s.db.Preload("Messages", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at asc")
	}).Where("id = ? AND user_id = ?", chatID, userID).First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (s *DefaultChatStore) ListChats(userID uuid.UUID, includeDeleted bool) ([]models.Chat, error) {
	query := s.db.Where("user_id = ?", userID)
	if !includeDeleted {
		query = query.Where("is_deleted = ?", false)
	}
	var chats []models.Chat
	if err := query.Order("updated_at desc").Find(&chats).Error; err != nil {
		return nil, err
	}
	return chats, nil
}

func (s *DefaultChatStore) UpdateChat(userID, chatID uuid.UUID, updates map[string]interface{}) (*models.Chat, error) {
	result := s.db.Model(&models.Chat{}).
		Where("id = ? AND user_id = ?", chatID, userID).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrChatNotFound
	}

	var chat models.Chat
	if err := s.db.First(&chat, "id = ?", chatID).Error; err != nil {
		return nil, err
	}
	return &chat, nil
}

func (s *DefaultChatStore) DeleteChat(userID, chatID uuid.UUID, permanent bool) error {
	if !permanent {
		_, err := s.UpdateChat(userID, chatID, map[string]interface{}{"is_deleted": true})
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var chat models.Chat
		err := tx.Where("id = ? AND user_id = ?", chatID, userID).First(&chat).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrChatNotFound
		}
		if err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", chat.ID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&chat).Error
	})
}

func (s *DefaultChatStore) ToggleFavorite(userID, chatID uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	err := s.db.Where("id = ? AND user_id = ?", chatID, userID).First(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	chat.IsFavorite = !chat.IsFavorite
	if err := s.db.Save(&chat).Error; err != nil {
		return nil, err
	}
	return &chat, nil
}

// SaveCompletion is the single transactional boundary for a successful
// completion: user message, assistant message, the conditional balance
// decrement, the usage ledger row and the chat metadata update all commit
// together or roll back together. The decrement is guarded by
// balance_cents >= cost, so two concurrent completions by one user cannot
// drive the balance negative.
func (s *DefaultChatStore) SaveCompletion(ctx context.Context, chat *models.Chat, userMsg, assistantMsg *models.Message, costCents int64) (int64, error) {
	var newBalance int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(userMsg).Error; err != nil {
			return err
		}
		if err := tx.Create(assistantMsg).Error; err != nil {
			return err
		}

		result := tx.Model(&models.User{}).
			Where("id = ? AND balance_cents >= ?", chat.UserID, costCents).
			Update("balance_cents", gorm.Expr("balance_cents - ?", costCents))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrInsufficientBalance
		}

		now := time.Now()
		usage := &models.Transaction{
			UserID:      chat.UserID,
			AmountCents: -costCents,
			Type:        models.TransactionUsage,
			Status:      models.TransactionCompleted,
			Description: assistantMsg.ModelUsed,
			CompletedAt: &now,
		}
		if err := tx.Create(usage).Error; err != nil {
			return err
		}

		chatUpdates := map[string]interface{}{"updated_at": now}
		if chat.Title == models.DefaultChatTitle {
			chatUpdates["title"] = deriveChatTitle(userMsg.Content)
		}
		if err := tx.Model(&models.Chat{}).Where("id = ?", chat.ID).Updates(chatUpdates).Error; err != nil {
			return err
		}

		var user models.User
		if err := tx.Select("balance_cents").First(&user, "id = ?", chat.UserID).Error; err != nil {
			return err
		}
		newBalance = user.BalanceCents
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// deriveChatTitle trims the first user message down to a title.
func deriveChatTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= 50 {
		return content
	}
	return string(runes[:50]) + "..."
}
