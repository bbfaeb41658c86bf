package services

import (
	"context"

	"persona_chat_go_backend/internal/models"

	"github.com/google/uuid"
)

type ModelCatalog interface {
	Get(modelID string) (*models.ProviderModel, error)
	List() []models.ProviderModel
}

// Accountant prices completions in integer minor units. Estimate is the
// conservative upper bound used for the balance pre-check; Finalize is the
// exact cost debited after the provider call.
type Accountant interface {
	Estimate(modelID string, promptTokens int) (int64, error)
	Finalize(modelID string, promptTokens, completionTokens int) (int64, error)
}

type ChatStore interface {
	CreateChat(userID uuid.UUID, title string) (*models.Chat, error)
	GetChat(userID, chatID uuid.UUID) (*models.Chat, error)
	ListChats(userID uuid.UUID, includeDeleted bool) ([]models.Chat, error)
	UpdateChat(userID, chatID uuid.UUID, updates map[string]interface{}) (*models.Chat, error)
	DeleteChat(userID, chatID uuid.UUID, permanent bool) error
	ToggleFavorite(userID, chatID uuid.UUID) (*models.Chat, error)

	// SaveCompletion persists the user and assistant messages and debits the
	// owner's balance in a single transaction. Either everything is written
	// or nothing is. Returns the balance after the debit.
	SaveCompletion(ctx context.Context, chat *models.Chat, userMsg, assistantMsg *models.Message, costCents int64) (int64, error)
}

type AccountStore interface {
	GetBalance(userID uuid.UUID) (int64, error)
	CreditBalance(userID uuid.UUID, amountCents int64, provider, paymentID, description string) (int64, error)
}

type ProfileStore interface {
	GetProfile(userID uuid.UUID) (*models.UserProfile, error)
	UpsertProfile(profile *models.UserProfile) error
}
