package services

import (
	"errors"
	"fmt"
	"time"

	"persona_chat_go_backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultAccountStore implements AccountStore on top of gorm/PostgreSQL.
type DefaultAccountStore struct {
	db *gorm.DB
}

var _ AccountStore = (*DefaultAccountStore)(nil)

func NewAccountStore(db *gorm.DB) *DefaultAccountStore {
	return &DefaultAccountStore{db: db}
}

func (s *DefaultAccountStore) GetBalance(userID uuid.UUID) (int64, error) {
	var user models.User
	err := s.db.Select("balance_cents").First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("user %s not found", userID)
	}
	if err != nil {
		return 0, err
	}
	return user.BalanceCents, nil
}

// CreditBalance tops up a user and records the deposit in the ledger. The
// payment id keeps webhook retries idempotent: a deposit that was already
// recorded is not applied twice.
func (s *DefaultAccountStore) CreditBalance(userID uuid.UUID, amountCents int64, provider, paymentID, description string) (int64, error) {
	if amountCents <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amountCents)
	}

	var newBalance int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if paymentID != "" {
			var existing int64
			if err := tx.Model(&models.Transaction{}).
				Where("payment_provider = ? AND payment_id = ?", provider, paymentID).
				Count(&existing).Error; err != nil {
				return err
			}
			if existing > 0 {
				var user models.User
				if err := tx.Select("balance_cents").First(&user, "id = ?", userID).Error; err != nil {
					return err
				}
				newBalance = user.BalanceCents
				return nil
			}
		}

		result := tx.Model(&models.User{}).
			Where("id = ?", userID).
			Update("balance_cents", gorm.Expr("balance_cents + ?", amountCents))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("user %s not found", userID)
		}

		now := time.Now()
		deposit := &models.Transaction{
			UserID:          userID,
			AmountCents:     amountCents,
			Type:            models.TransactionDeposit,
			Status:          models.TransactionCompleted,
			Description:     description,
			PaymentProvider: provider,
			PaymentID:       paymentID,
			CompletedAt:     &now,
		}
		if err := tx.Create(deposit).Error; err != nil {
			return err
		}

		var user models.User
		if err := tx.Select("balance_cents").First(&user, "id = ?", userID).Error; err != nil {
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
