package models

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionDeposit TransactionType = "deposit"
	TransactionUsage   TransactionType = "usage"
	TransactionRefund  TransactionType = "refund"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionCancelled TransactionStatus = "cancelled"
)

type Transaction struct {
	ID     uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID uuid.UUID `gorm:"type:uuid;index;not null"`

	AmountCents int64             `gorm:"not null"`
	Type        TransactionType   `gorm:"not null"`
	Status      TransactionStatus `gorm:"default:'pending'"`

	Description string `gorm:"type:text"`

	// External payment references, set for deposits.
	PaymentProvider string
	PaymentID       string

	CreatedAt   time.Time `gorm:"index"`
	CompletedAt *time.Time
}
