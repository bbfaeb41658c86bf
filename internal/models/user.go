package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID    uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Email string    `gorm:"unique;not null"`
	// Phone is nullable so that users without one insert NULL; empty strings
	// would collide on the unique index.
	Phone    *string `gorm:"unique"`
	Name     string
	Nickname string

	IsActive   bool `gorm:"default:true"`
	IsVerified bool `gorm:"default:false"`

	// Prepaid credit in integer minor units (cents). Debited per completion,
	// never allowed to go negative.
	BalanceCents int64 `gorm:"not null;default:0"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt *time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}
