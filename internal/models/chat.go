package models

import (
	"time"

	"github.com/google/uuid"
)

const DefaultChatTitle = "New chat"

type Chat struct {
	ID     uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID uuid.UUID `gorm:"type:uuid;index;not null"`

	Title      string `gorm:"default:'New chat'"`
	IsFavorite bool   `gorm:"default:false"`
	IsDeleted  bool   `gorm:"default:false"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time

	Messages []Message `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE"`
}
