package models

import (
	"time"

	"github.com/google/uuid"
)

// UserProfile holds the personalization signals mixed into the system prompt.
// The list fields are JSON-encoded string arrays.
type UserProfile struct {
	ID     uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`

	Interests []byte
	Skills    []byte
	Goals     []byte

	CreatedAt time.Time
	UpdatedAt time.Time
}
