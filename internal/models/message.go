package models

import (
	"time"

	"github.com/google/uuid"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is immutable once persisted; assistant messages carry the token
// counts and the exact cost debited for them.
type Message struct {
	ID     uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ChatID uuid.UUID `gorm:"type:uuid;index;not null"`

	Role    MessageRole `gorm:"not null"`
	Content string      `gorm:"type:text;not null"`

	ModelUsed    string
	TokensInput  int
	TokensOutput int
	CostCents    int64

	// JSON-encoded attachment references, e.g. [{"file_id":"...","type":"image"}]
	Attachments []byte

	CreatedAt time.Time `gorm:"index"`
}
