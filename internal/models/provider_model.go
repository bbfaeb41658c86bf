package models

// Vendor identifies which provider adapter serves a model.
type Vendor string

const (
	VendorOpenAI    Vendor = "openai"
	VendorAnthropic Vendor = "anthropic"
	VendorGoogle    Vendor = "google"
)

// ProviderModel is read-only pricing reference data, seeded at startup.
// Prices are integer minor units (cents) per million tokens.
type ProviderModel struct {
	ModelID string `gorm:"primary_key"`
	Vendor  Vendor `gorm:"not null"`
	Name    string

	InputCentsPerMTok  int64 `gorm:"not null"`
	OutputCentsPerMTok int64 `gorm:"not null"`

	// MaxOutputTokens bounds a single completion and anchors the
	// conservative cost pre-estimate.
	MaxOutputTokens int `gorm:"not null"`

	ContextLength int
	Tier          string
}
