package services

import (
	"fmt"

	"persona_chat_go_backend/internal/models"

	"gorm.io/gorm"
)

// DBModelCatalog serves the provider-model pricing table. The table is
// seeded on startup and treated as read-only afterwards, so lookups go
// through an in-memory index.
type DBModelCatalog struct {
	byID    map[string]models.ProviderModel
	ordered []models.ProviderModel
}

var _ ModelCatalog = (*DBModelCatalog)(nil)

func NewDBModelCatalog(db *gorm.DB) (*DBModelCatalog, error) {
	if err := seedProviderModels(db); err != nil {
		return nil, fmt.Errorf("failed to seed provider models: %w", err)
	}

	var rows []models.ProviderModel
	if err := db.Order("model_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load provider models: %w", err)
	}

	byID := make(map[string]models.ProviderModel, len(rows))
	for _, m := range rows {
		byID[m.ModelID] = m
	}
	return &DBModelCatalog{byID: byID, ordered: rows}, nil
}

func (c *DBModelCatalog) Get(modelID string) (*models.ProviderModel, error) {
	m, ok := c.byID[modelID]
	if !ok {
		return nil, ErrUnknownModel
	}
	return &m, nil
}

func (c *DBModelCatalog) List() []models.ProviderModel {
	out := make([]models.ProviderModel, len(c.ordered))
	copy(out, c.ordered)
	return out
}

func seedProviderModels(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.ProviderModel{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return db.Create(DefaultProviderModels()).Error
}

// DefaultProviderModels is the shipped pricing table, cents per million
// tokens.
func DefaultProviderModels() []models.ProviderModel {
	return []models.ProviderModel{
		{
			ModelID: "gpt-4-turbo", Vendor: models.VendorOpenAI, Name: "GPT-4 Turbo",
			InputCentsPerMTok: 1000, OutputCentsPerMTok: 3000,
			MaxOutputTokens: 4096, ContextLength: 128000, Tier: "premium",
		},
		{
			ModelID: "gpt-4o", Vendor: models.VendorOpenAI, Name: "GPT-4o",
			InputCentsPerMTok: 500, OutputCentsPerMTok: 1500,
			MaxOutputTokens: 16384, ContextLength: 128000, Tier: "premium",
		},
		{
			ModelID: "gpt-4o-mini", Vendor: models.VendorOpenAI, Name: "GPT-4o Mini",
			InputCentsPerMTok: 15, OutputCentsPerMTok: 60,
			MaxOutputTokens: 16384, ContextLength: 128000, Tier: "balanced",
		},
		{
			ModelID: "gpt-3.5-turbo", Vendor: models.VendorOpenAI, Name: "GPT-3.5 Turbo",
			InputCentsPerMTok: 50, OutputCentsPerMTok: 150,
			MaxOutputTokens: 4096, ContextLength: 16385, Tier: "balanced",
		},
		{
			ModelID: "claude-3-opus", Vendor: models.VendorAnthropic, Name: "Claude 3 Opus",
			InputCentsPerMTok: 1500, OutputCentsPerMTok: 7500,
			MaxOutputTokens: 4096, ContextLength: 200000, Tier: "premium",
		},
		{
			ModelID: "claude-3.5-sonnet", Vendor: models.VendorAnthropic, Name: "Claude 3.5 Sonnet",
			InputCentsPerMTok: 300, OutputCentsPerMTok: 1500,
			MaxOutputTokens: 8192, ContextLength: 200000, Tier: "premium",
		},
		{
			ModelID: "claude-3-haiku", Vendor: models.VendorAnthropic, Name: "Claude 3 Haiku",
			InputCentsPerMTok: 25, OutputCentsPerMTok: 125,
			MaxOutputTokens: 4096, ContextLength: 200000, Tier: "balanced",
		},
		{
			ModelID: "gemini-1.5-pro", Vendor: models.VendorGoogle, Name: "Gemini 1.5 Pro",
			InputCentsPerMTok: 125, OutputCentsPerMTok: 500,
			MaxOutputTokens: 8192, ContextLength: 1048576, Tier: "premium",
		},
		{
			ModelID: "gemini-2.0-flash", Vendor: models.VendorGoogle, Name: "Gemini 2.0 Flash",
			InputCentsPerMTok: 10, OutputCentsPerMTok: 40,
			MaxOutputTokens: 8192, ContextLength: 1048576, Tier: "balanced",
		},
	}
}
