package services

// PricingService computes completion costs from the read-only model catalog.
// All amounts are integer cents; per-side costs are rounded up so the sum of
// the parts never undercuts the true price.
type PricingService struct {
	catalog ModelCatalog
}

var _ Accountant = (*PricingService)(nil)

func NewPricingService(catalog ModelCatalog) *PricingService {
	return &PricingService{catalog: catalog}
}

// Estimate returns the conservative upper bound used for the balance
// pre-check: the prompt estimate is doubled to absorb heuristic error and the
// completion side assumes the model's full output budget. Never below one
// cent, so a zero balance always fails the pre-check.
func (p *PricingService) Estimate(modelID string, promptTokens int) (int64, error) {
	model, err := p.catalog.Get(modelID)
	if err != nil {
		return 0, err
	}

	cost := tokenCost(2*promptTokens, model.InputCentsPerMTok) +
		tokenCost(model.MaxOutputTokens, model.OutputCentsPerMTok)
	if cost < 1 {
		cost = 1
	}
	return cost, nil
}

// Finalize returns the exact cost for the reported token counts.
func (p *PricingService) Finalize(modelID string, promptTokens, completionTokens int) (int64, error) {
	model, err := p.catalog.Get(modelID)
	if err != nil {
		return 0, err
	}

	return tokenCost(promptTokens, model.InputCentsPerMTok) +
		tokenCost(completionTokens, model.OutputCentsPerMTok), nil
}

// tokenCost is ceil(tokens * centsPerMTok / 1e6).
func tokenCost(tokens int, centsPerMTok int64) int64 {
	if tokens <= 0 || centsPerMTok <= 0 {
		return 0
	}
	return (int64(tokens)*centsPerMTok + 999999) / 1000000
}

// EstimateTokens is the chars/4 prompt heuristic shared by the balance
// pre-check and the Gemini usage fallback.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(text)/4 + 1
}
