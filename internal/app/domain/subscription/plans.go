package subscription

import (
	"go.uber.org/zap"

	"github.com/vacadoc/vacadoc/internal/app/models"
)

// priceToPlan is the static lookup from Stripe price identifiers to plan
// tiers. Unknown identifiers fall back to the lowest tier with a warning
// rather than failing the sync.
var priceToPlan = map[string]models.PlanTier{
	"price_essentiel_monthly": models.PlanEssentiel,
	"price_essentiel_yearly":  models.PlanEssentiel,
	"price_pro_monthly":       models.PlanPro,
	"price_pro_yearly":        models.PlanPro,
	"price_premium_monthly":   models.PlanPremium,
	"price_premium_yearly":    models.PlanPremium,
}

// planToPrice is the inverse direction, used when launching checkout.
var planToPrice = map[models.PlanTier]string{
	models.PlanEssentiel: "price_essentiel_monthly",
	models.PlanPro:       "price_pro_monthly",
	models.PlanPremium:   "price_premium_monthly",
}

// planNames maps plan identifier strings carried in status responses to
// tiers. Strict and total: no substring heuristics, so an identifier like
// "proxy" can never be misread as "pro".
var planNames = map[string]models.PlanTier{
	"essentiel": models.PlanEssentiel,
	"pro":       models.PlanPro,
	"premium":   models.PlanPremium,
}

// ResolvePlanFromPrice maps a Stripe price identifier to a tier, defaulting
// to essentiel for unrecognized identifiers.
func ResolvePlanFromPrice(priceID string, logger *zap.Logger) models.PlanTier {
	if tier, ok := priceToPlan[priceID]; ok {
		return tier
	}
	if logger != nil {
		logger.Warn("Unrecognized price identifier, defaulting to essentiel",
			zap.String("price_id", priceID))
	}
	return models.PlanEssentiel
}

// PriceForPlan returns the checkout price identifier for a tier.
func PriceForPlan(tier models.PlanTier) (string, bool) {
	priceID, ok := planToPrice[tier]
	return priceID, ok
}

// ParsePlanName maps a plan name string to a tier.
func ParsePlanName(name string) (models.PlanTier, bool) {
	tier, ok := planNames[name]
	return tier, ok
}
