package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/vacadoc/vacadoc/internal/app/models"
)

func TestResolvePlanFromPrice(t *testing.T) {
	tests := []struct {
		priceID string
		want    models.PlanTier
	}{
		{"price_essentiel_monthly", models.PlanEssentiel},
		{"price_pro_monthly", models.PlanPro},
		{"price_pro_yearly", models.PlanPro},
		{"price_premium_yearly", models.PlanPremium},
		// unknown identifiers fall back to the lowest tier
		{"price_something_new", models.PlanEssentiel},
		{"", models.PlanEssentiel},
	}

	for _, tt := range tests {
		t.Run(tt.priceID, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePlanFromPrice(tt.priceID, zap.NewNop()))
		})
	}
}

func TestParsePlanName(t *testing.T) {
	tier, ok := ParsePlanName("pro")
	assert.True(t, ok)
	assert.Equal(t, models.PlanPro, tier)

	// exact match only, never substring
	_, ok = ParsePlanName("proxy")
	assert.False(t, ok)
	_, ok = ParsePlanName("premiums")
	assert.False(t, ok)
	_, ok = ParsePlanName("")
	assert.False(t, ok)
}

func TestPriceForPlan(t *testing.T) {
	for _, tier := range []models.PlanTier{models.PlanEssentiel, models.PlanPro, models.PlanPremium} {
		priceID, ok := PriceForPlan(tier)
		assert.True(t, ok, "tier %s should have a price", tier)
		assert.Equal(t, tier, priceToPlan[priceID], "price mapping should round-trip for %s", tier)
	}

	_, ok := PriceForPlan(models.PlanTier("enterprise"))
	assert.False(t, ok)
}
