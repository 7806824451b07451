package subscription

import (
	"time"

	"github.com/vacadoc/vacadoc/internal/app/models"
)

// GracePeriod is how long a previously observed active subscription keeps
// granting access when the current status cannot be confirmed.
const GracePeriod = 30 * time.Minute

// State is the fetcher's published view of a user's subscription.
type State struct {
	// Loading is true until the first fetch for this user has completed.
	Loading bool
	// Status is the last resolved status; empty until a fetch completes.
	Status models.SubscriptionStatus
	// Plan is the last resolved tier; empty when unknown.
	Plan models.PlanTier
	// FetchedAt marks when Status/Plan were last written.
	FetchedAt time.Time
}

// IsSubscribed decides whether a user currently has access to paid areas.
// Pure: all inputs are explicit. Only doctors are gated; every other role is
// always entitled. The bias is permissive during transient latency (a doctor
// who just paid must not be locked out before the webhook lands): access is
// granted while the first fetch is still in flight and for any of the live
// statuses. The grace window only bridges an unknown or unresolved status;
// a fetch that resolved to canceled or inactive is an explicit revocation
// and revokes access immediately, recent activity or not.
func IsSubscribed(role models.UserRole, st State, lastActive time.Time, haveActivity bool, now time.Time) bool {
	if role != models.RoleDoctor {
		return true
	}
	if st.Loading {
		return true
	}
	switch st.Status {
	case models.StatusActive, models.StatusTrialing, models.StatusPastDue:
		return true
	case models.StatusCanceled, models.StatusInactive:
		return false
	}
	if haveActivity && now.Sub(lastActive) <= GracePeriod {
		return true
	}
	return false
}

// Plan-gated feature names.
const (
	FeatureBaseline        = "essentiel"
	FeatureAnalytics       = "analytics"
	FeatureMessaging       = "messaging"
	FeaturePriorityListing = "priority_listing"
	FeatureUrgentVacations = "urgent_vacations"
)

// proFeatures is the fixed allow-list the pro tier qualifies for, on top of
// the baseline.
var proFeatures = map[string]struct{}{
	FeatureBaseline:        {},
	FeatureAnalytics:       {},
	FeatureMessaging:       {},
	FeaturePriorityListing: {},
	FeatureUrgentVacations: {},
}

// HasFeature maps (role, plan, feature) to an access decision. Premium
// qualifies for everything; pro for its allow-list; any other plan only for
// the baseline feature itself.
func HasFeature(role models.UserRole, plan models.PlanTier, feature string) bool {
	if role != models.RoleDoctor {
		return true
	}
	switch plan {
	case models.PlanPremium:
		return true
	case models.PlanPro:
		_, ok := proFeatures[feature]
		return ok
	default:
		return feature == FeatureBaseline
	}
}
