package transport

import (
	"golang.org/x/time/rate"
)

// BudgetProfile names the two advisory rate-limit budgets the Provider
// publishes. Transport exposes these so higher layers (ParallelFetcher,
// LiveQueries) can cap worker counts and warn as they approach the hourly
// ceiling; Transport itself never blocks requests on them.
type BudgetProfile string

const (
	// BudgetQuery covers /query/* endpoints: 5 concurrent, 60/hour.
	BudgetQuery BudgetProfile = "query"
	// BudgetExport covers bulk export/engage endpoints: 3 req/sec, 100
	// concurrent, 60/hour.
	BudgetExport BudgetProfile = "export"
)

// Budgets tracks the advisory hourly request budgets per profile using
// token-bucket limiters seeded with the full hourly allowance as their
// burst, so Tokens() reports "requests still available this hour" at a
// glance without Transport having to maintain its own counters.
type Budgets struct {
	query  *rate.Limiter
	export *rate.Limiter
}

const hourlyBudget = 60

// NewBudgets constructs the two advisory budget limiters.
func NewBudgets() *Budgets {
	perSecondOverHour := rate.Limit(float64(hourlyBudget) / 3600.0)
	return &Budgets{
		query:  rate.NewLimiter(perSecondOverHour, hourlyBudget),
		export: rate.NewLimiter(perSecondOverHour, hourlyBudget),
	}
}

// Reserve consumes one token from the named budget's bucket, for bookkeeping
// only — callers that want the 80%-of-budget warning should compare
// Tokens() against the budget ceiling before scheduling work, not rely on
// Reserve to block.
func (b *Budgets) Reserve(profile BudgetProfile) {
	b.limiterFor(profile).Allow()
}

// Tokens reports the approximate number of requests still available in the
// current hourly window for profile.
func (b *Budgets) Tokens(profile BudgetProfile) float64 {
	return b.limiterFor(profile).Tokens()
}

// ExceedsWarningThreshold reports whether expectedRequests would consume
// more than 80% of the hourly budget for profile.
func (b *Budgets) ExceedsWarningThreshold(profile BudgetProfile, expectedRequests int) bool {
	return float64(expectedRequests) > 0.8*float64(hourlyBudget)
}

func (b *Budgets) limiterFor(profile BudgetProfile) *rate.Limiter {
	if profile == BudgetExport {
		return b.export
	}
	return b.query
}

// ClampWorkers caps a caller-requested worker count at maxAllowed. Zero or
// negative requests fall back to defaultWorkers.
func ClampWorkers(requested, maxAllowed, defaultWorkers int) int {
	if requested <= 0 {
		return defaultWorkers
	}
	if requested > maxAllowed {
		return maxAllowed
	}
	return requested
}
