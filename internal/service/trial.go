package service

import "github.com/platewise/billing-service/internal/models"

// ResolveTrialDays decides how many trial days a purchase gets. A trial is
// granted only when the caller asked for one, the account has never consumed
// a trial, and the plan ships with a trial allotment; otherwise 0.
//
// This is a pure read of current state. Flipping the account's trial flag is
// the engine's job, and happens only after the gateway call has succeeded.
func ResolveTrialDays(acct *models.Account, plan *models.Plan, requested bool) int {
	if !requested {
		return 0
	}
	if acct == nil || !acct.TrialEligible() {
		return 0
	}
	if plan == nil || plan.TrialDays <= 0 {
		return 0
	}
	return plan.TrialDays
}
