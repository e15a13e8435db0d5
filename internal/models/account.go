package models

import (
	"time"

	"github.com/google/uuid"
)

// Account holds per-user subscription state. TrialUsed is monotonic: once a
// trial has been consumed it never resets, and TrialExpiresAt is set exactly
// when TrialUsed flips to true.
type Account struct {
	UserID                uuid.UUID
	TrialUsed             bool
	TrialExpiresAt        *time.Time
	GatewayCustomerID     string // empty until first purchase
	GatewaySubscriptionID string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// TrialEligible reports whether this account has never consumed a trial.
func (a *Account) TrialEligible() bool {
	return !a.TrialUsed
}
