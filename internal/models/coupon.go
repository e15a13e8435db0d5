package models

import (
	"slices"
	"time"
)

// DiscountKind determines how a coupon's discount value is interpreted.
type DiscountKind string

const (
	// DiscountPercentage treats the value as a percentage in [0,100].
	DiscountPercentage DiscountKind = "percentage"
	// DiscountFixed treats the value as an amount in minor currency units.
	DiscountFixed DiscountKind = "fixed"
)

// Coupon is a promotional code with a discount rule and usage constraints.
// All monetary fields are in minor currency units (cents).
type Coupon struct {
	ID            int64
	Code          string // case-sensitive, unique
	Kind          DiscountKind
	Value         int64 // percent for DiscountPercentage, cents for DiscountFixed
	MinAmount     int64 // minimum qualifying plan price; 0 = no minimum
	MaxUses       *int64
	TimesRedeemed int64
	ValidFrom     time.Time
	ValidUntil    *time.Time // nil = open-ended
	Active        bool
	PlanIDs       []string // empty = applicable to every plan
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AppliesTo reports whether the coupon may be used with the given plan.
// A coupon with no plan restrictions applies to all plans.
func (c *Coupon) AppliesTo(planID string) bool {
	if len(c.PlanIDs) == 0 {
		return true
	}
	return slices.Contains(c.PlanIDs, planID)
}

// Exhausted reports whether the usage cap has been reached.
// Coupons without a cap are never exhausted.
func (c *Coupon) Exhausted() bool {
	return c.MaxUses != nil && c.TimesRedeemed >= *c.MaxUses
}
