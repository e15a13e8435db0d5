package service

import (
	"context"
	"fmt"
	"time"

	"github.com/platewise/billing-service/internal/models"
)

// CouponSource looks up a coupon by its exact code. Implementations return
// (nil, nil) when no coupon carries the code.
type CouponSource interface {
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
}

// ValidateCoupon runs the full rule check for a coupon code against a target
// plan at a given moment. Checks short-circuit on the first failure and the
// returned RejectionError carries the corresponding reason.
//
// Validation is strictly read-only: it never touches redemption counters.
// Only a committed purchase consumes a use, so a coupon that validates here
// can still lose the last-use race at commit time.
func ValidateCoupon(ctx context.Context, coupons CouponSource, code string, plan *models.Plan, at time.Time) (*models.Coupon, error) {
	c, err := coupons.GetCouponByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("lookup coupon: %w", err)
	}
	if c == nil {
		return nil, Reject(ReasonNotFound)
	}
	if rej := CheckCoupon(c, plan, at); rej != nil {
		return nil, rej
	}
	return c, nil
}

// CheckCoupon applies the validation rules to an already-loaded coupon.
// Returns nil when the coupon is usable for the plan at the given time.
func CheckCoupon(c *models.Coupon, plan *models.Plan, at time.Time) *RejectionError {
	if !c.Active {
		return Reject(ReasonInactive)
	}
	if at.Before(c.ValidFrom) {
		return Reject(ReasonNotYetValid)
	}
	if c.ValidUntil != nil && at.After(*c.ValidUntil) {
		return Reject(ReasonExpired)
	}
	if c.Exhausted() {
		return Reject(ReasonExhausted)
	}
	if !c.AppliesTo(plan.ID) {
		return Reject(ReasonPlanMismatch)
	}
	if c.MinAmount > 0 && plan.Price < c.MinAmount {
		return Reject(ReasonMinAmount)
	}
	return nil
}
