package service

import "github.com/platewise/billing-service/internal/models"

// DiscountAmount computes the discount a coupon grants against a plan price,
// in minor currency units. The result is never negative and never exceeds
// the plan price.
//
// Percentage discounts round down so the charge is never below the exact
// discounted price. Fixed discounts clamp at the plan price so the final
// charge can never go negative.
func DiscountAmount(c *models.Coupon, planPrice int64) int64 {
	if c == nil || planPrice <= 0 {
		return 0
	}
	switch c.Kind {
	case models.DiscountPercentage:
		return planPrice * c.Value / 100
	case models.DiscountFixed:
		return min(c.Value, planPrice)
	default:
		return 0
	}
}

// FinalAmount is the charge left after applying a discount, floored at zero.
func FinalAmount(planPrice, discount int64) int64 {
	return max(0, planPrice-discount)
}
