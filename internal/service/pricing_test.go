package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/platewise/billing-service/internal/models"
	"github.com/platewise/billing-service/internal/service"
)

func TestDiscountAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		kind      models.DiscountKind
		value     int64
		planPrice int64
		want      int64
	}{
		{
			// $19.99 plan, 50% off: rounds down so the customer is never
			// charged less than the exact discounted price.
			name:      "percentage rounds down",
			kind:      models.DiscountPercentage,
			value:     50,
			planPrice: 1999,
			want:      999,
		},
		{
			name:      "percentage full off",
			kind:      models.DiscountPercentage,
			value:     100,
			planPrice: 1999,
			want:      1999,
		},
		{
			name:      "percentage zero",
			kind:      models.DiscountPercentage,
			value:     0,
			planPrice: 1999,
			want:      0,
		},
		{
			name:      "percentage odd split",
			kind:      models.DiscountPercentage,
			value:     33,
			planPrice: 1000,
			want:      330,
		},
		{
			name:      "fixed below price",
			kind:      models.DiscountFixed,
			value:     500,
			planPrice: 1999,
			want:      500,
		},
		{
			// $10-off coupon on a $5 plan clamps at the plan price.
			name:      "fixed clamps at plan price",
			kind:      models.DiscountFixed,
			value:     1000,
			planPrice: 500,
			want:      500,
		},
		{
			name:      "free plan gets no discount",
			kind:      models.DiscountFixed,
			value:     1000,
			planPrice: 0,
			want:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := &models.Coupon{Kind: tt.kind, Value: tt.value}
			assert.Equal(t, tt.want, service.DiscountAmount(c, tt.planPrice))
		})
	}
}

func TestDiscountAmount_NilCoupon(t *testing.T) {
	t.Parallel()

	assert.Zero(t, service.DiscountAmount(nil, 1999))
}

func TestFinalAmount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(1000), service.FinalAmount(1999, 999))
	assert.Equal(t, int64(0), service.FinalAmount(500, 500))

	// A discount larger than the price never makes the charge negative.
	assert.Equal(t, int64(0), service.FinalAmount(500, 1000))
}
