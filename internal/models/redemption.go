package models

import (
	"time"

	"github.com/google/uuid"
)

// Redemption is the immutable record of one successful coupon application.
// Rows are append-only: never updated, never deleted.
type Redemption struct {
	ID         int64
	UserID     uuid.UUID
	CouponID   int64
	Amount     int64 // granted discount in minor currency units
	RedeemedAt time.Time
}
