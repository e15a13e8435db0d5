package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Reason is a stable machine-readable code explaining why a coupon or plan
// was rejected. Reasons are reported to the caller as-is and never retried.
type Reason string

const (
	ReasonNotFound        Reason = "not_found"
	ReasonInactive        Reason = "inactive"
	ReasonNotYetValid     Reason = "not_yet_valid"
	ReasonExpired         Reason = "expired"
	ReasonExhausted       Reason = "exhausted"
	ReasonPlanMismatch    Reason = "plan_mismatch"
	ReasonMinAmount       Reason = "min_amount"
	ReasonPlanUnavailable Reason = "plan_unavailable"
)

// RejectionError is an expected input rejection: a bad coupon or an
// unavailable plan. It carries a Reason suitable for an HTTP 400 response.
type RejectionError struct {
	Reason Reason
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("rejected: %s", e.Reason)
}

// Reject builds a RejectionError for the given reason.
func Reject(r Reason) *RejectionError {
	return &RejectionError{Reason: r}
}

// RejectionReason extracts the Reason from err if it is (or wraps) a
// RejectionError.
func RejectionReason(err error) (Reason, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}

// BookkeepingError means the local commit failed after the payment gateway
// had already accepted the purchase. The customer may have been charged, so
// this is never reported as an input error; it carries enough context for
// manual reconciliation.
type BookkeepingError struct {
	UserID                uuid.UUID
	CouponID              int64 // 0 when no coupon was involved
	GatewaySubscriptionID string
	Err                   error
}

func (e *BookkeepingError) Error() string {
	return fmt.Sprintf("purchase bookkeeping failed for user %s (gateway subscription %s): %v",
		e.UserID, e.GatewaySubscriptionID, e.Err)
}

func (e *BookkeepingError) Unwrap() error { return e.Err }

var (
	// ErrGatewayUnavailable is a transient failure of the payment gateway
	// (timeout or connectivity). Nothing has been written locally, so the
	// caller may retry with the same attempt id.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrCouponSpent is returned by Store.CommitPurchase when the atomic
	// increment finds the coupon already at its usage cap. The purchase
	// validated against a snapshot that a concurrent redemption has since
	// invalidated.
	ErrCouponSpent = errors.New("coupon usage cap reached at commit time")

	// ErrPlanSoldOut is returned by Store.CommitPurchase when the last seat
	// of a capped plan was taken by a concurrent purchase.
	ErrPlanSoldOut = errors.New("plan seat cap reached at commit time")
)
