package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/platewise/billing-service/internal/models"
)

// ErrUnavailable signals a transient gateway failure (timeout, connectivity).
// Requests failing with it may be retried with the same idempotency key.
var ErrUnavailable = errors.New("payment gateway unavailable")

// SubscriptionParams describes one purchase handed to the gateway. Amount is
// the final charge in minor units after discounts; when TrialDays is greater
// than zero the first charge is deferred for the trial length and Amount is
// not collected up front.
type SubscriptionParams struct {
	CustomerID     string
	PlanID         string
	Amount         int64
	Currency       string
	Interval       models.BillingInterval
	TrialDays      int
	IdempotencyKey string
}

// SubscriptionHandle is the gateway's record of a created subscription.
// ClientSecret is gateway-specific (a payment intent secret or a hosted
// checkout URL) and may be empty.
type SubscriptionHandle struct {
	SubscriptionID string
	ClientSecret   string
}

// Gateway is the payment processor collaborator. Currency conversion and tax
// handling live entirely behind this boundary.
type Gateway interface {
	// CreateOrRetrieveCustomer resolves the gateway customer for an email,
	// creating one on first use.
	CreateOrRetrieveCustomer(ctx context.Context, email string) (string, error)

	// CreateSubscription creates the gateway-side subscription or one-off
	// charge. Implementations must honor the idempotency key: a retried
	// call with the same key yields the original subscription, never a
	// second one.
	CreateSubscription(ctx context.Context, p SubscriptionParams) (*SubscriptionHandle, error)

	// CancelSubscription compensates a subscription whose local bookkeeping
	// could not be completed.
	CancelSubscription(ctx context.Context, subscriptionID string) error
}

// Fixed namespace for deriving idempotency keys; changing it would break
// retry dedupe across deploys.
var idempotencyNamespace = uuid.MustParse("9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d")

// IdempotencyKey derives a stable key for one logical purchase attempt.
// A retry after a gateway timeout reuses the same (user, plan, attempt)
// triple and therefore the same key, so the gateway cannot create two
// subscriptions for one purchase.
func IdempotencyKey(userID uuid.UUID, planID string, attemptID uuid.UUID) string {
	name := fmt.Sprintf("%s/%s/%s", userID, planID, attemptID)
	return uuid.NewSHA1(idempotencyNamespace, []byte(name)).String()
}
