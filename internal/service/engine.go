package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/platewise/billing-service/internal/concurrency"
	"github.com/platewise/billing-service/internal/models"
	"github.com/platewise/billing-service/internal/payment"
)

// Store is the durable state the engine reads and writes. Reads are plain
// snapshots; CommitPurchase is the single write path and must apply all of
// its mutations in one transaction.
type Store interface {
	CouponSource

	// GetPlan returns (nil, nil) when no plan carries the id.
	GetPlan(ctx context.Context, planID string) (*models.Plan, error)

	// GetOrCreateAccount returns the account for userID, creating a fresh
	// zero-value account on the user's first purchase attempt.
	GetOrCreateAccount(ctx context.Context, userID uuid.UUID) (*models.Account, error)

	// CommitPurchase atomically records a purchase the gateway has already
	// accepted: gateway ids on the account, the trial flag and expiry when
	// a trial was granted, one redemption row plus the coupon counter
	// increment when a coupon was used, and the seat increment (with
	// deactivation at the cap) for lifetime plans.
	//
	// The coupon increment is conditional: if a concurrent purchase spent
	// the last use since validation, nothing is written and ErrCouponSpent
	// is returned. ErrPlanSoldOut works the same way for the last seat of
	// a capped plan.
	CommitPurchase(ctx context.Context, p CommitPurchase) error
}

// CommitPurchase carries everything the store needs for the commit step.
type CommitPurchase struct {
	UserID                uuid.UUID
	Plan                  *models.Plan
	Coupon                *models.Coupon // nil when no coupon was used
	DiscountAmount        int64
	TrialDays             int
	GatewayCustomerID     string
	GatewaySubscriptionID string
	Now                   time.Time
}

// PurchaseParams is one purchase request.
type PurchaseParams struct {
	UserID     uuid.UUID
	PlanID     string
	CouponCode string // empty = no coupon
	StartTrial bool
	AttemptID  uuid.UUID // stable across retries of one logical purchase
	Email      string
}

// PurchaseResult is returned on a successful purchase.
type PurchaseResult struct {
	SubscriptionID string
	TrialDays      int
	DiscountAmount int64
	FinalAmount    int64
	ClientSecret   string
}

// Engine orchestrates the subscription purchase flow. It is the sole writer
// of cross-entity state: everything before the gateway call is read-only
// decision-making, and all local writes happen in one commit afterwards.
type Engine struct {
	store          Store
	gateway        payment.Gateway
	userLocks      *concurrency.KeyedMutex
	gatewayTimeout time.Duration
	now            func() time.Time
	log            *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithGatewayTimeout bounds the external gateway call.
func WithGatewayTimeout(d time.Duration) Option {
	return func(e *Engine) { e.gatewayTimeout = d }
}

func NewEngine(store Store, gateway payment.Gateway, log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:          store,
		gateway:        gateway,
		userLocks:      concurrency.NewKeyedMutex(),
		gatewayTimeout: 10 * time.Second,
		now:            func() time.Time { return time.Now().UTC() },
		log:            log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ValidateCoupon is the read-only validation surface. It shares the exact
// rule set the purchase path uses, so a code that validates here can only be
// rejected later by the usage-count race. Returns the coupon and the
// discount it would grant against the plan's current price.
func (e *Engine) ValidateCoupon(ctx context.Context, code, planID string) (*models.Coupon, int64, error) {
	plan, err := e.loadPlan(ctx, planID)
	if err != nil {
		return nil, 0, err
	}

	coupon, err := ValidateCoupon(ctx, e.store, code, plan, e.now())
	if err != nil {
		return nil, 0, err
	}
	return coupon, DiscountAmount(coupon, plan.Price), nil
}

// Purchase runs the whole lifecycle transition for one purchase request.
//
// Failures split three ways: a *RejectionError is a user input problem and
// nothing was written; ErrGatewayUnavailable is transient and retryable with
// the same attempt id; a *BookkeepingError means the gateway accepted the
// purchase but the local commit failed, and must be reconciled rather than
// shown as a coupon error.
func (e *Engine) Purchase(ctx context.Context, p PurchaseParams) (*PurchaseResult, error) {
	// Serialize purchases per user so two concurrent requests cannot both
	// observe an unused trial.
	unlock := e.userLocks.Lock(p.UserID.String())
	defer unlock()

	plan, err := e.loadPlan(ctx, p.PlanID)
	if err != nil {
		return nil, err
	}

	acct, err := e.store.GetOrCreateAccount(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}

	now := e.now()

	// A bad coupon aborts the purchase outright; silently falling back to
	// full price would charge the user a deal they never agreed to.
	var coupon *models.Coupon
	var discount int64
	if p.CouponCode != "" {
		coupon, err = ValidateCoupon(ctx, e.store, p.CouponCode, plan, now)
		if err != nil {
			return nil, err
		}
		discount = DiscountAmount(coupon, plan.Price)
	}

	trialDays := ResolveTrialDays(acct, plan, p.StartTrial)
	finalAmount := FinalAmount(plan.Price, discount)

	customerID, handle, err := e.callGateway(ctx, p, acct, plan, trialDays, finalAmount)
	if err != nil {
		return nil, err
	}

	// Single commit point. The caller cancelling now must not orphan the
	// gateway subscription from local state, so the commit runs detached
	// from the request's cancellation — but still under a deadline: the
	// per-user lock is held until this returns, and a hung store or
	// compensation call must not stall the user's purchases forever.
	commitCtx, cancelCommit := context.WithTimeout(context.WithoutCancel(ctx), e.gatewayTimeout)
	defer cancelCommit()
	commit := CommitPurchase{
		UserID:                p.UserID,
		Plan:                  plan,
		Coupon:                coupon,
		DiscountAmount:        discount,
		TrialDays:             trialDays,
		GatewayCustomerID:     customerID,
		GatewaySubscriptionID: handle.SubscriptionID,
		Now:                   now,
	}
	if err := e.store.CommitPurchase(commitCtx, commit); err != nil {
		return nil, e.commitFailed(commitCtx, p, coupon, handle, err)
	}

	return &PurchaseResult{
		SubscriptionID: handle.SubscriptionID,
		TrialDays:      trialDays,
		DiscountAmount: discount,
		FinalAmount:    finalAmount,
		ClientSecret:   handle.ClientSecret,
	}, nil
}

func (e *Engine) loadPlan(ctx context.Context, planID string) (*models.Plan, error) {
	plan, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	if plan == nil || !plan.Available() {
		return nil, Reject(ReasonPlanUnavailable)
	}
	return plan, nil
}

func (e *Engine) callGateway(ctx context.Context, p PurchaseParams, acct *models.Account, plan *models.Plan, trialDays int, finalAmount int64) (string, *payment.SubscriptionHandle, error) {
	gctx, cancel := context.WithTimeout(ctx, e.gatewayTimeout)
	defer cancel()

	customerID := acct.GatewayCustomerID
	if customerID == "" {
		var err error
		customerID, err = e.gateway.CreateOrRetrieveCustomer(gctx, p.Email)
		if err != nil {
			return "", nil, e.gatewayFailed("create customer", p, err)
		}
	}

	handle, err := e.gateway.CreateSubscription(gctx, payment.SubscriptionParams{
		CustomerID:     customerID,
		PlanID:         plan.ID,
		Amount:         finalAmount,
		Currency:       plan.Currency,
		Interval:       plan.Interval,
		TrialDays:      trialDays,
		IdempotencyKey: payment.IdempotencyKey(p.UserID, p.PlanID, p.AttemptID),
	})
	if err != nil {
		return "", nil, e.gatewayFailed("create subscription", p, err)
	}
	return customerID, handle, nil
}

// gatewayFailed maps gateway errors onto the transient taxonomy. Nothing has
// been written locally at this point, so a retry with the same attempt id is
// always safe.
func (e *Engine) gatewayFailed(op string, p PurchaseParams, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, payment.ErrUnavailable) {
		e.log.Warn("payment gateway unavailable",
			slog.String("op", op),
			slog.String("user_id", p.UserID.String()),
			slog.String("plan_id", p.PlanID),
			slog.String("attempt_id", p.AttemptID.String()),
			slog.Any("err", err),
		)
		return fmt.Errorf("%s: %w", op, ErrGatewayUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// commitFailed handles the one window where local state can disagree with
// the gateway. Losing the coupon or seat race compensates by cancelling the
// just-created gateway subscription and reports the matching rejection;
// anything else is a bookkeeping inconsistency logged for reconciliation.
func (e *Engine) commitFailed(ctx context.Context, p PurchaseParams, coupon *models.Coupon, handle *payment.SubscriptionHandle, err error) error {
	var reason Reason
	switch {
	case errors.Is(err, ErrCouponSpent):
		reason = ReasonExhausted
	case errors.Is(err, ErrPlanSoldOut):
		reason = ReasonPlanUnavailable
	}
	if reason != "" {
		if cancelErr := e.gateway.CancelSubscription(ctx, handle.SubscriptionID); cancelErr != nil {
			// Compensation failed too: the gateway record now has no local
			// counterpart, which is a reconciliation case, not a rejection.
			return e.bookkeeping(p, coupon, handle, errors.Join(err, cancelErr))
		}
		e.log.Info("purchase lost commit race, gateway subscription cancelled",
			slog.String("user_id", p.UserID.String()),
			slog.String("gateway_subscription_id", handle.SubscriptionID),
			slog.String("reason", string(reason)),
		)
		return Reject(reason)
	}
	return e.bookkeeping(p, coupon, handle, err)
}

func (e *Engine) bookkeeping(p PurchaseParams, coupon *models.Coupon, handle *payment.SubscriptionHandle, err error) error {
	bk := &BookkeepingError{
		UserID:                p.UserID,
		GatewaySubscriptionID: handle.SubscriptionID,
		Err:                   err,
	}
	if coupon != nil {
		bk.CouponID = coupon.ID
	}
	e.log.Error("purchase bookkeeping failed, manual reconciliation required",
		slog.String("user_id", bk.UserID.String()),
		slog.Int64("coupon_id", bk.CouponID),
		slog.String("gateway_subscription_id", bk.GatewaySubscriptionID),
		slog.Any("err", err),
	)
	return bk
}
