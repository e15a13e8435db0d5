package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platewise/billing-service/internal/models"
	"github.com/platewise/billing-service/internal/service"
)

// Store adapts the postgres repositories to the purchase engine's contract.
// Reads go straight to the individual repos; CommitPurchase is the single
// write path and runs every mutation in one transaction.
type Store struct {
	db          *sql.DB
	plans       *PlanRepo
	coupons     *CouponRepo
	accounts    *AccountRepo
	redemptions *RedemptionRepo
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:          db,
		plans:       NewPlanRepo(db),
		coupons:     NewCouponRepo(db),
		accounts:    NewAccountRepo(db),
		redemptions: NewRedemptionRepo(db),
	}
}

func (s *Store) Plans() *PlanRepo             { return s.plans }
func (s *Store) Coupons() *CouponRepo         { return s.coupons }
func (s *Store) Redemptions() *RedemptionRepo { return s.redemptions }

func (s *Store) GetPlan(ctx context.Context, planID string) (*models.Plan, error) {
	return s.plans.Get(ctx, planID)
}

func (s *Store) GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error) {
	return s.coupons.GetByCode(ctx, code)
}

func (s *Store) GetOrCreateAccount(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	return s.accounts.GetOrCreate(ctx, userID)
}

// CommitPurchase applies the purchase in one transaction: account update,
// conditional coupon redemption plus its ledger row, and the seat claim for
// lifetime plans. Losing a conditional increment rolls everything back and
// surfaces the matching sentinel so the engine can compensate the gateway.
func (s *Store) CommitPurchase(ctx context.Context, p service.CommitPurchase) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin purchase tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var trialExpiresAt *time.Time
	if p.TrialDays > 0 {
		t := p.Now.AddDate(0, 0, p.TrialDays)
		trialExpiresAt = &t
	}

	if err := s.accounts.RecordPurchase(ctx, tx, p.UserID, p.GatewayCustomerID, p.GatewaySubscriptionID, trialExpiresAt); err != nil {
		return err
	}

	if p.Coupon != nil {
		ok, err := s.coupons.Redeem(ctx, tx, p.Coupon.ID)
		if err != nil {
			return err
		}
		if !ok {
			return service.ErrCouponSpent
		}
		if err := s.redemptions.Append(ctx, tx, &models.Redemption{
			UserID:     p.UserID,
			CouponID:   p.Coupon.ID,
			Amount:     p.DiscountAmount,
			RedeemedAt: p.Now,
		}); err != nil {
			return err
		}
	}

	if p.Plan.Interval == models.IntervalLifetime {
		ok, err := s.plans.TakeSeat(ctx, tx, p.Plan.ID)
		if err != nil {
			return err
		}
		if !ok {
			return service.ErrPlanSoldOut
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit purchase tx: %w", err)
	}
	committed = true
	return nil
}
