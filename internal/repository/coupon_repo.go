package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/platewise/billing-service/internal/models"
)

type CouponRepo struct {
	db *sql.DB
}

func NewCouponRepo(db *sql.DB) *CouponRepo {
	return &CouponRepo{db: db}
}

// GetByCode loads a coupon by exact, case-sensitive code along with its
// applicable-plan set. Returns (nil, nil) when no coupon carries the code.
func (r *CouponRepo) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	query := `
		SELECT id, code, discount_kind, discount_value, min_amount_cents,
		       max_uses, times_redeemed, valid_from, valid_until, active,
		       created_at, updated_at
		FROM coupons
		WHERE code = $1
	`

	var c models.Coupon
	var maxUses sql.NullInt64
	var validUntil sql.NullTime

	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&c.ID,
		&c.Code,
		&c.Kind,
		&c.Value,
		&c.MinAmount,
		&maxUses,
		&c.TimesRedeemed,
		&c.ValidFrom,
		&validUntil,
		&c.Active,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	if maxUses.Valid {
		c.MaxUses = &maxUses.Int64
	}
	if validUntil.Valid {
		t := validUntil.Time
		c.ValidUntil = &t
	}

	planIDs, err := r.applicablePlans(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.PlanIDs = planIDs

	return &c, nil
}

func (r *CouponRepo) applicablePlans(ctx context.Context, couponID int64) ([]string, error) {
	query := `SELECT plan_id FROM coupon_plans WHERE coupon_id = $1`

	rows, err := r.db.QueryContext(ctx, query, couponID)
	if err != nil {
		return nil, fmt.Errorf("load applicable plans: %w", err)
	}
	defer rows.Close()

	var planIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		planIDs = append(planIDs, id)
	}
	return planIDs, rows.Err()
}

// ErrDuplicateCode is returned by Create when the coupon code is taken.
var ErrDuplicateCode = errors.New("coupon code already exists")

// Create inserts a coupon and its applicable-plan links in one transaction.
func (r *CouponRepo) Create(ctx context.Context, c *models.Coupon) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	insert := `
		INSERT INTO coupons
			(code, discount_kind, discount_value, min_amount_cents, max_uses,
			 valid_from, valid_until, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id
	`
	err = tx.QueryRowContext(ctx, insert,
		c.Code,
		c.Kind,
		c.Value,
		c.MinAmount,
		c.MaxUses,
		c.ValidFrom,
		c.ValidUntil,
		c.Active,
	).Scan(&c.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return fmt.Errorf("insert coupon: %w", err)
	}

	if len(c.PlanIDs) > 0 {
		link := `INSERT INTO coupon_plans (coupon_id, plan_id) VALUES ($1, $2)`
		for _, planID := range c.PlanIDs {
			if _, err := tx.ExecContext(ctx, link, c.ID, planID); err != nil {
				return fmt.Errorf("link coupon to plan %s: %w", planID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit coupon: %w", err)
	}
	return nil
}

// Redeem spends one use of the coupon inside tx. The cap check and the
// increment are a single atomic statement, so near-simultaneous redemptions
// of a coupon's last use cannot both succeed: the loser sees zero rows
// affected and must roll back.
func (r *CouponRepo) Redeem(ctx context.Context, tx *sql.Tx, couponID int64) (bool, error) {
	query := `
		UPDATE coupons
		SET times_redeemed = times_redeemed + 1,
		    updated_at = NOW()
		WHERE id = $1
		  AND active
		  AND (max_uses IS NULL OR times_redeemed < max_uses)
	`

	res, err := tx.ExecContext(ctx, query, couponID)
	if err != nil {
		return false, fmt.Errorf("redeem coupon %d: %w", couponID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
