package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/platewise/billing-service/internal/models"
)

type PlanRepo struct {
	db *sql.DB
}

func NewPlanRepo(db *sql.DB) *PlanRepo {
	return &PlanRepo{db: db}
}

const planColumns = `id, name, price_cents, currency, billing_interval, trial_days,
       max_seats, seats_taken, active, created_at, updated_at`

// Get returns the plan by id, or (nil, nil) when it does not exist.
func (r *PlanRepo) Get(ctx context.Context, planID string) (*models.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans WHERE id = $1`

	p, err := scanPlan(r.db.QueryRowContext(ctx, query, planID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get plan %s: %w", planID, err)
	}
	return p, nil
}

// ListActive returns all currently purchasable plans ordered by price.
func (r *PlanRepo) ListActive(ctx context.Context) ([]models.Plan, error) {
	query := `SELECT ` + planColumns + ` FROM plans
		WHERE active AND (max_seats IS NULL OR seats_taken < max_seats)
		ORDER BY price_cents`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

// TakeSeat claims one seat on a capped plan inside tx, deactivating the plan
// when the cap is reached. The increment is conditional so two purchases can
// never both take the last seat; the second caller gets zero rows affected.
func (r *PlanRepo) TakeSeat(ctx context.Context, tx *sql.Tx, planID string) (bool, error) {
	query := `
		UPDATE plans
		SET seats_taken = seats_taken + 1,
		    active = CASE
		        WHEN max_seats IS NOT NULL AND seats_taken + 1 >= max_seats THEN FALSE
		        ELSE active
		    END,
		    updated_at = NOW()
		WHERE id = $1
		  AND active
		  AND (max_seats IS NULL OR seats_taken < max_seats)
	`

	res, err := tx.ExecContext(ctx, query, planID)
	if err != nil {
		return false, fmt.Errorf("take seat on plan %s: %w", planID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*models.Plan, error) {
	var p models.Plan
	var maxSeats sql.NullInt64

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Price,
		&p.Currency,
		&p.Interval,
		&p.TrialDays,
		&maxSeats,
		&p.SeatsTaken,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if maxSeats.Valid {
		p.MaxSeats = &maxSeats.Int64
	}
	return &p, nil
}
