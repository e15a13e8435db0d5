package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/platewise/billing-service/internal/models"
)

type RedemptionRepo struct {
	db *sql.DB
}

func NewRedemptionRepo(db *sql.DB) *RedemptionRepo {
	return &RedemptionRepo{db: db}
}

// Append writes one redemption row inside tx. Redemptions are historical
// facts: there is no update or delete path.
func (r *RedemptionRepo) Append(ctx context.Context, tx *sql.Tx, red *models.Redemption) error {
	query := `
		INSERT INTO redemptions (user_id, coupon_id, amount_cents, redeemed_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := tx.QueryRowContext(ctx, query, red.UserID, red.CouponID, red.Amount, red.RedeemedAt).Scan(&red.ID)
	if err != nil {
		return fmt.Errorf("append redemption: %w", err)
	}
	return nil
}

// ListByUser returns a user's redemption history, newest first.
func (r *RedemptionRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Redemption, error) {
	query := `
		SELECT id, user_id, coupon_id, amount_cents, redeemed_at
		FROM redemptions
		WHERE user_id = $1
		ORDER BY redeemed_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	defer rows.Close()

	var redemptions []models.Redemption
	for rows.Next() {
		var red models.Redemption
		if err := rows.Scan(&red.ID, &red.UserID, &red.CouponID, &red.Amount, &red.RedeemedAt); err != nil {
			return nil, err
		}
		redemptions = append(redemptions, red)
	}
	return redemptions, rows.Err()
}
