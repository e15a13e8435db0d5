package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platewise/billing-service/internal/models"
)

type AccountRepo struct {
	db *sql.DB
}

func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

// GetOrCreate returns the account for userID, inserting a zero-value row on
// the user's first purchase attempt. The insert is idempotent, so concurrent
// first attempts both end up reading the same row.
func (r *AccountRepo) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	insert := `
		INSERT INTO user_accounts (user_id, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, insert, userID); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	query := `
		SELECT user_id, trial_used, trial_expires_at,
		       gateway_customer_id, gateway_subscription_id,
		       created_at, updated_at
		FROM user_accounts
		WHERE user_id = $1
	`

	var a models.Account
	var trialExpires sql.NullTime
	var customerID, subscriptionID sql.NullString

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&a.UserID,
		&a.TrialUsed,
		&trialExpires,
		&customerID,
		&subscriptionID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if trialExpires.Valid {
		t := trialExpires.Time
		a.TrialExpiresAt = &t
	}
	a.GatewayCustomerID = customerID.String
	a.GatewaySubscriptionID = subscriptionID.String

	return &a, nil
}

// RecordPurchase persists the outcome of a successful gateway call onto the
// account inside tx: gateway identifiers always, and the trial flag plus
// expiry when a trial was granted. trial_used only ever flips to true; the
// OR keeps it monotonic even if a stale writer slips through.
func (r *AccountRepo) RecordPurchase(ctx context.Context, tx *sql.Tx, userID uuid.UUID, customerID, subscriptionID string, trialExpiresAt *time.Time) error {
	query := `
		UPDATE user_accounts
		SET gateway_customer_id = $2,
		    gateway_subscription_id = $3,
		    trial_used = trial_used OR $4,
		    trial_expires_at = COALESCE($5, trial_expires_at),
		    updated_at = NOW()
		WHERE user_id = $1
	`

	res, err := tx.ExecContext(ctx, query, userID, customerID, subscriptionID, trialExpiresAt != nil, trialExpiresAt)
	if err != nil {
		return fmt.Errorf("record purchase on account %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("account %s missing at purchase commit", userID)
	}
	return nil
}
