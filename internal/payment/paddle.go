package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for the Paddle-backed gateway.
type PaddleConfig struct {
	APIKey      string `env:"PADDLE_API_KEY"`
	Environment string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleGateway implements Gateway on top of the Paddle Billing API. Plan
// ids are expected to be Paddle catalog price ids, so the gateway never
// re-computes pricing beyond what the engine already decided.
type PaddleGateway struct {
	client *paddle.SDK
}

// NewPaddleGateway creates a Paddle gateway for the configured environment.
func NewPaddleGateway(cfg PaddleConfig) (*PaddleGateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("paddle API key is required")
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("invalid paddle environment: %s", cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("create paddle client: %w", err)
	}

	return &PaddleGateway{client: client}, nil
}

func (g *PaddleGateway) CreateOrRetrieveCustomer(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", errors.New("customer email is required")
	}

	customer, err := g.client.CustomersClient.CreateCustomer(ctx, &paddle.CreateCustomerRequest{
		Email: email,
	})
	if err != nil {
		return "", fmt.Errorf("create paddle customer: %w", err)
	}
	return customer.ID, nil
}

func (g *PaddleGateway) CreateSubscription(ctx context.Context, p SubscriptionParams) (*SubscriptionHandle, error) {
	if p.PlanID == "" {
		return nil, errors.New("plan price ID is required")
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  p.PlanID,
		Quantity: 1,
	})

	// CustomData rides along on webhooks, letting reconciliation tie a
	// Paddle transaction back to the originating purchase attempt.
	req := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"idempotency_key": p.IdempotencyKey,
			"customer_id":     p.CustomerID,
			"final_amount":    strconv.FormatInt(p.Amount, 10),
			"trial_days":      strconv.Itoa(p.TrialDays),
		},
	}

	txn, err := g.client.TransactionsClient.CreateTransaction(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create paddle transaction: %w", err)
	}

	handle := &SubscriptionHandle{SubscriptionID: txn.ID}
	if txn.Checkout != nil && txn.Checkout.URL != nil {
		handle.ClientSecret = *txn.Checkout.URL
	}
	return handle, nil
}

func (g *PaddleGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if subscriptionID == "" {
		return errors.New("subscription ID is required")
	}

	_, err := g.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
		SubscriptionID: subscriptionID,
	})
	if err != nil {
		return fmt.Errorf("cancel paddle subscription: %w", err)
	}
	return nil
}
