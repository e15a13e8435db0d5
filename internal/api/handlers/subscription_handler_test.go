package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platewise/billing-service/internal/service"
)

type fakeEngine struct {
	result *service.PurchaseResult
	err    error
	got    service.PurchaseParams
	calls  int
}

func (f *fakeEngine) Purchase(_ context.Context, p service.PurchaseParams) (*service.PurchaseResult, error) {
	f.calls++
	f.got = p
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) { c.calls++ }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func doPurchase(t *testing.T, h *SubscriptionHandler, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/subscriptions", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h.Purchase(rec, req)
	return rec
}

func TestPurchaseSuccess(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{result: &service.PurchaseResult{
		SubscriptionID: "sub_123",
		TrialDays:      7,
		DiscountAmount: 500,
		FinalAmount:    1499,
	}}
	cache := &countingInvalidator{}
	h := NewSubscriptionHandler(engine, cache, discardLogger())

	userID := uuid.New()
	rec := doPurchase(t, h, map[string]any{
		"user_id":     userID.String(),
		"plan_id":     "family-monthly",
		"coupon_code": "SUMMER25",
		"email":       "pat@example.com",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp purchaseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sub_123", resp.SubscriptionID)
	assert.Equal(t, 7, resp.TrialDays)
	assert.Equal(t, int64(500), resp.DiscountAmount)
	assert.Equal(t, int64(1499), resp.FinalAmount)

	// The handler mints an attempt id and echoes it for retries.
	_, err := uuid.Parse(resp.AttemptID)
	require.NoError(t, err)

	assert.Equal(t, userID, engine.got.UserID)
	assert.Equal(t, "family-monthly", engine.got.PlanID)
	assert.Equal(t, "SUMMER25", engine.got.CouponCode)
	assert.Equal(t, 1, cache.calls)
}

func TestPurchaseEchoesClientAttemptID(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{result: &service.PurchaseResult{SubscriptionID: "sub_1"}}
	h := NewSubscriptionHandler(engine, nil, discardLogger())

	attemptID := uuid.New()
	rec := doPurchase(t, h, map[string]any{
		"user_id":    uuid.New().String(),
		"plan_id":    "solo-monthly",
		"attempt_id": attemptID.String(),
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp purchaseResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, attemptID.String(), resp.AttemptID)
	assert.Equal(t, attemptID, engine.got.AttemptID)
}

func TestPurchaseBadRequests(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing user id", map[string]any{"plan_id": "solo-monthly"}},
		{"malformed user id", map[string]any{"user_id": "nope", "plan_id": "solo-monthly"}},
		{"missing plan id", map[string]any{"user_id": uuid.New().String()}},
		{"malformed attempt id", map[string]any{
			"user_id": uuid.New().String(), "plan_id": "solo-monthly", "attempt_id": "xyz",
		}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			engine := &fakeEngine{}
			h := NewSubscriptionHandler(engine, nil, discardLogger())
			rec := doPurchase(t, h, tc.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, engine.calls, "engine must not be reached on bad input")
		})
	}
}

func TestPurchaseErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
	}{
		{"coupon rejection", service.Reject(service.ReasonExpired), http.StatusBadRequest, "expired"},
		{"plan unavailable", service.Reject(service.ReasonPlanUnavailable), http.StatusBadRequest, "plan_unavailable"},
		{"gateway down", service.ErrGatewayUnavailable, http.StatusBadGateway, "gateway_unavailable"},
		{
			"bookkeeping failure",
			&service.BookkeepingError{UserID: uuid.New(), GatewaySubscriptionID: "sub_9", Err: errors.New("db down")},
			http.StatusConflict,
			"bookkeeping_failed",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cache := &countingInvalidator{}
			h := NewSubscriptionHandler(&fakeEngine{err: tc.err}, cache, discardLogger())
			rec := doPurchase(t, h, map[string]any{
				"user_id": uuid.New().String(),
				"plan_id": "solo-monthly",
			})

			require.Equal(t, tc.wantStatus, rec.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantReason, resp["reason"])
			assert.Zero(t, cache.calls, "cache must only be invalidated on success")
		})
	}
}

func TestPurchaseUnknownErrorIs500(t *testing.T) {
	t.Parallel()

	h := NewSubscriptionHandler(&fakeEngine{err: errors.New("boom")}, nil, discardLogger())
	rec := doPurchase(t, h, map[string]any{
		"user_id": uuid.New().String(),
		"plan_id": "solo-monthly",
	})

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "internal_error", resp["error"])
}
