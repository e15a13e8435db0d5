package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platewise/billing-service/internal/models"
	"github.com/platewise/billing-service/internal/repository"
	"github.com/platewise/billing-service/internal/service"
)

type fakeValidator struct {
	coupon   *models.Coupon
	discount int64
	err      error
}

func (f *fakeValidator) ValidateCoupon(context.Context, string, string) (*models.Coupon, int64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.coupon, f.discount, nil
}

type fakeCreator struct {
	err error
	got *models.Coupon
}

func (f *fakeCreator) Create(_ context.Context, c *models.Coupon) error {
	f.got = c
	if f.err != nil {
		return f.err
	}
	c.ID = 42
	return nil
}

type fakeLister struct {
	plans []models.Plan
	err   error
	calls int
}

func (f *fakeLister) ListActive(context.Context) ([]models.Plan, error) {
	f.calls++
	return f.plans, f.err
}

type fakePlanCache struct {
	plans []models.Plan
	hit   bool
	sets  int
}

func (f *fakePlanCache) Get(context.Context) ([]models.Plan, bool) { return f.plans, f.hit }

func (f *fakePlanCache) Set(_ context.Context, plans []models.Plan) {
	f.plans = plans
	f.sets++
}

func postJSON(t *testing.T, fn http.HandlerFunc, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	fn(rec, req)
	return rec
}

func TestValidateValidCoupon(t *testing.T) {
	t.Parallel()

	validator := &fakeValidator{
		coupon:   &models.Coupon{Code: "SUMMER25", Kind: models.DiscountPercentage, Value: 25},
		discount: 499,
	}
	h := NewCouponHandler(validator, nil, nil, nil, nil, discardLogger())

	rec := postJSON(t, h.Validate, "/coupons/validate", map[string]any{
		"code": "SUMMER25", "plan_id": "family-monthly",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp validateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	assert.Empty(t, resp.Reason)
	assert.Equal(t, "percentage", resp.DiscountKind)
	assert.Equal(t, int64(25), resp.DiscountValue)
	assert.Equal(t, int64(499), resp.DiscountAmount)
}

func TestValidateRejectionIs200(t *testing.T) {
	t.Parallel()

	for _, reason := range []service.Reason{
		service.ReasonNotFound,
		service.ReasonExpired,
		service.ReasonExhausted,
		service.ReasonPlanMismatch,
	} {
		reason := reason
		t.Run(string(reason), func(t *testing.T) {
			t.Parallel()

			h := NewCouponHandler(&fakeValidator{err: service.Reject(reason)}, nil, nil, nil, nil, discardLogger())
			rec := postJSON(t, h.Validate, "/coupons/validate", map[string]any{
				"code": "GONE", "plan_id": "solo-monthly",
			})

			require.Equal(t, http.StatusOK, rec.Code)

			var resp validateResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Valid)
			assert.Equal(t, string(reason), resp.Reason)
		})
	}
}

func TestValidateBadRequest(t *testing.T) {
	t.Parallel()

	h := NewCouponHandler(&fakeValidator{}, nil, nil, nil, nil, discardLogger())
	rec := postJSON(t, h.Validate, "/coupons/validate", map[string]any{"code": "X"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateInternalErrorIs500(t *testing.T) {
	t.Parallel()

	h := NewCouponHandler(&fakeValidator{err: errors.New("db down")}, nil, nil, nil, nil, discardLogger())
	rec := postJSON(t, h.Validate, "/coupons/validate", map[string]any{
		"code": "SUMMER25", "plan_id": "solo-monthly",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCreateCoupon(t *testing.T) {
	t.Parallel()

	creator := &fakeCreator{}
	h := NewCouponHandler(nil, creator, nil, nil, nil, discardLogger())

	maxUses := int64(100)
	rec := postJSON(t, h.Create, "/admin/coupons", map[string]any{
		"code":           "LAUNCH50",
		"discount_kind":  "percentage",
		"discount_value": 50,
		"min_amount":     1000,
		"max_uses":       maxUses,
		"valid_until":    "2027-01-01T00:00:00Z",
		"plan_ids":       []string{"family-monthly"},
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, creator.got)
	assert.Equal(t, "LAUNCH50", creator.got.Code)
	assert.Equal(t, models.DiscountPercentage, creator.got.Kind)
	assert.Equal(t, int64(50), creator.got.Value)
	assert.Equal(t, int64(1000), creator.got.MinAmount)
	require.NotNil(t, creator.got.MaxUses)
	assert.Equal(t, maxUses, *creator.got.MaxUses)
	assert.True(t, creator.got.Active)
	assert.Equal(t, []string{"family-monthly"}, creator.got.PlanIDs)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(42), resp["coupon_id"])
}

func TestCreateCouponRejectsBadInput(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing code", map[string]any{"discount_kind": "percentage", "discount_value": 10}},
		{"unknown kind", map[string]any{"code": "X", "discount_kind": "bogo", "discount_value": 10}},
		{"percentage over 100", map[string]any{"code": "X", "discount_kind": "percentage", "discount_value": 150}},
		{"negative fixed", map[string]any{"code": "X", "discount_kind": "fixed", "discount_value": -5}},
		{"zero max uses", map[string]any{"code": "X", "discount_kind": "fixed", "discount_value": 5, "max_uses": 0}},
		{"bad valid_until", map[string]any{"code": "X", "discount_kind": "fixed", "discount_value": 5, "valid_until": "tomorrow"}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			creator := &fakeCreator{}
			h := NewCouponHandler(nil, creator, nil, nil, nil, discardLogger())
			rec := postJSON(t, h.Create, "/admin/coupons", tc.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Nil(t, creator.got)
		})
	}
}

func TestCreateCouponDuplicateCode(t *testing.T) {
	t.Parallel()

	h := NewCouponHandler(nil, &fakeCreator{err: repository.ErrDuplicateCode}, nil, nil, nil, discardLogger())
	rec := postJSON(t, h.Create, "/admin/coupons", map[string]any{
		"code": "TAKEN", "discount_kind": "fixed", "discount_value": 100,
	})

	require.Equal(t, http.StatusConflict, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "code_taken", resp["error"])
}

type fakeRedemptions struct {
	byUser map[uuid.UUID][]models.Redemption
	err    error
}

func (f *fakeRedemptions) ListByUser(_ context.Context, userID uuid.UUID) ([]models.Redemption, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byUser[userID], nil
}

func TestListRedemptions(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	redeemed := time.Date(2026, 7, 4, 10, 0, 0, 0, time.UTC)
	redemptions := &fakeRedemptions{byUser: map[uuid.UUID][]models.Redemption{
		userID: {{ID: 1, UserID: userID, CouponID: 9, Amount: 500, RedeemedAt: redeemed}},
	}}
	h := NewCouponHandler(nil, nil, nil, redemptions, nil, discardLogger())

	r := chi.NewRouter()
	r.Get("/admin/users/{userID}/redemptions", h.ListRedemptions)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/users/"+userID.String()+"/redemptions", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Redemptions []redemptionResponse `json:"redemptions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Redemptions, 1)
	assert.Equal(t, int64(9), resp.Redemptions[0].CouponID)
	assert.Equal(t, int64(500), resp.Redemptions[0].Amount)
	assert.Equal(t, "2026-07-04T10:00:00Z", resp.Redemptions[0].RedeemedAt)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/users/not-a-uuid/redemptions", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPlans(t *testing.T) {
	t.Parallel()

	maxSeats := int64(100)
	lister := &fakeLister{plans: []models.Plan{
		{ID: "solo-monthly", Name: "Solo", Price: 999, Currency: "USD", Interval: models.IntervalMonth, TrialDays: 7},
		{ID: "chef-lifetime", Name: "Chef", Price: 19900, Currency: "USD", Interval: models.IntervalLifetime, MaxSeats: &maxSeats, SeatsTaken: 40},
	}}
	h := NewCouponHandler(nil, nil, lister, nil, nil, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/plans", nil)
	rec := httptest.NewRecorder()
	h.ListPlans(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Plans []planResponse `json:"plans"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Plans, 2)
	assert.Equal(t, "solo-monthly", resp.Plans[0].ID)
	assert.Nil(t, resp.Plans[0].SeatsLeft)
	require.NotNil(t, resp.Plans[1].SeatsLeft)
	assert.Equal(t, int64(60), *resp.Plans[1].SeatsLeft)
}

func TestListPlansUsesCache(t *testing.T) {
	t.Parallel()

	lister := &fakeLister{plans: []models.Plan{{ID: "solo-monthly", Price: 999}}}

	t.Run("miss populates", func(t *testing.T) {
		t.Parallel()

		cache := &fakePlanCache{}
		h := NewCouponHandler(nil, nil, lister, nil, cache, discardLogger())

		rec := httptest.NewRecorder()
		h.ListPlans(rec, httptest.NewRequest(http.MethodGet, "/plans", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, cache.sets)
	})

	t.Run("hit skips the store", func(t *testing.T) {
		t.Parallel()

		cache := &fakePlanCache{plans: []models.Plan{{ID: "cached-plan", Price: 1}}, hit: true}
		failing := &fakeLister{err: errors.New("must not be called")}
		h := NewCouponHandler(nil, nil, failing, nil, cache, discardLogger())

		rec := httptest.NewRecorder()
		h.ListPlans(rec, httptest.NewRequest(http.MethodGet, "/plans", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Zero(t, failing.calls)

		var resp struct {
			Plans []planResponse `json:"plans"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Plans, 1)
		assert.Equal(t, "cached-plan", resp.Plans[0].ID)
	})
}
