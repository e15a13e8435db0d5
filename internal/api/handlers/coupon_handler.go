package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/platewise/billing-service/internal/models"
	"github.com/platewise/billing-service/internal/repository"
	"github.com/platewise/billing-service/internal/service"
)

// CouponValidator is the read-only validation slice of the engine. Purchase
// and validation share it, so the two can only disagree on the usage-count
// race, never on the rules.
type CouponValidator interface {
	ValidateCoupon(ctx context.Context, code, planID string) (*models.Coupon, int64, error)
}

// CouponCreator persists new coupons.
type CouponCreator interface {
	Create(ctx context.Context, c *models.Coupon) error
}

// PlanLister reads the purchasable plan catalog.
type PlanLister interface {
	ListActive(ctx context.Context) ([]models.Plan, error)
}

// PlanCache is the optional read cache in front of PlanLister.
type PlanCache interface {
	Get(ctx context.Context) ([]models.Plan, bool)
	Set(ctx context.Context, plans []models.Plan)
}

// RedemptionLister reads a user's redemption history.
type RedemptionLister interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Redemption, error)
}

type CouponHandler struct {
	validator   CouponValidator
	coupons     CouponCreator
	plans       PlanLister
	redemptions RedemptionLister
	cache       PlanCache // may be nil
	log         *slog.Logger
}

func NewCouponHandler(validator CouponValidator, coupons CouponCreator, plans PlanLister, redemptions RedemptionLister, cache PlanCache, log *slog.Logger) *CouponHandler {
	return &CouponHandler{
		validator:   validator,
		coupons:     coupons,
		plans:       plans,
		redemptions: redemptions,
		cache:       cache,
		log:         log,
	}
}

type validateRequest struct {
	Code   string `json:"code"`
	PlanID string `json:"plan_id"`
}

type validateResponse struct {
	Valid          bool   `json:"valid"`
	Reason         string `json:"reason,omitempty"`
	DiscountKind   string `json:"discount_kind,omitempty"`
	DiscountValue  int64  `json:"discount_value,omitempty"`
	DiscountAmount int64  `json:"discount_amount,omitempty"`
}

// Validate handles POST /coupons/validate. A failed rule check is a normal
// answer here, not an HTTP error.
func (h *CouponHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}
	if req.Code == "" || req.PlanID == "" {
		writeError(w, http.StatusBadRequest, "code and plan_id required")
		return
	}

	coupon, discount, err := h.validator.ValidateCoupon(r.Context(), req.Code, req.PlanID)
	if err != nil {
		if reason, ok := service.RejectionReason(err); ok {
			writeJSON(w, http.StatusOK, validateResponse{Valid: false, Reason: string(reason)})
			return
		}
		h.log.Error("coupon validation failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Valid:          true,
		DiscountKind:   string(coupon.Kind),
		DiscountValue:  coupon.Value,
		DiscountAmount: discount,
	})
}

type createCouponRequest struct {
	Code       string   `json:"code"`
	Kind       string   `json:"discount_kind"`
	Value      int64    `json:"discount_value"`
	MinAmount  int64    `json:"min_amount,omitempty"`
	MaxUses    *int64   `json:"max_uses,omitempty"`
	ValidFrom  string   `json:"valid_from,omitempty"` // RFC3339
	ValidUntil string   `json:"valid_until,omitempty"`
	PlanIDs    []string `json:"plan_ids,omitempty"`
}

// Create handles POST /admin/coupons.
func (h *CouponHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	coupon, err := couponFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.coupons.Create(r.Context(), coupon); err != nil {
		if errors.Is(err, repository.ErrDuplicateCode) {
			writeError(w, http.StatusConflict, "code_taken")
			return
		}
		h.log.Error("coupon create failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"coupon_id": coupon.ID,
		"code":      coupon.Code,
	})
}

func couponFromRequest(req createCouponRequest) (*models.Coupon, error) {
	if req.Code == "" {
		return nil, errors.New("code required")
	}

	kind := models.DiscountKind(req.Kind)
	switch kind {
	case models.DiscountPercentage:
		if req.Value < 0 || req.Value > 100 {
			return nil, errors.New("percentage value must be in [0,100]")
		}
	case models.DiscountFixed:
		if req.Value < 0 {
			return nil, errors.New("fixed value must be non-negative")
		}
	default:
		return nil, errors.New("discount_kind must be percentage or fixed")
	}

	validFrom := time.Now().UTC()
	if req.ValidFrom != "" {
		t, err := time.Parse(time.RFC3339, req.ValidFrom)
		if err != nil {
			return nil, errors.New("invalid valid_from; use RFC3339")
		}
		validFrom = t
	}

	var validUntil *time.Time
	if req.ValidUntil != "" {
		t, err := time.Parse(time.RFC3339, req.ValidUntil)
		if err != nil {
			return nil, errors.New("invalid valid_until; use RFC3339")
		}
		validUntil = &t
	}

	if req.MaxUses != nil && *req.MaxUses <= 0 {
		return nil, errors.New("max_uses must be positive when set")
	}

	return &models.Coupon{
		Code:       req.Code,
		Kind:       kind,
		Value:      req.Value,
		MinAmount:  req.MinAmount,
		MaxUses:    req.MaxUses,
		ValidFrom:  validFrom,
		ValidUntil: validUntil,
		Active:     true,
		PlanIDs:    req.PlanIDs,
	}, nil
}

type redemptionResponse struct {
	ID         int64  `json:"id"`
	CouponID   int64  `json:"coupon_id"`
	Amount     int64  `json:"amount"`
	RedeemedAt string `json:"redeemed_at"`
}

// ListRedemptions handles GET /admin/users/{userID}/redemptions, the
// reconciliation view of a user's coupon history.
func (h *CouponHandler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user_id")
		return
	}

	redemptions, err := h.redemptions.ListByUser(r.Context(), userID)
	if err != nil {
		h.log.Error("redemption listing failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	out := make([]redemptionResponse, 0, len(redemptions))
	for _, red := range redemptions {
		out = append(out, redemptionResponse{
			ID:         red.ID,
			CouponID:   red.CouponID,
			Amount:     red.Amount,
			RedeemedAt: red.RedeemedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"redemptions": out})
}

type planResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Currency  string `json:"currency"`
	Interval  string `json:"interval"`
	TrialDays int    `json:"trial_days"`
	SeatsLeft *int64 `json:"seats_left,omitempty"`
}

// ListPlans handles GET /plans, serving through the redis cache when one is
// configured.
func (h *CouponHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var plans []models.Plan
	cached := false
	if h.cache != nil {
		plans, cached = h.cache.Get(ctx)
	}
	if !cached {
		var err error
		plans, err = h.plans.ListActive(ctx)
		if err != nil {
			h.log.Error("plan listing failed", slog.Any("err", err))
			writeError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		if h.cache != nil {
			h.cache.Set(ctx, plans)
		}
	}

	out := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		pr := planResponse{
			ID:        p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Currency:  p.Currency,
			Interval:  string(p.Interval),
			TrialDays: p.TrialDays,
		}
		if p.MaxSeats != nil {
			left := *p.MaxSeats - p.SeatsTaken
			pr.SeatsLeft = &left
		}
		out = append(out, pr)
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": out})
}
