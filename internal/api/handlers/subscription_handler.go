package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/platewise/billing-service/internal/service"
)

var purchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "billing_purchases_total",
	Help: "Purchase attempts by outcome.",
}, []string{"outcome"})

// PurchaseEngine is the slice of the lifecycle engine the HTTP layer needs.
type PurchaseEngine interface {
	Purchase(ctx context.Context, p service.PurchaseParams) (*service.PurchaseResult, error)
}

// PlanCacheInvalidator drops cached catalog listings after a purchase that
// may have deactivated a seat-capped plan.
type PlanCacheInvalidator interface {
	Invalidate(ctx context.Context)
}

type SubscriptionHandler struct {
	engine PurchaseEngine
	cache  PlanCacheInvalidator // may be nil
	log    *slog.Logger
}

func NewSubscriptionHandler(engine PurchaseEngine, cache PlanCacheInvalidator, log *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{engine: engine, cache: cache, log: log}
}

type purchaseRequest struct {
	UserID     string `json:"user_id"`
	PlanID     string `json:"plan_id"`
	CouponCode string `json:"coupon_code,omitempty"`
	StartTrial bool   `json:"start_trial"`
	AttemptID  string `json:"attempt_id,omitempty"`
	Email      string `json:"email,omitempty"`
}

type purchaseResponse struct {
	SubscriptionID string `json:"subscription_id"`
	TrialDays      int    `json:"trial_days"`
	DiscountAmount int64  `json:"discount_amount"`
	FinalAmount    int64  `json:"final_amount"`
	ClientSecret   string `json:"client_secret,omitempty"`
	AttemptID      string `json:"attempt_id"`
}

// Purchase handles POST /subscriptions.
func (h *SubscriptionHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body")
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user_id")
		return
	}
	if req.PlanID == "" {
		writeError(w, http.StatusBadRequest, "plan_id required")
		return
	}

	// The attempt id makes retries idempotent. One is minted here when the
	// client did not send one, and echoed back so a retry can reuse it.
	attemptID := uuid.New()
	if req.AttemptID != "" {
		attemptID, err = uuid.Parse(req.AttemptID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_attempt_id")
			return
		}
	}

	res, err := h.engine.Purchase(r.Context(), service.PurchaseParams{
		UserID:     userID,
		PlanID:     req.PlanID,
		CouponCode: req.CouponCode,
		StartTrial: req.StartTrial,
		AttemptID:  attemptID,
		Email:      req.Email,
	})
	if err != nil {
		h.purchaseFailed(w, err)
		return
	}

	purchasesTotal.WithLabelValues("success").Inc()
	if h.cache != nil {
		h.cache.Invalidate(r.Context())
	}

	writeJSON(w, http.StatusOK, purchaseResponse{
		SubscriptionID: res.SubscriptionID,
		TrialDays:      res.TrialDays,
		DiscountAmount: res.DiscountAmount,
		FinalAmount:    res.FinalAmount,
		ClientSecret:   res.ClientSecret,
		AttemptID:      attemptID.String(),
	})
}

func (h *SubscriptionHandler) purchaseFailed(w http.ResponseWriter, err error) {
	if reason, ok := service.RejectionReason(err); ok {
		purchasesTotal.WithLabelValues("rejected").Inc()
		writeReason(w, http.StatusBadRequest, reason)
		return
	}

	var bk *service.BookkeepingError
	if errors.As(err, &bk) {
		purchasesTotal.WithLabelValues("bookkeeping_failed").Inc()
		writeJSON(w, http.StatusConflict, map[string]string{"reason": "bookkeeping_failed"})
		return
	}

	if errors.Is(err, service.ErrGatewayUnavailable) {
		purchasesTotal.WithLabelValues("gateway_unavailable").Inc()
		writeJSON(w, http.StatusBadGateway, map[string]string{"reason": "gateway_unavailable"})
		return
	}

	purchasesTotal.WithLabelValues("error").Inc()
	h.log.Error("purchase failed", slog.Any("err", err))
	writeError(w, http.StatusInternalServerError, "internal_error")
}
