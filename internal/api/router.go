package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/platewise/billing-service/internal/api/handlers"
	"github.com/platewise/billing-service/internal/api/middleware"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Subscriptions *handlers.SubscriptionHandler
	Coupons       *handlers.CouponHandler

	Log                *slog.Logger
	MetricsEnabled     bool
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// NewRouter builds the HTTP router for the billing service.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger(d.Log))
	r.Use(middleware.Metrics)

	// Purchase surface, rate limited per client.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(d.RateLimitPerSecond, d.RateLimitBurst))
		r.Post("/subscriptions", d.Subscriptions.Purchase)
		r.Post("/coupons/validate", d.Coupons.Validate)
	})

	r.Get("/plans", d.Coupons.ListPlans)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/coupons", d.Coupons.Create)
		r.Get("/users/{userID}/redemptions", d.Coupons.ListRedemptions)
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if d.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}
