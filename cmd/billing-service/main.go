package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/platewise/billing-service/internal/api"
	"github.com/platewise/billing-service/internal/api/handlers"
	"github.com/platewise/billing-service/internal/cache"
	"github.com/platewise/billing-service/internal/config"
	"github.com/platewise/billing-service/internal/payment"
	"github.com/platewise/billing-service/internal/repository"
	"github.com/platewise/billing-service/internal/service"
	"github.com/platewise/billing-service/pkg/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	log := newLogger(cfg)

	if err := db.Migrate(cfg.DB); err != nil {
		log.Error("migrations failed", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("migrations applied")

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		log.Error("db connect failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer conn.Close()

	gateway, err := payment.NewPaddleGateway(cfg.Paddle)
	if err != nil {
		log.Error("payment gateway init failed", slog.Any("err", err))
		os.Exit(1)
	}

	store := repository.NewStore(conn)
	engine := service.NewEngine(store, gateway, log,
		service.WithGatewayTimeout(cfg.GatewayTimeout),
	)

	var planCache *cache.PlanCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		planCache = cache.NewPlanCache(rdb, cfg.PlanCacheTTL, log)
		defer rdb.Close()
	}

	// handlers take nil-able cache interfaces; avoid a typed-nil sneaking in
	var invalidator handlers.PlanCacheInvalidator
	var readCache handlers.PlanCache
	if planCache != nil {
		invalidator = planCache
		readCache = planCache
	}

	router := api.NewRouter(api.Deps{
		Subscriptions:      handlers.NewSubscriptionHandler(engine, invalidator, log),
		Coupons:            handlers.NewCouponHandler(engine, store.Coupons(), store.Plans(), store.Redemptions(), readCache, log),
		Log:                log,
		MetricsEnabled:     cfg.MetricsEnabled,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idleConnsClosed := make(chan struct{})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", slog.Any("err", err))
		}
		close(idleConnsClosed)
	}()

	log.Info("starting billing-service", slog.String("addr", cfg.HTTPAddr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("listen failed", slog.Any("err", err))
		os.Exit(1)
	}

	<-idleConnsClosed
	log.Info("server stopped")
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Development() {
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	log := slog.New(h).With(slog.String("service", "billing"))
	slog.SetDefault(log)
	return log
}
