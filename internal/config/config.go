package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/platewise/billing-service/internal/payment"
	"github.com/platewise/billing-service/pkg/db"
)

// Config is the full service configuration, populated from the environment.
type Config struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`

	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`

	// Per-client request budget for the purchase endpoints.
	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" envDefault:"5"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" envDefault:"10"`

	RedisAddr    string        `env:"REDIS_ADDR"` // empty disables the plan cache
	PlanCacheTTL time.Duration `env:"PLAN_CACHE_TTL" envDefault:"30s"`

	DB     db.Config
	Paddle payment.PaddleConfig
}

// Load reads configuration from a local .env file (when present) and the
// process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Development reports whether the service runs with development defaults.
func (c Config) Development() bool {
	return c.Env != "production" && c.Env != "staging"
}
