package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/platewise/billing-service/internal/models"
)

const planListKey = "billing:plans:active"

// PlanCache is a redis-backed read cache for the active plan listing. The
// catalog changes rarely, so the plan list is served from redis with a short
// TTL and invalidated after purchases that can deactivate a seat-capped
// plan. The purchase path itself never reads through this cache: pricing and
// availability decisions always use fresh rows.
type PlanCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

func NewPlanCache(rdb *redis.Client, ttl time.Duration, log *slog.Logger) *PlanCache {
	return &PlanCache{rdb: rdb, ttl: ttl, log: log}
}

// Get returns the cached plan list, or (nil, false) on a miss. Redis errors
// degrade to a miss so an unavailable cache never breaks the listing.
func (c *PlanCache) Get(ctx context.Context) ([]models.Plan, bool) {
	raw, err := c.rdb.Get(ctx, planListKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("plan cache read failed", slog.Any("err", err))
		}
		return nil, false
	}

	var plans []models.Plan
	if err := json.Unmarshal(raw, &plans); err != nil {
		c.log.Warn("plan cache entry corrupt, dropping", slog.Any("err", err))
		_ = c.rdb.Del(ctx, planListKey).Err()
		return nil, false
	}
	return plans, true
}

// Set stores the plan list with the configured TTL.
func (c *PlanCache) Set(ctx context.Context, plans []models.Plan) {
	raw, err := json.Marshal(plans)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, planListKey, raw, c.ttl).Err(); err != nil {
		c.log.Warn("plan cache write failed", slog.Any("err", err))
	}
}

// Invalidate drops the cached listing, e.g. after a lifetime purchase takes
// a seat.
func (c *PlanCache) Invalidate(ctx context.Context) {
	if err := c.rdb.Del(ctx, planListKey).Err(); err != nil {
		c.log.Warn("plan cache invalidation failed", slog.Any("err", err))
	}
}
