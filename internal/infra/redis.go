package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"possales/internal/dto"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// NewRedis creates and validates a go-redis client connection.
func NewRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)

	// Validate connectivity at startup
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return rdb, nil
}

const productCachePrefix = "product:"

// ProductCache stores product responses as JSON with a TTL. Redis errors are
// logged and treated as cache misses.
type ProductCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewProductCache(rdb *redis.Client, ttl time.Duration) *ProductCache {
	return &ProductCache{rdb: rdb, ttl: ttl}
}

func productKey(id uint) string { return fmt.Sprintf("%s%d", productCachePrefix, id) }

func (c *ProductCache) Get(ctx context.Context, id uint) (*dto.ProductResponse, bool) {
	raw, err := c.rdb.Get(ctx, productKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Uint("product_id", id).Msg("product cache: get failed")
		}
		return nil, false
	}
	var p dto.ProductResponse
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false
	}
	return &p, true
}

func (c *ProductCache) Set(ctx context.Context, p *dto.ProductResponse) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, productKey(p.ID), data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Uint("product_id", p.ID).Msg("product cache: set failed")
	}
}

func (c *ProductCache) Invalidate(ctx context.Context, ids ...uint) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, productKey(id))
	}
	// Runs after commit; a cancelled request must not skip it.
	if err := c.rdb.Del(context.WithoutCancel(ctx), keys...).Err(); err != nil {
		log.Warn().Err(err).Int("keys", len(keys)).Msg("product cache: invalidate failed")
	}
}
