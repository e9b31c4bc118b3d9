// Package cache fronts the query engine with a Redis-backed result cache
// shared across replicas. Entries have no TTL; imports evict the whole
// namespace after commit.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/fxrates/internal/domain"
	"github.com/sawpanic/fxrates/internal/metrics"
)

// noBound marks an absent range bound in cache keys.
const noBound = "∅"

// RatesCache stores dense query results keyed by (target, start, end).
type RatesCache struct {
	client    *redis.Client
	namespace string
	cacheNils bool
	logger    zerolog.Logger
}

// New builds a RatesCache on an existing Redis client. namespace prefixes
// every key so unrelated tenants of the instance stay untouched by EvictAll.
func New(client *redis.Client, namespace string, cacheNils bool) *RatesCache {
	return &RatesCache{
		client:    client,
		namespace: namespace,
		cacheNils: cacheNils,
		logger:    log.With().Str("component", "rates_cache").Logger(),
	}
}

// Key renders the cache key for a query shape.
func (c *RatesCache) Key(target string, start, end *time.Time) string {
	s, e := noBound, noBound
	if start != nil {
		s = domain.FormatDate(*start)
	}
	if end != nil {
		e = domain.FormatDate(*end)
	}
	return fmt.Sprintf("%s:rates:%s:%s:%s", c.namespace, target, s, e)
}

// Lookup returns the cached dense series for key, or ok=false on miss.
// Redis errors degrade to a miss; the store stays authoritative.
func (c *RatesCache) Lookup(ctx context.Context, key string) ([]domain.DenseRate, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.CacheRequests.WithLabelValues("miss").Inc()
			return nil, false
		}
		metrics.CacheRequests.WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("cache lookup failed")
		return nil, false
	}

	var out []domain.DenseRate
	if err := json.Unmarshal(raw, &out); err != nil {
		metrics.CacheRequests.WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("cache entry undecodable, dropping")
		c.client.Del(ctx, key)
		return nil, false
	}

	metrics.CacheRequests.WithLabelValues("hit").Inc()
	return out, true
}

// Store caches a query result. Empty results are stored only when null
// caching is enabled; a store failure is logged and swallowed.
func (c *RatesCache) Store(ctx context.Context, key string, value []domain.DenseRate) {
	if len(value) == 0 && !c.cacheNils {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to encode cache entry")
		return
	}
	if err := c.client.Set(ctx, key, raw, 0).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache store failed")
	}
}

// EvictAll removes every rates entry in the namespace. Called after import
// commits; SCAN keeps the operation incremental on a shared instance.
func (c *RatesCache) EvictAll(ctx context.Context) error {
	pattern := fmt.Sprintf("%s:rates:*", c.namespace)
	var cursor uint64
	var removed int

	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete cache keys: %w", err)
			}
			removed += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	metrics.CacheEvictions.Inc()
	c.logger.Debug().Int("keys", removed).Msg("rates cache evicted")
	return nil
}

// Healthy reports whether Redis answers a ping.
func (c *RatesCache) Healthy(ctx context.Context) bool {
	return c.client.Ping(ctx).Err() == nil
}
