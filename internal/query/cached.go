package query

import (
	"context"
	"time"

	"github.com/sawpanic/fxrates/internal/cache"
	"github.com/sawpanic/fxrates/internal/domain"
)

// RatesReader is the query capability the HTTP layer depends on.
type RatesReader interface {
	GetExchangeRates(ctx context.Context, target string, start, end *time.Time) ([]domain.DenseRate, error)
}

// CachedEngine decorates Engine with the shared Redis result cache. Only
// successful results enter the cache; validation and lookup failures never do.
type CachedEngine struct {
	engine *Engine
	cache  *cache.RatesCache
}

var _ RatesReader = (*CachedEngine)(nil)

// NewCached wraps engine with the rates cache.
func NewCached(engine *Engine, c *cache.RatesCache) *CachedEngine {
	return &CachedEngine{engine: engine, cache: c}
}

// GetExchangeRates serves from cache when possible and populates it on miss.
func (c *CachedEngine) GetExchangeRates(ctx context.Context, target string, start, end *time.Time) ([]domain.DenseRate, error) {
	key := c.cache.Key(target, start, end)
	if hit, ok := c.cache.Lookup(ctx, key); ok {
		return hit, nil
	}

	result, err := c.engine.GetExchangeRates(ctx, target, start, end)
	if err != nil {
		return nil, err
	}

	c.cache.Store(ctx, key, result)
	return result, nil
}
