package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/fxrates/internal/domain"
)

func testCache(t *testing.T, cacheNils bool) (*RatesCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, "fxrates", cacheNils), mr
}

func sampleRates() []domain.DenseRate {
	d := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	return []domain.DenseRate{{
		BaseCurrency:   "USD",
		TargetCurrency: "EUR",
		RequestedDate:  d,
		Rate:           decimal.RequireFromString("1.0950"),
		PublishedDate:  d,
	}}
}

func TestKeyShape(t *testing.T) {
	c, _ := testCache(t, false)

	start := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		start, end *time.Time
		want       string
	}{
		{name: "both_bounds", start: &start, end: &end, want: "fxrates:rates:EUR:2024-01-05:2024-01-08"},
		{name: "open_start", end: &end, want: "fxrates:rates:EUR:∅:2024-01-08"},
		{name: "open_end", start: &start, want: "fxrates:rates:EUR:2024-01-05:∅"},
		{name: "open_both", want: "fxrates:rates:EUR:∅:∅"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Key("EUR", tt.start, tt.end))
		})
	}
}

func TestStoreAndLookupRoundtrip(t *testing.T) {
	c, _ := testCache(t, false)
	ctx := context.Background()

	key := c.Key("EUR", nil, nil)
	_, ok := c.Lookup(ctx, key)
	assert.False(t, ok)

	want := sampleRates()
	c.Store(ctx, key, want)

	got, ok := c.Lookup(ctx, key)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, want[0].TargetCurrency, got[0].TargetCurrency)
	assert.True(t, got[0].Rate.Equal(want[0].Rate))
	assert.Equal(t, want[0].RequestedDate, got[0].RequestedDate)
}

func TestStoreSkipsEmptyUnlessNilCaching(t *testing.T) {
	ctx := context.Background()

	c, mr := testCache(t, false)
	c.Store(ctx, c.Key("EUR", nil, nil), nil)
	assert.Empty(t, mr.Keys())

	nilCaching, mr2 := testCache(t, true)
	nilCaching.Store(ctx, nilCaching.Key("EUR", nil, nil), []domain.DenseRate{})
	assert.Len(t, mr2.Keys(), 1)
}

func TestEvictAllRemovesOnlyNamespacedRateKeys(t *testing.T) {
	c, mr := testCache(t, false)
	ctx := context.Background()

	c.Store(ctx, c.Key("EUR", nil, nil), sampleRates())
	c.Store(ctx, c.Key("GBP", nil, nil), sampleRates())
	require.NoError(t, mr.Set("othersvc:rates:EUR:∅:∅", "keep"))
	require.NoError(t, mr.Set("fxrates:stream:currency-enabled", "keep"))

	require.NoError(t, c.EvictAll(ctx))

	_, ok := c.Lookup(ctx, c.Key("EUR", nil, nil))
	assert.False(t, ok)
	_, ok = c.Lookup(ctx, c.Key("GBP", nil, nil))
	assert.False(t, ok)
	assert.True(t, mr.Exists("othersvc:rates:EUR:∅:∅"))
	assert.True(t, mr.Exists("fxrates:stream:currency-enabled"))
}

func TestLookupDegradesToMissOnRedisFailure(t *testing.T) {
	c, mr := testCache(t, false)
	ctx := context.Background()

	key := c.Key("EUR", nil, nil)
	c.Store(ctx, key, sampleRates())
	mr.Close()

	_, ok := c.Lookup(ctx, key)
	assert.False(t, ok)
}

func TestLookupDropsUndecodableEntry(t *testing.T) {
	c, mr := testCache(t, false)
	ctx := context.Background()

	key := c.Key("EUR", nil, nil)
	require.NoError(t, mr.Set(key, "not json"))

	_, ok := c.Lookup(ctx, key)
	assert.False(t, ok)
	assert.False(t, mr.Exists(key))
}

func TestHealthy(t *testing.T) {
	c, mr := testCache(t, false)
	assert.True(t, c.Healthy(context.Background()))
	mr.Close()
	assert.False(t, c.Healthy(context.Background()))
}
