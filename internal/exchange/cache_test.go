package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cacheClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestTickerCacheRoundTrip(t *testing.T) {
	_, client := cacheClient(t)
	cache := NewTickerCache(client, time.Minute)
	ctx := context.Background()

	ticker := &Ticker{
		Contract:  "ETH_USDT",
		Last:      3000,
		MarkPrice: 3001.5,
		Volume24h: 125000,
	}
	cache.Put(ctx, true, ticker)

	got := cache.Get(ctx, "ETH_USDT", true)
	require.NotNil(t, got)
	assert.Equal(t, ticker, got)

	// Keyed by include_mark as well; the other variant is a miss.
	assert.Nil(t, cache.Get(ctx, "ETH_USDT", false))
}

func TestTickerCacheExpiry(t *testing.T) {
	mr, client := cacheClient(t)
	cache := NewTickerCache(client, 2*time.Second)
	ctx := context.Background()

	cache.Put(ctx, false, &Ticker{Contract: "BTC_USDT", Last: 65000})
	require.NotNil(t, cache.Get(ctx, "BTC_USDT", false))

	mr.FastForward(3 * time.Second)
	assert.Nil(t, cache.Get(ctx, "BTC_USDT", false))
}

func TestTickerCacheMissReturnsNil(t *testing.T) {
	_, client := cacheClient(t)
	cache := NewTickerCache(client, time.Minute)

	assert.Nil(t, cache.Get(context.Background(), "SOL_USDT", true))
}

func TestTickerCacheCorruptEntryFallsThrough(t *testing.T) {
	mr, client := cacheClient(t)
	cache := NewTickerCache(client, time.Minute)

	require.NoError(t, mr.Set("ticker:ETH_USDT:true", "not json"))
	assert.Nil(t, cache.Get(context.Background(), "ETH_USDT", true))
}

func TestTickerCacheNilClientDisabled(t *testing.T) {
	cache := NewTickerCache(nil, 0)
	ctx := context.Background()

	cache.Put(ctx, true, &Ticker{Contract: "ETH_USDT", Last: 3000})
	assert.Nil(t, cache.Get(ctx, "ETH_USDT", true))

	var nilCache *TickerCache
	assert.Nil(t, nilCache.Get(ctx, "ETH_USDT", true))
}
