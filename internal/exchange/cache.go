package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// TickerCacheTTL is the short TTL for ticker snapshots.
const TickerCacheTTL = 2 * time.Second

// FundingCacheTTL is how long a funding rate stays fresh.
const FundingCacheTTL = time.Hour

// TickerCache caches ticker snapshots in Redis keyed by
// (contract, include_mark_price). Reads tolerate a momentarily stale or
// unavailable cache: any Redis failure falls through to the fetch.
type TickerCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewTickerCache creates a ticker cache. A nil client disables caching.
func NewTickerCache(client *redis.Client, ttl time.Duration) *TickerCache {
	if ttl <= 0 {
		ttl = TickerCacheTTL
	}
	return &TickerCache{redis: client, ttl: ttl}
}

func tickerKey(contract string, includeMark bool) string {
	return fmt.Sprintf("ticker:%s:%t", contract, includeMark)
}

// Get returns a cached ticker or nil on miss.
func (c *TickerCache) Get(ctx context.Context, contract string, includeMark bool) *Ticker {
	if c == nil || c.redis == nil {
		return nil
	}
	cached, err := c.redis.Get(ctx, tickerKey(contract, includeMark)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Msg("Redis error during ticker cache lookup")
		}
		return nil
	}
	var t Ticker
	if err := json.Unmarshal([]byte(cached), &t); err != nil {
		log.Warn().Err(err).Msg("Failed to unmarshal cached ticker, fetching fresh")
		return nil
	}
	return &t
}

// Put stores a ticker. Write failures are logged, never surfaced.
func (c *TickerCache) Put(ctx context.Context, includeMark bool, t *Ticker) {
	if c == nil || c.redis == nil || t == nil {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to marshal ticker for cache")
		return
	}
	if err := c.redis.Set(ctx, tickerKey(t.Contract, includeMark), data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to cache ticker")
	}
}

// contractCache holds contract metadata for the process lifetime.
// Read-mostly: a single writer fills entries on first use.
type contractCache struct {
	mu    sync.RWMutex
	items map[string]*ContractInfo
}

func newContractCache() *contractCache {
	return &contractCache{items: make(map[string]*ContractInfo)}
}

func (c *contractCache) get(contract string) *ContractInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items[contract]
}

func (c *contractCache) put(info *ContractInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[info.Contract] = info
}

// fundingCache holds funding rates with a one-hour TTL.
type fundingCache struct {
	mu    sync.RWMutex
	items map[string]fundingEntry
}

type fundingEntry struct {
	rate    float64
	fetched time.Time
}

func newFundingCache() *fundingCache {
	return &fundingCache{items: make(map[string]fundingEntry)}
}

func (c *fundingCache) get(contract string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[contract]
	if !ok || time.Since(e.fetched) > FundingCacheTTL {
		return 0, false
	}
	return e.rate, true
}

func (c *fundingCache) put(contract string, rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[contract] = fundingEntry{rate: rate, fetched: time.Now()}
}

// clockOffset tracks the exchange-server time offset. A single refresher
// goroutine writes; readers tolerate a stale value.
type clockOffset struct {
	mu     sync.RWMutex
	offset time.Duration
}

func (c *clockOffset) set(offset time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = offset
}

func (c *clockOffset) now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().Add(-c.offset)
}
