package priceoracle

import (
	"sort"
	"sync"
	"time"

	"github.com/chainscout/walletrader/pkg/types"
)

const (
	cacheTTL        = 60 * time.Second
	cacheMaxEntries = 500
	cacheEvictFrac  = 0.25
)

type cacheEntry struct {
	quote    types.PriceQuote
	cachedAt time.Time
}

type cacheKey struct {
	chain types.Chain
	token string
}

// cache is a bounded, TTL-expiring store for price lookups. It is never
// allowed to hold a zero price, so a source cannot poison the cache.
type cache struct {
	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
}

func newCache() *cache {
	return &cache{entries: make(map[cacheKey]cacheEntry)}
}

func (c *cache) get(key cacheKey) (types.PriceQuote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return types.PriceQuote{}, false
	}
	if time.Since(e.cachedAt) >= cacheTTL {
		return types.PriceQuote{}, false
	}
	return e.quote, true
}

func (c *cache) put(key cacheKey, quote types.PriceQuote) {
	if !quote.PriceUSD.IsPositive() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{quote: quote, cachedAt: time.Now()}
	c.evictIfNeeded()
}

// evictIfNeeded must be called with the lock held. It first drops every
// expired entry, then, if still over the cap, drops the oldest 25%.
func (c *cache) evictIfNeeded() {
	if len(c.entries) <= cacheMaxEntries {
		return
	}

	now := time.Now()
	for k, e := range c.entries {
		if now.Sub(e.cachedAt) >= cacheTTL {
			delete(c.entries, k)
		}
	}
	if len(c.entries) <= cacheMaxEntries {
		return
	}

	type aged struct {
		key cacheKey
		at  time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, aged{key: k, at: e.cachedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })

	toDrop := int(float64(len(all)) * cacheEvictFrac)
	for i := 0; i < toDrop; i++ {
		delete(c.entries, all[i].key)
	}
}

func (c *cache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
