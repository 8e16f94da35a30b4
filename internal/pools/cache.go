package pools

import (
	"sync"
	"sync/atomic"

	"solana-copytrader/internal/domain"
)

// maxPoolsPerMint bounds the ranked set kept per mint.
const maxPoolsPerMint = 10

type cacheEntry struct {
	pool *domain.PoolRef
	hits atomic.Int64
}

// rankedCache keeps up to maxPoolsPerMint pools per mint, ranked by
// usage. Hit counters are atomic so concurrent lookups never lose an
// increment; the entry with the fewest hits is evicted when full.
type rankedCache struct {
	mu      sync.RWMutex
	entries map[string][]*cacheEntry // mint -> ranked set
}

func newRankedCache() *rankedCache {
	return &rankedCache{
		entries: make(map[string][]*cacheEntry),
	}
}

// preferred returns the most-used pool for a mint and counts the use.
// Ties go to the newest pool, so a migrated pool outranks the curve it
// superseded even before either has been picked.
func (c *rankedCache) preferred(mint string) *domain.PoolRef {
	c.mu.RLock()
	defer c.mu.RUnlock()

	set := c.entries[mint]
	if len(set) == 0 {
		return nil
	}

	best := set[0]
	for _, e := range set[1:] {
		hits, bestHits := e.hits.Load(), best.hits.Load()
		if hits > bestHits || (hits == bestHits && e.pool.CreatedAt > best.pool.CreatedAt) {
			best = e
		}
	}
	best.hits.Add(1)
	return best.pool
}

// put inserts a pool into the mint's ranked set. Already-cached
// addresses keep their existing counter. When the set is full the
// lowest-ranked entry makes room.
func (c *rankedCache) put(pool *domain.PoolRef) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set := c.entries[pool.Mint]
	for _, e := range set {
		if e.pool.Address == pool.Address {
			return
		}
	}

	entry := &cacheEntry{pool: pool}
	if len(set) >= maxPoolsPerMint {
		lowest := 0
		for i, e := range set {
			if e.hits.Load() < set[lowest].hits.Load() {
				lowest = i
			}
		}
		set[lowest] = entry
	} else {
		set = append(set, entry)
	}
	c.entries[pool.Mint] = set
}

// get returns the cached pool for an address, if any.
func (c *rankedCache) get(mint, address string) *domain.PoolRef {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, e := range c.entries[mint] {
		if e.pool.Address == address {
			return e.pool
		}
	}
	return nil
}
