package search

import (
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/macrometric/internal/client/metrics"
	"github.com/dmitrijs2005/macrometric/internal/client/models"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultTTL      = 5 * time.Minute
	DefaultCapacity = 50
	// evictBatch entries are dropped at once when the cache overflows.
	evictBatch = 10
)

type cached struct {
	foods []models.FoodItem
	at    time.Time
}

// Cache holds search results by normalized query. Entries are only ever
// peeked, never promoted, so the underlying LRU order is insertion order and
// RemoveOldest drops the oldest timestamp.
type Cache struct {
	mu       sync.Mutex
	entries  *lru.Cache[string, cached]
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

type CacheOption func(*Cache)

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

func WithCapacity(n int) CacheOption {
	return func(c *Cache) {
		if n > evictBatch {
			c.capacity = n
		}
	}
}

func NewCache(ttl time.Duration, opts ...CacheOption) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{ttl: ttl, capacity: DefaultCapacity, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	// One slot of headroom: overflow is handled by Put, not by the LRU.
	entries, err := lru.New[string, cached](c.capacity + 1)
	if err != nil {
		panic(err)
	}
	c.entries = entries
	return c
}

// Fresh returns the entry for key when it is younger than the TTL.
func (c *Cache) Fresh(key string) ([]models.FoodItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Peek(key)
	if !ok || c.now().Sub(e.at) >= c.ttl {
		return nil, false
	}
	return slices.Clone(e.foods), true
}

// Lookup returns the entry for key regardless of age.
func (c *Cache) Lookup(key string) ([]models.FoodItem, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Peek(key)
	if !ok {
		return nil, time.Time{}, false
	}
	return slices.Clone(e.foods), e.at, true
}

// Put stores foods under key, stamped now. When the cache grows past its
// capacity the oldest entries are evicted in one batch.
func (c *Cache) Put(key string, foods []models.FoodItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-adding must move the key to the newest position.
	c.entries.Remove(key)
	c.entries.Add(key, cached{foods: slices.Clone(foods), at: c.now()})

	if c.entries.Len() <= c.capacity {
		return
	}
	for i := 0; i < evictBatch; i++ {
		if _, _, ok := c.entries.RemoveOldest(); !ok {
			break
		}
		metrics.SearchCacheEvictions.Inc()
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}
