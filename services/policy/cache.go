package policy

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "policy_cache_hits_total"})
	cacheMiss = prometheus.NewCounter(prometheus.CounterOpts{Name: "policy_cache_miss_total"})
)

type CacheKey struct {
	AccountID string
	PolicyID  string
}

type cachedPolicy struct {
	policy   *Policy
	loadedAt time.Time
}

// Cache is a thread-safe, TTL-bounded policy cache with singleflight loads.
// Policies are read on every issuance and every trigger event; they change
// rarely.
type Cache struct {
	mu    sync.RWMutex
	items map[CacheKey]*cachedPolicy
	ttl   time.Duration
	group singleflight.Group
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		items: make(map[CacheKey]*cachedPolicy),
		ttl:   ttl,
	}
}

func (c *Cache) get(key CacheKey) (*Policy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	if !ok || (c.ttl > 0 && time.Since(v.loadedAt) > c.ttl) {
		return nil, false
	}
	return v.policy, true
}

func (c *Cache) set(key CacheKey, p *Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = &cachedPolicy{policy: p, loadedAt: time.Now()}
}

func (c *Cache) Invalidate(key CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// GetOrLoad returns the cached policy or loads it, collapsing concurrent
// loads for the same key into one.
func (c *Cache) GetOrLoad(key CacheKey, load func() (*Policy, error)) (*Policy, error) {
	if p, ok := c.get(key); ok {
		cacheHits.Inc()
		return p, nil
	}
	cacheMiss.Inc()

	v, err, _ := c.group.Do(key.AccountID+"/"+key.PolicyID, func() (interface{}, error) {
		p, err := load()
		if err != nil {
			return nil, err
		}
		if p != nil {
			c.set(key, p)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Policy), nil
}
