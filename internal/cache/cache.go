package cache

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"gallery-index/internal/logging"
	"gallery-index/internal/metrics"
)

// Endpoint names used as key prefixes and metric labels.
const (
	EndpointGalleries     = "galleries"
	EndpointGalleryImages = "gallery_images"
	EndpointSearch        = "search"
	EndpointImage         = "image"
	EndpointMetadata      = "metadata"
)

// TTLs is the per-endpoint expiry policy.
type TTLs struct {
	Galleries     time.Duration
	GalleryImages time.Duration
	Search        time.Duration
	Images        time.Duration
	Metadata      time.Duration
}

// DefaultTTLs returns the default expiry policy.
func DefaultTTLs() TTLs {
	return TTLs{
		Galleries:     1800 * time.Second,
		GalleryImages: 600 * time.Second,
		Search:        300 * time.Second,
		Images:        7200 * time.Second,
		Metadata:      3600 * time.Second,
	}
}

// Config contains configuration for the query cache
type Config struct {
	// MaxEntries caps the number of live entries. Zero means unbounded.
	MaxEntries int
	// CleanupInterval is how often the janitor sweeps expired entries.
	CleanupInterval time.Duration
}

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{
		MaxEntries:      10000,
		CleanupInterval: time.Minute,
	}
}

// Cache is an in-process TTL cache for computed query results. Reads never
// return an entry at or past its expiry; expired entries are removed when
// read and by the janitor.
type Cache struct {
	config Config
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry

	group singleflight.Group

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type entry struct {
	value     any
	expiresAt time.Time
}

// noStore marks a loader result that must be returned but not cached.
type noStore struct {
	value any
}

// NoStore wraps v so that GetOrLoad returns it without caching it. Loaders
// use this for degraded results that should not outlive the request.
func NoStore(v any) any {
	return noStore{value: v}
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a Cache. Call Start to run the janitor.
func New(config Config, opts ...Option) *Cache {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig().CleanupInterval
	}

	c := &Cache{
		config:  config,
		now:     time.Now,
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key builds a deterministic cache key from an endpoint name and its
// parameters. Parameter names are sorted, so map iteration order and the
// order of query arguments do not matter. Callers must fill in defaults
// before building the key.
func Key(endpoint string, params map[string]string) string {
	if len(params) == 0 {
		return endpoint
	}

	values := make(url.Values, len(params))
	for k, v := range params {
		values.Set(k, v)
	}
	// Encode sorts by key
	return endpoint + "?" + values.Encode()
}

func endpointOf(key string) string {
	if i := strings.IndexByte(key, '?'); i >= 0 {
		return key[:i]
	}
	return key
}

// Get returns the value stored under key if it has not expired.
func (c *Cache) Get(key string) (any, bool) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		metrics.CacheMisses.WithLabelValues(endpointOf(key)).Inc()
		return nil, false
	}

	if !now.Before(e.expiresAt) {
		c.mu.Lock()
		// Re-check: the entry may have been replaced since the read lock
		if cur, ok := c.entries[key]; ok && cur == e {
			delete(c.entries, key)
			metrics.CacheEvictions.WithLabelValues("expired").Inc()
			metrics.CacheEntries.Set(float64(len(c.entries)))
		}
		c.mu.Unlock()
		metrics.CacheMisses.WithLabelValues(endpointOf(key)).Inc()
		return nil, false
	}

	metrics.CacheHits.WithLabelValues(endpointOf(key)).Inc()
	return e.value, true
}

// Set stores value under key for ttl. A non-positive ttl is a no-op.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry{value: value, expiresAt: c.now().Add(ttl)}
	c.evictIfNeeded()
	metrics.CacheEntries.Set(float64(len(c.entries)))
}

// GetOrLoad returns the cached value for key, or calls load once for all
// concurrent callers of the same key and caches its result for ttl. Errors
// are never cached. Waiting callers return early if their own ctx is done.
func (c *Cache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(ctx context.Context) (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// Another flight may have filled the entry while we waited to start
		c.mu.RLock()
		e, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && c.now().Before(e.expiresAt) {
			return e.value, nil
		}

		// The flight outlives any single waiter
		v, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if ns, ok := v.(noStore); ok {
			return ns.value, nil
		}
		c.Set(key, v, ttl)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.CacheSharedLoads.Inc()
		}
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() int {
	c.mu.Lock()
	n := len(c.entries)
	c.entries = make(map[string]*entry)
	c.mu.Unlock()

	metrics.CacheFlushesTotal.Inc()
	metrics.CacheEvictions.WithLabelValues("invalidated").Add(float64(n))
	metrics.CacheEntries.Set(0)
	logging.Info("Query cache flushed: %d entries removed", n)
	return n
}

// Invalidate drops every entry whose key starts with prefix and returns how
// many were removed.
func (c *Cache) Invalidate(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			removed++
		}
	}

	metrics.CacheEvictions.WithLabelValues("invalidated").Add(float64(removed))
	metrics.CacheEntries.Set(float64(len(c.entries)))
	return removed
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// DeleteExpired removes all expired entries and returns how many were removed.
func (c *Cache) DeleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := c.deleteExpiredLocked(c.now())
	metrics.CacheEntries.Set(float64(len(c.entries)))
	return removed
}

func (c *Cache) deleteExpiredLocked(now time.Time) int {
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	if removed > 0 {
		metrics.CacheEvictions.WithLabelValues("expired").Add(float64(removed))
	}
	return removed
}

// evictIfNeeded removes expired entries and then the entries closest to
// expiry until the cache is within MaxEntries. Caller must hold write lock.
func (c *Cache) evictIfNeeded() {
	if c.config.MaxEntries <= 0 || len(c.entries) <= c.config.MaxEntries {
		return
	}

	c.deleteExpiredLocked(c.now())

	for len(c.entries) > c.config.MaxEntries {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.expiresAt.Before(oldest) {
				oldestKey = k
				oldest = e.expiresAt
			}
		}
		delete(c.entries, oldestKey)
		metrics.CacheEvictions.WithLabelValues("capacity").Inc()
	}
}

// Start runs the janitor until Stop is called.
func (c *Cache) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.config.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n := c.DeleteExpired(); n > 0 {
					logging.Debug("Cache janitor removed %d expired entries", n)
				}
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop halts the janitor and waits for it to exit. Safe to call more than once.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}
