package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"gallery-index/internal/logging"
	"gallery-index/internal/metrics"
)

// RateLimitConfig holds the per-client admission policy.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active.
	Enabled bool
	// Requests is the number of requests allowed per Window.
	Requests int
	// Window is the period over which Requests are allowed.
	Window time.Duration
	// SkipPaths are never limited.
	SkipPaths []string
}

// DefaultRateLimitConfig allows 100 requests per minute per client.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:   true,
		Requests:  100,
		Window:    time.Minute,
		SkipPaths: []string{"/health", "/healthz", "/livez", "/readyz"},
	}
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per client IP. A bucket holds Requests
// tokens and refills at Requests per Window.
type RateLimiter struct {
	config RateLimitConfig
	limit  rate.Limit
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*clientBucket

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a limiter. Call Start to evict idle clients.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.Requests < 1 {
		config.Requests = 1
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	return &RateLimiter{
		config:  config,
		limit:   rate.Limit(float64(config.Requests) / config.Window.Seconds()),
		now:     time.Now,
		clients: make(map[string]*clientBucket),
		stopCh:  make(chan struct{}),
	}
}

// Allow consumes a token for key and reports whether one was available.
// When it was not, retryAfter is the wait until the next token.
func (rl *RateLimiter) Allow(key string) (ok bool, retryAfter time.Duration) {
	if !rl.config.Enabled {
		return true, 0
	}

	now := rl.now()

	rl.mu.Lock()
	b, exists := rl.clients[key]
	if !exists {
		b = &clientBucket{limiter: rate.NewLimiter(rl.limit, rl.config.Requests)}
		rl.clients[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, rl.config.Window
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Start evicts clients idle for two windows until Stop is called.
func (rl *RateLimiter) Start() {
	go func() {
		ticker := time.NewTicker(rl.config.Window * 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.cleanupStale()
			case <-rl.stopCh:
				return
			}
		}
	}()
}

// Stop ends the eviction goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) cleanupStale() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	threshold := rl.now().Add(-2 * rl.config.Window)
	removed := 0
	for key, b := range rl.clients {
		if b.lastSeen.Before(threshold) {
			delete(rl.clients, key)
			removed++
		}
	}
	if removed > 0 {
		logging.Debug("Rate limiter evicted %d idle clients", removed)
	}
	return removed
}

// Middleware rejects requests over the limit with 429 and Retry-After.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, p := range rl.config.SkipPaths {
			if r.URL.Path == p {
				next.ServeHTTP(w, r)
				return
			}
		}

		ok, retryAfter := rl.Allow(ClientIP(r))
		if !ok {
			metrics.HTTPRateLimited.Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"Too many requests"}` + "\n"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
