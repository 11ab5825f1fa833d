package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/geneseez/geneseez/internal/api"
	"github.com/geneseez/geneseez/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long a client's limiter survives without requests
const limiterIdleTTL = 10 * time.Minute

// RateLimiter keeps one token bucket per client IP
type RateLimiter struct {
	mu       sync.RWMutex
	enabled  bool
	limit    rate.Limit
	burst    int
	limiters *cache.Cache
}

// NewRateLimiter creates a limiter from the security settings
func NewRateLimiter(cfg config.SecurityConfig) *RateLimiter {
	rl := &RateLimiter{
		limiters: cache.New(limiterIdleTTL, limiterIdleTTL),
	}
	rl.apply(cfg)
	return rl
}

func (rl *RateLimiter) apply(cfg config.SecurityConfig) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.enabled = cfg.RateLimitEnabled
	rl.limit = rate.Limit(cfg.RateLimitRPS)
	rl.burst = cfg.RateLimitBurst
	// Existing buckets were sized for the old settings
	rl.limiters.Flush()
}

// UpdateConfig is a config.ConfigWatcher
func (rl *RateLimiter) UpdateConfig(_, newConfig *config.Config) {
	if newConfig != nil {
		rl.apply(newConfig.Security)
	}
}

// Allow reports whether a request from key may proceed
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.RLock()
	enabled, limit, burst := rl.enabled, rl.limit, rl.burst
	rl.mu.RUnlock()

	if !enabled {
		return true
	}

	if v, ok := rl.limiters.Get(key); ok {
		rl.limiters.SetDefault(key, v)
		return v.(*rate.Limiter).Allow()
	}

	limiter := rate.NewLimiter(limit, burst)
	if err := rl.limiters.Add(key, limiter, cache.DefaultExpiration); err != nil {
		// Another request created it first
		if v, ok := rl.limiters.Get(key); ok {
			limiter = v.(*rate.Limiter)
		}
	}
	return limiter.Allow()
}

// Middleware rejects requests over the per-IP budget with 429
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			api.RespondWithCode(c, http.StatusTooManyRequests, api.CodeRateLimited, "too many requests")
			return
		}
		c.Next()
	}
}
