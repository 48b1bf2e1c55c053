package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware throttles request volume. Per-IP limits use an
// in-process token bucket; per-user limits use Redis counters so they
// hold across instances.
type RateLimitMiddleware struct {
	redisClient *redis.Client
	config      *RateLimitConfig

	mu       sync.Mutex
	limiters map[string]*ipLimiter
}

type RateLimitConfig struct {
	IPRequestsPerSecond   float64
	IPBurst               int
	UserRequestsPerMinute int
	MovementsPerMinute    int
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimitMiddleware(redisClient *redis.Client, config *RateLimitConfig) *RateLimitMiddleware {
	if config == nil {
		config = &RateLimitConfig{
			IPRequestsPerSecond:   10,
			IPBurst:               20,
			UserRequestsPerMinute: 120,
			MovementsPerMinute:    30,
		}
	}

	m := &RateLimitMiddleware{
		redisClient: redisClient,
		config:      config,
		limiters:    make(map[string]*ipLimiter),
	}
	go m.cleanupLoop()
	return m
}

// IPRateLimit applies a token bucket per client IP.
func (r *RateLimitMiddleware) IPRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := r.getIPLimiter(c.ClientIP())
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too Many Requests",
				"message": "Rate limit exceeded. Please slow down.",
			})
			return
		}
		c.Next()
	}
}

// UserRateLimit caps authenticated requests per user per minute. It
// must run after JWTAuth.
func (r *RateLimitMiddleware) UserRateLimit() gin.HandlerFunc {
	return r.redisWindowLimit("ratelimit:user:%v", r.config.UserRequestsPerMinute)
}

// MovementRateLimit applies a tighter cap to money-moving endpoints.
func (r *RateLimitMiddleware) MovementRateLimit() gin.HandlerFunc {
	return r.redisWindowLimit("ratelimit:movement:%v", r.config.MovementsPerMinute)
}

func (r *RateLimitMiddleware) redisWindowLimit(keyFormat string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("user_id")
		if !exists {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := fmt.Sprintf(keyFormat+":%d", userID, time.Now().Unix()/60)

		count, err := r.redisClient.Incr(ctx, key).Result()
		if err != nil {
			// Redis unavailable, fail open
			c.Next()
			return
		}
		if count == 1 {
			r.redisClient.Expire(ctx, key, 2*time.Minute)
		}

		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if count > int64(limit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too Many Requests",
				"message": "Request quota exceeded. Please try again later.",
			})
			return
		}
		c.Next()
	}
}

func (r *RateLimitMiddleware) getIPLimiter(ip string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.limiters[ip]
	if !ok {
		entry = &ipLimiter{
			limiter: rate.NewLimiter(rate.Limit(r.config.IPRequestsPerSecond), r.config.IPBurst),
		}
		r.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

func (r *RateLimitMiddleware) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		r.mu.Lock()
		for ip, entry := range r.limiters {
			if time.Since(entry.lastSeen) > 10*time.Minute {
				delete(r.limiters, ip)
			}
		}
		r.mu.Unlock()
	}
}
