package middleware

import (
	"context"
	"fmt"
	"time"

	"quizsys/internal/common/cache"
	appErr "quizsys/pkg/errors"
	"quizsys/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const defaultRedisTimeout = 200 * time.Millisecond

// RateLimiter enforces fixed-window limits using Redis counters.
type RateLimiter struct {
	cache        cache.Cache
	redisTimeout time.Duration
}

func NewRateLimiter(cacheClient cache.Cache, redisTimeout time.Duration) *RateLimiter {
	if redisTimeout <= 0 {
		redisTimeout = defaultRedisTimeout
	}
	return &RateLimiter{cache: cacheClient, redisTimeout: redisTimeout}
}

// Allow counts one hit on key and fails with TooManyRequests past max hits per window.
func (l *RateLimiter) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if max <= 0 || window <= 0 {
		return nil
	}
	if l.cache == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}

	ctxCache, cancel := context.WithTimeout(ctx, l.redisTimeout)
	defer cancel()

	acquired, err := l.cache.SetNX(ctxCache, key, 1, window)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
	}
	count := int64(1)
	if !acquired {
		count, err = l.cache.Incr(ctxCache, key)
		if err != nil {
			return appErr.Wrapf(err, appErr.CacheError, "rate limit check failed")
		}
		// a key left without expiry would block the client forever
		if ttl, ttlErr := l.cache.TTL(ctxCache, key); ttlErr == nil && ttl < 0 {
			_ = l.cache.Expire(ctxCache, key, window)
		}
	}
	if count > int64(max) {
		return appErr.New(appErr.TooManyRequests).WithMessage(fmt.Sprintf("rate limit exceeded, retry in %s", window))
	}
	return nil
}

// RateLimitPolicy limits hits per client IP on one route.
type RateLimitPolicy struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

// RateLimitMiddleware rejects clients over policy. Cache failures let the request through.
func RateLimitMiddleware(limiter *RateLimiter, routeKey string, policy RateLimitPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || policy.Max <= 0 {
			c.Next()
			return
		}
		key := fmt.Sprintf("grading:rate:ip:%s:%s", c.ClientIP(), routeKey)
		if err := limiter.Allow(c.Request.Context(), key, policy.Max, policy.Window); err != nil {
			if appErr.Is(err, appErr.TooManyRequests) {
				response.AbortWithError(c, err)
				return
			}
		}
		c.Next()
	}
}
