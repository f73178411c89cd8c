package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"elaro/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

type RateLimitConfig struct {
	Redis     *redis.Client
	Requests  int
	Window    time.Duration
	KeyPrefix string
	SkipPaths []string
}

// RateLimiter is a fixed-window limiter backed by Redis. Keyed by user when
// authenticated, falling back to client IP.
type RateLimiter struct {
	config RateLimitConfig
}

func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "rate_limit"
	}
	return &RateLimiter{config: config}
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return gin.HandlerFunc(func(c *gin.Context) {
		if pathSkipped(c.Request.URL.Path, rl.config.SkipPaths) {
			c.Next()
			return
		}

		key := rl.key(c)

		allowed, remaining, resetAt, err := rl.check(c.Request.Context(), key)
		if err != nil {
			// Redis being down must not take the API with it.
			logrus.Errorf("Rate limit check failed: %v", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(time.Until(resetAt).Seconds())+1))
			utils.RateLimitResponse(c)
			c.Abort()
			return
		}

		c.Next()
	})
}

func (rl *RateLimiter) key(c *gin.Context) string {
	if userID := utils.GetUserID(c); userID != "" {
		return fmt.Sprintf("%s:user:%s", rl.config.KeyPrefix, userID)
	}
	return fmt.Sprintf("%s:ip:%s", rl.config.KeyPrefix, c.ClientIP())
}

func (rl *RateLimiter) check(ctx context.Context, key string) (allowed bool, remaining int, resetAt time.Time, err error) {
	window := time.Now().Truncate(rl.config.Window)
	windowKey := fmt.Sprintf("%s:%d", key, window.Unix())
	resetAt = window.Add(rl.config.Window)

	pipe := rl.config.Redis.TxPipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, rl.config.Window)
	if _, err = pipe.Exec(ctx); err != nil {
		return false, 0, resetAt, err
	}

	count := int(incr.Val())
	remaining = rl.config.Requests - count
	if remaining < 0 {
		remaining = 0
	}

	return count <= rl.config.Requests, remaining, resetAt, nil
}
