package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"claims-portal/backend/internal/config"
)

// RateLimit returns a fixed-window limiter keyed by client IP and route,
// backed by Redis INCR/EXPIRE. With a nil client it passes everything through,
// so Redis stays optional in development. Mounted on the OTP endpoints to slow
// code-guessing.
func RateLimit(rdb *redis.Client, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil {
			c.Next()
			return
		}
		key := fmt.Sprintf("ratelimit:%s:%s", c.ClientIP(), c.FullPath())
		ctx := c.Request.Context()

		n, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			// Fail open: a Redis outage must not take the workflow down.
			config.LogError(config.GetLogger(), "middleware", "RateLimit", "Incr", map[string]any{"key": key}, err)
			c.Next()
			return
		}
		if n == 1 {
			if err := rdb.Expire(ctx, key, window).Err(); err != nil {
				config.LogError(config.GetLogger(), "middleware", "RateLimit", "Expire", map[string]any{"key": key}, err)
			}
		}
		if n > int64(limit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests; try again later"})
			return
		}
		c.Next()
	}
}
