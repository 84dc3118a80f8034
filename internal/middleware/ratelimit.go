package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tempx/backend/internal/monitoring"
	"tempx/backend/internal/storage"
)

// CreateInboxRateLimit bounds inbox creations per client IP over a rolling
// window. Counters live in the shared store, so every server instance
// sees the same window. A failing counter fails open: throttling must not
// take inbox creation down with it.
func CreateInboxRateLimit(store storage.RateLimitRepository, log *zap.Logger, metrics *monitoring.Metrics, max int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "inbox:create:" + c.ClientIP()

		count, err := store.IncrementRateLimit(key, window)
		if err != nil {
			log.Warn("rate limit counter unavailable", zap.Error(err))
			c.Next()
			return
		}

		remaining := max - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", max))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if count > max {
			log.Info("inbox creation rate limited",
				zap.String("ip", c.ClientIP()),
				zap.Int64("count", count),
			)
			if metrics != nil {
				metrics.RateLimitBlocks.Inc()
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("Too many inboxes created. Try again in %s.", window),
			})
			return
		}

		c.Next()
	}
}

// IngestThrottle is a process-wide token bucket in front of the webhook
// endpoints, shielding the store from a misbehaving provider.
func IngestThrottle(perSecond float64, burst int, metrics *monitoring.Metrics) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			if metrics != nil {
				metrics.RateLimitBlocks.Inc()
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "ingest rate exceeded",
			})
			return
		}
		c.Next()
	}
}
