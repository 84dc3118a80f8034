package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tempx/backend/internal/monitoring"
)

// HTTPMetrics records per-request Prometheus metrics.
func HTTPMetrics(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		metrics.RecordHTTPRequest(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}
