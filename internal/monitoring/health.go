package monitoring

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempx/backend/internal/domain"
)

// HealthStatus is the overall service condition.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthReport is the /health response body.
type HealthReport struct {
	Status    HealthStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Uptime    string       `json:"uptime"`
	Store     string       `json:"store"`
}

// HealthChecker probes the record store.
type HealthChecker struct {
	store     domain.Store
	log       *zap.Logger
	startTime time.Time
}

// NewHealthChecker creates a health checker.
func NewHealthChecker(store domain.Store, log *zap.Logger) *HealthChecker {
	return &HealthChecker{
		store:     store,
		log:       log,
		startTime: time.Now(),
	}
}

// Check builds the current health report.
func (hc *HealthChecker) Check() *HealthReport {
	report := &HealthReport{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(hc.startTime).Round(time.Second).String(),
		Store:     "ok",
	}

	if err := hc.store.Health(); err != nil {
		hc.log.Warn("store health check failed", zap.Error(err))
		report.Status = HealthStatusUnhealthy
		report.Store = err.Error()
	}

	return report
}

// Handler serves the report, returning 503 when the store is down.
func (hc *HealthChecker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report := hc.Check()
		status := http.StatusOK
		if report.Status != HealthStatusHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	}
}
