package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempx/backend/internal/config"
	"tempx/backend/internal/middleware"
	"tempx/backend/internal/monitoring"
	"tempx/backend/internal/service"
	"tempx/backend/internal/storage"
)

// Handler aggregates the HTTP request handlers.
type Handler struct {
	inboxes *service.InboxService
	ingest  *service.IngestService
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// RouterDependencies carries everything the router needs.
type RouterDependencies struct {
	Config        *config.Config
	InboxService  *service.InboxService
	IngestService *service.IngestService
	RateLimits    storage.RateLimitRepository
	Metrics       *monitoring.Metrics
	HealthChecker *monitoring.HealthChecker
	Logger        *zap.Logger
}

// NewRouter builds the Gin engine with the full route table.
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(10 * 1024 * 1024))
	if deps.Metrics != nil {
		router.Use(middleware.HTTPMetrics(deps.Metrics))
	}

	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// Wildcard origins cannot be combined with credentials.
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	handler := &Handler{
		inboxes: deps.InboxService,
		ingest:  deps.IngestService,
		metrics: deps.Metrics,
		log:     deps.Logger,
	}

	if deps.HealthChecker != nil {
		router.GET("/health", deps.HealthChecker.Handler())
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	createLimit := middleware.CreateInboxRateLimit(
		deps.RateLimits,
		deps.Logger,
		deps.Metrics,
		int64(deps.Config.RateLimit.CreateMax),
		deps.Config.RateLimit.CreateWindow,
	)

	inbox := router.Group("/inbox")
	{
		inbox.POST("", createLimit, handler.createInbox)
		inbox.GET("/:localpart", handler.getInbox)
		inbox.DELETE("/:localpart", handler.deleteInbox)
		inbox.POST("/:localpart/messages/:messageId/read", handler.markMessageRead)
	}

	webhook := router.Group("/webhook")
	webhook.Use(middleware.IngestThrottle(
		deps.Config.RateLimit.IngestPerSecond,
		deps.Config.RateLimit.IngestBurst,
		deps.Metrics,
	))
	{
		webhook.POST("/mailgun", handler.mailgunWebhook)
		webhook.POST("/sendgrid", handler.sendgridWebhook)
		webhook.POST("/test", handler.testWebhook)
		webhook.GET("/test", handler.webhookProbe)
	}

	return router
}
