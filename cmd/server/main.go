package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tempx/backend/internal/config"
	"tempx/backend/internal/domain"
	"tempx/backend/internal/logger"
	"tempx/backend/internal/monitoring"
	"tempx/backend/internal/service"
	"tempx/backend/internal/storage/memory"
	"tempx/backend/internal/storage/redis"
	httptransport "tempx/backend/internal/transport/http"
)

const version = "1.2.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting tempx server",
		zap.String("version", version),
		zap.String("log_level", cfg.Log.Level),
		zap.String("domain", cfg.Inbox.Domain),
		zap.Duration("inbox_ttl", cfg.Inbox.TTL),
	)

	store, err := initializeStorage(cfg, log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize storage: %v", err))
	}

	metrics := monitoring.NewMetrics()
	healthChecker := monitoring.NewHealthChecker(store, log)

	inboxService := service.NewInboxService(store, cfg, log)
	ingestService := service.NewIngestService(store, cfg, log)

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:        cfg,
		InboxService:  inboxService,
		IngestService: ingestService,
		RateLimits:    store,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		Logger:        log,
	})

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// Expired inbox sweep. Lookups already hide expired records; this
	// reclaims the memory behind them.
	group.Go(func() error {
		ticker := time.NewTicker(cfg.Sweep.Interval)
		defer ticker.Stop()

		log.Info("starting expired inbox sweep", zap.Duration("interval", cfg.Sweep.Interval))

		for {
			select {
			case <-groupCtx.Done():
				log.Info("sweep task stopped")
				return nil
			case <-ticker.C:
				count, err := store.DeleteExpiredInboxes()
				if err != nil {
					log.Error("failed to sweep expired inboxes", zap.Error(err))
				} else if count > 0 {
					metrics.InboxesExpired.Add(float64(count))
					log.Info("expired inboxes swept", zap.Int("count", count))
				}
			}
		}
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		if err := store.Close(); err != nil {
			log.Warn("store close warning", zap.Error(err))
		}

		log.Info("server stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// initializeStorage selects the record store backend from config.
func initializeStorage(cfg *config.Config, log *zap.Logger) (domain.Store, error) {
	switch cfg.Storage.Type {
	case "redis":
		store, err := redis.NewStore(cfg.Storage.RedisAddress, cfg.Storage.RedisPassword, cfg.Storage.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		log.Info("using redis storage", zap.String("address", cfg.Storage.RedisAddress))
		return store, nil
	default:
		log.Info("using memory storage")
		return memory.NewStore(), nil
	}
}
