package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"salmontrack/internal/analytics"
	"salmontrack/internal/caching"
	"salmontrack/internal/config"
	"salmontrack/internal/handlers"
	"salmontrack/internal/jobs"
	"salmontrack/internal/jobs/background"
	"salmontrack/internal/metrics"
	"salmontrack/internal/middleware"
	"salmontrack/internal/repositories"
	"salmontrack/internal/services"
	"salmontrack/pkg/database"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	checks := map[string]handlers.Pinger{}

	// Cache and shared store lock
	cacheSvc := caching.NewNoopCacheService()
	var storeOpts []repositories.Option
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = caching.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		defer redisClient.Close()
		cacheSvc = caching.NewRedisCacheService(redisClient)
		checks["redis"] = cacheSvc
		// entries written by a previous process may predate the state loaded below
		if err := cacheSvc.InvalidateAllCache(ctx); err != nil {
			logger.WithError(err).Warn("Failed to clear stale cache entries")
		}
		if cfg.LedgerLock == "redis" {
			storeOpts = append(storeOpts, repositories.WithSharedLock(repositories.NewRedisLock(redisClient, 30*time.Second)))
		}
	} else if cfg.LedgerLock == "redis" {
		logger.Warn("LEDGER_LOCK=redis needs REDIS_ADDR, updates are only serialised in this process")
	}

	// Local collection store
	backend, err := repositories.NewSQLiteBackend(cfg.StatePath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open state database")
	}
	defer backend.Close()

	store, err := repositories.NewStateStore(ctx, backend, logger, storeOpts...)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load state")
	}

	// Remote tracking table
	var pool *pgxpool.Pool
	var remote services.SnapshotRemote
	var serverRemote services.SnapshotRemote
	switch {
	case cfg.DatabaseURL != "":
		pool, err = database.NewPool(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to tracking database")
		}
		trackingRepo := repositories.NewTrackingRepository(pool)
		if err := trackingRepo.EnsureSchema(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to prepare tracking table")
		}
		checks["postgres"] = trackingRepo
		remote = services.NewDirectRemote(trackingRepo)
		serverRemote = remote
	case cfg.TrackingAPIURL != "":
		remote = services.NewHTTPRemote(cfg.TrackingAPIURL, cfg.PublishTimeout)
		serverRemote = services.NewMemoryRemote()
		logger.WithField("url", cfg.TrackingAPIURL).Info("Publishing snapshots to remote tracking API")
	default:
		remote = services.NewMemoryRemote()
		serverRemote = remote
		logger.Warn("No tracking database configured, snapshots are kept in memory")
	}
	defer database.ClosePool(pool, logger)

	// Services
	policy := services.PolicyByName(cfg.StatusTransitionPolicy)
	inventorySvc := services.NewInventoryService(store, policy, cfg.PublicBaseURL, logger)
	pipelineSvc := services.NewPipelineService(store, policy, m, logger)
	ledgerSvc := services.NewLedgerService(store, m, logger)
	orderSvc := services.NewOrderService(store, logger)
	snapshotOpts := services.SnapshotServiceOptions{CacheTTL: cfg.SnapshotTTL, PublishTimeout: cfg.PublishTimeout}
	snapshotSvc := services.NewSnapshotService(remote, store, cacheSvc, m, logger, snapshotOpts)
	serverSnapshots := snapshotSvc
	if serverRemote != remote {
		// the two services read different tables, so they must not share cache entries
		publishedOpts, servedOpts := snapshotOpts, snapshotOpts
		publishedOpts.CacheNamespace = "published"
		servedOpts.CacheNamespace = "served"
		snapshotSvc = services.NewSnapshotService(remote, store, cacheSvc, m, logger, publishedOpts)
		serverSnapshots = services.NewSnapshotService(serverRemote, store, cacheSvc, m, logger, servedOpts)
	}
	trackingSvc := services.NewTrackingService(store, snapshotSvc, logger)
	analyticsSvc := analytics.NewAnalyticsService(store, cacheSvc, logger)

	store.Subscribe(snapshotSvc.OnChange)
	store.Subscribe(analyticsSvc.OnChange)

	// Background jobs
	scheduler, err := background.NewJobScheduler(m, logger, cfg.JobTimeout)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create job scheduler")
	}
	republisher := jobs.NewSnapshotRepublisher(snapshotSvc, logger)
	if err := scheduler.AddJob("snapshot-republish", cfg.RepublishInterval, republisher.Run); err != nil {
		logger.WithError(err).Fatal("Failed to schedule snapshot republish")
	}
	refresher := jobs.NewAnalyticsRefreshService(analyticsSvc, logger)
	if err := scheduler.AddJob("analytics-refresh", cfg.AnalyticsInterval, refresher.ScheduledAnalyticsRefresh); err != nil {
		logger.WithError(err).Fatal("Failed to schedule analytics refresh")
	}
	var archiveHandlers *handlers.ArchiveHandlers
	if cfg.MinioEndpoint != "" {
		objects, err := services.NewMinioArchiveStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize MinIO client")
		}
		if err := objects.EnsureBucket(ctx, cfg.MinioBucket); err != nil {
			logger.WithError(err).Fatal("Failed to prepare archive bucket")
		}
		archiveSvc := services.NewArchiveService(objects, cfg.MinioBucket, store, logger)
		archiveHandlers = handlers.NewArchiveHandlers(archiveSvc)
		archiver := jobs.NewTrackingArchiver(archiveSvc, logger)
		if err := scheduler.AddJob("tracking-archive", cfg.ArchiveInterval, archiver.Run); err != nil {
			logger.WithError(err).Fatal("Failed to schedule tracking archive")
		}
	}

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.Validator = handlers.NewRequestValidator()
	e.Pre(echoMiddleware.RemoveTrailingSlash())
	e.Use(echoMiddleware.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echoMiddleware.Recover())

	var public []echo.MiddlewareFunc
	if cfg.RateLimit > 0 {
		public = append(public, middleware.RateLimit(cacheSvc, cfg.RateLimit, cfg.RateLimitWindow, logger))
	}
	router := &handlers.Router{
		Tracking:         handlers.NewTrackingHandlers(serverSnapshots, trackingSvc, logger),
		Inventory:        handlers.NewInventoryHandlers(inventorySvc, pipelineSvc),
		Orders:           handlers.NewOrderHandlers(orderSvc),
		Assignments:      handlers.NewAssignmentHandlers(ledgerSvc),
		Dashboard:        handlers.NewDashboardHandlers(analyticsSvc),
		Jobs:             handlers.NewJobHandlers(scheduler),
		Archives:         archiveHandlers,
		Health:           handlers.NewHealthHandlers(version, checks),
		PublicMiddleware: public,
	}
	router.Register(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	scheduler.Start()

	go func() {
		logger.WithFields(logrus.Fields{"port": cfg.Port, "version": version}).Info("Salmontrack server starting")
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP shutdown failed")
	}
	if err := scheduler.Stop(); err != nil {
		logger.WithError(err).Error("Scheduler shutdown failed")
	}
	snapshotSvc.Wait()
}
