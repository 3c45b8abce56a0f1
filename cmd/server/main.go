package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appmapping "github.com/syncbridge/backend/internal/application/mapping"
	"github.com/syncbridge/backend/internal/application/reconcile"
	appwebhook "github.com/syncbridge/backend/internal/application/webhook"
	"github.com/syncbridge/backend/internal/domain/webhook"
	"github.com/syncbridge/backend/internal/infrastructure/cache"
	"github.com/syncbridge/backend/internal/infrastructure/commerce"
	"github.com/syncbridge/backend/internal/infrastructure/config"
	"github.com/syncbridge/backend/internal/infrastructure/logger"
	"github.com/syncbridge/backend/internal/infrastructure/persistence"
	"github.com/syncbridge/backend/internal/infrastructure/queue"
	"github.com/syncbridge/backend/internal/interfaces/http/handler"
	"github.com/syncbridge/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting SyncBridge",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize repositories
	deliveryRepo := persistence.NewGormWebhookDeliveryRepository(db.DB)
	jobRepo := persistence.NewGormSyncJobRepository(db.DB)
	mappingRepo := persistence.NewGormProductMappingRepository(db.DB)

	// Idempotency guard and mapping cache: Redis when reachable, in-memory
	// otherwise. The in-memory fallback loses dedup across restarts, which
	// the job queue's own delivery-scoped dedup absorbs.
	var guard webhook.IdempotencyGuard
	var mappingCache appmapping.Cache
	redisClient, err := cache.NewRedisClient(cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		if cfg.App.Env == "production" {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		log.Warn("Redis unavailable, using in-memory idempotency guard and cache",
			zap.Error(err))
		memGuard := cache.NewInMemoryIdempotencyGuard()
		defer func() {
			_ = memGuard.Close()
		}()
		guard = memGuard
		mappingCache = cache.NewInMemoryMappingCache()
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing Redis client", zap.Error(err))
			}
		}()
		guard = cache.NewRedisIdempotencyGuard(redisClient, "")
		mappingCache = cache.NewRedisMappingCache(redisClient)
		log.Info("Redis connected successfully")
	}

	// Mapping resolver with cache-aside lookups
	resolver := appmapping.NewResolver(mappingRepo, mappingCache, appmapping.Config{
		CacheTTL:    cfg.Mapping.CacheTTL,
		NegativeTTL: cfg.Mapping.NegativeTTL,
	}, log)

	// Platform API clients
	marketplaceClient, err := commerce.NewHTTPMarketplaceClient(&commerce.MarketplaceConfig{
		BaseURL:        cfg.Marketplace.BaseURL,
		APIKey:         cfg.Marketplace.APIKey,
		TimeoutSeconds: cfg.Marketplace.TimeoutSeconds,
		RateLimit:      cfg.Marketplace.RateLimit,
		Burst:          cfg.Marketplace.Burst,
	})
	if err != nil {
		log.Fatal("Failed to create marketplace client", zap.Error(err))
	}
	storefrontClient, err := commerce.NewHTTPStorefrontClient(&commerce.StorefrontConfig{
		BaseURL:        cfg.Storefront.BaseURL,
		AccessToken:    cfg.Storefront.AccessToken,
		TimeoutSeconds: cfg.Storefront.TimeoutSeconds,
		RateLimit:      cfg.Storefront.RateLimit,
		Burst:          cfg.Storefront.Burst,
	})
	if err != nil {
		log.Fatal("Failed to create storefront client", zap.Error(err))
	}

	// Application services
	intakeService := appwebhook.NewIntakeService(deliveryRepo, guard, jobRepo, resolver, cfg.Queue.MaxAttempts, log)
	retryService := appwebhook.NewRetryService(deliveryRepo, guard, intakeService, log)
	statusService := appwebhook.NewStatusService(deliveryRepo, jobRepo, log)

	// Queue workers, one per queue
	orderProcessor := reconcile.NewOrderProcessor(
		resolver, mappingRepo, marketplaceClient, storefrontClient, guard, log)
	inventoryProcessor := reconcile.NewInventoryProcessor(
		resolver, mappingRepo, marketplaceClient, guard, log)

	workerConfig := queue.WorkerConfig{
		BatchSize:    cfg.Queue.BatchSize,
		Concurrency:  cfg.Queue.Concurrency,
		PollInterval: cfg.Queue.PollInterval,
		Lease:        cfg.Queue.Lease,
		BaseBackoff:  cfg.Queue.BaseBackoff,
		TrimEnabled:  cfg.Queue.TrimEnabled,
		TrimKeep:     cfg.Queue.TrimKeep,
		TrimInterval: cfg.Queue.TrimInterval,
	}
	orderWorker := queue.NewWorker(jobRepo, orderProcessor, workerConfig, log)
	inventoryWorker := queue.NewWorker(jobRepo, inventoryProcessor, workerConfig, log)

	if cfg.Queue.WorkersEnabled {
		if err := orderWorker.Start(context.Background()); err != nil {
			log.Fatal("Failed to start order worker", zap.Error(err))
		}
		if err := inventoryWorker.Start(context.Background()); err != nil {
			log.Fatal("Failed to start inventory worker", zap.Error(err))
		}
		log.Info("Queue workers started",
			zap.Int("batch_size", workerConfig.BatchSize),
			zap.Int("concurrency", workerConfig.Concurrency),
			zap.Duration("poll_interval", workerConfig.PollInterval),
		)
	} else {
		log.Warn("Queue workers disabled, jobs will accumulate until drained elsewhere")
	}

	// HTTP handlers and router
	webhookHandler := handler.NewWebhookHandler(
		intakeService, retryService, statusService, cfg.Webhook.StatusRecentLimit, log)
	systemHandler := handler.NewSystemHandler(db, version)

	engine := router.Setup(router.Dependencies{
		Config:  cfg,
		Logger:  log,
		Webhook: webhookHandler,
		System:  systemHandler,
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown: stop intake first, then drain workers so in-flight
	// jobs finish before the database connection goes away.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if cfg.Queue.WorkersEnabled {
		if err := orderWorker.Stop(ctx); err != nil {
			log.Error("Order worker did not stop cleanly", zap.Error(err))
		}
		if err := inventoryWorker.Stop(ctx); err != nil {
			log.Error("Inventory worker did not stop cleanly", zap.Error(err))
		}
		log.Info("Queue workers stopped")
	}

	log.Info("Server exited gracefully")
}
