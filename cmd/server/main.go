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

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	appsync "github.com/stocklens/backend/internal/application/sync"
	domain "github.com/stocklens/backend/internal/domain/analytics"
	"github.com/stocklens/backend/internal/domain/quality"
	analyticsapi "github.com/stocklens/backend/internal/infrastructure/analytics"
	"github.com/stocklens/backend/internal/infrastructure/cache"
	"github.com/stocklens/backend/internal/infrastructure/config"
	"github.com/stocklens/backend/internal/infrastructure/logger"
	"github.com/stocklens/backend/internal/infrastructure/persistence"
	"github.com/stocklens/backend/internal/interfaces/http/handler"
	"github.com/stocklens/backend/internal/interfaces/http/router"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("starting",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port))

	// Database
	db, err := persistence.NewDatabaseWithGormLogger(&cfg.Database,
		logger.NewGormLogger(log, gormlogger.Warn))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	// Response cache: in-process tier always, Redis durable tier when enabled
	var durable cache.Tier
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisResponseCache(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		durable = redisCache
		log.Info("durable response cache enabled", zap.String("addr", cfg.Redis.Addr()))
	} else {
		log.Warn("redis disabled, response cache is in-process only")
	}
	responseCache := cache.NewTieredResponseCache(
		cache.NewMemoryResponseCache(),
		durable,
		cache.WithL1TTL(cfg.Cache.L1TTL),
		cache.WithLogger(log),
	)
	defer responseCache.Close() //nolint:errcheck

	// Analytics client
	clientCfg := analyticsapi.NewConfig(cfg.Analytics.BaseURL, cfg.Analytics.ClientID, cfg.Analytics.APIKey)
	clientCfg.TimeoutSeconds = cfg.Analytics.TimeoutSeconds
	clientCfg.PageLimit = cfg.Analytics.PageLimit
	clientCfg.CacheTTL = cfg.Cache.TTL
	clientCfg.RequestsPerMinute = cfg.Analytics.RequestsPerMinute
	clientCfg.MinRequestInterval = cfg.Analytics.MinRequestInterval
	clientCfg.Retry = analyticsapi.RetryPolicy{
		InitialDelay: cfg.Analytics.RetryInitialDelay,
		Multiplier:   2,
		MaxDelay:     cfg.Analytics.RetryMaxDelay,
		MaxAttempts:  cfg.Analytics.RetryMaxAttempts,
	}
	clientCfg.ReportPollInterval = cfg.Analytics.ReportPollInterval
	clientCfg.ReportPollTimeout = cfg.Analytics.ReportPollTimeout

	client, err := analyticsapi.NewClient(clientCfg, responseCache,
		analyticsapi.WithLogger(log))
	if err != nil {
		return fmt.Errorf("init analytics client: %w", err)
	}

	// Repositories
	products := persistence.NewGormProductVisibilityRepository(db.DB)
	snapshots := persistence.NewGormInventorySnapshotRepository(db.DB)
	batches := persistence.NewGormBatchRepository(db.DB)

	// Pipeline
	validator := quality.NewValidator()
	normalizer := quality.NewNormalizer(quality.WithWarehouses(cfg.Sync.Warehouses...))

	productETL := appsync.NewProductETL(client, products, batches, validator, normalizer, log)
	inventoryETL := appsync.NewInventoryETL(
		streamAdapter{client}, snapshots, batches, validator, normalizer,
		domain.Filters{Warehouses: cfg.Sync.Warehouses}, log)

	orchestrator := appsync.NewOrchestrator(productETL, inventoryETL, batches, snapshots, products,
		appsync.WithFreshnessWindow(cfg.Sync.FreshnessWindow),
		appsync.WithOrchestratorLogger(log))

	// HTTP server
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(logger.RequestID(), logger.GinMiddleware(log), logger.Recovery(log))
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			return fmt.Errorf("set trusted proxies: %w", err)
		}
	}

	healthHandler := handler.NewHealthHandler(db)
	engine.GET("/health", healthHandler.Health)

	router.NewRouter(engine).
		Register(handler.NewSyncHandler(orchestrator, client, responseCache, log)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Scheduler
	if cfg.Sync.SchedulerEnabled {
		go runScheduler(ctx, orchestrator, cfg.Sync.Interval, log)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Info("http server listening", zap.String("addr", srv.Addr))

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// runScheduler triggers a pipeline pass on a fixed interval until the
// context is canceled. Overlapping triggers collapse into the in-flight run.
func runScheduler(ctx context.Context, orchestrator *appsync.Orchestrator, interval time.Duration, log *zap.Logger) {
	log.Info("sync scheduler started", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("sync scheduler stopped")
			return
		case <-ticker.C:
			status := orchestrator.Run(ctx)
			log.Info("scheduled sync finished", zap.String("state", string(status.State)))
		}
	}
}

// streamAdapter narrows the concrete client to the pagination interface the
// inventory stage consumes.
type streamAdapter struct {
	client *analyticsapi.Client
}

func (a streamAdapter) StreamAll(filters domain.Filters) appsync.PageIterator {
	return a.client.StreamAll(filters)
}

func (a streamAdapter) RequestCounts() (made, failed int64) {
	return a.client.RequestCounts()
}
