package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	eventapp "github.com/erp/procurement/internal/application/event"
	procurementapp "github.com/erp/procurement/internal/application/procurement"
	"github.com/erp/procurement/internal/domain/shared"
	"github.com/erp/procurement/internal/infrastructure/cache"
	"github.com/erp/procurement/internal/infrastructure/config"
	"github.com/erp/procurement/internal/infrastructure/event"
	"github.com/erp/procurement/internal/infrastructure/lock"
	"github.com/erp/procurement/internal/infrastructure/logger"
	"github.com/erp/procurement/internal/infrastructure/persistence"
	"github.com/erp/procurement/internal/infrastructure/telemetry"
	"github.com/erp/procurement/internal/interfaces/http/handler"
	"github.com/erp/procurement/internal/interfaces/http/middleware"
	"github.com/erp/procurement/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/erp/procurement/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

//	@title			Procurement Fulfillment API
//	@version		1.0
//	@description	Purchase order lifecycle and receipt reconciliation service
//	@termsOfService	http://swagger.io/terms/

//	@contact.name	API Support
//	@contact.url	https://github.com/erp/procurement
//	@contact.email	support@erp.example.com

//	@license.name	Apache 2.0
//	@license.url	http://www.apache.org/licenses/LICENSE-2.0.html

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@externalDocs.description	OpenAPI
//	@externalDocs.url			https://swagger.io/resources/open-api/

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		TimeFormat:  logger.DefaultTimeFormat,
		Service:     cfg.App.Name,
		Environment: cfg.App.Env,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx := context.Background()

	// Telemetry: traces, metrics, logs and profiles
	tel := cfg.Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           tel.Enabled,
		CollectorEndpoint: tel.CollectorEndpoint,
		SamplingRatio:     tel.SamplingRatio,
		ServiceName:       tel.ServiceName,
		Insecure:          tel.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer shutdownWithTimeout(log, "tracer provider", tracerProvider.Shutdown)

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           tel.MetricsEnabled,
		CollectorEndpoint: tel.CollectorEndpoint,
		ExportInterval:    tel.MetricsExportInterval,
		ServiceName:       tel.ServiceName,
		Insecure:          tel.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer shutdownWithTimeout(log, "meter provider", meterProvider.Shutdown)

	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           tel.LogsEnabled,
		CollectorEndpoint: tel.CollectorEndpoint,
		ServiceName:       tel.ServiceName,
		Insecure:          tel.Insecure,
		Level:             tel.LogsLevel,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	defer shutdownWithTimeout(log, "logger provider", loggerProvider.Shutdown)
	log = loggerProvider.Bridge(log)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         tel.ProfilingEnabled,
		ServerAddress:   tel.ProfilingServerAddress,
		ApplicationName: tel.ServiceName,
		ProfileTypes:    tel.ProfilingProfileTypes,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()

	log.Info("Starting procurement service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(tel.DBSlowQueryThresh))

	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully", zap.String("dialect", db.Dialect()))

	// SQLite has no migration files, its schema comes from the models
	if cfg.Database.Driver == "sqlite" {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to migrate SQLite schema", zap.Error(err))
		}
	}

	dbSystem := "postgresql"
	if cfg.Database.Driver == "sqlite" {
		dbSystem = "sqlite"
	}
	if err := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         tel.Enabled && tel.DBTraceEnabled,
		LogFullSQL:      tel.DBLogFullSQL,
		SlowQueryThresh: tel.DBSlowQueryThresh,
		DBSystem:        dbSystem,
	}, log).Register(db.DB); err != nil {
		log.Warn("Database tracing disabled", zap.Error(err))
	}

	if meterProvider.IsEnabled() {
		dbMetrics, err := telemetry.NewDBMetrics(meterProvider.Meter("database"), log)
		if err != nil {
			log.Warn("Database metrics disabled", zap.Error(err))
		} else if err := dbMetrics.Register(db.DB); err != nil {
			log.Warn("Database metrics disabled", zap.Error(err))
		} else if sqlDB, err := db.DB.DB(); err == nil {
			dbMetrics.StartPoolStatsCollection(ctx, sqlDB, 15*time.Second)
			defer dbMetrics.Stop()
		}
	}

	// Redis backs the cross-instance order lock and event deduplication
	var redisClient *redis.Client
	if cfg.Reconciliation.LockProvider == "redis" || cfg.Idempotency.Provider == cache.ProviderRedis {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Warn("Redis unavailable", zap.Error(err))
			redisClient = nil
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					log.Error("Error closing Redis client", zap.Error(err))
				}
			}()
		}
	}

	// Event serialization and transactional outbox
	eventSerializer := event.NewEventSerializer()
	event.RegisterAllEvents(eventSerializer)
	outboxPublisher := event.NewOutboxPublisher(eventSerializer)
	outboxRepo := event.NewGormOutboxRepository(db.DB)

	// Repositories and unit of work
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	receiptRepo := persistence.NewGormReceiptRepository(db.DB)
	uow := persistence.NewGormUnitOfWork(db.DB, outboxPublisher)

	// Application services
	retryPolicy := procurementapp.RetryPolicy{
		MaxAttempts:     cfg.Reconciliation.MaxAttempts,
		InitialInterval: cfg.Reconciliation.InitialBackoff,
		MaxInterval:     cfg.Reconciliation.MaxBackoff,
	}

	var fulfillmentMetrics *telemetry.FulfillmentMetrics
	if meterProvider.IsEnabled() {
		fulfillmentMetrics, err = telemetry.NewFulfillmentMetrics(meterProvider.Meter("procurement"), log)
		if err != nil {
			log.Warn("Fulfillment metrics disabled", zap.Error(err))
		}
	}

	orderService := procurementapp.NewOrderService(uow, orderRepo, log)
	orderService.SetRetryPolicy(retryPolicy)

	reconciliationService := procurementapp.NewReconciliationService(uow, orderRepo, receiptRepo, log)
	reconciliationService.SetRetryPolicy(retryPolicy)
	reconciliationService.SetMetrics(fulfillmentMetrics)

	switch cfg.Reconciliation.LockProvider {
	case "redis":
		if redisClient != nil {
			reconciliationService.SetOrderLocker(lock.NewRedisOrderLocker(
				redisClient, cfg.Reconciliation.LockTTL, cfg.Reconciliation.LockWaitTimeout, log))
		} else {
			log.Warn("Redis order lock unavailable, falling back to in-process lock")
			reconciliationService.SetOrderLocker(lock.NewLocalOrderLocker(cfg.Reconciliation.LockWaitTimeout))
		}
	case "local":
		reconciliationService.SetOrderLocker(lock.NewLocalOrderLocker(cfg.Reconciliation.LockWaitTimeout))
	}
	log.Info("Reconciliation configured",
		zap.String("lock_provider", cfg.Reconciliation.LockProvider),
		zap.Int("max_attempts", retryPolicy.MaxAttempts),
	)

	outboxService := eventapp.NewOutboxService(outboxRepo, log)

	// Event bus and subscribers
	var universal redis.UniversalClient
	if redisClient != nil {
		universal = redisClient
	}
	idempotencyStore, err := cache.NewIdempotencyStore(cfg.Idempotency, universal, false, log)
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	eventBus := event.NewInMemoryEventBus(log)
	fulfillmentHandler := event.NewIdempotentHandler(
		procurementapp.NewFulfillmentEventHandler(fulfillmentMetrics, log),
		idempotencyStore,
		log,
		event.WithIdempotencyConfig(shared.IdempotencyConfig{
			Enabled: cfg.Idempotency.Enabled,
			TTL:     cfg.Idempotency.TTL,
		}),
	)
	eventBus.Subscribe(fulfillmentHandler)
	log.Info("Event handlers registered",
		zap.Strings("fulfillment_events", fulfillmentHandler.EventTypes()),
	)

	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// The outbox processor relays committed events to the bus
	if cfg.Event.ProcessorEnabled {
		outboxProcessorConfig := event.OutboxProcessorConfigFrom(cfg.Event)
		outboxProcessor := event.NewOutboxProcessor(outboxRepo, eventBus, eventSerializer, outboxProcessorConfig, log)
		if err := outboxProcessor.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
		defer func() {
			if err := outboxProcessor.Stop(context.Background()); err != nil {
				log.Error("Error stopping outbox processor", zap.Error(err))
			}
		}()
		log.Info("Outbox processor started",
			zap.Int("batch_size", outboxProcessorConfig.BatchSize),
			zap.Duration("poll_interval", outboxProcessorConfig.PollInterval),
		)
	}

	// HTTP handlers
	orderHandler := handler.NewOrderHandler(orderService)
	receiptHandler := handler.NewReceiptHandler(reconciliationService)
	outboxHandler := handler.NewOutboxHandler(outboxService)
	systemHandler := handler.NewSystemHandler(cfg.App.Name, telemetry.ServiceVersion, db)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Request ID must run first, every later layer logs it
	engine.Use(middleware.RequestID())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	if tel.Enabled {
		engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: tel.ServiceName,
			Enabled:     true,
		}))
		engine.Use(middleware.TracingAttributeInjector())
		engine.Use(middleware.SpanErrorMarker())
	}
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: meterProvider,
		Enabled:       tel.MetricsEnabled,
		Logger:        log,
	}))
	profilingConfig := middleware.DefaultProfilingConfig()
	profilingConfig.Enabled = tel.ProfilingEnabled
	engine.Use(middleware.ProfilingWithConfig(profilingConfig))

	// Health, docs and fallback
	var swaggerHandler gin.HandlerFunc
	if cfg.Swagger.Enabled {
		swaggerHandler = ginSwagger.WrapHandler(swaggerFiles.Handler)
	}
	router.RegisterOperational(engine, systemHandler, swaggerHandler, middleware.SwaggerConfig{
		Enabled:    cfg.Swagger.Enabled,
		AllowedIPs: cfg.Swagger.AllowedIPs,
	})

	// Versioned API. The request deadline applies here only so health checks
	// and docs are never cut short.
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Use(middleware.Timeout(cfg.HTTP.RequestTimeout))
	r.Register(router.NewOrderRoutes(orderHandler, receiptHandler))
	r.Register(router.NewSystemRoutes(systemHandler, outboxHandler))
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// shutdownWithTimeout flushes a telemetry provider with a bounded wait
func shutdownWithTimeout(log *zap.Logger, name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Error("Error shutting down "+name, zap.Error(err))
	}
}
