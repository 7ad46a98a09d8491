package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/docledger/internal/application/closing"
	"github.com/erp/docledger/internal/application/pipeline"
	"github.com/erp/docledger/internal/application/workflow"
	"github.com/erp/docledger/internal/domain/anomaly"
	"github.com/erp/docledger/internal/domain/approval"
	"github.com/erp/docledger/internal/domain/duplicate"
	"github.com/erp/docledger/internal/domain/sequence"
	"github.com/erp/docledger/internal/domain/shared/valueobject"
	"github.com/erp/docledger/internal/infrastructure/ai"
	"github.com/erp/docledger/internal/infrastructure/cache"
	"github.com/erp/docledger/internal/infrastructure/config"
	"github.com/erp/docledger/internal/infrastructure/currency"
	"github.com/erp/docledger/internal/infrastructure/erp"
	"github.com/erp/docledger/internal/infrastructure/event"
	"github.com/erp/docledger/internal/infrastructure/logger"
	"github.com/erp/docledger/internal/infrastructure/persistence"
	"github.com/erp/docledger/internal/infrastructure/scheduler"
	"github.com/erp/docledger/internal/infrastructure/storage"
	"github.com/erp/docledger/internal/infrastructure/telemetry"
	"github.com/erp/docledger/internal/interfaces/http/handler"
	"github.com/erp/docledger/internal/interfaces/http/middleware"
	"github.com/erp/docledger/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

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

	log.Info("Starting DocLedger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	// Initialize OpenTelemetry providers (traces, metrics, logs)
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer shutdownWithTimeout(tracerProvider.Shutdown, log, "tracer provider")

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer shutdownWithTimeout(meterProvider.Shutdown, log, "meter provider")

	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	defer shutdownWithTimeout(loggerProvider.Shutdown, log, "logger provider")

	// Bridge zap into OTEL logs so application logs carry trace context
	if loggerProvider.IsEnabled() {
		otelCore := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			LoggerProvider: loggerProvider,
			Level:          zapcore.InfoLevel,
		})
		log = telemetry.NewBridgedLogger(log.Core(), otelCore,
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
	}

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

	// Register query tracing on the GORM connection
	dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:          cfg.Telemetry.Enabled,
		SlowQueryThresh:  200 * time.Millisecond,
		DBSystem:         "postgresql",
		WithoutVariables: true,
	}, log)
	if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	// Initialize repositories
	jobRepo := persistence.NewGormJobRepository(db.DB)
	voucherRepo := persistence.NewGormVoucherRepository(db.DB)
	supplierHistoryRepo := persistence.NewGormSupplierHistoryRepository(db.DB)
	approvalRepo := persistence.NewGormApprovalRequestRepository(db.DB)
	fingerprintRepo := persistence.NewGormFingerprintRepository(db.DB)
	overrideRepo := persistence.NewGormOverrideRepository(db.DB)
	periodRepo := persistence.NewGormPeriodRepository(db.DB)
	counterRepo := persistence.NewGormCounterRepository(db.DB)
	poster := persistence.NewGormPoster(db.DB)

	// Result cache backs duplicate-check replay protection
	cacheFactory := cache.NewResultCacheFactory(cfg.Redis, cache.WithLogger(log))
	resultCache, err := cacheFactory.CreateCache()
	if err != nil {
		log.Fatal("Failed to create result cache", zap.Error(err))
	}

	// Object storage for the original scans
	var objectStorage pipeline.ObjectStorage
	switch cfg.Storage.Provider {
	case "memory":
		objectStorage = storage.NewMemoryObjectStorage()
		log.Warn("Using in-memory object storage; uploads do not survive restarts")
	default:
		objectStorage, err = storage.NewS3ObjectStorage(&cfg.Storage)
		if err != nil {
			log.Fatal("Failed to initialize object storage", zap.Error(err))
		}
	}

	// OCR gateway
	var ocr pipeline.OCRService
	switch cfg.OCR.Provider {
	case "stub":
		ocr = ai.NewStubOCR()
		log.Warn("Using stub OCR; extracted text is canned")
	default:
		ocr, err = ai.NewDocumentAIOCR(ctx, &cfg.OCR)
		if err != nil {
			log.Fatal("Failed to initialize OCR service", zap.Error(err))
		}
	}

	// Classification gateway
	var classifier pipeline.Classifier
	switch cfg.Classifier.Provider {
	case "stub":
		classifier = ai.NewStubClassifier()
		log.Warn("Using stub classifier; extractions are canned")
	default:
		classifier, err = ai.NewOpenAIClassifier(&cfg.Classifier, ai.WithClassifierLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize classifier", zap.Error(err))
		}
	}

	// Multi-receipt split detection shares the classifier endpoint
	var splitter pipeline.ReceiptSplitter
	if cfg.Pipeline.SplitEnabled && cfg.Classifier.Provider == "openai" {
		splitter, err = ai.NewOpenAISplitter(&cfg.Classifier, ai.WithSplitterLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize receipt splitter", zap.Error(err))
		}
	}

	// Exchange rate chain: cached HTTP provider first, static table fallback
	rateProviders := make([]pipeline.RateProvider, 0, 2)
	if cfg.Currency.APIEndpoint != "" {
		httpRates, err := currency.NewHTTPProvider(&cfg.Currency)
		if err != nil {
			log.Fatal("Failed to initialize rate provider", zap.Error(err))
		}
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rateProviders = append(rateProviders, currency.NewCachedProvider(redisClient, httpRates, cfg.Currency.CacheTTL, log))
	}
	rateProviders = append(rateProviders, currency.NewStaticProvider())
	rates := currency.NewChain(log, rateProviders...)

	// Downstream accounting system
	erpClient, err := erp.NewHTTPClient(&cfg.ERP, erp.WithLogger(log))
	if err != nil {
		log.Fatal("Failed to initialize ERP client", zap.Error(err))
	}

	// Domain services
	detector := duplicate.NewDetector(fingerprintRepo, overrideRepo, resultCache)
	scorer := anomaly.NewScorer()

	thresholdTable := approval.DefaultThresholds()
	if cfg.Approval.EscalationTimeout > 0 {
		thresholdTable.EscalationTimeout = cfg.Approval.EscalationTimeout
	}
	thresholds := approval.StaticThresholds{Table: thresholdTable}

	sequenceService := sequence.NewService(counterRepo, voucherRepo)

	// Initialize event bus and start it
	eventBus := event.NewInMemoryEventBus(log)
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Pipeline business metrics: counters feed from the services, the
	// backlog gauge is collected periodically from the approval store
	pipelineMetrics, err := telemetry.NewPipelineMetrics(telemetry.PipelineMetricsConfig{
		Provider:        meterProvider,
		Logger:          log,
		BacklogProvider: approvalRepo,
	})
	if err != nil {
		log.Fatal("Failed to initialize pipeline metrics", zap.Error(err))
	}
	pipelineMetrics.StartPeriodicCollection(ctx, 0)
	defer pipelineMetrics.Stop()

	// Application services
	orchestratorOpts := []pipeline.Option{
		pipeline.WithLogger(log),
		pipeline.WithPublisher(eventBus),
		pipeline.WithMetrics(pipelineMetrics),
		pipeline.WithBaseCurrency(valueobject.Currency(cfg.Currency.BaseCurrency)),
		pipeline.WithSeries(cfg.Pipeline.VoucherSeries),
	}
	if splitter != nil {
		orchestratorOpts = append(orchestratorOpts, pipeline.WithSplitter(splitter))
	}
	if cfg.Pipeline.Synchronous {
		orchestratorOpts = append(orchestratorOpts, pipeline.WithSynchronousProcessing())
	}
	orchestrator := pipeline.NewOrchestrator(
		jobRepo, supplierHistoryRepo, approvalRepo, thresholds, detector, scorer,
		objectStorage, ocr, classifier, rates, erpClient, poster,
		orchestratorOpts...,
	)

	workflowService := workflow.NewService(approvalRepo, thresholds, orchestrator,
		workflow.WithLogger(log),
		workflow.WithPublisher(eventBus),
		workflow.WithMetrics(pipelineMetrics),
	)

	closingService := closing.NewService(periodRepo, jobRepo, voucherRepo, sequenceService, erpClient,
		closing.WithLogger(log),
		closing.WithPublisher(eventBus),
	)

	// Background sweepers: overdue escalation and stuck-job resume
	escalationSweeper := scheduler.NewEscalationSweeper(workflowService, cfg.Approval.SweepInterval, log)
	if err := escalationSweeper.Start(ctx); err != nil {
		log.Fatal("Failed to start escalation sweeper", zap.Error(err))
	}
	defer func() {
		if err := escalationSweeper.Stop(context.Background()); err != nil {
			log.Error("Error stopping escalation sweeper", zap.Error(err))
		}
	}()

	resumeSweeper := scheduler.NewResumeSweeper(jobRepo, orchestrator,
		cfg.Pipeline.ResumeInterval, cfg.Pipeline.ResumeOlderThan, log)
	if err := resumeSweeper.Start(ctx); err != nil {
		log.Fatal("Failed to start resume sweeper", zap.Error(err))
	}
	defer func() {
		if err := resumeSweeper.Stop(context.Background()); err != nil {
			log.Error("Error stopping resume sweeper", zap.Error(err))
		}
	}()

	// Initialize HTTP handlers
	documentHandler := handler.NewDocumentHandler(orchestrator)
	approvalHandler := handler.NewApprovalHandler(workflowService)
	periodHandler := handler.NewPeriodHandler(closingService)
	voucherHandler := handler.NewVoucherHandler(sequenceService)
	systemHandler := handler.NewSystemHandler()

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	// Initialize router with custom middleware
	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Security - Add security headers
	// 5. CORS - Handle cross-origin requests
	// 6. Tracing - OTEL spans with company/user attributes
	// 7. Metrics - HTTP RED metrics
	// 8. BodyLimit - Cap upload size
	// 9. RateLimit - Apply rate limiting (if enabled)
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: meterProvider,
		ServiceName:   cfg.Telemetry.ServiceName,
		Enabled:       cfg.Telemetry.Enabled,
	}))

	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Company scoping for all API routes. The gateway in front of this
	// service authenticates the caller and forwards X-Company-ID/X-User-ID.
	r.Use(middleware.CompanyMiddlewareWithConfig(middleware.CompanyMiddlewareConfig{
		SkipPaths: []string{
			"/api/v1/ping",
			"/api/v1/system/ping",
			"/api/v1/system/info",
		},
		Required: true,
		Logger:   log,
	}))

	r.Register(documentHandler).
		Register(approvalHandler).
		Register(periodHandler).
		Register(voucherHandler).
		Register(systemHandler)
	r.Setup()

	// Also keep a simple ping at root API level for basic health checks
	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
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

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// shutdownWithTimeout runs a provider shutdown with a bounded deadline
func shutdownWithTimeout(shutdown func(context.Context) error, log *zap.Logger, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Error("Error shutting down "+name, zap.Error(err))
	}
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database, _ *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
