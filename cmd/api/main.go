package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/fileflow-platform/tracking-service/pkg/cloudevents"
	"github.com/fileflow-platform/tracking-service/pkg/errors"
	"github.com/fileflow-platform/tracking-service/pkg/kafka"
	"github.com/fileflow-platform/tracking-service/pkg/logging"
	"github.com/fileflow-platform/tracking-service/pkg/metrics"
	"github.com/fileflow-platform/tracking-service/pkg/middleware"
	"github.com/fileflow-platform/tracking-service/pkg/mongodb"
	"github.com/fileflow-platform/tracking-service/pkg/outbox"
	"github.com/fileflow-platform/tracking-service/pkg/tracing"

	"github.com/fileflow-platform/tracking-service/internal/application"
	"github.com/fileflow-platform/tracking-service/internal/domain"
	"github.com/fileflow-platform/tracking-service/internal/infrastructure/identity"
	kafkaInfra "github.com/fileflow-platform/tracking-service/internal/infrastructure/kafka"
	mongoRepo "github.com/fileflow-platform/tracking-service/internal/infrastructure/mongodb"
)

const serviceName = "tracking-service"

func main() {
	// Setup enhanced logger
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting tracking-service API")

	// Load configuration
	config := loadConfig()
	ctx := context.Background()

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	tracingConfig.Environment = getEnv("ENVIRONMENT", "development")
	tracingConfig.Enabled = getEnv("TRACING_ENABLED", "true") == "true"

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint)
	}

	// Initialize Prometheus metrics
	metricsConfig := metrics.DefaultConfig(serviceName)
	m := metrics.New(metricsConfig)
	logger.Info("Metrics initialized")

	// Load the stage catalog, with optional YAML overrides
	catalog := domain.DefaultCatalog()
	if config.StageCatalogPath != "" {
		catalog, err = domain.LoadCatalog(config.StageCatalogPath)
		if err != nil {
			logger.WithError(err).Error("Failed to load stage catalog")
			os.Exit(1)
		}
		logger.Info("Stage catalog loaded", "path", config.StageCatalogPath)
	}

	// Initialize MongoDB
	mongoClient, err := mongodb.NewClient(ctx, config.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(ctx)
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	// Initialize Kafka producer with instrumentation
	kafkaProducer := kafka.NewProducer(config.Kafka)
	instrumentedProducer := kafka.NewInstrumentedProducer(kafkaProducer, m, logger)
	defer instrumentedProducer.Close()
	logger.Info("Kafka producer initialized", "brokers", config.Kafka.Brokers)

	// Initialize CloudEvents factory
	eventFactory := cloudevents.NewEventFactory("/tracking-service")

	// Initialize repositories and stores
	trackingRepo := mongoRepo.NewTrackingRepository(mongoClient.Database(), eventFactory, logger, m)
	pipelineRepo := mongoRepo.NewPipelineEventRepository(mongoClient.Database(), m)
	workItemStore := mongoRepo.NewWorkItemStore(mongoClient.Database())

	// Initialize employee directory client
	directory := identity.NewDirectory(identity.DefaultConfig(config.DirectoryURL), m, logger)

	// Initialize escalation notifier
	notifier := kafkaInfra.NewEscalationNotifier(instrumentedProducer, eventFactory, logger)

	// Initialize and start outbox publisher
	outboxPublisher := outbox.NewPublisher(
		trackingRepo.GetOutboxRepository(),
		instrumentedProducer,
		logger,
		m,
		&outbox.PublisherConfig{
			PollInterval: 1 * time.Second,
			BatchSize:    100,
		},
	)
	if err := outboxPublisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
		os.Exit(1)
	}
	defer outboxPublisher.Stop()
	logger.Info("Outbox publisher started")

	// Initialize application service
	trackingService := application.NewTrackingService(
		trackingRepo,
		pipelineRepo,
		workItemStore,
		directory,
		notifier,
		catalog,
		m,
		logger,
	)

	// Start the work-item signal consumer
	consumerCtx, cancelConsumer := context.WithCancel(ctx)
	defer cancelConsumer()

	kafkaConsumer := kafka.NewConsumer(config.Kafka, logger.Logger)
	instrumentedConsumer := kafka.NewInstrumentedConsumer(kafkaConsumer, m, logger)
	signalConsumer := kafkaInfra.NewWorkItemSignalConsumer(
		instrumentedConsumer,
		workItemStore,
		trackingService,
		logger,
	)
	go func() {
		if err := signalConsumer.Start(consumerCtx); err != nil && consumerCtx.Err() == nil {
			logger.WithError(err).Error("Work item signal consumer stopped")
		}
	}()
	defer signalConsumer.Close()
	logger.Info("Work item signal consumer started", "topic", kafka.Topics.WorkItemEvents)

	// Periodic SLA breach scan
	scanCtx, cancelScan := context.WithCancel(ctx)
	defer cancelScan()
	go runBreachScanner(scanCtx, trackingService, config.BreachScanInterval, logger)

	// Setup Gin router with middleware
	router := gin.New()

	// CORS for the pipeline dashboard
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID", "X-Correlation-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "X-Correlation-ID"},
		AllowCredentials: true,
	}))

	middlewareConfig := middleware.DefaultConfig(serviceName, logger.Logger)
	middlewareConfig.EnableCORS = false
	middleware.Setup(router, middlewareConfig)

	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.SimpleTracingMiddleware(serviceName))
	router.Use(middleware.CloudEvents())

	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	// Health check endpoints
	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, func() error {
		return mongoClient.HealthCheck(ctx)
	}))

	// Metrics endpoint
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	// API v1 routes
	api := router.Group("/api/v1")
	{
		files := api.Group("/files")
		{
			files.POST("", initializeHandler(trackingService, logger))
			files.GET("/:fileId", getFileHandler(trackingService, logger))
			files.POST("/:fileId/assign", assignHandler(trackingService, logger))
			files.POST("/:fileId/start", startWorkHandler(trackingService, logger))
			files.POST("/:fileId/complete", completeStageHandler(trackingService, logger))
			files.POST("/:fileId/transition", transitionHandler(trackingService, logger))
			files.POST("/:fileId/complete-and-transition", completeAndTransitionHandler(trackingService, logger))
			files.POST("/:fileId/reconcile", reconcileHandler(trackingService, logger))
		}
		api.GET("/pipeline", pipelineViewHandler(trackingService, logger))
		api.POST("/sla/check", slaCheckHandler(trackingService, logger))
	}

	// Start server
	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server error")
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}

// runBreachScanner runs the SLA breach scan on a fixed interval until the
// context is cancelled
func runBreachScanner(ctx context.Context, service *application.TrackingService, interval time.Duration, logger *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := service.CheckSLABreaches(ctx)
			if err != nil {
				logger.WithError(err).Error("SLA breach scan failed")
				continue
			}
			if len(result.Breaches) > 0 {
				logger.Info("SLA breach scan completed",
					"scanned", result.Scanned,
					"breaches", len(result.Breaches))
			}
		}
	}
}

// Config holds application configuration
type Config struct {
	ServerAddr         string
	StageCatalogPath   string
	DirectoryURL       string
	BreachScanInterval time.Duration
	MongoDB            *mongodb.Config
	Kafka              *kafka.Config
}

func loadConfig() *Config {
	scanInterval := 5 * time.Minute
	if raw := os.Getenv("BREACH_SCAN_INTERVAL"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			scanInterval = parsed
		}
	}

	return &Config{
		ServerAddr:         getEnv("SERVER_ADDR", ":8020"),
		StageCatalogPath:   getEnv("STAGE_CATALOG_PATH", ""),
		DirectoryURL:       getEnv("EMPLOYEE_DIRECTORY_URL", "http://localhost:8030"),
		BreachScanInterval: scanInterval,
		MongoDB: &mongodb.Config{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "tracking_db"),
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    100,
			MinPoolSize:    10,
		},
		Kafka: &kafka.Config{
			Brokers:       []string{getEnv("KAFKA_BROKERS", "localhost:9092")},
			ConsumerGroup: "tracking-service",
			ClientID:      "tracking-service",
			BatchSize:     100,
			BatchTimeout:  10 * time.Millisecond,
			RequiredAcks:  -1,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// HTTP Handlers

func initializeHandler(service *application.TrackingService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var cmd application.InitializeTrackingCommand
		if err := c.ShouldBindJSON(&cmd); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		middleware.AddSpanAttributes(c, map[string]interface{}{
			"file.id": cmd.FileID,
		})

		tracking, err := service.InitializeTracking(c.Request.Context(), cmd)
		if err != nil {
			respondError(responder, err)
			return
		}

		c.JSON(http.StatusCreated, tracking)
	}
}

func getFileHandler(service *application.TrackingService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		fileID := c.Param("fileId")
		middleware.AddSpanAttributes(c, map[string]interface{}{
			"file.id": fileID,
		})

		tracking, err := service.GetFileTracking(c.Request.Context(), application.GetFileTrackingQuery{FileID: fileID})
		if err != nil {
			respondError(responder, err)
			return
		}

		c.JSON(http.StatusOK, tracking)
	}
}

func assignHandler(service *application.TrackingService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var cmd application.AssignStageCommand
		if err := c.ShouldBindJSON(&cmd); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cmd.FileID = c.Param("fileId")

		middleware.AddSpanAttributes(c, map[string]interface{}{
			"file.id":       cmd.FileID,
			"employee.code": cmd.EmployeeCode,
		})

		tracking, err := service.AssignStage(c.Request.Context(), cmd)
		if err != nil {
			respondError(responder, err)
			return
		}

		c.JSON(http.StatusOK, tracking)
	}
}

func startWorkHandler(service *application.TrackingService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var cmd application.StartWorkCommand
		if err := c.ShouldBindJSON(&cmd); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cmd.FileID = c.Param("fileId")

		middleware.AddSpanAttributes(c, map[string]interface{}{
			"file.id":       cmd.FileID,
			"employee.code": cmd.EmployeeCode,
		})

		result, err := service.StartWork(c.Request.Context(), cmd)
		if err != nil {
			respondError(responder, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func completeStageHandler(service *application.TrackingService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var cmd application.CompleteStageCommand
		if err := c.ShouldBindJSON(&cmd); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cmd.FileID = c.Param("fileId")

		middleware.AddSpanAttributes(c, map[string]interface{}{
			"file.id":       cmd.FileID,
			"employee.code": cmd.EmployeeCode,
		})

		tracking, err := service.CompleteStage(c.Request.Context(), cmd)
		if err != nil {
			respondError(responder, err)
			return
		}

		c.JSON(http.StatusOK, tracking)
	}
}

func transitionHandler(service *application.TrackingService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var cmd application.TransitionCommand
		if err := c.ShouldBindJSON(&cmd); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cmd.FileID = c.Param("fileId")

		middleware.AddSpanAttributes(c, map[string]interface{}{
			"file.id":       cmd.FileID,
			"employee.code": cmd.EmployeeCode,
			"target.stage":  cmd.TargetStage,
			"forced":        cmd.Force,
		})

		tracking, err := service.Transition(c.Request.Context(), cmd)
		if err != nil {
			respondError(responder, err)
			return
		}

		c.JSON(http.StatusOK, tracking)
	}
}

func completeAndTransitionHandler(service *application.TrackingService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var cmd application.CompleteAndTransitionCommand
		if err := c.ShouldBindJSON(&cmd); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cmd.FileID = c.Param("fileId")

		middleware.AddSpanAttributes(c, map[string]interface{}{
			"file.id":      cmd.FileID,
			"target.stage": cmd.TargetStage,
		})

		tracking, err := service.CompleteAndTransition(c.Request.Context(), cmd)
		if err != nil {
			respondError(responder, err)
			return
		}

		c.JSON(http.StatusOK, tracking)
	}
}

func reconcileHandler(service *application.TrackingService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		fileID := c.Param("fileId")
		middleware.AddSpanAttributes(c, map[string]interface{}{
			"file.id": fileID,
		})

		result, err := service.ReconcileFromSignals(c.Request.Context(), application.ReconcileCommand{FileID: fileID})
		if err != nil {
			respondError(responder, err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func pipelineViewHandler(service *application.TrackingService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var query application.PipelineViewQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		view, err := service.PipelineView(c.Request.Context(), query)
		if err != nil {
			responder.RespondInternalError(err)
			return
		}

		c.JSON(http.StatusOK, view)
	}
}

func slaCheckHandler(service *application.TrackingService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		result, err := service.CheckSLABreaches(c.Request.Context())
		if err != nil {
			responder.RespondInternalError(err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func respondError(responder *middleware.ErrorResponder, err error) {
	if appErr, ok := err.(*errors.AppError); ok {
		responder.RespondWithAppError(appErr)
		return
	}
	responder.RespondInternalError(err)
}
