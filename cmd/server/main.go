package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/alexberardi/jarvis-recipes-server/internal/auth"
	"github.com/alexberardi/jarvis-recipes-server/internal/client"
	"github.com/alexberardi/jarvis-recipes-server/internal/config"
	"github.com/alexberardi/jarvis-recipes-server/internal/extract"
	"github.com/alexberardi/jarvis-recipes-server/internal/handler"
	"github.com/alexberardi/jarvis-recipes-server/internal/middleware"
	"github.com/alexberardi/jarvis-recipes-server/internal/model"
	"github.com/alexberardi/jarvis-recipes-server/internal/queue"
	"github.com/alexberardi/jarvis-recipes-server/internal/service"
	"github.com/alexberardi/jarvis-recipes-server/internal/store"
	"github.com/alexberardi/jarvis-recipes-server/internal/worker"
	ws "github.com/alexberardi/jarvis-recipes-server/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	// Open the database
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer st.Close()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", zap.Error(err))
	}

	// Initialize Asynq client and envelope publisher
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()
	publisher := queue.NewPublisher(asynqClient, logger)

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub(logger)
	go hub.Run()

	// Initialize external clients
	llmClient := client.NewLLMClient(&cfg.LLM)
	ocrClient := client.NewOCRClient(&cfg.OCR)

	var storageClient client.StorageClient
	if cfg.Storage.AccessKeyID != "" && cfg.Storage.SecretAccessKey != "" {
		s3Client, err := client.NewS3Client(&cfg.Storage)
		if err != nil {
			logger.Warn("storage client not initialized", zap.Error(err))
		} else {
			storageClient = s3Client
		}
	} else {
		logger.Info("object storage not configured, image ingestion disabled")
	}

	// Extraction pipeline
	fetcher := extract.NewFetcher(cfg.Scraper.UserAgent, cfg.Scraper.Cookies, logger)
	var llmExtractor *extract.LLMExtractor
	if llmClient.IsConfigured() {
		llmExtractor = extract.NewLLMExtractor(llmClient, cfg.LLM.Model, logger)
	} else {
		logger.Info("llm proxy not configured, model-assisted extraction disabled")
	}
	orchestrator := extract.NewOrchestrator(fetcher, llmExtractor, logger)

	// Initialize JWKS verifier (optional - falls back to legacy JWT)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.Auth.Issuer != "" {
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.Auth)
		if err != nil {
			logger.Warn("jwks verifier not initialized", zap.Error(err))
		} else {
			defer jwksVerifier.Close()
		}
	}

	// Initialize services
	ingestService := service.NewIngestService(st, publisher, orchestrator, fetcher, storageClient, logger)
	mealPlanService := service.NewMealPlanService(st, publisher, logger)

	// Initialize handlers
	recipesHandler := handler.NewRecipesHandler(ingestService, validate, cfg.Jobs.MaxAttempts)
	mealPlanHandler := handler.NewMealPlanHandler(mealPlanService, validate)

	// Initialize auth middleware
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind the gateway: auth is handled upstream, read X-User-* headers
		logger.Info("gateway mode enabled, using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		var authMiddleware *middleware.AuthMiddleware
		if jwksVerifier != nil && cfg.JWT.Secret != "" {
			authMiddleware = middleware.NewAuthMiddlewareWithFallback(jwksVerifier, cfg.JWT.Secret)
		} else if jwksVerifier != nil {
			authMiddleware = middleware.NewAuthMiddleware(jwksVerifier)
		} else {
			authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
		}
		apiAuthMiddleware = authMiddleware.Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    80 * 1024 * 1024, // room for 8 base64 images
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams}\n"
	}
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"llm":     llmClient.IsConfigured(),
				"ocr":     ocrClient.IsConfigured(),
				"storage": storageClient != nil,
				"auth":    jwksVerifier != nil || cfg.JWT.Secret != "",
			},
		})
	})

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	// Recipe import routes
	recipes := api.Group("/recipes")
	recipes.Post("/import/url", rateLimiter.ImportLimit(cfg.RateLimit.ImportPerHour), recipesHandler.ImportURL)
	recipes.Post("/import/preflight", rateLimiter.PreflightLimit(cfg.RateLimit.PreflightPerMin), recipesHandler.Preflight)
	recipes.Post("/ingest", rateLimiter.IngestLimit(cfg.RateLimit.IngestPerHour), recipesHandler.Ingest)

	// Job lifecycle routes
	jobs := recipes.Group("/jobs", rateLimiter.JobReadLimit(cfg.RateLimit.JobReadsPerMin))
	jobs.Get("/:jobId", recipesHandler.Status)
	jobs.Get("/:jobId/result", recipesHandler.Result)
	jobs.Post("/:jobId/cancel", recipesHandler.Cancel)
	jobs.Post("/:jobId/commit", recipesHandler.Commit)
	jobs.Post("/:jobId/retry", recipesHandler.Retry)

	// Meal plan routes
	mealplan := api.Group("/mealplan", rateLimiter.MealPlanLimit(cfg.RateLimit.MealPlanPerHour))
	mealplan.Post("/generate", mealPlanHandler.Generate)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	recipeWorker := worker.New(worker.Config{
		Store:        st,
		Publisher:    publisher,
		Orchestrator: orchestrator,
		Chat:         llmClient,
		ModelName:    cfg.LLM.Model,
		LiteModel:    cfg.LLM.LightweightModel,
		OCRClient:    ocrClient,
		Storage:      storageClient,
		Hub:          hub,
		MaxAttempts:  cfg.Jobs.MaxAttempts,
		StageTTL:     time.Duration(cfg.Jobs.StageTTLHours) * time.Hour,
		Logger:       logger,
	})
	go startWorkerServer(cfg, recipeWorker, logger)

	// Background sweeper for abandoned jobs and expired staged recipes
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	sweeper := worker.NewSweeper(st,
		time.Duration(cfg.Jobs.SweepInterval)*time.Minute,
		time.Duration(cfg.Jobs.AbandonAfterHours)*time.Hour,
		logger)
	go sweeper.Run(sweepCtx)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("shutting down server")
		stopSweeper()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("server shutdown", zap.Error(err))
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	logger.Info("server starting", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if strings.EqualFold(cfg.Server.Env, "production") {
		zcfg := zap.NewProductionConfig()
		if strings.EqualFold(cfg.Server.LogLevel, "debug") {
			zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		return zcfg.Build()
	}
	return zap.NewDevelopment()
}

func startWorkerServer(cfg *config.Config, w *worker.Worker, logger *zap.Logger) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			// Only the self-addressed queue; ocr.completed envelopes come
			// back here via reply_to. The OCR queue belongs to that service.
			Queues: map[string]int{
				model.QueueRecipeJobs: 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	mux := asynq.NewServeMux()
	w.RegisterHandlers(mux)

	if err := srv.Run(mux); err != nil {
		logger.Error("asynq worker error", zap.Error(err))
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
