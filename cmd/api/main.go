package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/alpa-strategie/aia-backend/internal/api/handlers"
	"github.com/alpa-strategie/aia-backend/internal/app"
	"github.com/alpa-strategie/aia-backend/internal/metrics"
	"github.com/alpa-strategie/aia-backend/internal/middleware/adminauth"
	"github.com/alpa-strategie/aia-backend/internal/middleware/ratelimit"
	"github.com/alpa-strategie/aia-backend/internal/middleware/security"
	"github.com/alpa-strategie/aia-backend/internal/middleware/validation"
	"github.com/alpa-strategie/aia-backend/pkg/config"
	appLogger "github.com/alpa-strategie/aia-backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Aïa knowledge API server")

	metrics.Init()

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	pipeline, err := app.New(startCtx, cfg)
	cancelStart()
	if err != nil {
		appLogger.Fatal("Failed to initialize pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	if cfg.Admin.Password == "" {
		appLogger.Warn("admin.password is empty, admin endpoints will reject every request")
	}

	fiberApp := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	allowOrigins := "*"
	if len(cfg.Server.AllowedOrigins) > 0 {
		allowOrigins = strings.Join(cfg.Server.AllowedOrigins, ",")
	}

	fiberApp.Use(recover.New())
	fiberApp.Use(logger.New())
	fiberApp.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, " + adminauth.Header,
		AllowMethods: "GET, POST, OPTIONS",
	}))
	fiberApp.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.IsDevelopment,
	}))

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.Server.RateLimitPerMinute,
		Logger:            appLogger.GetLogger(),
	})
	defer limiter.Stop()

	syncHandler := handlers.NewSyncHandler(pipeline.Orchestrator, pipeline.Runs, cfg.Indexing.Timeout())
	searchHandler := handlers.NewSearchHandler(pipeline.Search, cfg.Search.DefaultTopK, cfg.Search.MaxTopK)

	fiberApp.Get("/metrics", metrics.MetricsHandler())

	api := fiberApp.Group("/api/v1")

	api.Post("/search",
		limiter.Middleware(),
		validation.SearchBody(validation.Config{
			MaxQueryLength: cfg.Server.MaxQueryLength,
			Logger:         appLogger.GetLogger(),
		}),
		searchHandler.HandleSearch,
	)

	admin := api.Group("/admin", adminauth.New(cfg.Admin.Password, appLogger.GetLogger()))
	admin.Post("/sync", syncHandler.HandleSync)
	admin.Get("/sync/runs", syncHandler.ListRuns)
	admin.Get("/sync/ws", handlers.RequireUpgrade, websocket.New(syncHandler.HandleProgress))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":           "ready",
			"vectorProvider":   cfg.Vector.Provider,
			"notionConfigured": cfg.NotionConfigured(),
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := fiberApp.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := fiberApp.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
