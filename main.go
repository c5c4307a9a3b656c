package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/lesson-sync-service/internal/cache"
	"github.com/SAP-F-2025/lesson-sync-service/internal/config"
	"github.com/SAP-F-2025/lesson-sync-service/internal/events"
	"github.com/SAP-F-2025/lesson-sync-service/internal/handlers"
	"github.com/SAP-F-2025/lesson-sync-service/internal/repositories/sqlite"
	"github.com/SAP-F-2025/lesson-sync-service/internal/scheduler"
	"github.com/SAP-F-2025/lesson-sync-service/internal/services"
	"github.com/SAP-F-2025/lesson-sync-service/internal/validator"
	"github.com/SAP-F-2025/lesson-sync-service/internal/ws"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// Open the offline store
	db, err := sqlite.OpenStore(cfg.StorePath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	// Initialize Redis (if configured)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Printf("Warning: Invalid Redis URL: %v", err)
		} else {
			redisClient = redis.NewClient(opts)
		}
	}
	cacheManager := cache.NewCacheManager(redisClient)

	// Initialize repositories
	repoManager := sqlite.NewRepositoryManager(sqlite.RepositoryConfig{DB: db})
	if err := repoManager.Initialize(); err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}

	// Initialize validator
	v := validator.New()

	// Initialize the LMS client and event bus
	client := ws.NewClient(cfg.Sites, logger)
	bus := events.NewBus(logger)

	// Initialize services
	serviceManager := services.NewServiceManager(services.ServiceManagerConfig{
		Repository:      repoManager.GetRepository(),
		DB:              db,
		Client:          client,
		CacheManager:    cacheManager,
		Publisher:       bus,
		Validator:       v,
		Logger:          logger,
		MinSyncInterval: cfg.MinSyncInterval,
	})
	if err := serviceManager.Initialize(context.Background()); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	// Start the sync scheduler
	siteIDs := make([]string, 0, len(cfg.Sites))
	for siteID := range cfg.Sites {
		siteIDs = append(siteIDs, siteID)
	}
	syncScheduler := scheduler.New(serviceManager.Sync(), siteIDs, cfg.SyncSchedule, logger)
	if err := syncScheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// Initialize handlers
	handlerManager := handlers.NewHandlerManager(serviceManager, v, logger)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Setup middleware
	handlers.SetupMiddleware(router, logger)

	// Setup routes
	handlerManager.SetupRoutes(router)

	// Create HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop the scheduler first so no new sync runs start
	syncScheduler.Stop()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Shutdown services
	if err := serviceManager.Shutdown(ctx); err != nil {
		log.Printf("Failed to shutdown services: %v", err)
	}

	// Close database connection
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	// Close Redis connection
	if redisClient != nil {
		redisClient.Close()
	}

	logger.Info("Server exited")
}
