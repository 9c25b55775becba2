package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/vm-ec/vm-appetite-check/controllers"
	"github.com/vm-ec/vm-appetite-check/database"
	"github.com/vm-ec/vm-appetite-check/repository"
	"github.com/vm-ec/vm-appetite-check/routes"
	servicepkg "github.com/vm-ec/vm-appetite-check/services"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using system environment variables")
	}
	cfg := LoadConfig()

	if err := database.Connect(logger); err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close() //nolint:errcheck

	// Redis is optional: without it the portal skips caching and
	// async uploads.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Invalid REDIS_URL", zap.Error(err))
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("Redis unreachable, continuing without cache", zap.Error(err))
		}
	} else {
		logger.Warn("REDIS_URL not set, caching and async uploads disabled")
	}

	// DI chain
	ruleRepo := repository.NewGormRuleRepository(database.DB)
	carrierRepo := repository.NewGormCarrierRepository(database.DB)
	cache := controllers.NewCacheManager(rdb)
	uploadService := servicepkg.NewUploadService(ruleRepo, cfg.ReportDir, cache, logger)
	ruleService := servicepkg.NewRuleService(ruleRepo, logger)

	requestValidator := controllers.NewRequestValidator()
	ruleController := controllers.NewRuleController(ruleService, cache, requestValidator)
	uploadHandler := controllers.NewUploadHandler(uploadService, rdb, requestValidator, cfg.UploadStorageDir)
	carrierController := controllers.NewCarrierController(carrierRepo, requestValidator)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	servicepkg.StartUploadWorker(workerCtx, rdb, uploadService, cfg.UploadStorageDir)

	r := gin.New()

	// Global request-logging middleware
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", duration),
		)
	})

	// 30-second request timeout
	r.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "appetite-portal"})
	})

	routes.RegisterCanvasRoutes(r, ruleController, uploadHandler, carrierController)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	logger.Info("Appetite portal started", zap.String("port", cfg.Port))
	<-quit
	logger.Info("Shutting down appetite portal...")

	stopWorker()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exited cleanly")
}
