package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/dprasetyo/userpulse/internal/analytics"
	"github.com/dprasetyo/userpulse/internal/common/config"
	"github.com/dprasetyo/userpulse/internal/common/db"
	"github.com/dprasetyo/userpulse/internal/common/logger"
	"github.com/dprasetyo/userpulse/internal/common/middleware"
	"github.com/dprasetyo/userpulse/internal/common/redis"
	"github.com/dprasetyo/userpulse/internal/deadletter"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.Load("api")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("api-service")

	// Connect to database
	database, err := db.Connect(cfg.Database, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Connect to Redis. Reads fall through to the database when the cache
	// is down.
	redisClient, err := redis.Connect(cfg.Redis, log)
	if err != nil {
		log.Warnf("Redis unavailable, serving without cache: %v", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	// Initialize repositories and service
	repo := analytics.NewRepository(database.DB)
	dlqRepo := deadletter.NewRepository(database, log)
	service := analytics.NewService(repo, dlqRepo, redisClient)
	handler := analytics.NewHandler(service)

	// Set up router with middleware
	mux := http.NewServeMux()
	analytics.SetupRoutes(mux, handler, cfg.JWT.Secret)

	var root http.Handler = mux
	root = middleware.CORS(root)
	root = middleware.Logging(log)(root)
	root = middleware.Recovery(log)(root)

	server := &http.Server{
		Addr:         ":" + cfg.Service.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("🌐 API starting on port %s", cfg.Service.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("✅ Server exited gracefully")
}
