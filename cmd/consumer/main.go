package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/dprasetyo/userpulse/internal/common/config"
	"github.com/dprasetyo/userpulse/internal/common/db"
	"github.com/dprasetyo/userpulse/internal/common/kafka"
	"github.com/dprasetyo/userpulse/internal/common/logger"
	"github.com/dprasetyo/userpulse/internal/common/redis"
	"github.com/dprasetyo/userpulse/internal/consumer"
	"github.com/dprasetyo/userpulse/internal/deadletter"
	"github.com/dprasetyo/userpulse/internal/ingest"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.Load("consumer")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("consumer-service")

	// Connect to database
	database, err := db.Connect(cfg.Database, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Create schema
	if err := ingest.Migrate(context.Background(), database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Connect to Redis. The idempotency cache is advisory, so the consumer
	// runs without it rather than refusing to start.
	redisClient, err := redis.Connect(cfg.Redis, log)
	if err != nil {
		log.Warnf("Redis unavailable, running without idempotency cache: %v", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	// Initialize Kafka consumer
	source := kafka.NewConsumer(cfg.Kafka, cfg.Consumer.Topic, log)
	defer source.Close()
	log.Infof("✅ Kafka consumer initialized (topic=%s, group=%s)", cfg.Consumer.Topic, cfg.Kafka.GroupID)

	// Initialize storage
	repo := ingest.NewRepository(database, log)
	store := ingest.NewService(database, repo, redisClient, log)

	// Initialize dead letter recorder and reprocessor
	dlqRepo := deadletter.NewRepository(database, log)
	recorder := deadletter.NewRecorder(dlqRepo, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reprocessor := deadletter.NewReprocessor(
		dlqRepo,
		func(ctx context.Context, raw []byte) error {
			_, err := store.StoreEvent(ctx, raw)
			return err
		},
		cfg.Consumer.RetryInterval,
		cfg.Consumer.MaxRetries,
		log,
	)
	go reprocessor.Run(ctx)

	// Run the poll/store/commit loop until a signal arrives
	coord := consumer.NewCoordinator(source, store, recorder, cfg.Consumer, log)
	if err := coord.Run(ctx); err != nil {
		log.Fatalf("Consumer failed: %v", err)
	}

	log.Info("✅ Consumer exited gracefully")
}
