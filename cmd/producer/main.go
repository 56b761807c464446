package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/dprasetyo/userpulse/internal/common/config"
	"github.com/dprasetyo/userpulse/internal/common/kafka"
	"github.com/dprasetyo/userpulse/internal/common/logger"
	"github.com/dprasetyo/userpulse/internal/generator"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.Load("producer")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("producer-service")

	// Initialize Kafka producer
	producer := kafka.NewProducer(cfg.Kafka, log)
	defer producer.Close()

	gen := generator.New(50, cfg.Producer.MalformedRate, time.Now().UnixNano())

	rate := cfg.Producer.RatePerSecond
	if rate <= 0 {
		rate = 10
	}
	interval := time.Duration(float64(time.Second) / rate)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infof("Producing to %s at %.1f events/sec (malformed rate %.2f)",
		cfg.Producer.Topic, rate, cfg.Producer.MalformedRate)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	published := 0
	for {
		select {
		case <-ctx.Done():
			log.Infof("✅ Producer stopped after %d events", published)
			return
		case <-ticker.C:
			key, value := gen.Next()
			if err := producer.PublishRaw(ctx, cfg.Producer.Topic, key, value); err != nil {
				log.Errorf("Failed to publish: %v", err)
				continue
			}
			published++

			if published%100 == 0 {
				log.Infof("Published %d events", published)
			}
			if cfg.Producer.Count > 0 && published >= cfg.Producer.Count {
				log.Infof("✅ Published all %d events", published)
				return
			}
		}
	}
}
