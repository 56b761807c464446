package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for a service instance.
// NOTE: Values come from environment variables; mains call godotenv.Load()
// first so a local .env file works in development.
type Config struct {
	Service  ServiceConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Consumer ConsumerConfig
	Producer ProducerConfig
}

type ServiceConfig struct {
	Name string
	Port string
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	// AutoOffsetReset selects where a new consumer group starts:
	// "earliest" or "latest".
	AutoOffsetReset string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type ConsumerConfig struct {
	Topic         string
	PollTimeout   time.Duration
	StatsInterval time.Duration
	// MaxEvents stops the loop after N processed events. Zero means unlimited.
	MaxEvents int
	// CommitOnUnknownError controls whether the offset advances when storage
	// fails with an unclassified error. True trades delivery guarantees for
	// availability (one poison message cannot stall a partition); false falls
	// back to broker redelivery.
	CommitOnUnknownError bool
	// BackoffInterval is the pause after a transient storage failure before
	// the next poll redelivers the message.
	BackoffInterval time.Duration
	// Dead letter reprocessor knobs.
	RetryInterval time.Duration
	MaxRetries    int
}

type ProducerConfig struct {
	Topic         string
	RatePerSecond float64
	Count         int
	// MalformedRate injects invalid payloads for dead-letter testing, 0..1.
	MalformedRate float64
}

// Load reads configuration for the named service from the environment.
func Load(service string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name: service,
			Port: getEnv("API_PORT", "8000"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "analytics_user"),
			Password:        getEnv("DB_PASSWORD", "analytics_pass"),
			DBName:          getEnv("DB_NAME", "user_analytics"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:         strings.Split(getEnv("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092"), ","),
			GroupID:         getEnv("KAFKA_CONSUMER_GROUP", "user-analytics-group"),
			AutoOffsetReset: getEnv("KAFKA_AUTO_OFFSET_RESET", "earliest"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Consumer: ConsumerConfig{
			Topic:                getEnv("KAFKA_TOPIC_EVENTS", "user-events"),
			PollTimeout:          getEnvAsDuration("CONSUMER_POLL_TIMEOUT", time.Second),
			StatsInterval:        getEnvAsDuration("CONSUMER_STATS_INTERVAL", 30*time.Second),
			MaxEvents:            getEnvAsInt("CONSUMER_MAX_EVENTS", 0),
			CommitOnUnknownError: getEnvAsBool("CONSUMER_COMMIT_ON_UNKNOWN_ERROR", true),
			BackoffInterval:      getEnvAsDuration("CONSUMER_BACKOFF_INTERVAL", 5*time.Second),
			RetryInterval:        getEnvAsDuration("CONSUMER_RETRY_INTERVAL", time.Minute),
			MaxRetries:           getEnvAsInt("CONSUMER_MAX_RETRIES", 5),
		},
		Producer: ProducerConfig{
			Topic:         getEnv("KAFKA_TOPIC_EVENTS", "user-events"),
			RatePerSecond: getEnvAsFloat("PRODUCER_RATE_PER_SECOND", 10),
			Count:         getEnvAsInt("PRODUCER_COUNT", 0),
			MalformedRate: getEnvAsFloat("PRODUCER_MALFORMED_RATE", 0),
		},
	}

	if cfg.JWT.Secret == "" && service == "api" {
		return nil, fmt.Errorf("JWT_SECRET is required for the api service")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := getEnv(key, ""); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
