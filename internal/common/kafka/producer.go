package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dprasetyo/userpulse/internal/common/config"
	"github.com/dprasetyo/userpulse/internal/common/logger"
)

// Producer publishes JSON events keyed by message key. Acks from all
// replicas are required before WriteMessages returns.
type Producer struct {
	writer *kafka.Writer
	logger *logger.Logger
}

func NewProducer(cfg config.KafkaConfig, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{writer: writer, logger: log}
}

// PublishEvent marshals the event to JSON and writes it to the topic. The
// key selects the partition, so events for one user stay ordered.
func (p *Producer) PublishEvent(ctx context.Context, topic, key string, event interface{}) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", topic, err)
	}

	p.logger.Debugf("Published event to %s (key=%s, %d bytes)", topic, key, len(value))
	return nil
}

// PublishRaw writes pre-encoded bytes without touching them. Used by the
// mock producer to inject malformed payloads.
func (p *Producer) PublishRaw(ctx context.Context, topic, key string, value []byte) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish raw message to %s: %w", topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// UnmarshalEvent decodes a consumed message value into the target type.
func UnmarshalEvent(value []byte, target interface{}) error {
	if err := json.Unmarshal(value, target); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return nil
}
