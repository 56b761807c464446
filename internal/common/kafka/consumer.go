package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dprasetyo/userpulse/internal/common/config"
	"github.com/dprasetyo/userpulse/internal/common/logger"
)

// Message is one record fetched from the broker, retained until its offset
// is committed.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time

	raw kafka.Message
}

// Consumer wraps a kafka-go reader with manual, synchronous offset commits.
// With a group ID set, partition assignment is delegated entirely to the
// broker's group coordination protocol; the consumer processes whatever
// partitions it is handed. Without a group ID the reader is bound to a
// single partition and supports SeekTo for replay.
type Consumer struct {
	reader  *kafka.Reader
	client  *kafka.Client
	topic   string
	groupID string
	logger  *logger.Logger
}

// NewConsumer creates a consumer-group member for the topic.
func NewConsumer(cfg config.KafkaConfig, topic string, log *logger.Logger) *Consumer {
	return newConsumer(cfg, topic, cfg.GroupID, 0, log)
}

// NewPartitionConsumer creates a group-less consumer bound to one partition.
// Used for replay: SeekTo and SeekToBeginning only work in this mode.
func NewPartitionConsumer(cfg config.KafkaConfig, topic string, partition int, log *logger.Logger) *Consumer {
	return newConsumer(cfg, topic, "", partition, log)
}

func newConsumer(cfg config.KafkaConfig, topic, groupID string, partition int, log *logger.Logger) *Consumer {
	startOffset := kafka.FirstOffset
	if cfg.AutoOffsetReset == "latest" {
		startOffset = kafka.LastOffset
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     groupID,
		Topic:       topic,
		Partition:   partition,
		MinBytes:    1,
		MaxBytes:    1e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: startOffset,
		// CommitInterval zero keeps commits synchronous; the caller owns
		// exactly when an offset advances.
		CommitInterval: 0,
	})

	client := &kafka.Client{
		Addr:    kafka.TCP(cfg.Brokers...),
		Timeout: 10 * time.Second,
	}

	return &Consumer{
		reader:  reader,
		client:  client,
		topic:   topic,
		groupID: groupID,
		logger:  log,
	}
}

// Poll fetches the next message, waiting at most timeout. It returns nil on
// timeout, end of partition, or shutdown; fetch errors are logged, never
// returned, so the caller's loop simply polls again.
func (c *Consumer) Poll(ctx context.Context, timeout time.Duration) *Message {
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	m, err := c.reader.FetchMessage(fetchCtx)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
		case errors.Is(err, context.Canceled):
		case errors.Is(err, io.EOF):
		default:
			c.logger.Errorf("Fetch failed: %v", err)
		}
		return nil
	}

	return &Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
		Time:      m.Time,
		raw:       m,
	}
}

// Commit synchronously advances the committed offset for the message's
// partition past the message. It blocks until the broker acknowledges.
func (c *Consumer) Commit(ctx context.Context, msg *Message) error {
	if err := c.reader.CommitMessages(ctx, msg.raw); err != nil {
		return fmt.Errorf("failed to commit offset %d on partition %d: %w", msg.Offset, msg.Partition, err)
	}
	return nil
}

// SeekTo repositions a partition-bound consumer. Group consumers reject
// this; kafka-go's error is surfaced as-is.
func (c *Consumer) SeekTo(offset int64) error {
	if err := c.reader.SetOffset(offset); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	c.logger.Infof("Seeked to offset %d on topic %s", offset, c.topic)
	return nil
}

// SeekToBeginning rewinds a partition-bound consumer for full replay.
func (c *Consumer) SeekToBeginning() error {
	if err := c.reader.SetOffset(kafka.FirstOffset); err != nil {
		return fmt.Errorf("failed to seek to beginning: %w", err)
	}
	c.logger.Infof("Seeked to beginning of topic %s", c.topic)
	return nil
}

// Lag returns, per partition, the newest available offset minus the group's
// committed offset. When no commit exists yet the oldest available offset is
// used as the baseline.
func (c *Consumer) Lag(ctx context.Context) (map[int]int64, error) {
	meta, err := c.client.Metadata(ctx, &kafka.MetadataRequest{
		Topics: []string{c.topic},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch topic metadata: %w", err)
	}

	var partitions []int
	for _, t := range meta.Topics {
		if t.Name != c.topic {
			continue
		}
		if t.Error != nil {
			return nil, fmt.Errorf("topic %s metadata error: %w", c.topic, t.Error)
		}
		for _, p := range t.Partitions {
			partitions = append(partitions, p.ID)
		}
	}
	if len(partitions) == 0 {
		return nil, fmt.Errorf("topic %s has no partitions", c.topic)
	}

	offsetReqs := make([]kafka.OffsetRequest, 0, len(partitions)*2)
	for _, p := range partitions {
		offsetReqs = append(offsetReqs, kafka.FirstOffsetOf(p), kafka.LastOffsetOf(p))
	}

	listed, err := c.client.ListOffsets(ctx, &kafka.ListOffsetsRequest{
		Topics: map[string][]kafka.OffsetRequest{c.topic: offsetReqs},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list offsets: %w", err)
	}

	type watermarks struct {
		first, last int64
	}
	marks := make(map[int]watermarks, len(partitions))
	for _, po := range listed.Topics[c.topic] {
		if po.Error != nil {
			return nil, fmt.Errorf("partition %d offsets error: %w", po.Partition, po.Error)
		}
		marks[po.Partition] = watermarks{first: po.FirstOffset, last: po.LastOffset}
	}

	committed := make(map[int]int64, len(partitions))
	if c.groupID != "" {
		fetched, err := c.client.OffsetFetch(ctx, &kafka.OffsetFetchRequest{
			GroupID: c.groupID,
			Topics:  map[string][]int{c.topic: partitions},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch committed offsets: %w", err)
		}
		for _, of := range fetched.Topics[c.topic] {
			committed[of.Partition] = of.CommittedOffset
		}
	}

	lag := make(map[int]int64, len(partitions))
	for _, p := range partitions {
		base, ok := committed[p]
		if !ok || base < 0 {
			base = marks[p].first
		}
		lag[p] = marks[p].last - base
	}

	return lag, nil
}

// Close releases the broker connection. Offsets are committed synchronously
// per message, so there is nothing pending; reader shutdown still flushes a
// final commit for safety.
func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("failed to close consumer: %w", err)
	}
	c.logger.Info("Consumer closed")
	return nil
}
