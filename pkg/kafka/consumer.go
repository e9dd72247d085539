package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/gesetzesinfo/lawsearch/pkg/config"
	"github.com/gesetzesinfo/lawsearch/pkg/resilience"
)

const (
	fetchBackoff       = time.Second
	handleAttempts     = 3
	handleInitialDelay = 200 * time.Millisecond
)

// Message is a consumed record. Type is empty when the producer set no
// event-type header.
type Message struct {
	Key       string
	Type      string
	Value     []byte
	Partition int
	Offset    int64
}

type MessageHandler func(ctx context.Context, msg Message) error

// Consumer reads a topic as part of a consumer group. A message whose handler
// keeps failing is logged and committed anyway.
type Consumer struct {
	reader  *kafka.Reader
	handler MessageHandler
	logger  *slog.Logger
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     time.Second,
			StartOffset: kafka.FirstOffset,
		}),
		handler: handler,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic, "group", cfg.ConsumerGroup),
	}
}

// Start consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("closing reader", "error", err)
		}
		c.logger.Info("consumer stopped")
	}()

	for {
		km, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("fetch failed", "error", err)
			select {
			case <-time.After(fetchBackoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		msg := toMessage(km)
		err = resilience.Retry(ctx, "handle-message", resilience.RetryConfig{
			MaxAttempts:  handleAttempts,
			InitialDelay: handleInitialDelay,
		}, func() error {
			return c.handler(ctx, msg)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("skipping message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", msg.Key,
				"error", err,
			)
		}
		if err := c.reader.CommitMessages(ctx, km); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

func toMessage(km kafka.Message) Message {
	msg := Message{
		Key:       string(km.Key),
		Value:     km.Value,
		Partition: km.Partition,
		Offset:    km.Offset,
	}
	for _, h := range km.Headers {
		if h.Key == HeaderEventType {
			msg.Type = string(h.Value)
		}
	}
	return msg
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
