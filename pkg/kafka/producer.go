// Package kafka carries analytics events from the search service to the
// analytics service. Values are JSON, keys are query ids so a search and the
// ratings of its results share a partition, and the event type travels as a
// record header so consumers can route a message before decoding it.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/gesetzesinfo/lawsearch/pkg/config"
)

// HeaderEventType names the record header holding Event.Type.
const HeaderEventType = "event-type"

type Event struct {
	Key   string
	Type  string
	Value any
}

type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer writes synchronously: batching happens upstream in the
// analytics collector.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           10 * time.Millisecond,
			MaxAttempts:            3,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// PublishBatch writes events in one call. A value that cannot be encoded
// fails the whole batch before anything is sent.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	messages, err := encode(events)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("publishing %d events to %s: %w", len(messages), p.writer.Topic, err)
	}
	p.logger.Debug("events published", "count", len(messages))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func encode(events []Event) ([]kafka.Message, error) {
	messages := make([]kafka.Message, len(events))
	for i, e := range events {
		value, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("encoding %s event %s: %w", e.Type, e.Key, err)
		}
		messages[i] = kafka.Message{Key: []byte(e.Key), Value: value}
		if e.Type != "" {
			messages[i].Headers = []kafka.Header{{Key: HeaderEventType, Value: []byte(e.Type)}}
		}
	}
	return messages, nil
}
