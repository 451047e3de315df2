package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
)

// Event is the unit of data published to Kafka. Key is used for partition
// hashing and Value is JSON-serialised.
type Event struct {
	Key   string
	Value any
}

// Publisher is the producer surface other packages depend on.
type Publisher interface {
	PublishBatch(ctx context.Context, events []Event) error
	Close() error
}

// Producer publishes JSON-encoded events to a Kafka topic.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

var _ Publisher = (*Producer)(nil)

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish writes a single event synchronously.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch writes events in one call.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	messages, err := encode(events)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("failed to publish batch",
			"count", len(messages),
			"error", err,
		)
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.logger.Debug("batch published", "count", len(messages))
	return nil
}

func encode(events []Event) ([]kafka.Message, error) {
	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event.Value)
		if err != nil {
			return nil, fmt.Errorf("marshaling event %q: %w", event.Key, err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(event.Key),
			Value: value,
		})
	}
	return messages, nil
}

// Close flushes pending writes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
