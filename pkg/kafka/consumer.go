// Package kafka provides JSON producer and consumer clients backed by
// segmentio/kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
)

// MessageHandler is invoked for each message. Returning an error leaves
// the message uncommitted so it is redelivered after a rebalance or
// restart; wrap the error with ErrDrop to commit it anyway.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// ErrDrop marks a handler error as final: the message is logged and
// committed.
var ErrDrop = errors.New("drop message")

// Consumer reads messages from one topic in a consumer group.
type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler MessageHandler
}

// NewConsumer creates a Consumer for topic. New groups start from the
// earliest offset so no published document is skipped.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})

	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler: handler,
	}
}

// Start runs the consume loop until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return c.reader.Close()
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)
		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			if !errors.Is(err, ErrDrop) {
				c.logger.Error("failed to process message, leaving uncommitted",
					"partition", msg.Partition,
					"offset", msg.Offset,
					"error", err,
				)
				continue
			}
			c.logger.Warn("dropping message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
