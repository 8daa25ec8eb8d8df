package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/example/storefront-orders/internal/events"
	"github.com/segmentio/kafka-go"
)

type EventHandler func(ctx context.Context, e events.Event) error

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader messageReader
	logger *slog.Logger
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{
		reader: reader,
		logger: slog.Default().With("component", "kafka-consumer"),
	}
}

// Consume decodes each message as an event envelope and passes it to handler
// until ctx is cancelled. Undecodable messages and handler errors are logged
// and skipped.
func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.ErrorContext(ctx, "read message", "error", err)
			continue
		}

		var e events.Event
		if err := json.Unmarshal(msg.Value, &e); err != nil {
			c.logger.WarnContext(ctx, "skipping undecodable message",
				"offset", msg.Offset, "partition", msg.Partition, "error", err)
			continue
		}

		if err := handler(ctx, e); err != nil {
			c.logger.ErrorContext(ctx, "handle event",
				"event_type", e.EventType, "aggregate_id", e.AggregateID, "error", err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
