package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/storefront-orders/internal/events"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes order events keyed by aggregate id, so every event of
// one order lands on the same partition.
type Producer struct {
	writer messageWriter
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer{writer: writer}
}

func (p *Producer) Publish(ctx context.Context, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.AggregateID),
		Value: data,
		Time:  e.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.EventType)},
		},
	}); err != nil {
		return fmt.Errorf("publish %s: %w", e.EventType, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
