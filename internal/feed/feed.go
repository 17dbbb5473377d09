// Package feed publishes executed trades to Kafka for downstream
// consumers (market data, analytics). The feed is best-effort: the
// matching path never blocks or fails on it.
package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"orderbook/internal/models"
)

// Publisher writes trades to a single Kafka topic.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a publisher for the given brokers and topic.
// Writes are async; delivery errors surface through the writer's
// internal logger, not the produce call.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
			Async:    true,
		},
	}
}

// PublishTrades emits one message per trade, keyed by trade id so a
// partitioned topic keeps per-trade ordering stable.
func (p *Publisher) PublishTrades(ctx context.Context, trades []models.Trade) error {
	msgs := make([]kafka.Message, 0, len(trades))
	for _, t := range trades {
		value, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to encode trade %d: %w", t.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(fmt.Sprintf("%d", t.ID)),
			Value: value,
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish trades: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
