// Package kafka publishes engine notifications to a Kafka topic for
// downstream consumers (analytics, audit). The engine treats it as just
// another Notifier: delivery is best-effort and write failures are logged,
// never surfaced to the caller.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/vesto/invest-engine/internal/invest"
)

// Publisher writes events to one Kafka topic, keyed by account id so that
// per-account ordering is preserved across partitions.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher creates a publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

// Publish implements invest.Notifier.
func (p *Publisher) Publish(accountID string, ev invest.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(accountID),
		Value: data,
	})
	if err != nil {
		slog.Error("kafka publish failed", "account", accountID, "event", ev.Type, "err", err)
	}
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ invest.Notifier = (*Publisher)(nil)
