package kafka

import (
	"context"
	"log/slog"
)

// NoopProducer logs messages without sending them to Kafka. Useful for local dev before wiring Kafka.
type NoopProducer struct {
	logger *slog.Logger
}

// NewNoopProducer returns a new no-op publisher.
func NewNoopProducer(logger *slog.Logger) *NoopProducer {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopProducer{logger: logger}
}

func (n *NoopProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	n.logger.DebugContext(ctx, "kafka::publish", "topic", topic, "key", string(key), "bytes", len(value))
	return nil
}

func (n *NoopProducer) Close() error {
	return nil
}
