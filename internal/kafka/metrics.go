package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics covers the producer side only; the service never consumes.
type Metrics struct {
	publishLatency metric.Float64Histogram
	payloadSize    metric.Int64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.publishLatency, err = meter.Float64Histogram(
		"kafka_producer_latency_seconds",
		metric.WithDescription("Time to hand a message to the brokers, by topic and status"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka_producer_latency histogram: %w", err)
	}

	m.payloadSize, err = meter.Int64Histogram(
		"kafka_message_size_bytes",
		metric.WithDescription("Size of published message values"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka_message_size histogram: %w", err)
	}

	return m, nil
}

// RecordPublish samples one publish attempt. Deadline errors are labelled as timeouts.
func (m *Metrics) RecordPublish(ctx context.Context, topic string, duration time.Duration, err error) {
	m.publishLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("status", publishStatus(err)),
	))
}

func (m *Metrics) RecordPayload(ctx context.Context, topic string, size int) {
	m.payloadSize.Record(ctx, int64(size), metric.WithAttributes(
		attribute.String("topic", topic),
	))
}

func publishStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
