package kafka

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type mockWriter struct {
	writeFn  func(ctx context.Context, msgs ...kafkago.Message) error
	messages []kafkago.Message
	closed   bool
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	if m.writeFn != nil {
		if err := m.writeFn(ctx, msgs...); err != nil {
			return err
		}
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func TestProducerPublish(t *testing.T) {
	t.Run("writes keyed message to the requested topic", func(t *testing.T) {
		writer := &mockWriter{}
		producer := NewProducer(writer)
		fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		producer.clock = func() time.Time { return fixed }

		err := producer.Publish(context.Background(), "order.confirmed", []byte("order-1"), []byte(`{"id":"order-1"}`))
		if err != nil {
			t.Fatalf("Publish() failed: %v", err)
		}

		if len(writer.messages) != 1 {
			t.Fatalf("Expected 1 message, got %d", len(writer.messages))
		}
		msg := writer.messages[0]
		if msg.Topic != "order.confirmed" {
			t.Errorf("Expected topic order.confirmed, got %s", msg.Topic)
		}
		if !bytes.Equal(msg.Key, []byte("order-1")) {
			t.Errorf("Expected key order-1, got %s", msg.Key)
		}
		if !msg.Time.Equal(fixed) {
			t.Errorf("Expected time %v, got %v", fixed, msg.Time)
		}
	})

	t.Run("wraps writer errors with the topic", func(t *testing.T) {
		writer := &mockWriter{writeFn: func(context.Context, ...kafkago.Message) error {
			return errors.New("broker down")
		}}
		producer := NewProducer(writer)

		err := producer.Publish(context.Background(), "order.status_changed", nil, []byte("{}"))
		if err == nil {
			t.Fatal("Expected error")
		}
		if err.Error() != "kafka publish to order.status_changed: broker down" {
			t.Errorf("Unexpected error message: %v", err)
		}
	})

	t.Run("rejects empty topic", func(t *testing.T) {
		producer := NewProducer(&mockWriter{})
		if err := producer.Publish(context.Background(), "", nil, nil); err == nil {
			t.Fatal("Expected error for empty topic")
		}
	})

	t.Run("records payload size when metrics are attached", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		metrics, err := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
		if err != nil {
			t.Fatalf("NewMetrics() failed: %v", err)
		}
		producer := NewProducer(&mockWriter{}, WithMetrics(metrics))

		if err := producer.Publish(context.Background(), "order.confirmed", nil, []byte("12345")); err != nil {
			t.Fatalf("Publish() failed: %v", err)
		}

		var rm metricdata.ResourceMetrics
		if err := reader.Collect(context.Background(), &rm); err != nil {
			t.Fatalf("Failed to collect metrics: %v", err)
		}
		if len(rm.ScopeMetrics) != 1 || len(rm.ScopeMetrics[0].Metrics) != 1 {
			t.Fatalf("Expected only the payload histogram, got %+v", rm.ScopeMetrics)
		}
		hist := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Histogram[int64])
		if hist.DataPoints[0].Sum != 5 {
			t.Errorf("Expected 5 bytes, got %d", hist.DataPoints[0].Sum)
		}
	})

	t.Run("close closes the writer", func(t *testing.T) {
		writer := &mockWriter{}
		if err := NewProducer(writer).Close(); err != nil {
			t.Fatalf("Close() failed: %v", err)
		}
		if !writer.closed {
			t.Error("Expected writer to be closed")
		}
	})
}
