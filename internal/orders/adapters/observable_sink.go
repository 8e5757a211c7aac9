package adapters

import (
	"context"
	"time"

	"github.com/dejobratic/storefront/internal/kafka"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableSink struct {
	sink    ports.NotificationSink
	metrics *kafka.Metrics
}

func NewObservableSink(sink ports.NotificationSink, metrics *kafka.Metrics) *ObservableSink {
	return &ObservableSink{
		sink:    sink,
		metrics: metrics,
	}
}

func (s *ObservableSink) Notify(ctx context.Context, n ports.Notification) error {
	ctx, span := telemetry.StartSpan(ctx, "NotificationSink.Notify")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", n.OrderID),
		attribute.String("order.number", n.OrderNumber),
		attribute.String("event.type", string(n.Kind)),
		attribute.String("topic", string(n.Kind)),
	)

	start := time.Now()
	err := s.sink.Notify(ctx, n)
	s.metrics.RecordPublish(ctx, string(n.Kind), time.Since(start), err)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}
