package commands

import (
	"context"
	"log/slog"

	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableTransitionStatusHandler struct {
	handler TransitionStatusHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableTransitionStatusHandler(handler TransitionStatusHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableTransitionStatusHandler {
	return &ObservableTransitionStatusHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableTransitionStatusHandler) Handle(ctx context.Context, cmd TransitionStatusCommand) (*TransitionResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "TransitionStatusCommand.Handle")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", cmd.OrderID),
		attribute.String("order.next_status", string(cmd.Status)),
		attribute.String("transition.trigger", cmd.Trigger),
	)

	result, err := o.handler.Handle(ctx, cmd)
	if err != nil {
		telemetry.RecordSpanError(span, err)
		o.logger.WarnContext(ctx, "order status transition failed",
			"order_id", cmd.OrderID,
			"status", string(cmd.Status),
			"trigger", cmd.Trigger,
			"error", err,
		)
		return nil, err
	}

	if result.Changed {
		o.metrics.RecordStatusTransition(ctx, string(result.Previous), string(result.Order.Status), cmd.Trigger)
		o.logger.InfoContext(ctx, "order status changed",
			"order_id", result.Order.ID,
			"order_number", result.Order.OrderNumber,
			"from", string(result.Previous),
			"to", string(result.Order.Status),
			"points_awarded", result.PointsAwarded,
		)
	}

	telemetry.SetSpanSuccess(span)
	return result, nil
}
