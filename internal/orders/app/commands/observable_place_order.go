package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservablePlaceOrderHandler struct {
	handler PlaceOrderHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservablePlaceOrderHandler(handler PlaceOrderHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservablePlaceOrderHandler {
	return &ObservablePlaceOrderHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservablePlaceOrderHandler) Handle(ctx context.Context, cmd PlaceOrderCommand) (*PlacementResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "PlaceOrderCommand.Handle")
	defer span.End()

	start := time.Now()
	outcome := metrics.OutcomeError
	defer func() {
		o.metrics.RecordOrderPlacementDuration(ctx, time.Since(start).Seconds())
		o.metrics.RecordOrderPlaced(ctx, outcome)
	}()

	o.logger.InfoContext(ctx, "placing order",
		"user_id", cmd.UserID,
		"guest", cmd.UserID == "",
		"items", len(cmd.Request.Items),
		"payment_method", string(cmd.Request.PaymentMethod),
	)

	result, err := o.handler.Handle(ctx, cmd)

	if err != nil {
		telemetry.RecordSpanError(span, err)

		var verr *domain.ValidationError
		switch {
		case errors.As(err, &verr):
			outcome = metrics.OutcomeValidation
			o.logger.InfoContext(ctx, "order rejected by validation",
				"problems", len(verr.Problems),
				"user_id", cmd.UserID,
			)
		case errors.Is(err, domain.ErrConflict):
			outcome = metrics.OutcomeConflict
			o.logger.WarnContext(ctx, "order placement conflicted", "error", err)
		default:
			o.logger.ErrorContext(ctx, "failed to place order",
				"error", err,
				"user_id", cmd.UserID,
			)
		}
		return nil, err
	}

	o.metrics.RecordOrderNumberRetries(ctx, result.Attempts-1)

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", result.Order.ID),
		attribute.String("order.number", result.Order.OrderNumber),
		attribute.String("order.total", result.Order.Total.StringFixed(2)),
		attribute.String("order.status", string(result.Order.Status)),
		attribute.Int("order.attempts", result.Attempts),
	)

	o.logger.InfoContext(ctx, "order placed successfully",
		"order_id", result.Order.ID,
		"order_number", result.Order.OrderNumber,
		"total", result.Order.Total.StringFixed(2),
	)

	outcome = metrics.OutcomeSuccess
	telemetry.SetSpanSuccess(span)

	return result, nil
}
