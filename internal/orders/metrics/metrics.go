package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome labels for order placement.
const (
	OutcomeSuccess    = "success"
	OutcomeValidation = "validation_error"
	OutcomeConflict   = "conflict"
	OutcomeError      = "error"
)

type Metrics struct {
	ordersPlacedTotal      metric.Int64Counter
	orderPlacementDuration metric.Float64Histogram
	orderNumberRetries     metric.Int64Counter
	statusTransitions      metric.Int64Counter
	schedulerSweeps        metric.Int64Counter
	schedulerAdvanced      metric.Int64Counter
	notificationsDropped   metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.ordersPlacedTotal, err = meter.Int64Counter(
		"orders_placed_total",
		metric.WithDescription("Total number of order placement attempts by outcome"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create orders_placed_total counter: %w", err)
	}

	m.orderPlacementDuration, err = meter.Float64Histogram(
		"order_placement_duration_seconds",
		metric.WithDescription("Duration of order placement including validation"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_placement_duration histogram: %w", err)
	}

	m.orderNumberRetries, err = meter.Int64Counter(
		"order_number_retries_total",
		metric.WithDescription("Placement transactions retried after an order number collision"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_number_retries_total counter: %w", err)
	}

	m.statusTransitions, err = meter.Int64Counter(
		"order_status_transitions_total",
		metric.WithDescription("Committed order status transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_status_transitions_total counter: %w", err)
	}

	m.schedulerSweeps, err = meter.Int64Counter(
		"scheduler_sweeps_total",
		metric.WithDescription("Status progression sweeps by result"),
		metric.WithUnit("{sweep}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler_sweeps_total counter: %w", err)
	}

	m.schedulerAdvanced, err = meter.Int64Counter(
		"scheduler_orders_advanced_total",
		metric.WithDescription("Orders moved forward by the status progression scheduler"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler_orders_advanced_total counter: %w", err)
	}

	m.notificationsDropped, err = meter.Int64Counter(
		"notifications_dropped_total",
		metric.WithDescription("Notifications discarded because the queue was full"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create notifications_dropped_total counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordOrderPlaced(ctx context.Context, outcome string) {
	m.ordersPlacedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordOrderPlacementDuration(ctx context.Context, durationSeconds float64) {
	m.orderPlacementDuration.Record(ctx, durationSeconds)
}

func (m *Metrics) RecordOrderNumberRetries(ctx context.Context, retries int) {
	if retries <= 0 {
		return
	}
	m.orderNumberRetries.Add(ctx, int64(retries))
}

func (m *Metrics) RecordStatusTransition(ctx context.Context, from, to, trigger string) {
	m.statusTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
		attribute.String("trigger", trigger),
	))
}

func (m *Metrics) RecordSchedulerSweep(ctx context.Context, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.schedulerSweeps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordOrdersAdvanced(ctx context.Context, count int) {
	m.schedulerAdvanced.Add(ctx, int64(count))
}

func (m *Metrics) RecordNotificationDropped(ctx context.Context, kind string) {
	m.notificationsDropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
	))
}
