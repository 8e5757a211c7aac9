package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Query outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeNotFound = "not_found"
	OutcomeConflict = "conflict"
	OutcomeCanceled = "canceled"
	OutcomeError    = "error"
)

type Metrics struct {
	queryDuration metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.queryDuration, err = meter.Float64Histogram(
		"db_query_duration_seconds",
		metric.WithDescription("Duration of repository queries and transactions by outcome"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_query_duration histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordQuery(ctx context.Context, operation string, duration time.Duration, outcome string) {
	m.queryDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

// PoolStatter is satisfied by *pgxpool.Pool.
type PoolStatter interface {
	Stat() *pgxpool.Stat
}

// RegisterPoolStats publishes connection pool gauges, sampled on every collection.
func RegisterPoolStats(meter metric.Meter, pool PoolStatter) (metric.Registration, error) {
	connections, err := meter.Int64ObservableGauge(
		"db_pool_connections",
		metric.WithDescription("Connections in the pool by state"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_pool_connections gauge: %w", err)
	}

	maxConnections, err := meter.Int64ObservableGauge(
		"db_pool_max_connections",
		metric.WithDescription("Configured pool size"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_pool_max_connections gauge: %w", err)
	}

	emptyAcquires, err := meter.Int64ObservableCounter(
		"db_pool_empty_acquires_total",
		metric.WithDescription("Acquires that had to wait because the pool was empty"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_pool_empty_acquires_total counter: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stat := pool.Stat()
		o.ObserveInt64(connections, int64(stat.AcquiredConns()), metric.WithAttributes(attribute.String("state", "acquired")))
		o.ObserveInt64(connections, int64(stat.IdleConns()), metric.WithAttributes(attribute.String("state", "idle")))
		o.ObserveInt64(connections, int64(stat.ConstructingConns()), metric.WithAttributes(attribute.String("state", "constructing")))
		o.ObserveInt64(maxConnections, int64(stat.MaxConns()))
		o.ObserveInt64(emptyAcquires, stat.EmptyAcquireCount())
		return nil
	}, connections, maxConnections, emptyAcquires)
}
