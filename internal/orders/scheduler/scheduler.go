package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/app/queries"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// ErrSweepInProgress is returned when a sweep is requested while another one is running.
var ErrSweepInProgress = errors.New("status sweep already in progress")

// Orders is what the scheduler needs from the order service.
type Orders interface {
	ListAdvanceableOrders(ctx context.Context, query queries.ListAdvanceableQuery) ([]domain.Order, error)
	TransitionStatus(ctx context.Context, cmd commands.TransitionStatusCommand) (*commands.TransitionResult, error)
}

type Config struct {
	Interval time.Duration
	MinAge   time.Duration
	Statuses []domain.OrderStatus
	Limit    int
}

// SweepResult summarises one pass over the advanceable orders.
type SweepResult struct {
	Considered int `json:"considered"`
	Advanced   int `json:"advanced"`
	Failed     int `json:"failed"`
}

// Scheduler periodically moves orders one step along the fulfilment sequence.
// Sweeps never overlap; each order is claimed at the status it was listed with.
type Scheduler struct {
	orders  Orders
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	running atomic.Bool
}

func New(orders Orders, cfg Config, logger *slog.Logger, metrics *metrics.Metrics) *Scheduler {
	return &Scheduler{
		orders:  orders,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Run sweeps every Interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", s.cfg.Interval)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "status scheduler started",
		"interval", s.cfg.Interval.String(),
		"min_age", s.cfg.MinAge.String(),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "status scheduler stopped")
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
				s.logger.ErrorContext(ctx, "status sweep failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single sweep. It returns ErrSweepInProgress if another sweep is active.
func (s *Scheduler) RunOnce(ctx context.Context) (SweepResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.WarnContext(ctx, "skipping status sweep, previous sweep still running")
		return SweepResult{}, ErrSweepInProgress
	}
	defer s.running.Store(false)

	ctx, span := telemetry.StartSpan(ctx, "Scheduler.RunOnce")
	defer span.End()

	var result SweepResult
	orders, err := s.orders.ListAdvanceableOrders(ctx, queries.ListAdvanceableQuery{
		Statuses: s.cfg.Statuses,
		MinAge:   s.cfg.MinAge,
		Limit:    s.cfg.Limit,
	})
	if err != nil {
		telemetry.RecordSpanError(span, err)
		s.metrics.RecordSchedulerSweep(ctx, false)
		return result, fmt.Errorf("list advanceable orders: %w", err)
	}

	for _, order := range orders {
		if ctx.Err() != nil {
			break
		}
		next, ok := order.Status.Next()
		if !ok {
			continue
		}
		result.Considered++

		_, err := s.orders.TransitionStatus(ctx, commands.TransitionStatusCommand{
			OrderID:        order.ID,
			Status:         next,
			ExpectedStatus: order.Status,
			Note:           fmt.Sprintf("Automatically advanced from %s to %s", order.Status, next),
			Trigger:        commands.TriggerScheduler,
		})
		if err != nil {
			result.Failed++
			s.logger.WarnContext(ctx, "could not advance order",
				"order_id", order.ID,
				"order_number", order.OrderNumber,
				"from", string(order.Status),
				"to", string(next),
				"error", err,
			)
			continue
		}
		result.Advanced++
	}

	s.metrics.RecordSchedulerSweep(ctx, true)
	s.metrics.RecordOrdersAdvanced(ctx, result.Advanced)

	telemetry.AddSpanAttributes(span,
		attribute.Int("sweep.considered", result.Considered),
		attribute.Int("sweep.advanced", result.Advanced),
		attribute.Int("sweep.failed", result.Failed),
	)
	telemetry.SetSpanSuccess(span)

	s.logger.InfoContext(ctx, "status sweep finished",
		"considered", result.Considered,
		"advanced", result.Advanced,
		"failed", result.Failed,
	)

	return result, nil
}
