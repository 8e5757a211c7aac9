package adapters

import (
	"context"
	"errors"
	"time"

	"github.com/dejobratic/storefront/internal/database"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// ObservableRepository wraps an OrderRepository with a span and a duration sample per call.
type ObservableRepository struct {
	repo    ports.OrderRepository
	metrics *database.Metrics
}

func NewObservableRepository(repo ports.OrderRepository, metrics *database.Metrics) *ObservableRepository {
	return &ObservableRepository{
		repo:    repo,
		metrics: metrics,
	}
}

func (r *ObservableRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return observe(ctx, r.metrics, "OrderRepository.GetByID", "get_order_by_id",
		[]attribute.KeyValue{attribute.String("order.id", id)},
		func(ctx context.Context) (*domain.Order, error) {
			return r.repo.GetByID(ctx, id)
		})
}

func (r *ObservableRepository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	attrs := []attribute.KeyValue{
		attribute.Int("page", filter.Page),
		attribute.Int("page_size", filter.PageSize),
	}
	if filter.Status != nil {
		attrs = append(attrs, attribute.String("filter.status", string(*filter.Status)))
	}
	if filter.UserID != nil {
		attrs = append(attrs, attribute.String("filter.user_id", *filter.UserID))
	}

	return observe(ctx, r.metrics, "OrderRepository.List", "list_orders", attrs, func(ctx context.Context) ([]domain.Order, error) {
		return r.repo.List(ctx, filter)
	})
}

func (r *ObservableRepository) ListAdvanceable(ctx context.Context, filter ports.AdvanceableFilter) ([]domain.Order, error) {
	statuses := make([]string, len(filter.Statuses))
	for i, status := range filter.Statuses {
		statuses[i] = string(status)
	}
	attrs := []attribute.KeyValue{
		attribute.StringSlice("filter.statuses", statuses),
		attribute.String("filter.cutoff", filter.Cutoff.Format(time.RFC3339)),
		attribute.Int("filter.limit", filter.Limit),
	}

	return observe(ctx, r.metrics, "OrderRepository.ListAdvanceable", "list_advanceable_orders", attrs, func(ctx context.Context) ([]domain.Order, error) {
		return r.repo.ListAdvanceable(ctx, filter)
	})
}

func (r *ObservableRepository) History(ctx context.Context, orderID string) ([]domain.StatusHistoryEntry, error) {
	return observe(ctx, r.metrics, "OrderRepository.History", "order_history",
		[]attribute.KeyValue{attribute.String("order.id", orderID)},
		func(ctx context.Context) ([]domain.StatusHistoryEntry, error) {
			return r.repo.History(ctx, orderID)
		})
}

// ObservableUnitOfWork times whole transactions, retries included in the outcome label.
type ObservableUnitOfWork struct {
	uow     ports.UnitOfWork
	metrics *database.Metrics
}

func NewObservableUnitOfWork(uow ports.UnitOfWork, metrics *database.Metrics) *ObservableUnitOfWork {
	return &ObservableUnitOfWork{
		uow:     uow,
		metrics: metrics,
	}
}

func (u *ObservableUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	_, err := observe(ctx, u.metrics, "UnitOfWork.WithinTx", "transaction", nil, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, u.uow.WithinTx(ctx, fn)
	})
	return err
}

func observe[T any](ctx context.Context, metrics *database.Metrics, spanName, operation string, attrs []attribute.KeyValue, call func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := telemetry.StartSpan(ctx, spanName)
	defer span.End()

	telemetry.AddSpanAttributes(span, append(attrs, attribute.String("operation", operation))...)

	start := time.Now()
	result, err := call(ctx)
	outcome := queryOutcome(err)
	metrics.RecordQuery(ctx, operation, time.Since(start), outcome)

	switch outcome {
	case database.OutcomeSuccess, database.OutcomeNotFound:
		telemetry.AddSpanAttributes(span, attribute.String("outcome", outcome))
		telemetry.SetSpanSuccess(span)
	default:
		telemetry.RecordSpanError(span, err)
	}
	return result, err
}

// queryOutcome separates expected business results from storage faults.
func queryOutcome(err error) string {
	switch {
	case err == nil:
		return database.OutcomeSuccess
	case errors.Is(err, domain.ErrNotFound):
		return database.OutcomeNotFound
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrOrderNumberTaken),
		errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrValidation):
		return database.OutcomeConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return database.OutcomeCanceled
	default:
		return database.OutcomeError
	}
}
