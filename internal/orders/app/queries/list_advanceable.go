package queries

import (
	"context"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// ListAdvanceableQuery selects orders in one of Statuses whose last change is before Cutoff.
// A zero Cutoff is derived as now minus MinAge.
type ListAdvanceableQuery struct {
	Statuses []domain.OrderStatus
	Cutoff   time.Time
	MinAge   time.Duration
	Limit    int
}

type ListAdvanceableQueryHandler struct {
	repo  ports.OrderRepository
	clock func() time.Time
}

func NewListAdvanceableQueryHandler(repo ports.OrderRepository, clock func() time.Time) *ListAdvanceableQueryHandler {
	if clock == nil {
		clock = time.Now
	}
	return &ListAdvanceableQueryHandler{repo: repo, clock: clock}
}

func (h *ListAdvanceableQueryHandler) Handle(ctx context.Context, query ListAdvanceableQuery) ([]domain.Order, error) {
	statuses := make([]domain.OrderStatus, 0, len(query.Statuses))
	for _, status := range query.Statuses {
		if _, ok := status.Next(); ok {
			statuses = append(statuses, status)
		}
	}
	if len(statuses) == 0 {
		return nil, nil
	}

	cutoff := query.Cutoff.UTC()
	if query.Cutoff.IsZero() {
		cutoff = h.clock().UTC().Add(-query.MinAge)
	}

	return h.repo.ListAdvanceable(ctx, ports.AdvanceableFilter{
		Cutoff:   cutoff,
		Statuses: statuses,
		Limit:    query.Limit,
	})
}
