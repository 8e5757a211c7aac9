package queries

import (
	"context"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListOrdersQueryHandler pages through orders, newest first.
type ListOrdersQueryHandler struct {
	repo ports.OrderRepository
}

func NewListOrdersQueryHandler(repo ports.OrderRepository) *ListOrdersQueryHandler {
	return &ListOrdersQueryHandler{repo: repo}
}

func (h *ListOrdersQueryHandler) Handle(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	switch {
	case filter.PageSize <= 0:
		filter.PageSize = defaultPageSize
	case filter.PageSize > maxPageSize:
		filter.PageSize = maxPageSize
	}
	return h.repo.List(ctx, filter)
}

// OrderHistoryQueryHandler returns an order's audit trail, oldest first.
type OrderHistoryQueryHandler struct {
	orders *GetOrderQueryHandler
	repo   ports.OrderRepository
}

func NewOrderHistoryQueryHandler(repo ports.OrderRepository) *OrderHistoryQueryHandler {
	return &OrderHistoryQueryHandler{orders: NewGetOrderQueryHandler(repo), repo: repo}
}

func (h *OrderHistoryQueryHandler) Handle(ctx context.Context, query GetOrderQuery) ([]domain.StatusHistoryEntry, error) {
	if _, err := h.orders.Handle(ctx, query); err != nil {
		return nil, err
	}
	return h.repo.History(ctx, query.OrderID)
}
