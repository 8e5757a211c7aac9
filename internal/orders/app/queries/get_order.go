package queries

import (
	"context"
	"errors"
	"strings"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// GetOrderQuery represents a request to retrieve an order by its ID.
type GetOrderQuery struct {
	OrderID string
	// RequesterID hides orders owned by someone else. Empty skips the check.
	RequesterID string
}

// GetOrderQueryHandler executes GetOrderQuery and returns the order if found.
type GetOrderQueryHandler struct {
	repo ports.OrderRepository
}

// NewGetOrderQueryHandler constructs a GetOrderQueryHandler.
func NewGetOrderQueryHandler(repo ports.OrderRepository) *GetOrderQueryHandler {
	return &GetOrderQueryHandler{repo: repo}
}

// Handle executes the query and retrieves the order.
func (h *GetOrderQueryHandler) Handle(ctx context.Context, query GetOrderQuery) (*domain.Order, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	order, err := h.repo.GetByID(ctx, query.OrderID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, &domain.NotFoundError{Resource: "order", ID: query.OrderID}
		}
		return nil, err
	}

	if query.RequesterID != "" && !order.OwnedBy(query.RequesterID) {
		return nil, &domain.NotFoundError{Resource: "order", ID: query.OrderID}
	}

	return order, nil
}

// Validate ensures the query has valid parameters.
func (q GetOrderQuery) Validate() error {
	if strings.TrimSpace(q.OrderID) == "" {
		return &domain.ValidationError{Problems: []domain.Problem{{Field: "order_id", Code: domain.CodeRequired, Message: "order_id is required"}}}
	}
	return nil
}
