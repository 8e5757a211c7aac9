package ports

import (
	"context"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
)

// OrderRepository exposes the read side of order persistence.
type OrderRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)
	ListAdvanceable(ctx context.Context, filter AdvanceableFilter) ([]domain.Order, error)
	History(ctx context.Context, orderID string) ([]domain.StatusHistoryEntry, error)
}

// ListFilter narrows list queries by status, owner and pagination.
type ListFilter struct {
	Status   *domain.OrderStatus
	UserID   *string
	Page     int
	PageSize int
}

// AdvanceableFilter selects orders that have sat in one of Statuses since before Cutoff.
type AdvanceableFilter struct {
	Cutoff   time.Time
	Statuses []domain.OrderStatus
	Limit    int
}

// ErrNotFound is returned when the requested entity does not exist.
var ErrNotFound = domain.ErrNotFound
