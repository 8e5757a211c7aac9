package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// GetByID fetches a single order by identifier.
func (s *Store) GetByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	clone := cloneOrder(order)
	return &clone, nil
}

// List returns orders respecting the provided filter, newest first. Pagination is 1-based.
func (s *Store) List(_ context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Order
	for _, order := range s.orders {
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		if filter.UserID != nil && !order.OwnedBy(*filter.UserID) {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	start := (page - 1) * pageSize
	if start >= len(result) {
		return []domain.Order{}, nil
	}
	end := min(start+pageSize, len(result))

	return result[start:end], nil
}

// ListAdvanceable returns orders in one of the filter's statuses whose last change
// happened before the cutoff, oldest first.
func (s *Store) ListAdvanceable(_ context.Context, filter ports.AdvanceableFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Order
	for _, order := range s.orders {
		if !slices.Contains(filter.Statuses, order.Status) {
			continue
		}
		if order.LastStatusChange().After(filter.Cutoff) {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].LastStatusChange().Before(result[j].LastStatusChange())
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// History returns the audit trail for an order in insertion order.
func (s *Store) History(_ context.Context, orderID string) ([]domain.StatusHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.StatusHistoryEntry{}, s.history[orderID]...), nil
}
