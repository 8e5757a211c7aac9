package memory

import (
	"context"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/google/uuid"
)

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	product, ok := s.products[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &product, nil
}

func (s *Store) GetCouponByCode(_ context.Context, code string) (*domain.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coupon, ok := s.coupons[domain.NormalizeCouponCode(code)]
	if !ok {
		return nil, nil
	}
	return &coupon, nil
}

func (s *Store) GetDeliveryOption(_ context.Context, id string) (*domain.DeliveryOption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	option, ok := s.delivery[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &option, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	customer, ok := s.customers[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) CreateAddress(_ context.Context, address domain.Address) (*domain.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if address.ID == "" {
		address.ID = uuid.NewString()
	}
	ts := now()
	address.CreatedAt = ts
	address.UpdatedAt = ts
	s.addresses[address.ID] = address
	return &address, nil
}

func (s *Store) GetAddress(_ context.Context, id string) (*domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	address, ok := s.addresses[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &address, nil
}

func (s *Store) ListAddresses(_ context.Context, owner ports.AddressOwner) ([]domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := []domain.Address{}
	for _, address := range s.addresses {
		switch {
		case owner.UserID != "":
			if address.OwnedBy(owner.UserID) {
				result = append(result, address)
			}
		case address.UserID == nil && sameEmail(address.Email, owner.Email):
			result = append(result, address)
		}
	}
	return result, nil
}

func (s *Store) UpdateAddress(_ context.Context, address domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.addresses[address.ID]
	if !ok {
		return ports.ErrNotFound
	}
	address.CreatedAt = existing.CreatedAt
	address.UpdatedAt = now()
	s.addresses[address.ID] = address
	return nil
}

func (s *Store) DeleteAddress(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.addresses[id]; !ok {
		return ports.ErrNotFound
	}
	delete(s.addresses, id)
	return nil
}

func (s *Store) AssignGuestAddresses(_ context.Context, email, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var assigned int64
	for id, address := range s.addresses {
		if address.UserID != nil || !sameEmail(address.Email, email) {
			continue
		}
		owner := userID
		address.UserID = &owner
		address.UpdatedAt = now()
		s.addresses[id] = address
		assigned++
	}
	return assigned, nil
}
