package memory

import (
	"context"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

// Store is an in-memory backend for local development and tests. It implements the order
// repository, the catalog gateways and the unit of work. Transactions serialise on a single
// lock and roll back by restoring a snapshot.
type Store struct {
	mu        sync.RWMutex
	orders    map[string]domain.Order
	history   map[string][]domain.StatusHistoryEntry
	products  map[string]domain.Product
	coupons   map[string]domain.Coupon
	delivery  map[string]domain.DeliveryOption
	customers map[string]domain.Customer
	addresses map[string]domain.Address
	carts     map[string][]domain.CartLineItem
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		orders:    make(map[string]domain.Order),
		history:   make(map[string][]domain.StatusHistoryEntry),
		products:  make(map[string]domain.Product),
		coupons:   make(map[string]domain.Coupon),
		delivery:  make(map[string]domain.DeliveryOption),
		customers: make(map[string]domain.Customer),
		addresses: make(map[string]domain.Address),
		carts:     make(map[string][]domain.CartLineItem),
	}
}

type snapshot struct {
	orders    map[string]domain.Order
	history   map[string][]domain.StatusHistoryEntry
	products  map[string]domain.Product
	coupons   map[string]domain.Coupon
	customers map[string]domain.Customer
	carts     map[string][]domain.CartLineItem
}

func (s *Store) snapshot() snapshot {
	history := make(map[string][]domain.StatusHistoryEntry, len(s.history))
	for id, entries := range s.history {
		history[id] = append([]domain.StatusHistoryEntry(nil), entries...)
	}
	return snapshot{
		orders:    maps.Clone(s.orders),
		history:   history,
		products:  maps.Clone(s.products),
		coupons:   maps.Clone(s.coupons),
		customers: maps.Clone(s.customers),
		carts:     maps.Clone(s.carts),
	}
}

func (s *Store) restore(snap snapshot) {
	s.orders = snap.orders
	s.history = snap.history
	s.products = snap.products
	s.coupons = snap.coupons
	s.customers = snap.customers
	s.carts = snap.carts
}

// WithinTx runs fn while holding the store lock and undoes its writes if it fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, &tx{store: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// tx accesses the maps directly. It is only valid inside WithinTx.
type tx struct {
	store *Store
}

func (t *tx) NextOrderSequence(_ context.Context, dayPrefix string) (int, error) {
	highest := 0
	for _, order := range t.store.orders {
		if seq, ok := domain.OrderNumberSequence(dayPrefix, order.OrderNumber); ok && seq > highest {
			highest = seq
		}
	}
	return highest + 1, nil
}

func (t *tx) InsertOrder(_ context.Context, order domain.Order) error {
	for _, existing := range t.store.orders {
		if existing.OrderNumber == order.OrderNumber {
			return domain.ErrOrderNumberTaken
		}
	}
	t.store.orders[order.ID] = cloneOrder(order)
	return nil
}

func (t *tx) GetOrderForUpdate(_ context.Context, id string) (*domain.Order, error) {
	order, ok := t.store.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	clone := cloneOrder(order)
	return &clone, nil
}

func (t *tx) UpdateOrder(_ context.Context, order domain.Order) error {
	if _, ok := t.store.orders[order.ID]; !ok {
		return ports.ErrNotFound
	}
	t.store.orders[order.ID] = cloneOrder(order)
	return nil
}

func (t *tx) AppendHistory(_ context.Context, entry domain.StatusHistoryEntry) error {
	t.store.history[entry.OrderID] = append(t.store.history[entry.OrderID], entry)
	return nil
}

func (t *tx) DecrementStock(_ context.Context, productID string, qty int) (bool, error) {
	product, ok := t.store.products[productID]
	if !ok || !product.Active || product.StockQuantity < qty {
		return false, nil
	}
	product.StockQuantity -= qty
	t.store.products[productID] = product
	return true, nil
}

func (t *tx) IncrementStock(_ context.Context, productID string, qty int) error {
	product, ok := t.store.products[productID]
	if !ok {
		return nil
	}
	product.StockQuantity += qty
	t.store.products[productID] = product
	return nil
}

func (t *tx) IncrementUsage(_ context.Context, code string) (bool, error) {
	key := domain.NormalizeCouponCode(code)
	coupon, ok := t.store.coupons[key]
	if !ok {
		return false, nil
	}
	if coupon.UsageLimit != nil && coupon.UsedCount >= *coupon.UsageLimit {
		return false, nil
	}
	coupon.UsedCount++
	t.store.coupons[key] = coupon
	return true, nil
}

func (t *tx) ClearCart(_ context.Context, userID string) error {
	delete(t.store.carts, userID)
	return nil
}

func (t *tx) AwardPoints(_ context.Context, userID string, points int) error {
	customer, ok := t.store.customers[userID]
	if !ok {
		return ports.ErrNotFound
	}
	customer.LoyaltyPoints += points
	t.store.customers[userID] = customer
	return nil
}

// AddProduct seeds or replaces a product.
func (s *Store) AddProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
}

// AddCoupon seeds or replaces a coupon, keyed case-insensitively by code.
func (s *Store) AddCoupon(coupon domain.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coupon.Code = domain.NormalizeCouponCode(coupon.Code)
	s.coupons[coupon.Code] = coupon
}

// AddDeliveryOption seeds or replaces a delivery option.
func (s *Store) AddDeliveryOption(option domain.DeliveryOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivery[option.ID] = option
}

// AddCustomer seeds or replaces a registered user.
func (s *Store) AddCustomer(customer domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[customer.ID] = customer
}

// SetCart replaces a user's saved cart.
func (s *Store) SetCart(userID string, items []domain.CartLineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[userID] = append([]domain.CartLineItem(nil), items...)
}

// Cart returns a user's saved cart.
func (s *Store) Cart(userID string) []domain.CartLineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CartLineItem(nil), s.carts[userID]...)
}

// PutOrder stores an order as-is, bypassing placement. Useful for fixtures.
func (s *Store) PutOrder(order domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = cloneOrder(order)
}

func cloneOrder(order domain.Order) domain.Order {
	order.Items = append([]domain.LineItem(nil), order.Items...)
	return order
}

func sameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func now() time.Time {
	return time.Now().UTC()
}
