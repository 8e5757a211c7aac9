package commands

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dejobratic/storefront/internal/orders/adapters/memory"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2026, time.October, 18, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []ports.Notification
}

func (n *recordingNotifier) Enqueue(_ context.Context, notification ports.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
}

func (n *recordingNotifier) notifications() []ports.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ports.Notification(nil), n.sent...)
}

// collidingUnitOfWork runs each transaction for real and then fails the first failures
// commits with ErrOrderNumberTaken, forcing a rollback.
type collidingUnitOfWork struct {
	ports.UnitOfWork
	mu       sync.Mutex
	failures int
	calls    int
}

func (c *collidingUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	c.mu.Lock()
	c.calls++
	collide := c.failures > 0
	if collide {
		c.failures--
	}
	c.mu.Unlock()

	return c.UnitOfWork.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if collide {
			return domain.ErrOrderNumberTaken
		}
		return nil
	})
}

// staleCatalog reports ample stock so validation passes and only the conditional decrement
// at commit can notice the shortfall.
type staleCatalog struct {
	ports.CatalogGateway
}

func (c staleCatalog) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	product, err := c.CatalogGateway.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	product.StockQuantity = 1000
	return product, nil
}

func newSeededStore() *memory.Store {
	store := memory.NewStore()
	store.AddProduct(domain.Product{ID: "rice", Name: "Basmati Rice 5kg", Price: decimal.NewFromInt(500), StockQuantity: 10, Active: true})
	store.AddProduct(domain.Product{ID: "ghee", Name: "Cow Ghee 1L", Price: decimal.RequireFromString("649.50"), StockQuantity: 2, Active: true})
	store.AddProduct(domain.Product{ID: "retired", Name: "Old Stock", Price: decimal.NewFromInt(10), StockQuantity: 100, Active: false})
	store.AddDeliveryOption(domain.DeliveryOption{ID: "standard", Name: "Standard", Charge: decimal.NewFromInt(40), EstimatedDays: 3, Active: true})
	store.AddDeliveryOption(domain.DeliveryOption{ID: "drone", Name: "Drone", Charge: decimal.NewFromInt(400), Active: false})
	store.AddCustomer(domain.Customer{ID: "u1", Name: "Ravi Kumar", Email: "ravi@example.com", Phone: "9000000001"})
	store.AddCoupon(domain.Coupon{Code: "SAVE10", DiscountType: domain.DiscountPercentage, Value: decimal.NewFromInt(10), Active: true})
	limit := 1
	store.AddCoupon(domain.Coupon{Code: "ONCE", DiscountType: domain.DiscountFixed, Value: decimal.NewFromInt(50), Active: true, UsageLimit: &limit})
	return store
}

func newTestValidator(t *testing.T, store *memory.Store) *OrderValidator {
	t.Helper()
	validator, err := NewOrderValidator(OrderValidatorDeps{
		Catalog:   store,
		Coupons:   store,
		Delivery:  store,
		Addresses: store,
		Pricing:   domain.DefaultPricingPolicy(),
		Clock:     fixedClock,
	})
	if err != nil {
		t.Fatalf("NewOrderValidator() failed: %v", err)
	}
	return validator
}

func newTestPlaceOrderHandler(t *testing.T, store *memory.Store, uow ports.UnitOfWork, notifier ports.Notifier, maxAttempts int) *PlaceOrderCommandHandler {
	t.Helper()
	return newTestPlaceOrderHandlerWithValidator(t, store, newTestValidator(t, store), uow, notifier, maxAttempts)
}

func newTestPlaceOrderHandlerWithValidator(t *testing.T, store *memory.Store, validator *OrderValidator, uow ports.UnitOfWork, notifier ports.Notifier, maxAttempts int) *PlaceOrderCommandHandler {
	t.Helper()
	if uow == nil {
		uow = store
	}
	handler, err := NewPlaceOrderCommandHandler(PlaceOrderCommandHandlerDeps{
		Validator:   validator,
		UnitOfWork:  uow,
		Customers:   store,
		Notifier:    notifier,
		Logger:      discardLogger(),
		Clock:       fixedClock,
		MaxAttempts: maxAttempts,
	})
	if err != nil {
		t.Fatalf("NewPlaceOrderCommandHandler() failed: %v", err)
	}
	return handler
}

func newTestTransitionHandler(t *testing.T, store *memory.Store, notifier ports.Notifier) *TransitionStatusCommandHandler {
	t.Helper()
	handler, err := NewTransitionStatusCommandHandler(TransitionStatusCommandHandlerDeps{
		UnitOfWork:       store,
		Customers:        store,
		Notifier:         notifier,
		Logger:           discardLogger(),
		Clock:            fixedClock,
		CurrencyPerPoint: decimal.NewFromInt(100),
		RestockOnCancel:  true,
	})
	if err != nil {
		t.Fatalf("NewTransitionStatusCommandHandler() failed: %v", err)
	}
	return handler
}

func inlineAddress() *domain.Address {
	return &domain.Address{FullName: "Asha Rao", Line1: "12 MG Road", City: "Pune", PostalCode: "411001", Country: "IN"}
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// guestRequest orders qty bags of rice, paid cash on delivery.
func guestRequest(qty int) OrderRequest {
	total := decimal.NewFromInt(int64(500 * qty))
	return OrderRequest{
		Items:            []domain.CartLineItem{{ProductID: "rice", Quantity: qty, UnitPrice: decimal.NewFromInt(500)}},
		DeliveryOptionID: "standard",
		PaymentMethod:    domain.PaymentCashOnDelivery,
		Address:          inlineAddress(),
		Guest:            GuestContact{Name: " Asha Rao ", Email: "asha@example.com"},
		Total:            &total,
	}
}

func problemCodes(t *testing.T, err error) map[string]bool {
	t.Helper()
	verr, ok := err.(*domain.ValidationError)
	if !ok {
		t.Fatalf("expected *domain.ValidationError, got %T: %v", err, err)
	}
	codes := make(map[string]bool, len(verr.Problems))
	for _, p := range verr.Problems {
		codes[p.Code] = true
	}
	return codes
}

func mustStock(t *testing.T, store *memory.Store, productID string) int {
	t.Helper()
	product, err := store.GetProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("GetProduct(%s) failed: %v", productID, err)
	}
	return product.StockQuantity
}
