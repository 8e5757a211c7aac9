package commands

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/shopspring/decimal"
)

func TestPlaceOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("persists the order, history, stock and notification", func(t *testing.T) {
		store := newSeededStore()
		notifier := &recordingNotifier{}
		handler := newTestPlaceOrderHandler(t, store, nil, notifier, 0)

		result, err := handler.Handle(ctx, PlaceOrderCommand{Request: guestRequest(3)})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if result.Order.OrderNumber != "ORD202610180001" {
			t.Errorf("expected first number of the day, got %q", result.Order.OrderNumber)
		}
		if result.Attempts != 1 {
			t.Errorf("expected 1 attempt, got %d", result.Attempts)
		}
		if result.Order.CustomerName != "Asha Rao" {
			t.Errorf("expected guest name as customer name, got %q", result.Order.CustomerName)
		}
		if !result.Order.TotalsConsistent() {
			t.Error("expected stored totals to be consistent")
		}

		if got := mustStock(t, store, "rice"); got != 7 {
			t.Errorf("expected stock 7, got %d", got)
		}

		history, err := store.History(ctx, result.Order.ID)
		if err != nil {
			t.Fatalf("History() failed: %v", err)
		}
		if len(history) != 1 || history[0].Status != domain.StatusPending || history[0].Note != "Order placed" {
			t.Errorf("unexpected history %+v", history)
		}

		sent := notifier.notifications()
		if len(sent) != 1 {
			t.Fatalf("expected 1 notification, got %d", len(sent))
		}
		if sent[0].Kind != ports.NotificationOrderConfirmed || sent[0].Email != "asha@example.com" {
			t.Errorf("unexpected notification %+v", sent[0])
		}
	})

	t.Run("registered user gets contact from profile and cart cleared", func(t *testing.T) {
		store := newSeededStore()
		store.SetCart("u1", []domain.CartLineItem{{ProductID: "rice", Quantity: 1}})
		notifier := &recordingNotifier{}
		handler := newTestPlaceOrderHandler(t, store, nil, notifier, 0)

		req := guestRequest(1)
		req.Guest = GuestContact{}

		result, err := handler.Handle(ctx, PlaceOrderCommand{Request: req, UserID: "u1"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Order.CustomerName != "Ravi Kumar" {
			t.Errorf("expected registered name, got %q", result.Order.CustomerName)
		}
		if len(store.Cart("u1")) != 0 {
			t.Error("expected cart to be cleared")
		}
		if sent := notifier.notifications(); sent[0].Phone != "9000000001" {
			t.Errorf("expected profile phone on notification, got %q", sent[0].Phone)
		}
	})

	t.Run("unknown registered user is not found", func(t *testing.T) {
		store := newSeededStore()
		handler := newTestPlaceOrderHandler(t, store, nil, &recordingNotifier{}, 0)

		_, err := handler.Handle(ctx, PlaceOrderCommand{Request: guestRequest(1), UserID: "ghost"})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
		if got := mustStock(t, store, "rice"); got != 10 {
			t.Errorf("expected stock untouched, got %d", got)
		}
	})

	t.Run("validation failure writes nothing", func(t *testing.T) {
		store := newSeededStore()
		notifier := &recordingNotifier{}
		handler := newTestPlaceOrderHandler(t, store, nil, notifier, 0)

		req := guestRequest(1)
		req.Items[0].UnitPrice = decimal.NewFromInt(450)

		_, err := handler.Handle(ctx, PlaceOrderCommand{Request: req})
		if codes := problemCodes(t, err); !codes[domain.CodePriceMismatch] {
			t.Fatalf("expected price mismatch, got %v", codes)
		}
		orders, _ := store.List(ctx, ports.ListFilter{})
		if len(orders) != 0 || len(notifier.notifications()) != 0 {
			t.Errorf("expected no order and no notification, got %d orders", len(orders))
		}
	})

	t.Run("stock shortfall is a conflict naming the product", func(t *testing.T) {
		store := newSeededStore()
		store.AddProduct(domain.Product{ID: "p1", Name: "Toor Dal 1kg", Price: decimal.NewFromInt(100), StockQuantity: 1, Active: true})
		notifier := &recordingNotifier{}
		handler := newTestPlaceOrderHandler(t, store, nil, notifier, 0)

		req := guestRequest(1)
		req.Items = []domain.CartLineItem{{ProductID: "p1", Quantity: 2, UnitPrice: decimal.NewFromInt(100)}}
		req.Total = decPtr("200")

		_, err := handler.Handle(ctx, PlaceOrderCommand{Request: req})
		var conflict *domain.ConflictError
		if !errors.As(err, &conflict) || !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("expected *domain.ConflictError, got %T: %v", err, err)
		}
		if conflict.ProductID != "p1" {
			t.Errorf("expected conflict on p1, got %q", conflict.ProductID)
		}
		if errors.Is(err, domain.ErrValidation) {
			t.Error("expected the conflict not to match ErrValidation")
		}
		if got := mustStock(t, store, "p1"); got != 1 {
			t.Errorf("expected stock 1, got %d", got)
		}
		orders, _ := store.List(ctx, ports.ListFilter{})
		if len(orders) != 0 || len(notifier.notifications()) != 0 {
			t.Errorf("expected no order and no notification, got %d orders", len(orders))
		}
	})

	t.Run("stock taken after validation rolls back every write", func(t *testing.T) {
		store := newSeededStore()
		validator, err := NewOrderValidator(OrderValidatorDeps{
			Catalog:   staleCatalog{CatalogGateway: store},
			Coupons:   store,
			Delivery:  store,
			Addresses: store,
			Pricing:   domain.DefaultPricingPolicy(),
			Clock:     fixedClock,
		})
		if err != nil {
			t.Fatalf("NewOrderValidator() failed: %v", err)
		}
		notifier := &recordingNotifier{}
		handler := newTestPlaceOrderHandlerWithValidator(t, store, validator, nil, notifier, 0)
		handler.newID = func() string { return "order-1" }

		req := guestRequest(1)
		req.Items = append(req.Items, domain.CartLineItem{ProductID: "ghee", Quantity: 3, UnitPrice: decimal.RequireFromString("649.50")})
		req.Total = decPtr("2448.50")

		_, err = handler.Handle(ctx, PlaceOrderCommand{Request: req})
		var conflict *domain.ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("expected *domain.ConflictError, got %T: %v", err, err)
		}
		if conflict.ProductID != "ghee" {
			t.Errorf("expected conflict on ghee, got %q", conflict.ProductID)
		}

		if got := mustStock(t, store, "rice"); got != 10 {
			t.Errorf("expected rice decrement rolled back to 10, got %d", got)
		}
		if got := mustStock(t, store, "ghee"); got != 2 {
			t.Errorf("expected ghee stock 2, got %d", got)
		}
		orders, _ := store.List(ctx, ports.ListFilter{})
		if len(orders) != 0 {
			t.Errorf("expected no orders, got %d", len(orders))
		}
		history, _ := store.History(ctx, "order-1")
		if len(history) != 0 {
			t.Errorf("expected no history entries, got %d", len(history))
		}
		if len(notifier.notifications()) != 0 {
			t.Error("expected no notification for a rolled back placement")
		}
	})

	t.Run("sequence continues within the day", func(t *testing.T) {
		store := newSeededStore()
		handler := newTestPlaceOrderHandler(t, store, nil, &recordingNotifier{}, 0)

		var numbers []string
		for i := 0; i < 3; i++ {
			result, err := handler.Handle(ctx, PlaceOrderCommand{Request: guestRequest(1)})
			if err != nil {
				t.Fatalf("placement %d failed: %v", i, err)
			}
			numbers = append(numbers, result.Order.OrderNumber)
		}
		want := "ORD202610180001,ORD202610180002,ORD202610180003"
		if got := strings.Join(numbers, ","); got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	})

	t.Run("coupon usage limit is enforced at commit", func(t *testing.T) {
		store := newSeededStore()
		handler := newTestPlaceOrderHandler(t, store, nil, &recordingNotifier{}, 0)

		req := guestRequest(1)
		req.CouponCode = "once"
		req.Total = decPtr("450")

		if _, err := handler.Handle(ctx, PlaceOrderCommand{Request: req}); err != nil {
			t.Fatalf("first redemption failed: %v", err)
		}

		_, err := handler.Handle(ctx, PlaceOrderCommand{Request: req})
		if codes := problemCodes(t, err); !codes[domain.CodeInvalidCoupon] {
			t.Fatalf("expected exhausted coupon to be rejected, got %v", codes)
		}
		if got := mustStock(t, store, "rice"); got != 9 {
			t.Errorf("expected only the first order to take stock, got %d", got)
		}
	})
}

func TestPlaceOrderNumberCollisions(t *testing.T) {
	ctx := context.Background()

	t.Run("retries after a collision and rolls back the failed attempt", func(t *testing.T) {
		store := newSeededStore()
		uow := &collidingUnitOfWork{UnitOfWork: store, failures: 2}
		handler := newTestPlaceOrderHandler(t, store, uow, &recordingNotifier{}, 5)

		result, err := handler.Handle(ctx, PlaceOrderCommand{Request: guestRequest(2)})
		if err != nil {
			t.Fatalf("expected success after retries, got %v", err)
		}
		if result.Attempts != 3 {
			t.Errorf("expected 3 attempts, got %d", result.Attempts)
		}
		if got := mustStock(t, store, "rice"); got != 8 {
			t.Errorf("expected stock decremented once, got %d", got)
		}
		orders, _ := store.List(ctx, ports.ListFilter{})
		if len(orders) != 1 {
			t.Errorf("expected exactly 1 order, got %d", len(orders))
		}
	})

	t.Run("gives up after the attempt budget", func(t *testing.T) {
		store := newSeededStore()
		uow := &collidingUnitOfWork{UnitOfWork: store, failures: 100}
		notifier := &recordingNotifier{}
		handler := newTestPlaceOrderHandler(t, store, uow, notifier, 3)

		_, err := handler.Handle(ctx, PlaceOrderCommand{Request: guestRequest(1)})
		if !errors.Is(err, domain.ErrConflict) || !errors.Is(err, domain.ErrOrderNumberTaken) {
			t.Fatalf("expected conflict wrapping ErrOrderNumberTaken, got %v", err)
		}
		if uow.calls != 3 {
			t.Errorf("expected 3 transactions, got %d", uow.calls)
		}
		if got := mustStock(t, store, "rice"); got != 10 {
			t.Errorf("expected stock untouched, got %d", got)
		}
		if len(notifier.notifications()) != 0 {
			t.Error("expected no notification for a failed placement")
		}
	})
}

func TestPlaceOrderConcurrency(t *testing.T) {
	ctx := context.Background()

	t.Run("order numbers stay unique under concurrent placement", func(t *testing.T) {
		const placements = 1000

		store := newSeededStore()
		store.AddProduct(domain.Product{ID: "rice", Name: "Basmati Rice 5kg", Price: decimal.NewFromInt(500), StockQuantity: placements, Active: true})
		handler := newTestPlaceOrderHandler(t, store, nil, &recordingNotifier{}, 0)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			numbers = make(map[string]struct{}, placements)
			errs    []error
		)
		for i := 0; i < placements; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				result, err := handler.Handle(ctx, PlaceOrderCommand{Request: guestRequest(1)})
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				numbers[result.Order.OrderNumber] = struct{}{}
			}()
		}
		wg.Wait()

		if len(errs) != 0 {
			t.Fatalf("expected all placements to succeed, first error: %v", errs[0])
		}
		if len(numbers) != placements {
			t.Errorf("expected %d unique numbers, got %d", placements, len(numbers))
		}
		if got := mustStock(t, store, "rice"); got != 0 {
			t.Errorf("expected stock 0, got %d", got)
		}
	})

	t.Run("low stock is never oversold", func(t *testing.T) {
		const buyers = 20

		store := newSeededStore()
		store.AddProduct(domain.Product{ID: "rice", Name: "Basmati Rice 5kg", Price: decimal.NewFromInt(500), StockQuantity: 5, Active: true})
		handler := newTestPlaceOrderHandler(t, store, nil, &recordingNotifier{}, 0)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := 0; i < buyers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := handler.Handle(ctx, PlaceOrderCommand{Request: guestRequest(1)})
				mu.Lock()
				defer mu.Unlock()
				var conflict *domain.ConflictError
				switch {
				case err == nil:
					succeeded++
				case errors.As(err, &conflict) && conflict.ProductID == "rice":
				default:
					t.Errorf("expected success or a stock conflict on rice, got %T: %v", err, err)
				}
			}()
		}
		wg.Wait()

		if succeeded != 5 {
			t.Errorf("expected 5 successful orders, got %d", succeeded)
		}
		if got := mustStock(t, store, "rice"); got != 0 {
			t.Errorf("expected stock 0, got %d", got)
		}
	})
}

func TestNewPlaceOrderCommandHandlerRequiresDeps(t *testing.T) {
	if _, err := NewPlaceOrderCommandHandler(PlaceOrderCommandHandlerDeps{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
