package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	idemmemory "github.com/dejobratic/storefront/internal/idempotency/memory"
	"github.com/dejobratic/storefront/internal/orders/adapters/memory"
	"github.com/dejobratic/storefront/internal/orders/app"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/orders/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric/noop"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []ports.Notification
}

func (n *recordingNotifier) Enqueue(_ context.Context, notification ports.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
}

type stubSweeper struct {
	result scheduler.SweepResult
	err    error
}

func (s stubSweeper) RunOnce(context.Context) (scheduler.SweepResult, error) {
	return s.result, s.err
}

type testAPI struct {
	router   chi.Router
	store    *memory.Store
	notifier *recordingNotifier
}

func newTestAPI(t *testing.T, sweeper Sweeper) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	meter := noop.NewMeterProvider().Meter("test")

	orderMetrics, err := metrics.NewMetrics(meter)
	if err != nil {
		t.Fatalf("metrics.NewMetrics() failed: %v", err)
	}
	httpMetrics, err := NewMetrics(meter)
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	store := memory.NewStore()
	store.AddProduct(domain.Product{ID: "p1", Name: "Basmati Rice 5kg", Price: decimal.NewFromInt(500), StockQuantity: 3, Active: true})
	store.AddDeliveryOption(domain.DeliveryOption{ID: "standard", Name: "Standard", Charge: decimal.NewFromInt(40), EstimatedDays: 3, Active: true})
	store.AddCustomer(domain.Customer{ID: "u1", Name: "Ravi", Email: "ravi@example.com"})

	notifier := &recordingNotifier{}
	service, err := app.NewService(app.ServiceDeps{
		Orders:           store,
		UnitOfWork:       store,
		Catalog:          store,
		Coupons:          store,
		Delivery:         store,
		Customers:        store,
		Addresses:        store,
		Idempotency:      idemmemory.NewStore(time.Hour),
		Notifier:         notifier,
		Logger:           logger,
		Metrics:          orderMetrics,
		Pricing:          domain.DefaultPricingPolicy(),
		CurrencyPerPoint: decimal.NewFromInt(100),
		RestockOnCancel:  true,
	})
	if err != nil {
		t.Fatalf("app.NewService() failed: %v", err)
	}

	router := NewRouter(logger, httpMetrics)
	NewHandler(service, sweeper, logger).Register(router)

	return &testAPI{router: router, store: store, notifier: notifier}
}

func (a *testAPI) do(t *testing.T, method, path, userID string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func guestOrderBody(quantity int, total string) map[string]any {
	return map[string]any{
		"items": []map[string]any{
			{"product_id": "p1", "quantity": quantity, "unit_price": "500"},
		},
		"delivery_option_id": "standard",
		"payment_method":     "cod",
		"address": map[string]any{
			"full_name":   "Asha Rao",
			"line1":       "12 MG Road",
			"city":        "Pune",
			"postal_code": "411001",
		},
		"guest": map[string]any{"name": "Asha Rao", "email": "asha@example.com"},
		"total": total,
	}
}

type placedOrderResponse struct {
	Order   domain.Order   `json:"order"`
	Pricing domain.Pricing `json:"pricing"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestPlaceOrderEndpoint(t *testing.T) {
	t.Run("creates a guest order and reserves stock", func(t *testing.T) {
		api := newTestAPI(t, nil)

		rec := api.do(t, http.MethodPost, "/v1/orders", "", guestOrderBody(2, "1000"))
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}

		resp := decode[placedOrderResponse](t, rec)
		if !strings.HasPrefix(resp.Order.OrderNumber, "ORD") {
			t.Errorf("expected order number with ORD prefix, got %q", resp.Order.OrderNumber)
		}
		if resp.Order.Status != domain.StatusPending {
			t.Errorf("expected pending status, got %s", resp.Order.Status)
		}
		if !resp.Pricing.Total.Equal(decimal.NewFromInt(1000)) {
			t.Errorf("expected total 1000, got %s", resp.Pricing.Total)
		}
		if got := rec.Header().Get("Location"); got != "/v1/orders/"+resp.Order.ID {
			t.Errorf("unexpected Location header %q", got)
		}

		product, err := api.store.GetProduct(context.Background(), "p1")
		if err != nil {
			t.Fatalf("GetProduct() failed: %v", err)
		}
		if product.StockQuantity != 1 {
			t.Errorf("expected stock 1 after placement, got %d", product.StockQuantity)
		}
		if len(api.notifier.sent) != 1 || api.notifier.sent[0].Kind != ports.NotificationOrderConfirmed {
			t.Errorf("expected one confirmation notification, got %+v", api.notifier.sent)
		}
	})

	t.Run("reports every validation problem with 422", func(t *testing.T) {
		api := newTestAPI(t, nil)

		body := guestOrderBody(5, "2500")
		body["payment_method"] = "barter"

		rec := api.do(t, http.MethodPost, "/v1/orders", "", body)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d: %s", rec.Code, rec.Body.String())
		}

		resp := decode[struct {
			Problems []domain.Problem `json:"problems"`
		}](t, rec)

		codes := map[string]bool{}
		for _, p := range resp.Problems {
			codes[p.Code] = true
		}
		for _, want := range []string{domain.CodeOutOfStock, domain.CodeInvalidPayment} {
			if !codes[want] {
				t.Errorf("expected problem %q in %+v", want, resp.Problems)
			}
		}
	})

	t.Run("stock shortfall is a conflict naming the product", func(t *testing.T) {
		api := newTestAPI(t, nil)

		rec := api.do(t, http.MethodPost, "/v1/orders", "", guestOrderBody(4, "2000"))
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decode[map[string]any](t, rec)
		if resp["product_id"] != "p1" {
			t.Errorf("expected product_id p1, got %v", resp["product_id"])
		}

		validated := api.do(t, http.MethodPost, "/v1/orders/validate", "", guestOrderBody(4, "2000"))
		if validated.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected validate to report 422, got %d", validated.Code)
		}
		problems := decode[struct {
			Problems []domain.Problem `json:"problems"`
		}](t, validated).Problems
		if len(problems) != 1 || problems[0].Code != domain.CodeOutOfStock || problems[0].ProductID != "p1" {
			t.Errorf("expected one out_of_stock problem for p1, got %+v", problems)
		}
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		api := newTestAPI(t, nil)

		req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		api.router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("replays the stored response for a reused idempotency key", func(t *testing.T) {
		api := newTestAPI(t, nil)

		first := api.do(t, http.MethodPost, "/v1/orders", "", guestOrderBody(1, "500"), "Idempotency-Key", "checkout-1")
		if first.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", first.Code, first.Body.String())
		}

		second := api.do(t, http.MethodPost, "/v1/orders", "", guestOrderBody(1, "500"), "Idempotency-Key", "checkout-1")
		if second.Code != http.StatusCreated {
			t.Fatalf("expected replayed status 201, got %d", second.Code)
		}
		if second.Header().Get("Idempotent-Replayed") != "true" {
			t.Error("expected Idempotent-Replayed header on second response")
		}
		if first.Body.String() != second.Body.String() {
			t.Errorf("expected identical bodies, got %q and %q", first.Body.String(), second.Body.String())
		}

		product, _ := api.store.GetProduct(context.Background(), "p1")
		if product.StockQuantity != 2 {
			t.Errorf("expected stock decremented once, got %d", product.StockQuantity)
		}
	})
}

func TestPlaceOrderIdempotencyScope(t *testing.T) {
	api := newTestAPI(t, nil)
	api.store.AddCustomer(domain.Customer{ID: "u2", Name: "Meera", Email: "meera@example.com"})

	userBody := guestOrderBody(1, "500")
	delete(userBody, "guest")

	first := api.do(t, http.MethodPost, "/v1/orders", "u1", userBody, "Idempotency-Key", "shared-key")
	if first.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", first.Code, first.Body.String())
	}

	t.Run("another user with the same key places a new order", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/v1/orders", "u2", userBody, "Idempotency-Key", "shared-key")
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if rec.Header().Get("Idempotent-Replayed") != "" {
			t.Error("expected a fresh placement, got a replay")
		}
		if decode[placedOrderResponse](t, rec).Order.ID == decode[placedOrderResponse](t, first).Order.ID {
			t.Error("expected a different order for a different user")
		}
	})

	t.Run("a guest with the same key places a new order", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/v1/orders", "", guestOrderBody(1, "500"), "Idempotency-Key", "shared-key")
		if rec.Code != http.StatusCreated || rec.Header().Get("Idempotent-Replayed") != "" {
			t.Fatalf("expected a fresh 201, got %d replayed=%q", rec.Code, rec.Header().Get("Idempotent-Replayed"))
		}
	})

	t.Run("the same user replays", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/v1/orders", "u1", userBody, "Idempotency-Key", "shared-key")
		if rec.Header().Get("Idempotent-Replayed") != "true" {
			t.Fatal("expected the original response to be replayed")
		}
		if rec.Body.String() != first.Body.String() {
			t.Errorf("expected identical bodies, got %q and %q", first.Body.String(), rec.Body.String())
		}
	})

	product, _ := api.store.GetProduct(context.Background(), "p1")
	if product.StockQuantity != 0 {
		t.Errorf("expected three placements to take all stock, got %d", product.StockQuantity)
	}
}

func TestValidateOrderEndpoint(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/v1/orders/validate", "", guestOrderBody(2, "1000"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	product, _ := api.store.GetProduct(context.Background(), "p1")
	if product.StockQuantity != 3 {
		t.Errorf("validation must not touch stock, got %d", product.StockQuantity)
	}
}

func TestOrderReadEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)

	body := guestOrderBody(1, "500")
	delete(body, "guest")
	placed := api.do(t, http.MethodPost, "/v1/orders", "u1", body)
	if placed.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", placed.Code, placed.Body.String())
	}
	orderID := decode[placedOrderResponse](t, placed).Order.ID

	t.Run("owner can read the order", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/v1/orders/"+orderID, "u1", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
	})

	t.Run("other users get 404", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/v1/orders/"+orderID, "u2", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("list is scoped to the caller", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/v1/orders?status=pending", "u1", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		resp := decode[struct {
			Orders []domain.Order `json:"orders"`
		}](t, rec)
		if len(resp.Orders) != 1 {
			t.Errorf("expected 1 order, got %d", len(resp.Orders))
		}
	})

	t.Run("unknown status filter is a bad request", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/v1/orders?status=lost", "u1", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("history starts with the placement entry", func(t *testing.T) {
		rec := api.do(t, http.MethodGet, "/v1/orders/"+orderID+"/history", "u1", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		resp := decode[struct {
			History []domain.StatusHistoryEntry `json:"history"`
		}](t, rec)
		if len(resp.History) != 1 || resp.History[0].Status != domain.StatusPending {
			t.Errorf("unexpected history %+v", resp.History)
		}
	})
}

func TestStatusEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)

	placed := api.do(t, http.MethodPost, "/v1/orders", "", guestOrderBody(2, "1000"))
	if placed.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", placed.Code, placed.Body.String())
	}
	orderID := decode[placedOrderResponse](t, placed).Order.ID

	t.Run("skipping ahead to delivered is a conflict", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/v1/orders/"+orderID+"/status", "", map[string]string{"status": "delivered"})
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("advances to confirmed", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/v1/orders/"+orderID+"/status", "", map[string]string{"status": "confirmed", "note": "payment verified"})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decode[struct {
			Order domain.Order `json:"order"`
		}](t, rec)
		if resp.Order.Status != domain.StatusConfirmed {
			t.Errorf("expected confirmed, got %s", resp.Order.Status)
		}
	})

	t.Run("cancel restocks and cannot be repeated", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/v1/orders/"+orderID+"/cancel", "", map[string]string{"reason": "changed mind"})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}

		product, _ := api.store.GetProduct(context.Background(), "p1")
		if product.StockQuantity != 3 {
			t.Errorf("expected stock restored to 3, got %d", product.StockQuantity)
		}

		again := api.do(t, http.MethodPost, "/v1/orders/"+orderID+"/cancel", "", nil)
		if again.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d", again.Code)
		}
	})

	t.Run("unknown order is 404", func(t *testing.T) {
		rec := api.do(t, http.MethodPost, "/v1/orders/missing/status", "", map[string]string{"status": "confirmed"})
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rec.Code)
		}
	})
}

func TestChangeAddressEndpoint(t *testing.T) {
	api := newTestAPI(t, nil)

	placed := api.do(t, http.MethodPost, "/v1/orders", "", guestOrderBody(1, "500"))
	orderID := decode[placedOrderResponse](t, placed).Order.ID

	rec := api.do(t, http.MethodPut, "/v1/orders/"+orderID+"/address", "", map[string]any{
		"address": map[string]any{
			"full_name":   "Asha Rao",
			"line1":       "7 FC Road",
			"city":        "Pune",
			"postal_code": "411004",
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[struct {
		Order domain.Order `json:"order"`
	}](t, rec)
	if !strings.Contains(resp.Order.DeliveryAddress, "7 FC Road") {
		t.Errorf("expected new address, got %q", resp.Order.DeliveryAddress)
	}
}

func TestAddressEndpoints(t *testing.T) {
	api := newTestAPI(t, nil)

	address := map[string]any{
		"email":       "asha@example.com",
		"full_name":   "Asha Rao",
		"line1":       "12 MG Road",
		"city":        "Pune",
		"postal_code": "411001",
	}

	created := api.do(t, http.MethodPost, "/v1/addresses", "", address)
	if created.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", created.Code, created.Body.String())
	}

	listed := api.do(t, http.MethodGet, "/v1/addresses?email=asha@example.com", "", nil)
	if listed.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", listed.Code)
	}

	first := api.do(t, http.MethodPost, "/v1/addresses/reconcile", "u1", map[string]string{"email": "ASHA@example.com"})
	if first.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", first.Code, first.Body.String())
	}
	if got := decode[map[string]int64](t, first)["assigned"]; got != 1 {
		t.Errorf("expected 1 address assigned, got %d", got)
	}

	second := api.do(t, http.MethodPost, "/v1/addresses/reconcile", "u1", map[string]string{"email": "asha@example.com"})
	if got := decode[map[string]int64](t, second)["assigned"]; got != 0 {
		t.Errorf("expected reconciliation to be idempotent, got %d", got)
	}

	missingOwner := api.do(t, http.MethodGet, "/v1/addresses", "", nil)
	if missingOwner.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422 without owner, got %d", missingOwner.Code)
	}
}

func TestRunSchedulerEndpoint(t *testing.T) {
	t.Run("disabled scheduler", func(t *testing.T) {
		api := newTestAPI(t, nil)
		rec := api.do(t, http.MethodPost, "/v1/admin/scheduler/run", "", nil)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected status 503, got %d", rec.Code)
		}
	})

	t.Run("sweep already running", func(t *testing.T) {
		api := newTestAPI(t, stubSweeper{err: scheduler.ErrSweepInProgress})
		rec := api.do(t, http.MethodPost, "/v1/admin/scheduler/run", "", nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d", rec.Code)
		}
	})

	t.Run("returns the sweep result", func(t *testing.T) {
		api := newTestAPI(t, stubSweeper{result: scheduler.SweepResult{Considered: 3, Advanced: 2, Failed: 1}})
		rec := api.do(t, http.MethodPost, "/v1/admin/scheduler/run", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		resp := decode[struct {
			Sweep scheduler.SweepResult `json:"sweep"`
		}](t, rec)
		if resp.Sweep.Advanced != 2 {
			t.Errorf("expected 2 advanced, got %d", resp.Sweep.Advanced)
		}
	})
}
