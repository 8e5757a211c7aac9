package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dejobratic/storefront/internal/orders/app"
	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/dejobratic/storefront/internal/orders/scheduler"
	"github.com/go-chi/chi/v5"
)

// UserIDHeader carries the authenticated caller's id, set by the upstream gateway.
const UserIDHeader = "X-User-ID"

// Sweeper runs one scheduler pass on demand.
type Sweeper interface {
	RunOnce(ctx context.Context) (scheduler.SweepResult, error)
}

// Handler exposes HTTP endpoints for order operations.
type Handler struct {
	service *app.Service
	sweeper Sweeper
	logger  *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(service *app.Service, sweeper Sweeper, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, sweeper: sweeper, logger: logger}
}

// Register binds the order handlers to the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/orders", func(r chi.Router) {
		r.Post("/", h.placeOrder)
		r.Get("/", h.listOrders)
		r.Post("/validate", h.validateOrder)
		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Get("/history", h.orderHistory)
			r.Post("/status", h.advanceStatus)
			r.Post("/cancel", h.cancelOrder)
			r.Put("/address", h.changeAddress)
		})
	})

	r.Route("/v1/addresses", func(r chi.Router) {
		r.Post("/", h.createAddress)
		r.Get("/", h.listAddresses)
		r.Post("/reconcile", h.reconcileAddresses)
		r.Put("/{addressID}", h.updateAddress)
		r.Delete("/{addressID}", h.deleteAddress)
	})

	r.Post("/v1/admin/scheduler/run", h.runScheduler)
}

func requesterID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(UserIDHeader))
}

func (h *Handler) validateOrder(w http.ResponseWriter, r *http.Request) {
	var req commands.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	validated, err := h.service.ValidateAndProcessOrder(r.Context(), req, requesterID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, validated)
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req commands.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idemKey != "" {
		idemKey = idempotencyScope(requesterID(r), req) + idemKey
		if stored, err := h.service.GetIdempotentResponse(ctx, idemKey); err != nil {
			h.writeServiceError(w, r, err)
			return
		} else if stored != nil {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(stored.StatusCode)
			_, _ = w.Write(stored.Body)
			return
		}
	}

	result, err := h.service.PlaceOrder(ctx, req, requesterID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	body, err := json.Marshal(map[string]any{"order": result.Order, "pricing": result.Pricing})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if idemKey != "" {
		stored := ports.StoredResponse{
			StatusCode: http.StatusCreated,
			Body:       body,
			OrderID:    result.Order.ID,
		}
		if err := h.service.SaveIdempotentResponse(ctx, idemKey, stored); err != nil {
			h.logger.ErrorContext(ctx, "failed to save idempotent response",
				"order_id", result.Order.ID,
				"error", err,
			)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Location", "/v1/orders/"+result.Order.ID)
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body)
}

// idempotencyScope prefixes client keys with the requester so one customer's key never
// replays another customer's order. Guests are told apart by their contact details.
func idempotencyScope(userID string, req commands.OrderRequest) string {
	if userID != "" {
		return "user:" + userID + ":"
	}
	contact := strings.ToLower(strings.TrimSpace(req.Guest.Email))
	if contact == "" {
		contact = strings.TrimSpace(req.Guest.Phone)
	}
	return "guest:" + contact + ":"
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "orderID"), requesterID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) orderHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.OrderHistory(r.Context(), chi.URLParam(r, "orderID"), requesterID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	filter := ports.ListFilter{}
	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		status, ok := domain.ParseStatus(statusParam)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "unknown status")
			return
		}
		filter.Status = &status
	}

	if userID := requesterID(r); userID != "" {
		filter.UserID = &userID
	}

	if pageParam := r.URL.Query().Get("page"); pageParam != "" {
		if page, err := strconv.Atoi(pageParam); err == nil {
			filter.Page = page
		}
	}

	if pageSizeParam := r.URL.Query().Get("page_size"); pageSizeParam != "" {
		if pageSize, err := strconv.Atoi(pageSizeParam); err == nil {
			filter.PageSize = pageSize
		}
	}

	orders, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

type advanceStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (h *Handler) advanceStatus(w http.ResponseWriter, r *http.Request) {
	var req advanceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	status, ok := domain.ParseStatus(req.Status)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unknown status")
		return
	}

	order, err := h.service.AdvanceStatus(r.Context(), chi.URLParam(r, "orderID"), status, req.Note)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid JSON payload")
			return
		}
	}

	order, err := h.service.CancelOrder(r.Context(), chi.URLParam(r, "orderID"), requesterID(r), req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

type changeAddressRequest struct {
	AddressID string          `json:"address_id"`
	Address   *domain.Address `json:"address"`
}

func (h *Handler) changeAddress(w http.ResponseWriter, r *http.Request) {
	var req changeAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	order, err := h.service.ChangeDeliveryAddress(r.Context(), commands.ChangeDeliveryAddressCommand{
		OrderID:     chi.URLParam(r, "orderID"),
		RequesterID: requesterID(r),
		AddressID:   req.AddressID,
		Address:     req.Address,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (h *Handler) createAddress(w http.ResponseWriter, r *http.Request) {
	var address domain.Address
	if err := json.NewDecoder(r.Body).Decode(&address); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	created, err := h.service.CreateAddress(r.Context(), address, requesterID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"address": created})
}

func (h *Handler) listAddresses(w http.ResponseWriter, r *http.Request) {
	addresses, err := h.service.ListAddresses(r.Context(), ports.AddressOwner{
		UserID: requesterID(r),
		Email:  r.URL.Query().Get("email"),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"addresses": addresses})
}

func (h *Handler) updateAddress(w http.ResponseWriter, r *http.Request) {
	var address domain.Address
	if err := json.NewDecoder(r.Body).Decode(&address); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	address.ID = chi.URLParam(r, "addressID")

	updated, err := h.service.UpdateAddress(r.Context(), address, requesterID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": updated})
}

func (h *Handler) deleteAddress(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteAddress(r.Context(), chi.URLParam(r, "addressID"), requesterID(r)); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reconcileRequest struct {
	Email string `json:"email"`
}

func (h *Handler) reconcileAddresses(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	assigned, err := h.service.ReconcileGuestAddresses(r.Context(), req.Email, requesterID(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assigned": assigned})
}

func (h *Handler) runScheduler(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		writeError(w, r, http.StatusServiceUnavailable, "scheduler is disabled")
		return
	}

	result, err := h.sweeper.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, scheduler.ErrSweepInProgress) {
			writeError(w, r, http.StatusConflict, err.Error())
			return
		}
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sweep": result})
}
