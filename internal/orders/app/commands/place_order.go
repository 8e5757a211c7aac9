package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/google/uuid"
)

// DefaultOrderNumberAttempts bounds how often placement retries after a number collision.
const DefaultOrderNumberAttempts = 5

type PlaceOrderCommand struct {
	Request OrderRequest
	// UserID is the authenticated requester, empty for guest checkout.
	UserID string
}

// PlacementResult is a committed order and the pricing breakdown shown to the customer.
type PlacementResult struct {
	Order   domain.Order   `json:"order"`
	Pricing domain.Pricing `json:"pricing"`
	// Attempts counts how many transactions were needed to allocate a unique number.
	Attempts int `json:"-"`
}

type PlaceOrderHandler interface {
	Handle(ctx context.Context, cmd PlaceOrderCommand) (*PlacementResult, error)
}

// PlaceOrderCommandHandlerDeps bundles collaborators required by the handler.
type PlaceOrderCommandHandlerDeps struct {
	Validator   *OrderValidator
	UnitOfWork  ports.UnitOfWork
	Customers   ports.CustomerGateway
	Notifier    ports.Notifier
	Logger      *slog.Logger
	Clock       func() time.Time
	IDGenerator func() string
	// OrderNumberPrefix defaults to "ORD".
	OrderNumberPrefix string
	MaxAttempts       int
}

// PlaceOrderCommandHandler validates and then persists an order, its stock decrements,
// its coupon redemption and the owner's cart clearing as one atomic unit.
type PlaceOrderCommandHandler struct {
	validator   *OrderValidator
	uow         ports.UnitOfWork
	customers   ports.CustomerGateway
	notifier    ports.Notifier
	logger      *slog.Logger
	clock       func() time.Time
	newID       func() string
	prefix      string
	maxAttempts int
}

func NewPlaceOrderCommandHandler(deps PlaceOrderCommandHandlerDeps) (*PlaceOrderCommandHandler, error) {
	switch {
	case deps.Validator == nil:
		return nil, errors.New("place order: validator is required")
	case deps.UnitOfWork == nil:
		return nil, errors.New("place order: unit of work is required")
	case deps.Customers == nil:
		return nil, errors.New("place order: customer gateway is required")
	case deps.Notifier == nil:
		return nil, errors.New("place order: notifier is required")
	}

	h := &PlaceOrderCommandHandler{
		validator:   deps.Validator,
		uow:         deps.UnitOfWork,
		customers:   deps.Customers,
		notifier:    deps.Notifier,
		logger:      deps.Logger,
		clock:       deps.Clock,
		newID:       deps.IDGenerator,
		prefix:      deps.OrderNumberPrefix,
		maxAttempts: deps.MaxAttempts,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.clock == nil {
		h.clock = time.Now
	}
	if h.newID == nil {
		h.newID = uuid.NewString
	}
	if h.prefix == "" {
		h.prefix = "ORD"
	}
	if h.maxAttempts <= 0 {
		h.maxAttempts = DefaultOrderNumberAttempts
	}
	return h, nil
}

func (h *PlaceOrderCommandHandler) Handle(ctx context.Context, cmd PlaceOrderCommand) (*PlacementResult, error) {
	validated, err := h.validator.Validate(ctx, cmd.Request, cmd.UserID)
	if err != nil {
		// Running short of stock is a conflict whether it is seen here or at the conditional decrement.
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			if productID, ok := verr.StockShortfall(); ok {
				return nil, domain.InsufficientStock(productID)
			}
		}
		return nil, err
	}

	draft := validated.Draft
	contact, err := h.resolveContact(ctx, draft)
	if err != nil {
		return nil, err
	}
	draft.CustomerName = contact.Name

	var (
		order    domain.Order
		attempts int
	)
	for attempts = 1; ; attempts++ {
		order, err = h.write(ctx, draft)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrOrderNumberTaken) {
			return nil, err
		}
		if attempts >= h.maxAttempts {
			return nil, &domain.ConflictError{Reason: "could not allocate a unique order number", Err: err}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		h.logger.WarnContext(ctx, "order number collision, retrying",
			"order_number", order.OrderNumber,
			"attempt", attempts,
		)
	}

	h.notifier.Enqueue(ctx, ports.Notification{
		Kind:          ports.NotificationOrderConfirmed,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		CustomerName:  order.CustomerName,
		Email:         contact.Email,
		Phone:         contact.Phone,
		Items:         order.Items,
		Total:         order.Total,
		PaymentMethod: string(order.PaymentMethod),
		OccurredAt:    order.CreatedAt,
	})

	return &PlacementResult{Order: order, Pricing: validated.Pricing, Attempts: attempts}, nil
}

// write runs one placement transaction. The returned order carries the attempted number
// even on failure so collisions can be logged.
func (h *PlaceOrderCommandHandler) write(ctx context.Context, draft domain.Order) (domain.Order, error) {
	now := h.clock().UTC()
	order := draft
	order.ID = h.newID()
	order.Items = append([]domain.LineItem(nil), draft.Items...)
	order.CreatedAt = now
	order.UpdatedAt = now

	err := h.uow.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		dayPrefix := domain.OrderNumberDayPrefix(h.prefix, now)
		seq, err := tx.NextOrderSequence(ctx, dayPrefix)
		if err != nil {
			return fmt.Errorf("next order sequence: %w", err)
		}
		order.OrderNumber = domain.FormatOrderNumber(h.prefix, now, seq)

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, domain.StatusHistoryEntry{
			OrderID:   order.ID,
			Status:    domain.StatusPending,
			Note:      "Order placed",
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		for _, item := range order.Items {
			ok, err := tx.DecrementStock(ctx, item.ProductID, item.Quantity)
			if err != nil {
				return fmt.Errorf("decrement stock %s: %w", item.ProductID, err)
			}
			if !ok {
				return domain.InsufficientStock(item.ProductID)
			}
		}

		if order.CouponCode != "" {
			ok, err := tx.IncrementUsage(ctx, order.CouponCode)
			if err != nil {
				return fmt.Errorf("increment coupon usage: %w", err)
			}
			if !ok {
				return &domain.ConflictError{Reason: "coupon usage limit reached"}
			}
		}

		if !order.IsGuest() {
			if err := tx.ClearCart(ctx, *order.UserID); err != nil {
				return fmt.Errorf("clear cart: %w", err)
			}
		}
		return nil
	})
	return order, err
}

type contactDetails struct {
	Name  string
	Email string
	Phone string
}

func (h *PlaceOrderCommandHandler) resolveContact(ctx context.Context, order domain.Order) (contactDetails, error) {
	if order.IsGuest() {
		return contactDetails{
			Name:  domain.ResolveCustomerName("", order.GuestName, order.GuestEmail, order.GuestPhone),
			Email: order.GuestEmail,
			Phone: order.GuestPhone,
		}, nil
	}

	customer, err := h.customers.GetCustomer(ctx, *order.UserID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return contactDetails{}, &domain.NotFoundError{Resource: "customer", ID: *order.UserID}
		}
		return contactDetails{}, fmt.Errorf("get customer: %w", err)
	}
	return contactDetails{
		Name:  domain.ResolveCustomerName(customer.Name, "", customer.Email, customer.Phone),
		Email: customer.Email,
		Phone: customer.Phone,
	}, nil
}
