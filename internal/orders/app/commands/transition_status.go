package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/shopspring/decimal"
)

// Triggers recorded alongside a transition.
const (
	TriggerAPI       = "api"
	TriggerScheduler = "scheduler"
)

type TransitionStatusCommand struct {
	OrderID string
	Status  domain.OrderStatus
	Note    string
	// RequesterID restricts the transition to the order's owner. Empty means a system or admin caller.
	RequesterID string
	// ExpectedStatus, when set, makes the transition a claim that fails if the order moved meanwhile.
	ExpectedStatus domain.OrderStatus
	Trigger        string
}

type TransitionResult struct {
	Order    domain.Order
	Previous domain.OrderStatus
	// Changed is false when the order was already in the requested status.
	Changed       bool
	PointsAwarded int
}

type TransitionStatusHandler interface {
	Handle(ctx context.Context, cmd TransitionStatusCommand) (*TransitionResult, error)
}

// TransitionStatusCommandHandlerDeps bundles collaborators required by the state machine.
type TransitionStatusCommandHandlerDeps struct {
	UnitOfWork ports.UnitOfWork
	Customers  ports.CustomerGateway
	Notifier   ports.Notifier
	Logger     *slog.Logger
	Clock      func() time.Time
	// CurrencyPerPoint is how much must be spent per loyalty point. Defaults to 100.
	CurrencyPerPoint decimal.Decimal
	RestockOnCancel  bool
}

// TransitionStatusCommandHandler is the only path that changes an order's status.
type TransitionStatusCommandHandler struct {
	uow              ports.UnitOfWork
	customers        ports.CustomerGateway
	notifier         ports.Notifier
	logger           *slog.Logger
	clock            func() time.Time
	currencyPerPoint decimal.Decimal
	restockOnCancel  bool
}

func NewTransitionStatusCommandHandler(deps TransitionStatusCommandHandlerDeps) (*TransitionStatusCommandHandler, error) {
	switch {
	case deps.UnitOfWork == nil:
		return nil, errors.New("transition status: unit of work is required")
	case deps.Notifier == nil:
		return nil, errors.New("transition status: notifier is required")
	}

	h := &TransitionStatusCommandHandler{
		uow:              deps.UnitOfWork,
		customers:        deps.Customers,
		notifier:         deps.Notifier,
		logger:           deps.Logger,
		clock:            deps.Clock,
		currencyPerPoint: deps.CurrencyPerPoint,
		restockOnCancel:  deps.RestockOnCancel,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.clock == nil {
		h.clock = time.Now
	}
	if !h.currencyPerPoint.IsPositive() {
		h.currencyPerPoint = decimal.NewFromInt(100)
	}
	return h, nil
}

func (h *TransitionStatusCommandHandler) Handle(ctx context.Context, cmd TransitionStatusCommand) (*TransitionResult, error) {
	if cmd.OrderID == "" {
		return nil, &domain.ValidationError{Problems: []domain.Problem{{Field: "order_id", Code: domain.CodeRequired, Message: "order id is required"}}}
	}
	if _, ok := domain.ParseStatus(string(cmd.Status)); !ok {
		return nil, &domain.ValidationError{Problems: []domain.Problem{{Field: "status", Code: domain.CodeRequired, Message: fmt.Sprintf("unknown status %q", cmd.Status)}}}
	}

	now := h.clock().UTC()
	result := &TransitionResult{}

	err := h.uow.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		order, err := lockOrder(ctx, tx, cmd.OrderID, cmd.RequesterID)
		if err != nil {
			return err
		}
		result.Previous = order.Status

		if cmd.ExpectedStatus != "" && order.Status != cmd.ExpectedStatus {
			return &domain.ConflictError{Reason: fmt.Sprintf("order moved from %s to %s", cmd.ExpectedStatus, order.Status)}
		}
		if order.Status == cmd.Status && !order.Status.IsTerminal() {
			result.Order = *order
			return nil
		}
		if !order.Status.CanTransitionTo(cmd.Status) {
			return &domain.InvalidTransitionError{From: order.Status, To: cmd.Status}
		}

		order.Status = cmd.Status
		order.StatusUpdatedAt = &now
		order.UpdatedAt = now

		if cmd.Status == domain.StatusProcessing && !order.PointsAwarded && !order.IsGuest() {
			points := domain.LoyaltyPoints(order.Total, h.currencyPerPoint)
			if points > 0 {
				if err := tx.AwardPoints(ctx, *order.UserID, points); err != nil {
					return fmt.Errorf("award points: %w", err)
				}
			}
			order.PointsAwarded = true
			result.PointsAwarded = points
		}

		if cmd.Status == domain.StatusCancelled && h.restockOnCancel {
			for _, item := range order.Items {
				if err := tx.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
					return fmt.Errorf("restock %s: %w", item.ProductID, err)
				}
			}
		}

		if err := tx.UpdateOrder(ctx, *order); err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		note := cmd.Note
		if note == "" {
			note = fmt.Sprintf("Status changed from %s to %s", result.Previous, cmd.Status)
		}
		if err := tx.AppendHistory(ctx, domain.StatusHistoryEntry{
			OrderID:   order.ID,
			Status:    cmd.Status,
			Note:      note,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		result.Order = *order
		result.Changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Changed {
		h.notifier.Enqueue(ctx, h.statusNotification(ctx, result.Order, result.Previous, cmd.Note))
	}
	return result, nil
}

func (h *TransitionStatusCommandHandler) statusNotification(ctx context.Context, order domain.Order, previous domain.OrderStatus, note string) ports.Notification {
	n := ports.Notification{
		Kind:           ports.NotificationStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Status:         order.Status,
		PreviousStatus: previous,
		CustomerName:   order.CustomerName,
		Email:          order.GuestEmail,
		Phone:          order.GuestPhone,
		Total:          order.Total,
		PaymentMethod:  string(order.PaymentMethod),
		Note:           note,
		OccurredAt:     order.UpdatedAt,
	}
	if order.IsGuest() || h.customers == nil {
		return n
	}

	customer, err := h.customers.GetCustomer(ctx, *order.UserID)
	if err != nil {
		h.logger.WarnContext(ctx, "could not resolve customer contact for notification",
			"order_id", order.ID,
			"error", err,
		)
		return n
	}
	n.Email = customer.Email
	n.Phone = customer.Phone
	return n
}

// lockOrder loads the order under a row lock and hides orders the requester does not own.
func lockOrder(ctx context.Context, tx ports.Tx, orderID, requesterID string) (*domain.Order, error) {
	order, err := tx.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, &domain.NotFoundError{Resource: "order", ID: orderID}
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	if requesterID != "" && !order.OwnedBy(requesterID) {
		return nil, &domain.NotFoundError{Resource: "order", ID: orderID}
	}
	return order, nil
}
