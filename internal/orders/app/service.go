package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dejobratic/storefront/internal/orders/app/commands"
	"github.com/dejobratic/storefront/internal/orders/app/queries"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/metrics"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/shopspring/decimal"
)

// ServiceDeps bundles the adapters the order service runs on.
type ServiceDeps struct {
	Orders      ports.OrderRepository
	UnitOfWork  ports.UnitOfWork
	Catalog     ports.CatalogGateway
	Coupons     ports.CouponGateway
	Delivery    ports.DeliveryOptionGateway
	Customers   ports.CustomerGateway
	Addresses   ports.AddressGateway
	Idempotency ports.IdempotencyStore
	Notifier    ports.Notifier
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Clock       func() time.Time

	Pricing             domain.PricingPolicy
	OrderNumberPrefix   string
	OrderNumberAttempts int
	CurrencyPerPoint    decimal.Decimal
	RestockOnCancel     bool
}

// Service bundles use cases for handling orders via the API.
type Service struct {
	orders    ports.OrderRepository
	addresses ports.AddressGateway
	idemStore ports.IdempotencyStore

	validator          *commands.OrderValidator
	placeOrderHandler  commands.PlaceOrderHandler
	transitionHandler  commands.TransitionStatusHandler
	addressChange      *commands.ChangeDeliveryAddressCommandHandler
	reconcileHandler   *commands.ReconcileGuestAddressesCommandHandler
	getOrderHandler    *queries.GetOrderQueryHandler
	listOrdersHandler  *queries.ListOrdersQueryHandler
	historyHandler     *queries.OrderHistoryQueryHandler
	advanceableHandler *queries.ListAdvanceableQueryHandler
}

// NewService wires required dependencies.
func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Orders == nil || deps.UnitOfWork == nil || deps.Idempotency == nil {
		return nil, errors.New("order service: repository, unit of work and idempotency store are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	validator, err := commands.NewOrderValidator(commands.OrderValidatorDeps{
		Catalog:   deps.Catalog,
		Coupons:   deps.Coupons,
		Delivery:  deps.Delivery,
		Addresses: deps.Addresses,
		Pricing:   deps.Pricing,
		Clock:     deps.Clock,
	})
	if err != nil {
		return nil, err
	}

	placeOrder, err := commands.NewPlaceOrderCommandHandler(commands.PlaceOrderCommandHandlerDeps{
		Validator:         validator,
		UnitOfWork:        deps.UnitOfWork,
		Customers:         deps.Customers,
		Notifier:          deps.Notifier,
		Logger:            deps.Logger,
		Clock:             deps.Clock,
		OrderNumberPrefix: deps.OrderNumberPrefix,
		MaxAttempts:       deps.OrderNumberAttempts,
	})
	if err != nil {
		return nil, err
	}

	transition, err := commands.NewTransitionStatusCommandHandler(commands.TransitionStatusCommandHandlerDeps{
		UnitOfWork:       deps.UnitOfWork,
		Customers:        deps.Customers,
		Notifier:         deps.Notifier,
		Logger:           deps.Logger,
		Clock:            deps.Clock,
		CurrencyPerPoint: deps.CurrencyPerPoint,
		RestockOnCancel:  deps.RestockOnCancel,
	})
	if err != nil {
		return nil, err
	}

	return &Service{
		orders:             deps.Orders,
		addresses:          deps.Addresses,
		idemStore:          deps.Idempotency,
		validator:          validator,
		placeOrderHandler:  commands.NewObservablePlaceOrderHandler(placeOrder, deps.Logger, deps.Metrics),
		transitionHandler:  commands.NewObservableTransitionStatusHandler(transition, deps.Logger, deps.Metrics),
		addressChange:      commands.NewChangeDeliveryAddressCommandHandler(deps.UnitOfWork, deps.Addresses, deps.Clock),
		reconcileHandler:   commands.NewReconcileGuestAddressesCommandHandler(deps.Addresses),
		getOrderHandler:    queries.NewGetOrderQueryHandler(deps.Orders),
		listOrdersHandler:  queries.NewListOrdersQueryHandler(deps.Orders),
		historyHandler:     queries.NewOrderHistoryQueryHandler(deps.Orders),
		advanceableHandler: queries.NewListAdvanceableQueryHandler(deps.Orders, deps.Clock),
	}, nil
}

// ValidateAndProcessOrder prices a checkout without writing anything.
func (s *Service) ValidateAndProcessOrder(ctx context.Context, req commands.OrderRequest, userID string) (*commands.ValidatedOrder, error) {
	return s.validator.Validate(ctx, req, userID)
}

// PlaceOrder validates and atomically persists an order.
func (s *Service) PlaceOrder(ctx context.Context, req commands.OrderRequest, userID string) (*commands.PlacementResult, error) {
	return s.placeOrderHandler.Handle(ctx, commands.PlaceOrderCommand{Request: req, UserID: userID})
}

// AdvanceStatus moves an order to next on behalf of an operator.
func (s *Service) AdvanceStatus(ctx context.Context, orderID string, next domain.OrderStatus, note string) (*domain.Order, error) {
	result, err := s.TransitionStatus(ctx, commands.TransitionStatusCommand{
		OrderID: orderID,
		Status:  next,
		Note:    note,
		Trigger: commands.TriggerAPI,
	})
	if err != nil {
		return nil, err
	}
	return &result.Order, nil
}

// TransitionStatus runs an arbitrary transition command through the state machine.
func (s *Service) TransitionStatus(ctx context.Context, cmd commands.TransitionStatusCommand) (*commands.TransitionResult, error) {
	return s.transitionHandler.Handle(ctx, cmd)
}

// CancelOrder cancels an order. A non-empty requesterID must own the order.
func (s *Service) CancelOrder(ctx context.Context, orderID, requesterID, reason string) (*domain.Order, error) {
	note := "Order cancelled"
	if reason = strings.TrimSpace(reason); reason != "" {
		note = fmt.Sprintf("Order cancelled: %s", reason)
	}
	result, err := s.TransitionStatus(ctx, commands.TransitionStatusCommand{
		OrderID:     orderID,
		Status:      domain.StatusCancelled,
		Note:        note,
		RequesterID: requesterID,
		Trigger:     commands.TriggerAPI,
	})
	if err != nil {
		return nil, err
	}
	return &result.Order, nil
}

// ChangeDeliveryAddress replaces the address on an order that has not started processing.
func (s *Service) ChangeDeliveryAddress(ctx context.Context, cmd commands.ChangeDeliveryAddressCommand) (*domain.Order, error) {
	return s.addressChange.Handle(ctx, cmd)
}

// ListAdvanceableOrders returns orders the scheduler may move forward.
func (s *Service) ListAdvanceableOrders(ctx context.Context, query queries.ListAdvanceableQuery) ([]domain.Order, error) {
	return s.advanceableHandler.Handle(ctx, query)
}

// ReconcileGuestAddresses attaches guest addresses registered under email to userID.
func (s *Service) ReconcileGuestAddresses(ctx context.Context, email, userID string) (int64, error) {
	return s.reconcileHandler.Handle(ctx, commands.ReconcileGuestAddressesCommand{Email: email, UserID: userID})
}

// GetOrder retrieves an order by ID. A non-empty requesterID must own it.
func (s *Service) GetOrder(ctx context.Context, id, requesterID string) (*domain.Order, error) {
	return s.getOrderHandler.Handle(ctx, queries.GetOrderQuery{OrderID: id, RequesterID: requesterID})
}

// ListOrders returns orders using a filter.
func (s *Service) ListOrders(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	return s.listOrdersHandler.Handle(ctx, filter)
}

// OrderHistory returns the status audit trail of an order.
func (s *Service) OrderHistory(ctx context.Context, id, requesterID string) ([]domain.StatusHistoryEntry, error) {
	return s.historyHandler.Handle(ctx, queries.GetOrderQuery{OrderID: id, RequesterID: requesterID})
}

// CreateAddress saves an address for a user, or for a guest email when userID is empty.
func (s *Service) CreateAddress(ctx context.Context, address domain.Address, userID string) (*domain.Address, error) {
	if missing := address.Missing(); len(missing) > 0 {
		return nil, &domain.ValidationError{Problems: []domain.Problem{{
			Field: "address", Code: domain.CodeAddressRequired, Message: "missing " + strings.Join(missing, ", "),
		}}}
	}
	address.ID = ""
	address.UserID = nil
	if userID != "" {
		address.UserID = &userID
	} else if strings.TrimSpace(address.Email) == "" {
		return nil, &domain.ValidationError{Problems: []domain.Problem{{
			Field: "email", Code: domain.CodeCustomerRequired, Message: "guest addresses need an email",
		}}}
	}
	return s.addresses.CreateAddress(ctx, address)
}

// ListAddresses returns the caller's saved addresses.
func (s *Service) ListAddresses(ctx context.Context, owner ports.AddressOwner) ([]domain.Address, error) {
	if owner.UserID == "" && strings.TrimSpace(owner.Email) == "" {
		return nil, &domain.ValidationError{Problems: []domain.Problem{{
			Field: "email", Code: domain.CodeRequired, Message: "user or email is required",
		}}}
	}
	return s.addresses.ListAddresses(ctx, owner)
}

// UpdateAddress edits an address owned by userID.
func (s *Service) UpdateAddress(ctx context.Context, address domain.Address, userID string) (*domain.Address, error) {
	existing, err := s.ownedAddress(ctx, address.ID, userID)
	if err != nil {
		return nil, err
	}
	if missing := address.Missing(); len(missing) > 0 {
		return nil, &domain.ValidationError{Problems: []domain.Problem{{
			Field: "address", Code: domain.CodeAddressRequired, Message: "missing " + strings.Join(missing, ", "),
		}}}
	}
	address.UserID = existing.UserID
	if err := s.addresses.UpdateAddress(ctx, address); err != nil {
		return nil, err
	}
	return s.addresses.GetAddress(ctx, address.ID)
}

// DeleteAddress removes an address owned by userID.
func (s *Service) DeleteAddress(ctx context.Context, id, userID string) error {
	if _, err := s.ownedAddress(ctx, id, userID); err != nil {
		return err
	}
	return s.addresses.DeleteAddress(ctx, id)
}

func (s *Service) ownedAddress(ctx context.Context, id, userID string) (*domain.Address, error) {
	address, err := s.addresses.GetAddress(ctx, id)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, &domain.NotFoundError{Resource: "address", ID: id}
		}
		return nil, err
	}
	if !address.OwnedBy(userID) {
		return nil, &domain.NotFoundError{Resource: "address", ID: id}
	}
	return address, nil
}

// SaveIdempotentResponse writes response details for a key.
func (s *Service) SaveIdempotentResponse(ctx context.Context, key string, response ports.StoredResponse) error {
	return s.idemStore.Save(ctx, key, response)
}

// GetIdempotentResponse retrieves previously stored response data.
func (s *Service) GetIdempotentResponse(ctx context.Context, key string) (*ports.StoredResponse, error) {
	return s.idemStore.Get(ctx, key)
}
