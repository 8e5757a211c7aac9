package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

type ChangeDeliveryAddressCommand struct {
	OrderID     string
	RequesterID string
	AddressID   string
	Address     *domain.Address
}

// ChangeDeliveryAddressCommandHandler rewrites the address snapshot of an order that has not
// started processing.
type ChangeDeliveryAddressCommandHandler struct {
	uow       ports.UnitOfWork
	addresses ports.AddressGateway
	clock     func() time.Time
}

func NewChangeDeliveryAddressCommandHandler(uow ports.UnitOfWork, addresses ports.AddressGateway, clock func() time.Time) *ChangeDeliveryAddressCommandHandler {
	if clock == nil {
		clock = time.Now
	}
	return &ChangeDeliveryAddressCommandHandler{uow: uow, addresses: addresses, clock: clock}
}

func (h *ChangeDeliveryAddressCommandHandler) Handle(ctx context.Context, cmd ChangeDeliveryAddressCommand) (*domain.Order, error) {
	address, err := h.resolve(ctx, cmd)
	if err != nil {
		return nil, err
	}

	now := h.clock().UTC()
	var updated domain.Order
	err = h.uow.WithinTx(ctx, func(ctx context.Context, tx ports.Tx) error {
		order, err := lockOrder(ctx, tx, cmd.OrderID, cmd.RequesterID)
		if err != nil {
			return err
		}
		if !order.Status.AddressChangeable() {
			return &domain.ConflictError{Reason: fmt.Sprintf("delivery address cannot change once the order is %s", order.Status)}
		}

		order.DeliveryAddress = address.Format()
		order.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, *order); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if err := tx.AppendHistory(ctx, domain.StatusHistoryEntry{
			OrderID:   order.ID,
			Status:    order.Status,
			Note:      "Delivery address updated",
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		updated = *order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (h *ChangeDeliveryAddressCommandHandler) resolve(ctx context.Context, cmd ChangeDeliveryAddressCommand) (*domain.Address, error) {
	if cmd.AddressID == "" {
		if cmd.Address == nil {
			return nil, &domain.ValidationError{Problems: []domain.Problem{{Field: "address", Code: domain.CodeAddressRequired, Message: "delivery address is required"}}}
		}
		if missing := cmd.Address.Missing(); len(missing) > 0 {
			return nil, &domain.ValidationError{Problems: []domain.Problem{{Field: "address", Code: domain.CodeAddressRequired, Message: "missing " + strings.Join(missing, ", ")}}}
		}
		return cmd.Address, nil
	}

	address, err := h.addresses.GetAddress(ctx, cmd.AddressID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, &domain.NotFoundError{Resource: "address", ID: cmd.AddressID}
		}
		return nil, fmt.Errorf("get address: %w", err)
	}
	if cmd.RequesterID != "" && !address.OwnedBy(cmd.RequesterID) {
		return nil, &domain.ValidationError{Problems: []domain.Problem{{Field: "address_id", Code: domain.CodeAddressNotOwned, Message: "address belongs to another customer"}}}
	}
	return address, nil
}
