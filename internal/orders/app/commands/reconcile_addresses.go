package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
)

type ReconcileGuestAddressesCommand struct {
	Email  string
	UserID string
}

// ReconcileGuestAddressesCommandHandler hands a new account the addresses it used as a guest.
// Running it again for the same account changes nothing.
type ReconcileGuestAddressesCommandHandler struct {
	addresses ports.AddressGateway
}

func NewReconcileGuestAddressesCommandHandler(addresses ports.AddressGateway) *ReconcileGuestAddressesCommandHandler {
	return &ReconcileGuestAddressesCommandHandler{addresses: addresses}
}

func (h *ReconcileGuestAddressesCommandHandler) Handle(ctx context.Context, cmd ReconcileGuestAddressesCommand) (int64, error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	verr := &domain.ValidationError{}
	if email == "" {
		verr.Add(domain.Problem{Field: "email", Code: domain.CodeRequired, Message: "email is required"})
	}
	if strings.TrimSpace(cmd.UserID) == "" {
		verr.Add(domain.Problem{Field: "user_id", Code: domain.CodeRequired, Message: "user id is required"})
	}
	if err := verr.OrNil(); err != nil {
		return 0, err
	}

	assigned, err := h.addresses.AssignGuestAddresses(ctx, email, cmd.UserID)
	if err != nil {
		return 0, fmt.Errorf("assign guest addresses: %w", err)
	}
	return assigned, nil
}
