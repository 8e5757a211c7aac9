package ports

import (
	"context"

	"github.com/dejobratic/storefront/internal/orders/domain"
)

// CatalogGateway reads current product price, stock and status.
type CatalogGateway interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// CouponGateway looks coupons up by code. A missing coupon is (nil, nil).
type CouponGateway interface {
	GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error)
}

// DeliveryOptionGateway resolves delivery options.
type DeliveryOptionGateway interface {
	GetDeliveryOption(ctx context.Context, id string) (*domain.DeliveryOption, error)
}

// CustomerGateway resolves registered users.
type CustomerGateway interface {
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
}

// AddressGateway stores user and guest addresses.
type AddressGateway interface {
	CreateAddress(ctx context.Context, address domain.Address) (*domain.Address, error)
	GetAddress(ctx context.Context, id string) (*domain.Address, error)
	ListAddresses(ctx context.Context, owner AddressOwner) ([]domain.Address, error)
	UpdateAddress(ctx context.Context, address domain.Address) error
	DeleteAddress(ctx context.Context, id string) error
	// AssignGuestAddresses gives every unowned address registered under email to userID.
	AssignGuestAddresses(ctx context.Context, email, userID string) (int64, error)
}

// AddressOwner selects addresses by user, or by guest email when UserID is empty.
type AddressOwner struct {
	UserID string
	Email  string
}
