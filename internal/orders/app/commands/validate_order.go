package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/shopspring/decimal"
)

// GuestContact identifies a customer checking out without an account.
type GuestContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// OrderRequest is a checkout submission as received from the client.
type OrderRequest struct {
	Items            []domain.CartLineItem `json:"items"`
	DeliveryOptionID string                `json:"delivery_option_id"`
	CouponCode       string                `json:"coupon_code,omitempty"`
	PaymentMethod    domain.PaymentMethod  `json:"payment_method"`
	PaymentStatus    domain.PaymentStatus  `json:"payment_status,omitempty"`
	AddressID        string                `json:"address_id,omitempty"`
	Address          *domain.Address       `json:"address,omitempty"`
	Guest            GuestContact          `json:"guest"`
	// DeliveryCharge and Total are the amounts the client displayed. They are compared, never trusted.
	DeliveryCharge *decimal.Decimal `json:"delivery_charge,omitempty"`
	Total          *decimal.Decimal `json:"total,omitempty"`
}

// ValidatedCart is a cart whose every line passed validation.
type ValidatedCart struct {
	Items    []domain.LineItem
	Subtotal decimal.Decimal
}

// ValidatedOrder is a ready-to-persist draft and the pricing it was built from.
type ValidatedOrder struct {
	Draft   domain.Order   `json:"order"`
	Pricing domain.Pricing `json:"pricing"`
}

// CartValidator checks cart lines against the catalog. It never writes.
type CartValidator struct {
	catalog ports.CatalogGateway
}

func NewCartValidator(catalog ports.CatalogGateway) *CartValidator {
	return &CartValidator{catalog: catalog}
}

// Validate inspects every line and reports all problems at once as a *domain.ValidationError.
func (v *CartValidator) Validate(ctx context.Context, items []domain.CartLineItem) (*ValidatedCart, error) {
	verr := &domain.ValidationError{}
	products := make(map[string]*domain.Product, len(items))
	requested := make(map[string]int, len(items))

	for i, item := range items {
		if item.Quantity <= 0 {
			verr.Add(domain.Problem{
				Field:     fmt.Sprintf("items[%d].quantity", i),
				Code:      domain.CodeInvalidQuantity,
				Message:   "quantity must be positive",
				ProductID: item.ProductID,
			})
		} else {
			requested[item.ProductID] += item.Quantity
		}

		if _, seen := products[item.ProductID]; seen {
			continue
		}
		product, err := v.catalog.GetProduct(ctx, item.ProductID)
		if err != nil && !errors.Is(err, ports.ErrNotFound) {
			return nil, fmt.Errorf("get product %s: %w", item.ProductID, err)
		}
		if product != nil && !product.Active {
			product = nil
		}
		products[item.ProductID] = product
	}

	cart := &ValidatedCart{Subtotal: decimal.Zero}
	for i, item := range items {
		product := products[item.ProductID]
		if product == nil {
			verr.Add(domain.Problem{
				Field:     fmt.Sprintf("items[%d].product_id", i),
				Code:      domain.CodeNotFound,
				Message:   "product does not exist or is unavailable",
				ProductID: item.ProductID,
			})
			continue
		}
		if item.Quantity > 0 && product.StockQuantity < requested[item.ProductID] {
			verr.Add(domain.Problem{
				Field:     fmt.Sprintf("items[%d].quantity", i),
				Code:      domain.CodeOutOfStock,
				Message:   fmt.Sprintf("only %d left in stock", product.StockQuantity),
				ProductID: item.ProductID,
			})
		}
		if !domain.WithinTolerance(product.Price, item.UnitPrice) {
			verr.Add(domain.Problem{
				Field:     fmt.Sprintf("items[%d].unit_price", i),
				Code:      domain.CodePriceMismatch,
				Message:   fmt.Sprintf("price is now %s", product.Price.StringFixed(2)),
				ProductID: item.ProductID,
			})
		}
		if item.Quantity <= 0 {
			continue
		}

		lineTotal := domain.RoundMoney(product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		cart.Items = append(cart.Items, domain.LineItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
			LineTotal: lineTotal,
		})
		cart.Subtotal = cart.Subtotal.Add(lineTotal)
	}

	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return cart, nil
}

// OrderValidatorDeps bundles collaborators required by the order validator.
type OrderValidatorDeps struct {
	Catalog   ports.CatalogGateway
	Coupons   ports.CouponGateway
	Delivery  ports.DeliveryOptionGateway
	Addresses ports.AddressGateway
	Pricing   domain.PricingPolicy
	Clock     func() time.Time
}

// OrderValidator turns a request into a priced draft or an itemised list of problems.
type OrderValidator struct {
	cart      *CartValidator
	coupons   ports.CouponGateway
	delivery  ports.DeliveryOptionGateway
	addresses ports.AddressGateway
	pricing   domain.PricingPolicy
	clock     func() time.Time
}

func NewOrderValidator(deps OrderValidatorDeps) (*OrderValidator, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errors.New("order validator: catalog gateway is required")
	case deps.Coupons == nil:
		return nil, errors.New("order validator: coupon gateway is required")
	case deps.Delivery == nil:
		return nil, errors.New("order validator: delivery option gateway is required")
	case deps.Addresses == nil:
		return nil, errors.New("order validator: address gateway is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &OrderValidator{
		cart:      NewCartValidator(deps.Catalog),
		coupons:   deps.Coupons,
		delivery:  deps.Delivery,
		addresses: deps.Addresses,
		pricing:   deps.Pricing,
		clock:     func() time.Time { return clock().UTC() },
	}, nil
}

// Validate checks req for a requester identified by userID (empty for guests).
func (v *OrderValidator) Validate(ctx context.Context, req OrderRequest, userID string) (*ValidatedOrder, error) {
	now := v.clock()
	verr := &domain.ValidationError{}

	var cart *ValidatedCart
	if len(req.Items) == 0 {
		verr.Add(domain.Problem{Field: "items", Code: domain.CodeEmptyCart, Message: "cart is empty"})
	} else {
		validated, err := v.cart.Validate(ctx, req.Items)
		if err != nil {
			var cartErr *domain.ValidationError
			if !errors.As(err, &cartErr) {
				return nil, err
			}
			verr.Problems = append(verr.Problems, cartErr.Problems...)
		}
		cart = validated
	}

	if !req.PaymentMethod.Valid() {
		verr.Add(domain.Problem{Field: "payment_method", Code: domain.CodeInvalidPayment, Message: "unsupported payment method"})
	}

	option, err := v.resolveDeliveryOption(ctx, req.DeliveryOptionID, verr)
	if err != nil {
		return nil, err
	}

	address, err := v.resolveAddress(ctx, req, userID, verr)
	if err != nil {
		return nil, err
	}

	if userID == "" {
		if strings.TrimSpace(req.Guest.Name) == "" {
			verr.Add(domain.Problem{Field: "guest.name", Code: domain.CodeCustomerRequired, Message: "guest checkout needs a name"})
		}
		if strings.TrimSpace(req.Guest.Email) == "" && strings.TrimSpace(req.Guest.Phone) == "" {
			verr.Add(domain.Problem{Field: "guest", Code: domain.CodeCustomerRequired, Message: "guest checkout needs an email or phone"})
		}
	}

	coupon, err := v.resolveCoupon(ctx, req.CouponCode, verr)
	if err != nil {
		return nil, err
	}

	if cart == nil || option == nil {
		return nil, verr.OrNil()
	}

	pricing := v.pricing.Calculate(domain.PricingInput{
		Subtotal:       cart.Subtotal,
		DeliveryCharge: option.Charge,
		Coupon:         coupon,
		PaymentMethod:  req.PaymentMethod,
		At:             now,
	})
	if pricing.CouponRejection != "" {
		verr.Add(domain.Problem{Field: "coupon_code", Code: domain.CodeInvalidCoupon, Message: pricing.CouponRejection})
	}
	compareClientAmounts(req, pricing, verr)

	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	draft := domain.Order{
		Items:             cart.Items,
		Subtotal:          pricing.Subtotal,
		DeliveryCharge:    pricing.DeliveryCharge,
		DiscountAmount:    pricing.DiscountAmount,
		PaymentCharges:    pricing.PaymentCharges,
		Total:             pricing.Total,
		CouponCode:        pricing.CouponCode,
		PaymentMethod:     req.PaymentMethod,
		PaymentStatus:     req.PaymentStatus,
		DeliveryOptionID:  option.ID,
		DeliveryAddress:   address.Format(),
		EstimatedDelivery: option.EstimatedDelivery(now),
		Status:            domain.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if draft.PaymentStatus == "" {
		draft.PaymentStatus = domain.PaymentPending
	}
	if userID != "" {
		draft.UserID = &userID
	} else {
		draft.GuestName = strings.TrimSpace(req.Guest.Name)
		draft.GuestEmail = strings.TrimSpace(req.Guest.Email)
		draft.GuestPhone = strings.TrimSpace(req.Guest.Phone)
	}

	return &ValidatedOrder{Draft: draft, Pricing: pricing}, nil
}

func (v *OrderValidator) resolveDeliveryOption(ctx context.Context, id string, verr *domain.ValidationError) (*domain.DeliveryOption, error) {
	if strings.TrimSpace(id) == "" {
		verr.Add(domain.Problem{Field: "delivery_option_id", Code: domain.CodeRequired, Message: "delivery option is required"})
		return nil, nil
	}
	option, err := v.delivery.GetDeliveryOption(ctx, id)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return nil, fmt.Errorf("get delivery option %s: %w", id, err)
	}
	if option == nil || !option.Active {
		verr.Add(domain.Problem{Field: "delivery_option_id", Code: domain.CodeInvalidDelivery, Message: "delivery option is not available"})
		return nil, nil
	}
	return option, nil
}

func (v *OrderValidator) resolveAddress(ctx context.Context, req OrderRequest, userID string, verr *domain.ValidationError) (*domain.Address, error) {
	if req.AddressID == "" {
		if req.Address == nil {
			verr.Add(domain.Problem{Field: "address", Code: domain.CodeAddressRequired, Message: "delivery address is required"})
			return nil, nil
		}
		if missing := req.Address.Missing(); len(missing) > 0 {
			verr.Add(domain.Problem{
				Field:   "address",
				Code:    domain.CodeAddressRequired,
				Message: "missing " + strings.Join(missing, ", "),
			})
			return nil, nil
		}
		return req.Address, nil
	}

	address, err := v.addresses.GetAddress(ctx, req.AddressID)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return nil, fmt.Errorf("get address %s: %w", req.AddressID, err)
	}
	if address == nil {
		verr.Add(domain.Problem{Field: "address_id", Code: domain.CodeNotFound, Message: "address does not exist"})
		return nil, nil
	}
	if !addressUsableBy(*address, userID, req.Guest.Email) {
		verr.Add(domain.Problem{Field: "address_id", Code: domain.CodeAddressNotOwned, Message: "address belongs to another customer"})
		return nil, nil
	}
	return address, nil
}

func (v *OrderValidator) resolveCoupon(ctx context.Context, code string, verr *domain.ValidationError) (*domain.Coupon, error) {
	code = domain.NormalizeCouponCode(code)
	if code == "" {
		return nil, nil
	}
	coupon, err := v.coupons.GetCouponByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get coupon %s: %w", code, err)
	}
	if coupon == nil {
		verr.Add(domain.Problem{Field: "coupon_code", Code: domain.CodeInvalidCoupon, Message: "coupon does not exist"})
	}
	return coupon, nil
}

// addressUsableBy enforces ownership: users may only ship to their own saved addresses
// and guests only to unowned addresses registered under their email.
func addressUsableBy(address domain.Address, userID, guestEmail string) bool {
	if userID != "" {
		return address.OwnedBy(userID)
	}
	return address.UserID == nil && strings.EqualFold(strings.TrimSpace(address.Email), strings.TrimSpace(guestEmail))
}

func compareClientAmounts(req OrderRequest, pricing domain.Pricing, verr *domain.ValidationError) {
	if req.DeliveryCharge != nil && !domain.WithinTolerance(*req.DeliveryCharge, pricing.DeliveryCharge) {
		verr.Add(domain.Problem{
			Field:   "delivery_charge",
			Code:    domain.CodeTotalMismatch,
			Message: fmt.Sprintf("delivery charge is %s", pricing.DeliveryCharge.StringFixed(2)),
		})
	}
	switch {
	case req.Total == nil:
		verr.Add(domain.Problem{Field: "total", Code: domain.CodeRequired, Message: "total is required"})
	case !domain.WithinTolerance(*req.Total, pricing.Total):
		verr.Add(domain.Problem{
			Field:   "total",
			Code:    domain.CodeTotalMismatch,
			Message: fmt.Sprintf("total is %s", pricing.Total.StringFixed(2)),
		})
	}
}
