package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod identifies how the customer pays for an order.
type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cod"
	PaymentCard           PaymentMethod = "card"
	PaymentUPI            PaymentMethod = "upi"
	PaymentNetBanking     PaymentMethod = "netbanking"
	PaymentWallet         PaymentMethod = "wallet"
)

// IsCash reports whether the method settles in cash, which exempts it from surcharges.
func (m PaymentMethod) IsCash() bool {
	return m == PaymentCashOnDelivery
}

// Valid reports whether the method is one the store accepts.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCashOnDelivery, PaymentCard, PaymentUPI, PaymentNetBanking, PaymentWallet:
		return true
	default:
		return false
	}
}

// PaymentStatus mirrors the payment state declared at checkout.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// LineItem is the snapshot of a purchased product taken at placement time.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Order represents a customer's durable purchase record.
type Order struct {
	ID                string          `json:"id"`
	OrderNumber       string          `json:"order_number"`
	UserID            *string         `json:"user_id,omitempty"`
	GuestName         string          `json:"guest_name,omitempty"`
	GuestEmail        string          `json:"guest_email,omitempty"`
	GuestPhone        string          `json:"guest_phone,omitempty"`
	CustomerName      string          `json:"customer_name"`
	Items             []LineItem      `json:"items"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	DeliveryCharge    decimal.Decimal `json:"delivery_charge"`
	DiscountAmount    decimal.Decimal `json:"discount_amount"`
	PaymentCharges    decimal.Decimal `json:"payment_charges"`
	Total             decimal.Decimal `json:"total"`
	CouponCode        string          `json:"coupon_code,omitempty"`
	PaymentMethod     PaymentMethod   `json:"payment_method"`
	PaymentStatus     PaymentStatus   `json:"payment_status"`
	DeliveryOptionID  string          `json:"delivery_option_id"`
	DeliveryAddress   string          `json:"delivery_address"`
	EstimatedDelivery *time.Time      `json:"estimated_delivery,omitempty"`
	Status            OrderStatus     `json:"status"`
	StatusUpdatedAt   *time.Time      `json:"status_updated_at,omitempty"`
	PointsAwarded     bool            `json:"points_awarded"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// StatusHistoryEntry is one row of an order's append-only audit trail.
type StatusHistoryEntry struct {
	OrderID   string      `json:"order_id"`
	Status    OrderStatus `json:"status"`
	Note      string      `json:"note"`
	CreatedAt time.Time   `json:"created_at"`
}

// IsGuest reports whether the order has no owning user.
func (o Order) IsGuest() bool {
	return o.UserID == nil || strings.TrimSpace(*o.UserID) == ""
}

// OwnedBy reports whether userID owns the order.
func (o Order) OwnedBy(userID string) bool {
	return !o.IsGuest() && *o.UserID == userID
}

// ExpectedTotal recomputes the total from the persisted price components.
func (o Order) ExpectedTotal() decimal.Decimal {
	return o.Subtotal.Add(o.DeliveryCharge).Sub(o.DiscountAmount).Add(o.PaymentCharges)
}

// TotalsConsistent reports whether the stored total agrees with its components.
func (o Order) TotalsConsistent() bool {
	return WithinTolerance(o.Total, o.ExpectedTotal())
}

// LastStatusChange returns when the order last moved, falling back to creation time.
func (o Order) LastStatusChange() time.Time {
	if o.StatusUpdatedAt != nil {
		return *o.StatusUpdatedAt
	}
	return o.CreatedAt
}

// ResolveCustomerName picks the display name in order of preference:
// registered name, then guest name, email and phone.
func ResolveCustomerName(registeredName, guestName, guestEmail, guestPhone string) string {
	for _, candidate := range []string{registeredName, guestName, guestEmail, guestPhone} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// LoyaltyPoints converts an order total into points, one per full currencyPerPoint spent.
func LoyaltyPoints(total, currencyPerPoint decimal.Decimal) int {
	if !currencyPerPoint.IsPositive() || !total.IsPositive() {
		return 0
	}
	return int(total.Div(currencyPerPoint).Floor().IntPart())
}
