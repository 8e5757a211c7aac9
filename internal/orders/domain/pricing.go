package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Tolerance is the largest difference between two amounts that still counts as equal.
var Tolerance = decimal.New(1, -2)

var hundred = decimal.NewFromInt(100)

// WithinTolerance reports whether a and b differ by no more than Tolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// RoundMoney rounds an amount to two decimal places.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// DiscountType selects how a coupon's value is interpreted.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

var (
	ErrCouponInactive   = errors.New("coupon is inactive")
	ErrCouponNotStarted = errors.New("coupon is not valid yet")
	ErrCouponExpired    = errors.New("coupon has expired")
	ErrCouponMinOrder   = errors.New("order does not meet the coupon minimum amount")
	ErrCouponExhausted  = errors.New("coupon usage limit reached")
)

// Coupon is a named discount rule.
type Coupon struct {
	Code           string           `json:"code"`
	DiscountType   DiscountType     `json:"discount_type"`
	Value          decimal.Decimal  `json:"value"`
	MaxDiscount    *decimal.Decimal `json:"max_discount,omitempty"`
	MinOrderAmount decimal.Decimal  `json:"min_order_amount"`
	ValidFrom      *time.Time       `json:"valid_from,omitempty"`
	ValidUntil     *time.Time       `json:"valid_until,omitempty"`
	Active         bool             `json:"active"`
	UsedCount      int              `json:"used_count"`
	UsageLimit     *int             `json:"usage_limit,omitempty"`
}

// NormalizeCouponCode makes coupon lookups case-insensitive.
func NormalizeCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Eligibility returns nil when the coupon may be applied to subtotal at instant at.
func (c Coupon) Eligibility(subtotal decimal.Decimal, at time.Time) error {
	switch {
	case !c.Active:
		return ErrCouponInactive
	case c.ValidFrom != nil && at.Before(*c.ValidFrom):
		return ErrCouponNotStarted
	case c.ValidUntil != nil && at.After(*c.ValidUntil):
		return ErrCouponExpired
	case subtotal.LessThan(c.MinOrderAmount):
		return ErrCouponMinOrder
	case c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit:
		return ErrCouponExhausted
	}
	return nil
}

// Discount computes the reduction the coupon grants on subtotal. Eligibility is not checked.
func (c Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		discount = subtotal.Mul(c.Value).Div(hundred)
		if c.MaxDiscount != nil && discount.GreaterThan(*c.MaxDiscount) {
			discount = *c.MaxDiscount
		}
	case DiscountFixed:
		discount = decimal.Min(c.Value, subtotal)
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	return RoundMoney(decimal.Min(discount, subtotal))
}

// PricingPolicy holds the store's configurable pricing rules.
type PricingPolicy struct {
	// WaiveDelivery zeroes every delivery charge. It is the current business rule.
	WaiveDelivery    bool
	SurchargePercent decimal.Decimal
	SurchargeMinimum decimal.Decimal
}

// DefaultPricingPolicy returns free delivery and a 2% surcharge with a floor of 10.
func DefaultPricingPolicy() PricingPolicy {
	return PricingPolicy{
		WaiveDelivery:    true,
		SurchargePercent: decimal.NewFromInt(2),
		SurchargeMinimum: decimal.NewFromInt(10),
	}
}

// PricingInput carries everything Calculate depends on.
type PricingInput struct {
	Subtotal       decimal.Decimal
	DeliveryCharge decimal.Decimal
	Coupon         *Coupon
	PaymentMethod  PaymentMethod
	At             time.Time
}

// Pricing is the itemised breakdown of an order's amounts.
type Pricing struct {
	Subtotal        decimal.Decimal `json:"subtotal"`
	DeliveryCharge  decimal.Decimal `json:"delivery_charge"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	PaymentCharges  decimal.Decimal `json:"payment_charges"`
	Total           decimal.Decimal `json:"total"`
	CouponCode      string          `json:"coupon_code,omitempty"`
	CouponRejection string          `json:"coupon_rejection,omitempty"`
}

// Calculate prices an order. It has no side effects and identical inputs give identical output.
func (p PricingPolicy) Calculate(in PricingInput) Pricing {
	subtotal := RoundMoney(in.Subtotal)
	out := Pricing{
		Subtotal:       subtotal,
		DeliveryCharge: RoundMoney(in.DeliveryCharge),
	}
	if p.WaiveDelivery || out.DeliveryCharge.IsNegative() {
		out.DeliveryCharge = decimal.Zero
	}

	if in.Coupon != nil {
		if err := in.Coupon.Eligibility(subtotal, in.At); err != nil {
			out.CouponRejection = err.Error()
		} else {
			out.DiscountAmount = in.Coupon.Discount(subtotal)
			out.CouponCode = NormalizeCouponCode(in.Coupon.Code)
		}
	}

	out.PaymentCharges = p.surcharge(subtotal.Sub(out.DiscountAmount), in.PaymentMethod)
	out.Total = subtotal.Sub(out.DiscountAmount).Add(out.PaymentCharges).Add(out.DeliveryCharge)
	return out
}

func (p PricingPolicy) surcharge(base decimal.Decimal, method PaymentMethod) decimal.Decimal {
	if method.IsCash() || !base.IsPositive() || !p.SurchargePercent.IsPositive() {
		return decimal.Zero
	}
	fee := RoundMoney(base.Mul(p.SurchargePercent).Div(hundred))
	if fee.LessThan(p.SurchargeMinimum) {
		fee = p.SurchargeMinimum
	}
	return fee
}
