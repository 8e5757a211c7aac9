package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intPtr(v int) *int { return &v }

func TestCalculate(t *testing.T) {
	at := time.Date(2026, time.October, 18, 12, 0, 0, 0, time.UTC)
	policy := DefaultPricingPolicy()

	tests := []struct {
		name      string
		policy    PricingPolicy
		input     PricingInput
		total     string
		discount  string
		surcharge string
		delivery  string
		rejection error
	}{
		{
			name:      "cash on delivery has no surcharge and delivery is waived",
			policy:    policy,
			input:     PricingInput{Subtotal: dec("1000"), DeliveryCharge: dec("40"), PaymentMethod: PaymentCashOnDelivery, At: at},
			total:     "1000",
			discount:  "0",
			surcharge: "0",
			delivery:  "0",
		},
		{
			name:      "card pays two percent",
			policy:    policy,
			input:     PricingInput{Subtotal: dec("1000"), PaymentMethod: PaymentCard, At: at},
			total:     "1020",
			discount:  "0",
			surcharge: "20",
			delivery:  "0",
		},
		{
			name:      "surcharge floor applies to small orders",
			policy:    policy,
			input:     PricingInput{Subtotal: dec("100"), PaymentMethod: PaymentUPI, At: at},
			total:     "110",
			discount:  "0",
			surcharge: "10",
			delivery:  "0",
		},
		{
			name:   "percentage coupon is capped and surcharge uses discounted base",
			policy: policy,
			input: PricingInput{
				Subtotal:      dec("2000"),
				PaymentMethod: PaymentCard,
				At:            at,
				Coupon: &Coupon{
					Code: "save20", DiscountType: DiscountPercentage, Value: dec("20"),
					MaxDiscount: ptr(dec("300")), Active: true,
				},
			},
			total:     "1734",
			discount:  "300",
			surcharge: "34",
			delivery:  "0",
		},
		{
			name:   "fixed coupon never exceeds subtotal",
			policy: policy,
			input: PricingInput{
				Subtotal:      dec("150"),
				PaymentMethod: PaymentCashOnDelivery,
				At:            at,
				Coupon:        &Coupon{Code: "FLAT500", DiscountType: DiscountFixed, Value: dec("500"), Active: true},
			},
			total:     "0",
			discount:  "150",
			surcharge: "0",
			delivery:  "0",
		},
		{
			name:   "expired coupon is reported and ignored",
			policy: policy,
			input: PricingInput{
				Subtotal:      dec("500"),
				PaymentMethod: PaymentCashOnDelivery,
				At:            at,
				Coupon: &Coupon{
					Code: "OLD", DiscountType: DiscountFixed, Value: dec("50"), Active: true,
					ValidUntil: ptr(at.Add(-time.Hour)),
				},
			},
			total:     "500",
			discount:  "0",
			surcharge: "0",
			delivery:  "0",
			rejection: ErrCouponExpired,
		},
		{
			name:      "delivery charge kept when not waived",
			policy:    PricingPolicy{SurchargePercent: dec("2"), SurchargeMinimum: dec("10")},
			input:     PricingInput{Subtotal: dec("500"), DeliveryCharge: dec("40"), PaymentMethod: PaymentCashOnDelivery, At: at},
			total:     "540",
			discount:  "0",
			surcharge: "0",
			delivery:  "40",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.Calculate(tt.input)

			if !got.Total.Equal(dec(tt.total)) {
				t.Errorf("expected total %s, got %s", tt.total, got.Total)
			}
			if !got.DiscountAmount.Equal(dec(tt.discount)) {
				t.Errorf("expected discount %s, got %s", tt.discount, got.DiscountAmount)
			}
			if !got.PaymentCharges.Equal(dec(tt.surcharge)) {
				t.Errorf("expected surcharge %s, got %s", tt.surcharge, got.PaymentCharges)
			}
			if !got.DeliveryCharge.Equal(dec(tt.delivery)) {
				t.Errorf("expected delivery %s, got %s", tt.delivery, got.DeliveryCharge)
			}
			if tt.rejection != nil && got.CouponRejection != tt.rejection.Error() {
				t.Errorf("expected coupon rejection %q, got %q", tt.rejection, got.CouponRejection)
			}
			if tt.rejection == nil && got.CouponRejection != "" {
				t.Errorf("unexpected coupon rejection %q", got.CouponRejection)
			}
		})
	}
}

func TestCalculateIsDeterministic(t *testing.T) {
	in := PricingInput{Subtotal: dec("333.33"), PaymentMethod: PaymentWallet, At: time.Now()}
	policy := DefaultPricingPolicy()

	first := policy.Calculate(in)
	second := policy.Calculate(in)
	if !first.Total.Equal(second.Total) || !first.PaymentCharges.Equal(second.PaymentCharges) {
		t.Errorf("expected identical pricing, got %+v and %+v", first, second)
	}
}

func TestCouponEligibility(t *testing.T) {
	at := time.Date(2026, time.October, 18, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		coupon Coupon
		want   error
	}{
		{"inactive", Coupon{Active: false}, ErrCouponInactive},
		{"not started", Coupon{Active: true, ValidFrom: ptr(at.Add(time.Hour))}, ErrCouponNotStarted},
		{"expired", Coupon{Active: true, ValidUntil: ptr(at.Add(-time.Hour))}, ErrCouponExpired},
		{"below minimum", Coupon{Active: true, MinOrderAmount: dec("1000")}, ErrCouponMinOrder},
		{"exhausted", Coupon{Active: true, UsedCount: 5, UsageLimit: intPtr(5)}, ErrCouponExhausted},
		{"eligible", Coupon{Active: true, UsedCount: 4, UsageLimit: intPtr(5)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.coupon.Eligibility(dec("500"), at)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestWithinTolerance(t *testing.T) {
	if !WithinTolerance(dec("100.00"), dec("100.01")) {
		t.Error("expected one cent difference to be tolerated")
	}
	if WithinTolerance(dec("100.00"), dec("100.02")) {
		t.Error("expected two cent difference to be rejected")
	}
}

func TestNormalizeCouponCode(t *testing.T) {
	if got := NormalizeCouponCode("  save10 "); got != "SAVE10" {
		t.Errorf("expected SAVE10, got %q", got)
	}
}

func ptr[T any](v T) *T { return &v }
