package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog view the order engine consults. It is not owned here.
type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	Active        bool            `json:"active"`
}

// InStock reports whether any units remain.
func (p Product) InStock() bool {
	return p.StockQuantity > 0
}

// DeliveryOption is a selectable shipping method.
type DeliveryOption struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Charge        decimal.Decimal `json:"charge"`
	EstimatedDays int             `json:"estimated_days"`
	Active        bool            `json:"active"`
}

// EstimatedDelivery returns the expected arrival date for an order placed at placedAt.
func (d DeliveryOption) EstimatedDelivery(placedAt time.Time) *time.Time {
	if d.EstimatedDays <= 0 {
		return nil
	}
	eta := placedAt.AddDate(0, 0, d.EstimatedDays)
	return &eta
}

// Customer is the registered account behind an order.
type Customer struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	LoyaltyPoints int    `json:"loyalty_points"`
}

// Address is a postal record owned by a user or, while UserID is nil, by a guest email.
type Address struct {
	ID         string    `json:"id"`
	UserID     *string   `json:"user_id,omitempty"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	Phone      string    `json:"phone"`
	Line1      string    `json:"line1"`
	Line2      string    `json:"line2,omitempty"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	PostalCode string    `json:"postal_code"`
	Country    string    `json:"country"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// OwnedBy reports whether userID owns the address.
func (a Address) OwnedBy(userID string) bool {
	return a.UserID != nil && *a.UserID == userID
}

// Missing returns the names of required fields that are blank.
func (a Address) Missing() []string {
	var missing []string
	required := map[string]string{
		"full_name":   a.FullName,
		"line1":       a.Line1,
		"city":        a.City,
		"postal_code": a.PostalCode,
	}
	for _, field := range []string{"full_name", "line1", "city", "postal_code"} {
		if strings.TrimSpace(required[field]) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// Format renders the address as the single text block stored on an order.
func (a Address) Format() string {
	var parts []string
	for _, p := range []string{a.FullName, a.Line1, a.Line2, a.City, strings.TrimSpace(a.State + " " + a.PostalCode), a.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	out := strings.Join(parts, ", ")
	if phone := strings.TrimSpace(a.Phone); phone != "" {
		out += " (phone: " + phone + ")"
	}
	return out
}

// CartLineItem is a client-submitted cart line. It only lives for one request.
type CartLineItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
