package ports

import (
	"context"
	"time"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/shopspring/decimal"
)

// NotificationKind names the order event a notification is about.
type NotificationKind string

const (
	NotificationOrderConfirmed NotificationKind = "order.confirmed"
	NotificationStatusChanged  NotificationKind = "order.status_changed"
)

// Notification is the self-contained payload handed to SMS, WhatsApp and email senders.
type Notification struct {
	Kind           NotificationKind   `json:"kind"`
	OrderID        string             `json:"order_id"`
	OrderNumber    string             `json:"order_number"`
	Status         domain.OrderStatus `json:"status"`
	PreviousStatus domain.OrderStatus `json:"previous_status,omitempty"`
	CustomerName   string             `json:"customer_name"`
	Email          string             `json:"email,omitempty"`
	Phone          string             `json:"phone,omitempty"`
	Items          []domain.LineItem  `json:"items,omitempty"`
	Total          decimal.Decimal    `json:"total"`
	PaymentMethod  string             `json:"payment_method,omitempty"`
	Note           string             `json:"note,omitempty"`
	OccurredAt     time.Time          `json:"occurred_at"`
}

// NotificationSink delivers a notification to the outside world.
type NotificationSink interface {
	Notify(ctx context.Context, n Notification) error
}

// Notifier accepts notifications without blocking the caller or reporting failures.
type Notifier interface {
	Enqueue(ctx context.Context, n Notification)
}
