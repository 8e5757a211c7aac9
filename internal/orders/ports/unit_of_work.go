package ports

import (
	"context"

	"github.com/dejobratic/storefront/internal/orders/domain"
)

// OrderWriter persists orders and their audit trail.
type OrderWriter interface {
	// NextOrderSequence returns max(sequence)+1 among orders numbered under dayPrefix.
	NextOrderSequence(ctx context.Context, dayPrefix string) (int, error)
	// InsertOrder returns domain.ErrOrderNumberTaken when the number collides.
	InsertOrder(ctx context.Context, order domain.Order) error
	GetOrderForUpdate(ctx context.Context, id string) (*domain.Order, error)
	UpdateOrder(ctx context.Context, order domain.Order) error
	AppendHistory(ctx context.Context, entry domain.StatusHistoryEntry) error
}

// StockWriter adjusts product stock.
type StockWriter interface {
	// DecrementStock subtracts qty only if at least qty units remain. It reports whether it did.
	DecrementStock(ctx context.Context, productID string, qty int) (bool, error)
	IncrementStock(ctx context.Context, productID string, qty int) error
}

// CouponUsageWriter counts coupon redemptions.
type CouponUsageWriter interface {
	// IncrementUsage reports false when the usage limit is already reached.
	IncrementUsage(ctx context.Context, code string) (bool, error)
}

// CartWriter empties a user's saved cart.
type CartWriter interface {
	ClearCart(ctx context.Context, userID string) error
}

// PointsLedger credits loyalty points.
type PointsLedger interface {
	AwardPoints(ctx context.Context, userID string, points int) error
}

// Tx is the set of writes that commit or roll back together.
type Tx interface {
	OrderWriter
	StockWriter
	CouponUsageWriter
	CartWriter
	PointsLedger
}

// UnitOfWork runs fn inside one transaction. A non-nil error from fn rolls everything back.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
