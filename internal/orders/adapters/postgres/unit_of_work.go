package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dejobratic/storefront/internal/database"
	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderNumberConstraint = "orders_order_number_key"

// UnitOfWork runs order writes inside one read-committed transaction.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	return pgx.BeginTxFunc(ctx, u.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &txWriter{tx: tx})
	})
}

type txWriter struct {
	tx pgx.Tx
}

// NextOrderSequence serialises numbering per day with an advisory lock held until commit.
func (w *txWriter) NextOrderSequence(ctx context.Context, dayPrefix string) (int, error) {
	if _, err := w.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, dayPrefix); err != nil {
		return 0, fmt.Errorf("lock order numbers: %w", err)
	}

	query := `
		SELECT COALESCE(MAX(CAST(SUBSTRING(order_number FROM $2::int) AS INTEGER)), 0)
		FROM orders
		WHERE order_number LIKE $1 || '%'
		  AND SUBSTRING(order_number FROM $2::int) ~ '^[0-9]+$'
	`

	var highest int
	if err := w.tx.QueryRow(ctx, query, dayPrefix, len(dayPrefix)+1).Scan(&highest); err != nil {
		return 0, fmt.Errorf("select max order number: %w", err)
	}
	return highest + 1, nil
}

func (w *txWriter) InsertOrder(ctx context.Context, order domain.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("encode order items: %w", err)
	}

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`

	_, err = w.tx.Exec(ctx, query,
		order.ID,
		order.OrderNumber,
		order.UserID,
		order.GuestName,
		order.GuestEmail,
		order.GuestPhone,
		order.CustomerName,
		items,
		order.Subtotal,
		order.DeliveryCharge,
		order.DiscountAmount,
		order.PaymentCharges,
		order.Total,
		order.CouponCode,
		order.PaymentMethod,
		order.PaymentStatus,
		order.DeliveryOptionID,
		order.DeliveryAddress,
		order.EstimatedDelivery,
		order.Status,
		order.StatusUpdatedAt,
		order.PointsAwarded,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, orderNumberConstraint) {
			return fmt.Errorf("insert order %s: %w", order.OrderNumber, domain.ErrOrderNumberTaken)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func (w *txWriter) GetOrderForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	order, err := scanOrder(w.tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select order for update: %w", err)
	}
	return order, nil
}

func (w *txWriter) UpdateOrder(ctx context.Context, order domain.Order) error {
	query := `
		UPDATE orders
		SET status = $2,
		    status_updated_at = $3,
		    points_awarded = $4,
		    delivery_address = $5,
		    payment_status = $6,
		    updated_at = $7
		WHERE id = $1
	`

	result, err := w.tx.Exec(ctx, query,
		order.ID,
		order.Status,
		order.StatusUpdatedAt,
		order.PointsAwarded,
		order.DeliveryAddress,
		order.PaymentStatus,
		order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}

	return nil
}

func (w *txWriter) AppendHistory(ctx context.Context, entry domain.StatusHistoryEntry) error {
	query := `
		INSERT INTO order_status_history (order_id, status, note, created_at)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := w.tx.Exec(ctx, query, entry.OrderID, entry.Status, entry.Note, entry.CreatedAt); err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

func (w *txWriter) DecrementStock(ctx context.Context, productID string, qty int) (bool, error) {
	query := `
		UPDATE products
		SET stock_quantity = stock_quantity - $2, updated_at = now()
		WHERE id = $1 AND is_active AND stock_quantity >= $2
	`

	result, err := w.tx.Exec(ctx, query, productID, qty)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func (w *txWriter) IncrementStock(ctx context.Context, productID string, qty int) error {
	query := `
		UPDATE products
		SET stock_quantity = stock_quantity + $2, updated_at = now()
		WHERE id = $1
	`

	if _, err := w.tx.Exec(ctx, query, productID, qty); err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	return nil
}

func (w *txWriter) IncrementUsage(ctx context.Context, code string) (bool, error) {
	query := `
		UPDATE coupons
		SET used_count = used_count + 1
		WHERE lower(code) = lower($1)
		  AND (usage_limit IS NULL OR used_count < usage_limit)
	`

	result, err := w.tx.Exec(ctx, query, code)
	if err != nil {
		return false, fmt.Errorf("increment coupon usage: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func (w *txWriter) ClearCart(ctx context.Context, userID string) error {
	if _, err := w.tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (w *txWriter) AwardPoints(ctx context.Context, userID string, points int) error {
	result, err := w.tx.Exec(ctx,
		`UPDATE users SET loyalty_points = loyalty_points + $2 WHERE id = $1`,
		userID, points,
	)
	if err != nil {
		return fmt.Errorf("award points: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}
