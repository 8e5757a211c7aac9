package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const orderColumns = `
	id, order_number, user_id, guest_name, guest_email, guest_phone, customer_name, items,
	subtotal, delivery_charge, discount_amount, payment_charges, total, coupon_code,
	payment_method, payment_status, delivery_option_id, delivery_address, estimated_delivery,
	status, status_updated_at, points_awarded, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order domain.Order
		items []byte
	)
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&order.GuestName,
		&order.GuestEmail,
		&order.GuestPhone,
		&order.CustomerName,
		&items,
		&order.Subtotal,
		&order.DeliveryCharge,
		&order.DiscountAmount,
		&order.PaymentCharges,
		&order.Total,
		&order.CouponCode,
		&order.PaymentMethod,
		&order.PaymentStatus,
		&order.DeliveryOptionID,
		&order.DeliveryAddress,
		&order.EstimatedDelivery,
		&order.Status,
		&order.StatusUpdatedAt,
		&order.PointsAwarded,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &order.Items); err != nil {
		return nil, fmt.Errorf("decode order items: %w", err)
	}
	return &order, nil
}

func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	return orders, nil
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}

	return order, nil
}

func (r *Repository) List(ctx context.Context, filter ports.ListFilter) ([]domain.Order, error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR user_id = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	var statusFilter *string
	if filter.Status != nil {
		s := string(*filter.Status)
		statusFilter = &s
	}

	offset := (page - 1) * pageSize

	rows, err := r.pool.Query(ctx, query, statusFilter, filter.UserID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}

	return collectOrders(rows)
}

func (r *Repository) ListAdvanceable(ctx context.Context, filter ports.AdvanceableFilter) ([]domain.Order, error) {
	statuses := make([]string, len(filter.Statuses))
	for i, status := range filter.Statuses {
		statuses[i] = string(status)
	}

	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status = ANY($1)
		  AND COALESCE(status_updated_at, created_at) <= $2
		ORDER BY COALESCE(status_updated_at, created_at)
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, statuses, filter.Cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query advanceable orders: %w", err)
	}

	return collectOrders(rows)
}

func (r *Repository) History(ctx context.Context, orderID string) ([]domain.StatusHistoryEntry, error) {
	query := `
		SELECT order_id, status, note, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order history: %w", err)
	}
	defer rows.Close()

	entries := []domain.StatusHistoryEntry{}
	for rows.Next() {
		var entry domain.StatusHistoryEntry
		if err := rows.Scan(&entry.OrderID, &entry.Status, &entry.Note, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return entries, nil
}
