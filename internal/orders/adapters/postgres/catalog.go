package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Catalog reads products, coupons, delivery options and customers.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

func (c *Catalog) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	query := `
		SELECT id, name, price, stock_quantity, is_active
		FROM products
		WHERE id = $1
	`

	var product domain.Product
	err := c.pool.QueryRow(ctx, query, id).Scan(
		&product.ID,
		&product.Name,
		&product.Price,
		&product.StockQuantity,
		&product.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select product: %w", err)
	}

	return &product, nil
}

func (c *Catalog) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	query := `
		SELECT code, discount_type, discount_value, max_discount, min_order_value,
		       valid_from, valid_until, usage_limit, used_count, is_active
		FROM coupons
		WHERE lower(code) = lower($1)
	`

	var (
		coupon      domain.Coupon
		maxDiscount decimal.NullDecimal
	)
	err := c.pool.QueryRow(ctx, query, code).Scan(
		&coupon.Code,
		&coupon.DiscountType,
		&coupon.Value,
		&maxDiscount,
		&coupon.MinOrderAmount,
		&coupon.ValidFrom,
		&coupon.ValidUntil,
		&coupon.UsageLimit,
		&coupon.UsedCount,
		&coupon.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select coupon: %w", err)
	}

	if maxDiscount.Valid {
		coupon.MaxDiscount = &maxDiscount.Decimal
	}
	coupon.Code = domain.NormalizeCouponCode(coupon.Code)

	return &coupon, nil
}

func (c *Catalog) GetDeliveryOption(ctx context.Context, id string) (*domain.DeliveryOption, error) {
	query := `
		SELECT id, name, charge, estimated_days, is_active
		FROM delivery_options
		WHERE id = $1
	`

	var option domain.DeliveryOption
	err := c.pool.QueryRow(ctx, query, id).Scan(
		&option.ID,
		&option.Name,
		&option.Charge,
		&option.EstimatedDays,
		&option.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select delivery option: %w", err)
	}

	return &option, nil
}

func (c *Catalog) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	query := `
		SELECT id, name, email, phone, loyalty_points
		FROM users
		WHERE id = $1
	`

	var customer domain.Customer
	err := c.pool.QueryRow(ctx, query, id).Scan(
		&customer.ID,
		&customer.Name,
		&customer.Email,
		&customer.Phone,
		&customer.LoyaltyPoints,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select customer: %w", err)
	}

	return &customer, nil
}
