package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dejobratic/storefront/internal/orders/domain"
	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const addressColumns = `
	id, user_id, email, full_name, phone, line1, line2, city, state, postal_code, country,
	created_at, updated_at`

func scanAddress(row rowScanner) (*domain.Address, error) {
	var address domain.Address
	err := row.Scan(
		&address.ID,
		&address.UserID,
		&address.Email,
		&address.FullName,
		&address.Phone,
		&address.Line1,
		&address.Line2,
		&address.City,
		&address.State,
		&address.PostalCode,
		&address.Country,
		&address.CreatedAt,
		&address.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &address, nil
}

type AddressStore struct {
	pool *pgxpool.Pool
}

func NewAddressStore(pool *pgxpool.Pool) *AddressStore {
	return &AddressStore{pool: pool}
}

func (s *AddressStore) CreateAddress(ctx context.Context, address domain.Address) (*domain.Address, error) {
	if address.ID == "" {
		address.ID = uuid.NewString()
	}

	query := `
		INSERT INTO addresses (id, user_id, email, full_name, phone, line1, line2, city, state, postal_code, country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + addressColumns

	created, err := scanAddress(s.pool.QueryRow(ctx, query,
		address.ID,
		address.UserID,
		address.Email,
		address.FullName,
		address.Phone,
		address.Line1,
		address.Line2,
		address.City,
		address.State,
		address.PostalCode,
		address.Country,
	))
	if err != nil {
		return nil, fmt.Errorf("insert address: %w", err)
	}

	return created, nil
}

func (s *AddressStore) GetAddress(ctx context.Context, id string) (*domain.Address, error) {
	query := `SELECT ` + addressColumns + ` FROM addresses WHERE id = $1`

	address, err := scanAddress(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select address: %w", err)
	}

	return address, nil
}

func (s *AddressStore) ListAddresses(ctx context.Context, owner ports.AddressOwner) ([]domain.Address, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if owner.UserID != "" {
		rows, err = s.pool.Query(ctx,
			`SELECT `+addressColumns+` FROM addresses WHERE user_id = $1 ORDER BY created_at`,
			owner.UserID,
		)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+addressColumns+` FROM addresses WHERE user_id IS NULL AND lower(email) = lower($1) ORDER BY created_at`,
			owner.Email,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("query addresses: %w", err)
	}
	defer rows.Close()

	addresses := []domain.Address{}
	for rows.Next() {
		address, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addresses = append(addresses, *address)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate addresses: %w", err)
	}

	return addresses, nil
}

func (s *AddressStore) UpdateAddress(ctx context.Context, address domain.Address) error {
	query := `
		UPDATE addresses
		SET email = $2, full_name = $3, phone = $4, line1 = $5, line2 = $6,
		    city = $7, state = $8, postal_code = $9, country = $10, updated_at = now()
		WHERE id = $1
	`

	result, err := s.pool.Exec(ctx, query,
		address.ID,
		address.Email,
		address.FullName,
		address.Phone,
		address.Line1,
		address.Line2,
		address.City,
		address.State,
		address.PostalCode,
		address.Country,
	)
	if err != nil {
		return fmt.Errorf("update address: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}

	return nil
}

func (s *AddressStore) DeleteAddress(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM addresses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ports.ErrNotFound
	}

	return nil
}

// AssignGuestAddresses only touches rows still without an owner, so repeating it is a no-op.
func (s *AddressStore) AssignGuestAddresses(ctx context.Context, email, userID string) (int64, error) {
	query := `
		UPDATE addresses
		SET user_id = $2, updated_at = now()
		WHERE user_id IS NULL AND lower(email) = lower($1)
	`

	result, err := s.pool.Exec(ctx, query, email, userID)
	if err != nil {
		return 0, fmt.Errorf("assign guest addresses: %w", err)
	}

	return result.RowsAffected(), nil
}
