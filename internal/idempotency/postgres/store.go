package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/storefront/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewStore returns a store whose keys stop matching ttl after they were saved. A zero ttl keeps keys forever.
func NewStore(pool *pgxpool.Pool, ttl time.Duration) *Store {
	return &Store{pool: pool, ttl: ttl}
}

func (s *Store) Get(ctx context.Context, key string) (*ports.StoredResponse, error) {
	query := `
		SELECT status_code, body, order_id, created_at
		FROM idempotency_keys
		WHERE key = $1
		  AND ($2::float8 <= 0 OR created_at > now() - make_interval(secs => $2::float8))
	`

	var resp ports.StoredResponse
	err := s.pool.QueryRow(ctx, query, key, s.ttl.Seconds()).Scan(
		&resp.StatusCode,
		&resp.Body,
		&resp.OrderID,
		&resp.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select idempotency key: %w", err)
	}

	return &resp, nil
}

// Save keeps the first live response for a key and replaces expired ones.
func (s *Store) Save(ctx context.Context, key string, response ports.StoredResponse) error {
	query := `
		INSERT INTO idempotency_keys (key, status_code, body, order_id, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (key) DO UPDATE
		SET status_code = EXCLUDED.status_code,
		    body = EXCLUDED.body,
		    order_id = EXCLUDED.order_id,
		    created_at = EXCLUDED.created_at
		WHERE $5::float8 > 0
		  AND idempotency_keys.created_at <= now() - make_interval(secs => $5::float8)
	`

	_, err := s.pool.Exec(ctx, query, key, response.StatusCode, response.Body, response.OrderID, s.ttl.Seconds())
	if err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}

	return nil
}

// Purge deletes keys older than the ttl and reports how many went.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM idempotency_keys WHERE created_at <= now() - make_interval(secs => $1::float8)`,
		s.ttl.Seconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
