package ports

import (
	"context"
	"time"
)

// StoredResponse contains the response data to replay for a reused key.
type StoredResponse struct {
	StatusCode int
	Body       []byte
	OrderID    string
	CreatedAt  time.Time
}

// Expired reports whether the response is older than ttl. A zero ttl never expires.
func (r StoredResponse) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(r.CreatedAt) > ttl
}

// IdempotencyStore lets order placement be retried safely. Keys expire after the store's TTL.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*StoredResponse, error)
	Save(ctx context.Context, key string, response StoredResponse) error
}
