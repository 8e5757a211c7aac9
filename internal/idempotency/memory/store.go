package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dejobratic/storefront/internal/orders/ports"
)

// Store retains idempotency responses for replaying duplicate requests.
type Store struct {
	mu    sync.RWMutex
	items map[string]ports.StoredResponse
	ttl   time.Duration
	clock func() time.Time
}

// NewStore creates a new in-memory idempotency store. A zero ttl keeps keys forever.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		items: make(map[string]ports.StoredResponse),
		ttl:   ttl,
		clock: time.Now,
	}
}

// Get returns the stored response for a given key if present and not expired.
func (s *Store) Get(_ context.Context, key string) (*ports.StoredResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.items[key]
	if !ok || value.Expired(s.clock(), s.ttl) {
		return nil, nil
	}
	copy := value
	return &copy, nil
}

// Save stores the response for a key unless a live response is already there.
func (s *Store) Save(_ context.Context, key string, response ports.StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	if existing, ok := s.items[key]; ok && !existing.Expired(now, s.ttl) {
		return nil
	}
	response.CreatedAt = now
	s.items[key] = response
	return nil
}

// Purge drops expired keys.
func (s *Store) Purge(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	var purged int64
	for key, value := range s.items {
		if value.Expired(now, s.ttl) {
			delete(s.items, key)
			purged++
		}
	}
	return purged, nil
}
