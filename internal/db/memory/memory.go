// Package memory provides an in-process db.Store for single-node
// deployments and tests. TTL is enforced lazily on read and by Scan.
package memory

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/coursemind/coursemind/internal/db"
)

var _ db.Store = (*Store)(nil)

type entry struct {
	value     []byte
	expiresAt time.Time // zero = no expiry
}

// Store is an in-memory key-value store.
type Store struct {
	mu   sync.RWMutex
	data map[string]entry
	now  func() time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{data: make(map[string]entry), now: time.Now}
}

// WithClock overrides the time source. Test seam.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() {}

func (s *Store) WaitForReady(context.Context, time.Duration) error { return nil }

// Get retrieves a value by key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()
	if !ok || s.expired(e) {
		return nil, db.ErrKeyNotFound
	}
	return e.value, nil
}

// Set stores a value at the given key.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = entry{value: value}
	return nil
}

// SetWithTTL stores a value with an expiration.
func (s *Store) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = entry{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

// Del removes a key. Deleting a missing key is not an error.
func (s *Store) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Scan returns all live keys matching the glob pattern and drops expired ones.
func (s *Store) Scan(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k, e := range s.data {
		if s.expired(e) {
			delete(s.data, k)
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *Store) expired(e entry) bool {
	return !e.expiresAt.IsZero() && s.now().After(e.expiresAt)
}
