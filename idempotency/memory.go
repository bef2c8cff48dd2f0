package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     bool
	expiresAt time.Time // zero means no expiry
}

// MemoryStore keeps keys in process memory. It suits tests and single-instance
// deployments; marks are lost on restart and not shared between replicas.
type MemoryStore struct {
	instrumentation

	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instrumentation: instrumentation{backend: BackendMemory},
		entries:         make(map[string]memoryEntry),
		now:             time.Now,
	}
}

// WithClock replaces time.Now, for expiry tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Get(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		s.observe("get", start, err, false)
		return false, err
	}

	s.mu.Lock()
	entry, ok := s.entries[key]
	if ok && !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		ok = false
	}
	s.mu.Unlock()

	hit := ok && entry.value
	s.observe("get", start, nil, hit)
	return hit, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value bool, ttl time.Duration) error {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		s.observe("set", start, err, false)
		return err
	}

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()

	s.observe("set", start, nil, false)
	return nil
}

// Len returns the number of stored keys, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
