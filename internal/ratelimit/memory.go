package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count int
	reset time.Time
}

// MemoryStore keeps counters in a mutex-guarded map. Hits for the same
// key are serialized by the lock, so concurrent requests in one window
// never lose an increment.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryStore constructs an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// Hit applies fixed-window counting for key.
func (s *MemoryStore) Hit(_ context.Context, key string, cfg Config) (Decision, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || !now.Before(entry.reset) {
		entry = &memoryEntry{count: 1, reset: now.Add(cfg.Window)}
		s.entries[key] = entry
		return Decision{Allowed: true, Remaining: cfg.MaxRequests - 1, Reset: entry.reset}, nil
	}
	if entry.count >= cfg.MaxRequests {
		return Decision{Allowed: false, Remaining: 0, Reset: entry.reset}, nil
	}
	entry.count++
	return Decision{Allowed: true, Remaining: cfg.MaxRequests - entry.count, Reset: entry.reset}, nil
}

// Janitor drops expired windows every interval until ctx is done. Expired
// entries are also replaced lazily on hit; the janitor only bounds memory
// for keys that never come back.
func (s *MemoryStore) Janitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		if !now.Before(entry.reset) {
			delete(s.entries, key)
		}
	}
}

// Len reports the number of live windows.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
