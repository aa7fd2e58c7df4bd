package cache

import (
	"context"
	"sync"
	"time"
)

// memoryEntry is one entry in the in-process store. A zero expiresAt means
// no expiry.
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is a thread-safe in-process Store with per-entry TTL and a
// background sweep. It backs tests and single-node development deployments;
// production uses the Redis store.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*memoryEntry

	sweepInterval time.Duration
	shutdown      chan struct{}
	done          chan struct{}
	closeOnce     sync.Once
}

// NewMemoryStore creates a memory store sweeping expired entries every
// sweepInterval. A zero interval defaults to one minute.
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	s := &MemoryStore{
		items:         make(map[string]*memoryEntry),
		sweepInterval: sweepInterval,
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Get retrieves the value for key, treating expired entries as misses.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	entry, ok := s.items[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if entry.expired(time.Now()) {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// replaced the entry.
		if current, still := s.items[key]; still && current.expired(time.Now()) {
			delete(s.items, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores value under key with the given TTL.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := &memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.items[key] = entry
	s.mu.Unlock()
	return nil
}

// Delete removes key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// Size returns the number of entries, including not-yet-swept expired ones.
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Close stops the sweep goroutine.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.shutdown)
		<-s.done
	})
	return nil
}

func (s *MemoryStore) sweep() {
	defer close(s.done)
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for key, entry := range s.items {
				if entry.expired(now) {
					delete(s.items, key)
				}
			}
			s.mu.Unlock()
		case <-s.shutdown:
			return
		}
	}
}
