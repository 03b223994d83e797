// Package idempotency replays the stored response of a write request when a
// client retries it with the same Idempotency-Key header. Admissions and
// payments are registered behind it so a retried POST never admits a patient
// twice or records the same payment twice.
package idempotency

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// DefaultTTL is how long a stored response stays replayable.
const DefaultTTL = 24 * time.Hour

// lockTTL bounds how long an in-flight key blocks duplicates if the holder
// dies before releasing it.
const lockTTL = 30 * time.Second

// Entry is a captured response.
type Entry struct {
	Method     string      `json:"method"`
	Path       string      `json:"path"`
	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers,omitempty"`
	Body       []byte      `json:"body"`
	CreatedAt  time.Time   `json:"created_at"`
	ExpiresAt  time.Time   `json:"expires_at"`
}

// Store persists captured responses. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, entry *Entry) error
	// Lock marks key as in flight. It returns false when another request
	// holds the key.
	Lock(ctx context.Context, key string) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// MemoryStore keeps entries in process memory. It is used when no Redis URL
// is configured and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
	locks   map[string]time.Time
	ttl     time.Duration
	nowFunc func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates a MemoryStore and starts an hourly eviction loop.
// A non-positive ttl selects DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &MemoryStore{
		entries: make(map[string]*Entry),
		locks:   make(map[string]time.Time),
		ttl:     ttl,
		nowFunc: time.Now,
		stop:    make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.stop:
			return
		}
	}
}

// Stop terminates the eviction loop.
func (s *MemoryStore) Stop() {
	s.once.Do(func() { close(s.stop) })
}

func (s *MemoryStore) evictExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFunc()
	for key, e := range s.entries {
		if now.After(e.ExpiresAt) {
			delete(s.entries, key)
		}
	}
	for key, until := range s.locks {
		if now.After(until) {
			delete(s.locks, key)
		}
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || s.nowFunc().After(e.ExpiresAt) {
		return nil, false, nil
	}
	return e.clone(), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := entry.clone()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.nowFunc()
	}
	if cp.ExpiresAt.IsZero() {
		cp.ExpiresAt = cp.CreatedAt.Add(s.ttl)
	}
	s.entries[key] = cp
	return nil
}

func (s *MemoryStore) Lock(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFunc()
	if until, ok := s.locks[key]; ok && now.Before(until) {
		return false, nil
	}
	s.locks[key] = now.Add(lockTTL)
	return true, nil
}

func (s *MemoryStore) Unlock(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, key)
	return nil
}

func (e *Entry) clone() *Entry {
	cp := *e
	if e.Headers != nil {
		cp.Headers = e.Headers.Clone()
	}
	cp.Body = make([]byte, len(e.Body))
	copy(cp.Body, e.Body)
	return &cp
}
