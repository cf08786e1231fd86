// Package devotp provides an in-memory store for plain OTP codes keyed by
// (claim_id, purpose), used only when dev OTP mode is enabled (GET /api/dev/otp).
package devotp

import (
	"context"
	"sync"
	"time"
)

// Store holds plain codes for dev-only retrieval. Not used in production.
type Store interface {
	// Put stores code for the (claimID, purpose) pair until expiresAt.
	Put(ctx context.Context, claimID, purpose, code string, expiresAt time.Time)
	// Get returns the code for the pair if present and not expired. Returns ok false if missing or expired.
	Get(ctx context.Context, claimID, purpose string) (code string, ok bool)
}

type key struct {
	claimID string
	purpose string
}

type entry struct {
	code      string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[key]entry
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory dev OTP store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[key]entry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Put stores code for the pair until expiresAt, replacing any prior code.
func (s *MemoryStore) Put(ctx context.Context, claimID, purpose, code string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key{claimID, purpose}] = entry{code: code, expiresAt: expiresAt}
}

// Get returns the code for the pair if present and not expired.
func (s *MemoryStore) Get(ctx context.Context, claimID, purpose string) (string, bool) {
	k := key{claimID, purpose}
	s.mu.RLock()
	e, ok := s.m[k]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		delete(s.m, k)
		s.mu.Unlock()
		return "", false
	}
	return e.code, true
}
