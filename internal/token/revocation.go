package token

import (
	"context"
	"sync"
	"time"
)

// RevocationStore is the shared set of token identifiers invalidated before
// their natural expiry. Membership is monotonic: identifiers are only added,
// never removed, until the underlying token expiry has passed, at which point
// an entry may be garbage-collected (the token is rejected by expiry anyway).
// Add is idempotent and safe under arbitrary interleaving.
type RevocationStore interface {
	Add(ctx context.Context, id string, expiresAt time.Time) error
	Contains(ctx context.Context, id string) (bool, error)
}

// MemoryRevocations is a mutex-guarded in-process revocation set. Revocations
// are visible to every subsequent Contains call in the same process.
type MemoryRevocations struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocations constructs an empty set.
func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// WithRevocationClock overrides the time source used for garbage collection.
func (s *MemoryRevocations) WithRevocationClock(fn func() time.Time) *MemoryRevocations {
	if fn != nil {
		s.now = fn
	}
	return s
}

func (s *MemoryRevocations) Add(_ context.Context, id string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	if existing, ok := s.entries[id]; ok && existing.After(expiresAt) {
		return nil
	}
	s.entries[id] = expiresAt
	return nil
}

func (s *MemoryRevocations) Contains(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	_, ok := s.entries[id]
	return ok, nil
}

func (s *MemoryRevocations) sweepLocked() {
	now := s.now()
	for id, exp := range s.entries {
		if !now.Before(exp) {
			delete(s.entries, id)
		}
	}
}

var _ RevocationStore = (*MemoryRevocations)(nil)
