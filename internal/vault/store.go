package vault

import (
	"context"
	"sync"
	"time"
)

// CredentialRecord holds a hashed credential for one identity. The salt and
// cost parameters are embedded in the PHC-encoded Hash. Records are immutable
// once written; algorithm migration writes a new version, never an in-place
// mutation.
type CredentialRecord struct {
	ID          string
	IdentityKey string
	Hash        string
	Algorithm   string
	Version     int
	CreatedAt   time.Time
}

// CredentialStore is the persistence collaborator for credential records.
// Put must enforce identity uniqueness atomically. Implementations must honor
// context cancellation and deadlines.
type CredentialStore interface {
	Get(ctx context.Context, identityKey string) (CredentialRecord, error)
	Put(ctx context.Context, rec CredentialRecord) error
	Replace(ctx context.Context, rec CredentialRecord) error
}

// MemoryStore is a mutex-guarded in-memory credential store for tests and
// single-process deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]CredentialRecord
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]CredentialRecord)}
}

func (s *MemoryStore) Get(ctx context.Context, identityKey string) (CredentialRecord, error) {
	if err := ctx.Err(); err != nil {
		return CredentialRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[identityKey]
	if !ok {
		return CredentialRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Put(ctx context.Context, rec CredentialRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.IdentityKey]; ok {
		return ErrDuplicateIdentity
	}
	s.records[rec.IdentityKey] = rec
	return nil
}

func (s *MemoryStore) Replace(ctx context.Context, rec CredentialRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.IdentityKey]; !ok {
		return ErrNotFound
	}
	s.records[rec.IdentityKey] = rec
	return nil
}

var _ CredentialStore = (*MemoryStore)(nil)
