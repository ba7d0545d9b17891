package token

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrKeyNotFound indicates no verifying key matches the requested key ID.
var ErrKeyNotFound = errors.New("token: signing key not found")

// KeyProvider supplies the key material used to sign and verify tokens.
// Implementations decide how keys rotate; the service only asks for the
// current signing key and for the verifying key matching a token's kid.
type KeyProvider interface {
	SigningKey() (kid string, key []byte, err error)
	VerifyingKey(kid string) ([]byte, error)
}

// StaticProvider serves a single fixed key. Suitable for tests and
// single-tenant deployments without rotation.
type StaticProvider struct {
	kid string
	key []byte
}

// NewStaticProvider constructs a provider around one secret.
func NewStaticProvider(kid string, key []byte) (*StaticProvider, error) {
	if strings.TrimSpace(kid) == "" {
		return nil, errors.New("token: kid is required")
	}
	if len(key) == 0 {
		return nil, errors.New("token: key is required")
	}
	return &StaticProvider{kid: kid, key: key}, nil
}

func (p *StaticProvider) SigningKey() (string, []byte, error) {
	return p.kid, p.key, nil
}

func (p *StaticProvider) VerifyingKey(kid string) ([]byte, error) {
	if kid != p.kid {
		return nil, ErrKeyNotFound
	}
	return p.key, nil
}

type keyEntry struct {
	kid      string
	key      []byte
	retireAt time.Time
}

// RotatingProvider keeps the current signing key plus the previous one for a
// grace window, so tokens signed just before a rotation still verify until
// the window lapses.
type RotatingProvider struct {
	mu       sync.RWMutex
	current  keyEntry
	previous *keyEntry
	grace    time.Duration
	now      func() time.Time
}

// RotatingOption configures a RotatingProvider.
type RotatingOption func(*RotatingProvider)

// WithGrace sets how long the previous key remains valid after rotation.
func WithGrace(d time.Duration) RotatingOption {
	return func(p *RotatingProvider) {
		if d > 0 {
			p.grace = d
		}
	}
}

// WithKeyClock overrides the provider's time source.
func WithKeyClock(fn func() time.Time) RotatingOption {
	return func(p *RotatingProvider) {
		if fn != nil {
			p.now = fn
		}
	}
}

// NewRotatingProvider constructs a provider seeded with an initial key.
func NewRotatingProvider(kid string, key []byte, opts ...RotatingOption) (*RotatingProvider, error) {
	if strings.TrimSpace(kid) == "" {
		return nil, errors.New("token: kid is required")
	}
	if len(key) == 0 {
		return nil, errors.New("token: key is required")
	}
	p := &RotatingProvider{
		current: keyEntry{kid: kid, key: key},
		grace:   15 * time.Minute,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Rotate installs a new signing key. The outgoing key stays verifiable for
// the grace window.
func (p *RotatingProvider) Rotate(kid string, key []byte) error {
	if strings.TrimSpace(kid) == "" || len(key) == 0 {
		return errors.New("token: kid and key are required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	retired := p.current
	retired.retireAt = p.now().Add(p.grace)
	p.previous = &retired
	p.current = keyEntry{kid: kid, key: key}
	return nil
}

func (p *RotatingProvider) SigningKey() (string, []byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current.kid, p.current.key, nil
}

func (p *RotatingProvider) VerifyingKey(kid string) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if kid == p.current.kid {
		return p.current.key, nil
	}
	if p.previous != nil && kid == p.previous.kid && p.now().Before(p.previous.retireAt) {
		return p.previous.key, nil
	}
	return nil, ErrKeyNotFound
}

var (
	_ KeyProvider = (*StaticProvider)(nil)
	_ KeyProvider = (*RotatingProvider)(nil)
)
