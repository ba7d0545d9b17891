package vault

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"

	"aegis.org/internal/ids"
	"aegis.org/internal/obs"
)

// Algorithm identifies the hashing scheme stored alongside each record.
const Algorithm = "argon2id"

var (
	ErrWeakPassword       = errors.New("vault: password too weak")
	ErrDuplicateIdentity  = errors.New("vault: identity already registered")
	ErrNotFound           = errors.New("vault: credential not found")
	ErrStorageUnavailable = errors.New("vault: credential storage unavailable")
)

// Params control the argon2id cost. Cost is configured, never unbounded.
type Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams mirror the interactive-login cost profile.
var DefaultParams = Params{
	Memory:      64 * 1024,
	Iterations:  2,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Vault hashes and verifies passwords and owns credential records. It performs
// no network I/O of its own; persistence goes through the injected store.
type Vault struct {
	store  CredentialStore
	params Params
	now    func() time.Time
}

// Option configures Vault behavior.
type Option func(*Vault)

// WithParams overrides the hashing cost parameters.
func WithParams(p Params) Option {
	return func(v *Vault) {
		if p.Memory > 0 && p.Iterations > 0 && p.Parallelism > 0 && p.SaltLength > 0 && p.KeyLength > 0 {
			v.params = p
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(v *Vault) {
		if fn != nil {
			v.now = fn
		}
	}
}

// New constructs a Vault backed by the given credential store.
func New(store CredentialStore, opts ...Option) *Vault {
	v := &Vault{
		store:  store,
		params: DefaultParams,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Hash derives a salted argon2id hash of the password. Every call draws a
// fresh random salt, so hashing the same password twice yields different
// encodings.
func (v *Vault) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("vault: password is empty")
	}
	start := v.now()
	salt := make([]byte, v.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, v.params.Iterations, v.params.Memory, v.params.Parallelism, v.params.KeyLength)
	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		v.params.Memory,
		v.params.Iterations,
		v.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)
	obs.ObserveHashDuration(v.now().Sub(start))
	return encoded, nil
}

// Verify recomputes the hash with the parameters embedded in the encoding and
// compares in constant time.
func (v *Vault) Verify(password, encoded string) error {
	salt, hash, params, err := decodeHash(encoded)
	if err != nil {
		return err
	}
	computed := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, uint32(len(hash)))
	if subtle.ConstantTimeCompare(hash, computed) != 1 {
		return errors.New("vault: password mismatch")
	}
	return nil
}

// Store checks password strength, hashes, and persists a new credential
// record. The store enforces identity uniqueness atomically; a duplicate key
// fails with ErrDuplicateIdentity, a storage failure with
// ErrStorageUnavailable wrapping the cause.
func (v *Vault) Store(ctx context.Context, identityKey, password string) (CredentialRecord, error) {
	identityKey = strings.TrimSpace(identityKey)
	if identityKey == "" {
		return CredentialRecord{}, errors.New("vault: identity key is required")
	}
	if err := CheckPasswordStrength(password); err != nil {
		return CredentialRecord{}, err
	}
	encoded, err := v.Hash(password)
	if err != nil {
		return CredentialRecord{}, err
	}
	rec := CredentialRecord{
		ID:          ids.New(),
		IdentityKey: identityKey,
		Hash:        encoded,
		Algorithm:   Algorithm,
		Version:     1,
		CreatedAt:   v.now().UTC(),
	}
	if err := v.store.Put(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			return CredentialRecord{}, ErrDuplicateIdentity
		}
		return CredentialRecord{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return rec, nil
}

// Lookup fetches the credential record for the identity key.
func (v *Vault) Lookup(ctx context.Context, identityKey string) (CredentialRecord, error) {
	rec, err := v.store.Get(ctx, identityKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return CredentialRecord{}, ErrNotFound
		}
		return CredentialRecord{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return rec, nil
}

// Rehash verifies the password against the stored record and, on success,
// writes a new record version hashed with the vault's current parameters.
// The superseded hash is never mutated in place.
func (v *Vault) Rehash(ctx context.Context, identityKey, password string) (CredentialRecord, error) {
	rec, err := v.Lookup(ctx, identityKey)
	if err != nil {
		return CredentialRecord{}, err
	}
	if err := v.Verify(password, rec.Hash); err != nil {
		return CredentialRecord{}, err
	}
	encoded, err := v.Hash(password)
	if err != nil {
		return CredentialRecord{}, err
	}
	next := CredentialRecord{
		ID:          ids.New(),
		IdentityKey: rec.IdentityKey,
		Hash:        encoded,
		Algorithm:   Algorithm,
		Version:     rec.Version + 1,
		CreatedAt:   v.now().UTC(),
	}
	if err := v.store.Replace(ctx, next); err != nil {
		return CredentialRecord{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return next, nil
}

// CheckPasswordStrength applies the minimum-entropy policy: at least eight
// characters and not purely numeric.
func CheckPasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: shorter than 8 characters", ErrWeakPassword)
	}
	numeric := true
	for _, r := range password {
		if r < '0' || r > '9' {
			numeric = false
			break
		}
	}
	if numeric {
		return fmt.Errorf("%w: purely numeric", ErrWeakPassword)
	}
	return nil
}

func decodeHash(encoded string) (salt, hash []byte, params Params, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, Params{}, errors.New("vault: malformed hash encoding")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, Params{}, errors.New("vault: malformed hash encoding")
	}
	if version != argon2.Version {
		return nil, nil, Params{}, fmt.Errorf("vault: unsupported argon2 version %d", version)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return nil, nil, Params{}, errors.New("vault: malformed hash encoding")
	}
	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, Params{}, errors.New("vault: malformed hash encoding")
	}
	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, Params{}, errors.New("vault: malformed hash encoding")
	}
	params.SaltLength = uint32(len(salt))
	params.KeyLength = uint32(len(hash))
	return salt, hash, params, nil
}
