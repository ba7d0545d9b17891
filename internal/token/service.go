package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"aegis.org/internal/obs"
)

const (
	// KindAccess and KindRefresh discriminate the two token flavors carried
	// in the kind claim.
	KindAccess  = "access"
	KindRefresh = "refresh"

	defaultAccessTTL  = 30 * time.Minute
	defaultRefreshTTL = 24 * time.Hour
)

var (
	ErrInvalidToken     = errors.New("token: invalid token")
	ErrInvalidSignature = errors.New("token: invalid signature")
	ErrExpired          = errors.New("token: expired")
	ErrRevoked          = errors.New("token: revoked")
)

// Claims is the signed claim set. The JWT signature covers every field, so
// any mutation invalidates the token.
type Claims struct {
	Roles  []string `json:"roles,omitempty"`
	Scopes []string `json:"scopes,omitempty"`
	Kind   string   `json:"kind"`
	jwt.RegisteredClaims
}

// Pair bundles a freshly issued access and refresh token.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Service issues, verifies, refreshes, and revokes signed identity tokens.
// Issued tokens are immutable; revocation is logical, via the revocation set.
type Service struct {
	keys       KeyProvider
	revoked    RevocationStore
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) Option {
	return func(s *Service) { s.issuer = strings.TrimSpace(issuer) }
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a token service.
func NewService(keys KeyProvider, revoked RevocationStore, opts ...Option) (*Service, error) {
	if keys == nil {
		return nil, errors.New("token: key provider is required")
	}
	if revoked == nil {
		return nil, errors.New("token: revocation store is required")
	}
	s := &Service{
		keys:       keys,
		revoked:    revoked,
		issuer:     "aegis",
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueAccess signs a short-lived access token for the identity.
func (s *Service) IssueAccess(identity string, roles, scopes []string) (string, time.Time, error) {
	return s.issue(identity, roles, scopes, KindAccess, s.accessTTL)
}

// IssueRefresh signs a long-lived refresh token for the identity.
func (s *Service) IssueRefresh(identity string, roles, scopes []string) (string, time.Time, error) {
	return s.issue(identity, roles, scopes, KindRefresh, s.refreshTTL)
}

// IssuePair mints a matching access and refresh token.
func (s *Service) IssuePair(identity string, roles, scopes []string) (Pair, error) {
	access, accessExp, err := s.IssueAccess(identity, roles, scopes)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshExp, err := s.IssueRefresh(identity, roles, scopes)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *Service) issue(identity string, roles, scopes []string, kind string, ttl time.Duration) (string, time.Time, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", time.Time{}, errors.New("token: identity is required")
	}
	kid, key, err := s.keys.SigningKey()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: signing key: %w", err)
	}

	now := s.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Roles:  dedupe(roles),
		Scopes: dedupe(scopes),
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}
	obs.ObserveTokenIssued(kind)
	return signed, exp, nil
}

// Verify checks signature, expiry, and revocation, in that order. The
// signature runs first so the other checks never trust unsigned claims.
func (s *Service) Verify(ctx context.Context, tokenString string) (Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return Claims{}, err
	}
	revoked, err := s.revoked.Contains(ctx, claims.ID)
	if err != nil {
		return Claims{}, fmt.Errorf("token: revocation lookup: %w", err)
	}
	if revoked {
		obs.ObserveTokenVerification("revoked")
		return Claims{}, ErrRevoked
	}
	obs.ObserveTokenVerification("ok")
	return claims, nil
}

// Refresh verifies the refresh token, rotates it (the superseded identifier
// enters the revocation set, closing the replay window), and issues a fresh
// pair carrying the same identity, roles, and scopes. The returned claims
// are those of the rotated token.
func (s *Service) Refresh(ctx context.Context, refreshString string) (Pair, Claims, error) {
	claims, err := s.Verify(ctx, refreshString)
	if err != nil {
		return Pair{}, Claims{}, err
	}
	if claims.Kind != KindRefresh {
		return Pair{}, Claims{}, ErrInvalidToken
	}
	if err := s.revoked.Add(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return Pair{}, Claims{}, fmt.Errorf("token: rotate: %w", err)
	}
	pair, err := s.IssuePair(claims.Subject, claims.Roles, claims.Scopes)
	if err != nil {
		return Pair{}, Claims{}, err
	}
	return pair, claims, nil
}

// Revoke parses just enough of the token to extract its identifier and
// inserts it into the revocation set. Full verification is deliberately
// skipped: a tampered or near-expired token can still be blacklisted.
// Revoking twice is not an error.
func (s *Service) Revoke(ctx context.Context, tokenString string) error {
	parser := jwt.NewParser()
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(strings.TrimSpace(tokenString), claims); err != nil {
		return ErrInvalidToken
	}
	if strings.TrimSpace(claims.ID) == "" {
		return ErrInvalidToken
	}
	exp := s.now().UTC().Add(s.refreshTTL)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return s.revoked.Add(ctx, claims.ID, exp)
}

func (s *Service) parse(tokenString string) (Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Claims{}, ErrInvalidToken
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, err := s.keys.VerifyingKey(kid)
		if err != nil {
			return nil, err
		}
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		obs.ObserveTokenVerification("expired")
		return Claims{}, ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, ErrKeyNotFound):
		obs.ObserveTokenVerification("invalid_signature")
		return Claims{}, ErrInvalidSignature
	default:
		obs.ObserveTokenVerification("invalid")
		return Claims{}, ErrInvalidToken
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" || claims.ID == "" {
		return Claims{}, ErrInvalidToken
	}
	// Tokens issued at or after their own expiry are never acceptable.
	if claims.IssuedAt != nil && !claims.IssuedAt.Time.Before(claims.ExpiresAt.Time) {
		return Claims{}, ErrInvalidToken
	}
	claims.Roles = dedupe(claims.Roles)
	claims.Scopes = dedupe(claims.Scopes)
	return *claims, nil
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	var normalized []string
	for _, v := range values {
		v = strings.TrimSpace(strings.ToLower(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		normalized = append(normalized, v)
	}
	return normalized
}
