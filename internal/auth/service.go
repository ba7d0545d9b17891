package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"aegis.org/internal/audit"
	"aegis.org/internal/obs"
	"aegis.org/internal/policy"
	"aegis.org/internal/ratelimit"
	"aegis.org/internal/token"
	"aegis.org/internal/vault"
)

// AttributeSource resolves the roles and scopes attached to an identity.
// It is an external collaborator: the core does not own a role directory.
type AttributeSource interface {
	Attributes(ctx context.Context, identityKey string) (roles, scopes []string, err error)
}

// AttributeSourceFunc adapts a function to the AttributeSource interface.
type AttributeSourceFunc func(ctx context.Context, identityKey string) ([]string, []string, error)

func (f AttributeSourceFunc) Attributes(ctx context.Context, identityKey string) ([]string, []string, error) {
	return f(ctx, identityKey)
}

// Requirement names what a protected operation demands: a role set (any-of),
// a scope set (all-of), and an attribute-policy list (any-of). Non-empty
// groups are ANDed together. An entirely empty requirement denies: absence
// of an explicit grant is not a grant.
type Requirement struct {
	Roles    []string
	Scopes   []string
	Policies []policy.Policy
	Resource policy.Resource
	Env      policy.Env
}

func (r Requirement) policyChain() policy.Policy {
	var checks []policy.Policy
	if len(r.Roles) > 0 {
		checks = append(checks, policy.AnyRole(r.Roles...))
	}
	if len(r.Scopes) > 0 {
		checks = append(checks, policy.AllScopes(r.Scopes...))
	}
	if len(r.Policies) > 0 {
		checks = append(checks, policy.AnyOf(r.Policies...))
	}
	return policy.AllOf(checks...)
}

// Service composes the vault, rate limiter, and token service into the login
// use case, and the token service and policy engine into the authorization
// use case.
type Service struct {
	vault   *vault.Vault
	tokens  *token.Service
	limiter ratelimit.Limiter
	attrs   AttributeSource
	sink    audit.Sink
	now     func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithAuditSink overrides the audit sink.
func WithAuditSink(sink audit.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithAttributeSource installs the collaborator that resolves roles and
// scopes for an identity at login time.
func WithAttributeSource(src AttributeSource) Option {
	return func(s *Service) {
		if src != nil {
			s.attrs = src
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

// NewService constructs the orchestrator.
func NewService(v *vault.Vault, tokens *token.Service, limiter ratelimit.Limiter, opts ...Option) (*Service, error) {
	if v == nil {
		return nil, errors.New("auth: vault is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	if limiter == nil {
		return nil, errors.New("auth: rate limiter is required")
	}
	s := &Service{
		vault:   v,
		tokens:  tokens,
		limiter: limiter,
		attrs:   AttributeSourceFunc(func(context.Context, string) ([]string, []string, error) { return nil, nil, nil }),
		sink:    audit.NewLogSink(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Login authenticates the credentials and issues a token pair. The rate
// limiter is consulted first: a throttled identity short-circuits before the
// vault or token service run, even if the password is correct.
func (s *Service) Login(ctx context.Context, identityKey, password string) (token.Pair, error) {
	identityKey = strings.TrimSpace(identityKey)
	if identityKey == "" || password == "" {
		obs.ObserveLogin("failed")
		return token.Pair{}, ErrInvalidCredentials
	}

	if !s.limiter.Allow(identityKey) {
		s.sink.Record(ctx, audit.LoginThrottled, identityKey, s.now())
		obs.ObserveLogin("throttled")
		return token.Pair{}, ErrRateLimited
	}

	rec, err := s.vault.Lookup(ctx, identityKey)
	if err != nil {
		switch {
		case errors.Is(err, vault.ErrNotFound):
			// Same caller-visible error as a wrong password; the audit trail
			// keeps the distinction.
			s.sink.Record(ctx, audit.LoginUnknown, identityKey, s.now())
			obs.ObserveLogin("failed")
			return token.Pair{}, ErrInvalidCredentials
		default:
			// Storage failures and timeouts must never be misreported as an
			// authentication failure.
			obs.ObserveLogin("error")
			return token.Pair{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
	}

	if err := s.vault.Verify(password, rec.Hash); err != nil {
		s.sink.Record(ctx, audit.LoginFailed, identityKey, s.now())
		obs.ObserveLogin("failed")
		return token.Pair{}, ErrInvalidCredentials
	}

	roles, scopes, err := s.attrs.Attributes(ctx, identityKey)
	if err != nil {
		obs.ObserveLogin("error")
		return token.Pair{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	pair, err := s.tokens.IssuePair(identityKey, roles, scopes)
	if err != nil {
		obs.ObserveLogin("error")
		return token.Pair{}, err
	}
	s.sink.Record(ctx, audit.LoginSucceeded, identityKey, s.now())
	obs.ObserveLogin("succeeded")
	return pair, nil
}

// Refresh rotates the refresh token and returns a fresh pair. Verification
// errors surface unchanged (ErrInvalidSignature, ErrExpired, ErrRevoked).
func (s *Service) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	pair, claims, err := s.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		return token.Pair{}, err
	}
	s.sink.Record(ctx, audit.TokenRefreshed, claims.Subject, s.now())
	return pair, nil
}

// Authorize verifies the access token and evaluates the requirement against
// the claims. Any verification failure returns ErrUnauthorized before policy
// evaluation runs; an authenticated subject that fails the requirement gets
// ErrForbidden.
func (s *Service) Authorize(ctx context.Context, accessToken string, req Requirement) (policy.Subject, error) {
	claims, err := s.tokens.Verify(ctx, accessToken)
	if err != nil {
		return policy.Subject{}, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if claims.Kind != token.KindAccess {
		return policy.Subject{}, fmt.Errorf("%w: not an access token", ErrUnauthorized)
	}

	sub := policy.Subject{
		ID:     claims.Subject,
		Roles:  claims.Roles,
		Scopes: claims.Scopes,
	}
	if !req.policyChain()(sub, req.Resource, req.Env) {
		return policy.Subject{}, ErrForbidden
	}
	return sub, nil
}

// Revoke blacklists the token's identifier (logout or forced invalidation).
// Idempotent.
func (s *Service) Revoke(ctx context.Context, tokenString string) error {
	if err := s.tokens.Revoke(ctx, tokenString); err != nil {
		return err
	}
	s.sink.Record(ctx, audit.TokenRevoked, "", s.now())
	return nil
}

// Register creates a credential record for a new identity.
func (s *Service) Register(ctx context.Context, identityKey, password string) (vault.CredentialRecord, error) {
	rec, err := s.vault.Store(ctx, identityKey, password)
	if err != nil {
		if errors.Is(err, vault.ErrStorageUnavailable) {
			return vault.CredentialRecord{}, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
		return vault.CredentialRecord{}, err
	}
	s.sink.Record(ctx, audit.IdentityRegistered, identityKey, s.now())
	return rec, nil
}
