package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"aegis.org/internal/audit"
	"aegis.org/internal/policy"
	"aegis.org/internal/ratelimit"
	"aegis.org/internal/token"
	"aegis.org/internal/vault"
)

var cheapParams = vault.Params{Memory: 8, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

type fixture struct {
	svc   *Service
	now   *time.Time
	store *vault.MemoryStore
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := vault.NewMemoryStore()
	v := vault.New(store, vault.WithParams(cheapParams), vault.WithClock(clock))

	keys, err := token.NewStaticProvider("k1", []byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewStaticProvider: %v", err)
	}
	tokens, err := token.NewService(keys,
		token.NewMemoryRevocations().WithRevocationClock(clock),
		token.WithClock(clock),
	)
	if err != nil {
		t.Fatalf("token.NewService: %v", err)
	}

	limiter := ratelimit.NewFixedWindow(5, time.Minute, ratelimit.WithClock(clock))

	opts = append([]Option{WithClock(clock), WithAuditSink(audit.NopSink{})}, opts...)
	svc, err := NewService(v, tokens, limiter, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	// The clock closure reads the fixture's mutable time, so tests can
	// advance it through f.now.
	return &fixture{svc: svc, now: &now, store: store}
}

func mustRegister(t *testing.T, f *fixture, identity, password string) {
	t.Helper()
	if _, err := f.svc.Register(context.Background(), identity, password); err != nil {
		t.Fatalf("Register %s: %v", identity, err)
	}
}

func TestLoginIssuesTokenPair(t *testing.T) {
	f := newFixture(t, WithAttributeSource(AttributeSourceFunc(
		func(context.Context, string) ([]string, []string, error) {
			return []string{"editor"}, []string{"read:users"}, nil
		})))
	mustRegister(t, f, "alice", "correct-horse")

	pair, err := f.svc.Login(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}

	sub, err := f.svc.Authorize(context.Background(), pair.AccessToken, Requirement{Roles: []string{"editor"}})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if sub.ID != "alice" {
		t.Fatalf("unexpected subject: %s", sub.ID)
	}
}

func TestLoginWrongPasswordAndUnknownIdentityIndistinguishable(t *testing.T) {
	f := newFixture(t)
	mustRegister(t, f, "alice", "correct-horse")

	_, errWrong := f.svc.Login(context.Background(), "alice", "battery-staple")
	_, errUnknown := f.svc.Login(context.Background(), "nobody", "battery-staple")

	if !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", errWrong)
	}
	if !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("unknown identity: expected ErrInvalidCredentials, got %v", errUnknown)
	}
	if errWrong.Error() != errUnknown.Error() {
		t.Fatalf("errors must be indistinguishable: %q vs %q", errWrong, errUnknown)
	}
}

func TestLoginThrottleBeatsCorrectPassword(t *testing.T) {
	f := newFixture(t)
	mustRegister(t, f, "alice", "correct-horse")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := f.svc.Login(ctx, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}
	// The sixth attempt is throttled even though the password is correct.
	if _, err := f.svc.Login(ctx, "alice", "correct-horse"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// After the window elapses the correct password works again.
	*f.now = f.now.Add(time.Minute)
	if _, err := f.svc.Login(ctx, "alice", "correct-horse"); err != nil {
		t.Fatalf("post-rollover login: %v", err)
	}
}

type timeoutStore struct{ vault.CredentialStore }

func (timeoutStore) Get(ctx context.Context, _ string) (vault.CredentialRecord, error) {
	return vault.CredentialRecord{}, context.DeadlineExceeded
}

func TestLoginStorageTimeoutIsNotInvalidCredentials(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	v := vault.New(timeoutStore{}, vault.WithParams(cheapParams), vault.WithClock(clock))
	keys, _ := token.NewStaticProvider("k1", []byte("0123456789abcdef0123456789abcdef"))
	tokens, _ := token.NewService(keys, token.NewMemoryRevocations(), token.WithClock(clock))
	svc, err := NewService(v, tokens, ratelimit.NewFixedWindow(5, time.Minute), WithAuditSink(audit.NopSink{}))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, err = svc.Login(context.Background(), "alice", "correct-horse")
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("a timeout must never be reported as an authentication failure")
	}
}

func TestAuthorizeExpiredTokenIsUnauthorizedNeverForbidden(t *testing.T) {
	f := newFixture(t)
	mustRegister(t, f, "alice", "correct-horse")

	pair, err := f.svc.Login(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	*f.now = f.now.Add(31 * time.Minute)
	_, err = f.svc.Authorize(context.Background(), pair.AccessToken, Requirement{Roles: []string{"admin"}})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if errors.Is(err, ErrForbidden) {
		t.Fatal("verification failures must short-circuit before policy evaluation")
	}
	if !errors.Is(err, token.ErrExpired) {
		t.Fatalf("expected the expiry cause to be preserved, got %v", err)
	}
}

func TestAuthorizeRequirementSemantics(t *testing.T) {
	f := newFixture(t, WithAttributeSource(AttributeSourceFunc(
		func(context.Context, string) ([]string, []string, error) {
			return []string{"editor"}, []string{"read:users"}, nil
		})))
	mustRegister(t, f, "alice", "correct-horse")

	pair, err := f.svc.Login(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	ctx := context.Background()

	// Role check: any-of.
	if _, err := f.svc.Authorize(ctx, pair.AccessToken, Requirement{Roles: []string{"admin", "editor"}}); err != nil {
		t.Fatalf("role any-of should grant: %v", err)
	}
	// Scope check: all-of; read:users alone is not a superset.
	_, err = f.svc.Authorize(ctx, pair.AccessToken, Requirement{Scopes: []string{"read:users", "write:posts"}})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("scope all-of should deny: %v", err)
	}
	// Attribute policies: OR across the list; ownership grants even though
	// the admin-role policy denies.
	req := Requirement{
		Policies: []policy.Policy{policy.Owner(), policy.AnyRole("admin")},
		Resource: policy.Resource{ID: "doc-1", OwnerID: "alice"},
	}
	if _, err := f.svc.Authorize(ctx, pair.AccessToken, req); err != nil {
		t.Fatalf("ownership policy should grant: %v", err)
	}
	// Groups are ANDed: role group passes, scope group fails.
	_, err = f.svc.Authorize(ctx, pair.AccessToken, Requirement{
		Roles:  []string{"editor"},
		Scopes: []string{"write:posts"},
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("AND across groups should deny: %v", err)
	}
	// Empty requirement denies.
	if _, err := f.svc.Authorize(ctx, pair.AccessToken, Requirement{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("empty requirement must deny: %v", err)
	}
}

func TestAuthorizeRejectsRefreshToken(t *testing.T) {
	f := newFixture(t)
	mustRegister(t, f, "alice", "correct-horse")

	pair, err := f.svc.Login(context.Background(), "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	_, err = f.svc.Authorize(context.Background(), pair.RefreshToken, Requirement{Roles: []string{"editor"}})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("refresh token must not authorize requests: %v", err)
	}
}

func TestRevokeThenAuthorize(t *testing.T) {
	f := newFixture(t)
	mustRegister(t, f, "alice", "correct-horse")
	ctx := context.Background()

	pair, err := f.svc.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := f.svc.Revoke(ctx, pair.AccessToken); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	_, err = f.svc.Authorize(ctx, pair.AccessToken, Requirement{Roles: []string{"editor"}})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after revoke, got %v", err)
	}
	if !errors.Is(err, token.ErrRevoked) {
		t.Fatalf("expected the revocation cause to be preserved, got %v", err)
	}
}

func TestRefreshRotatesThroughOrchestrator(t *testing.T) {
	f := newFixture(t)
	mustRegister(t, f, "alice", "correct-horse")
	ctx := context.Background()

	pair, err := f.svc.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	next, err := f.svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.AccessToken == pair.AccessToken {
		t.Fatal("expected a fresh access token")
	}
	// Superseded refresh token is dead.
	if _, err := f.svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, token.ErrRevoked) {
		t.Fatalf("expected ErrRevoked for superseded refresh token, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Register(ctx, "alice", "1234567"); !errors.Is(err, vault.ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if _, err := f.svc.Register(ctx, "alice", "strong enough"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := f.svc.Register(ctx, "alice", "another password"); !errors.Is(err, vault.ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity, got %v", err)
	}
}
