package main

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"os"
	"time"

	"aegis.org/internal/auth"
	"aegis.org/internal/obs"
	"aegis.org/internal/ratelimit"
	"aegis.org/internal/token"
	"aegis.org/internal/vault"
)

// Smoke run: exercises the full login, authorize, refresh, revoke, and
// throttle paths against in-memory stores.
func main() {
	log.SetFlags(0)
	obs.Init()

	secret := []byte(os.Getenv("AEGIS_AUTH_SECRET"))
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			log.Fatalf("generate secret: %v", err)
		}
	}

	keys, err := token.NewRotatingProvider("smoke-1", secret, token.WithGrace(5*time.Minute))
	if err != nil {
		log.Fatalf("key provider: %v", err)
	}
	tokens, err := token.NewService(keys, token.NewMemoryRevocations(), token.WithIssuer("aegis-smoke"))
	if err != nil {
		log.Fatalf("token service: %v", err)
	}

	v := vault.New(vault.NewMemoryStore())
	limiter := ratelimit.NewFixedWindow(5, time.Minute)

	svc, err := auth.NewService(v, tokens, limiter,
		auth.WithAttributeSource(auth.AttributeSourceFunc(
			func(context.Context, string) ([]string, []string, error) {
				return []string{"editor"}, []string{"read:users"}, nil
			})),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := svc.Register(ctx, "alice", "correct horse battery staple"); err != nil {
		log.Fatalf("register: %v", err)
	}

	pair, err := svc.Login(ctx, "alice", "correct horse battery staple")
	if err != nil {
		log.Fatalf("login: %v", err)
	}
	log.Println("login: ok")

	sub, err := svc.Authorize(ctx, pair.AccessToken, auth.Requirement{Roles: []string{"editor"}})
	if err != nil {
		log.Fatalf("authorize: %v", err)
	}
	log.Printf("authorize: ok (subject=%s)", sub.ID)

	if _, err := svc.Authorize(ctx, pair.AccessToken, auth.Requirement{Scopes: []string{"write:posts"}}); !errors.Is(err, auth.ErrForbidden) {
		log.Fatalf("expected forbidden for missing scope, got %v", err)
	}
	log.Println("scope denial: ok")

	next, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		log.Fatalf("refresh: %v", err)
	}
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, token.ErrRevoked) {
		log.Fatalf("expected revoked for superseded refresh token, got %v", err)
	}
	log.Println("refresh rotation: ok")

	if err := svc.Revoke(ctx, next.AccessToken); err != nil {
		log.Fatalf("revoke: %v", err)
	}
	if _, err := svc.Authorize(ctx, next.AccessToken, auth.Requirement{Roles: []string{"editor"}}); !errors.Is(err, auth.ErrUnauthorized) {
		log.Fatalf("expected unauthorized after revoke, got %v", err)
	}
	log.Println("revoke: ok")

	for i := 0; i < 5; i++ {
		_, _ = svc.Login(ctx, "bob", "wrong password")
	}
	if _, err := svc.Login(ctx, "bob", "wrong password"); !errors.Is(err, auth.ErrRateLimited) {
		log.Fatalf("expected rate limited, got %v", err)
	}
	log.Println("throttle: ok")

	log.Println("smoke-auth passed")
}
