package token

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryRevocationsMonotonicUntilExpiry(t *testing.T) {
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	set := NewMemoryRevocations().WithRevocationClock(func() time.Time { return now })
	ctx := context.Background()

	exp := now.Add(time.Hour)
	if err := set.Add(ctx, "jti-1", exp); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if ok, _ := set.Contains(ctx, "jti-1"); !ok {
		t.Fatal("expected membership")
	}

	// Membership holds right up to the underlying expiry.
	now = exp.Add(-time.Second)
	if ok, _ := set.Contains(ctx, "jti-1"); !ok {
		t.Fatal("membership must persist until expiry")
	}

	// Past expiry the entry may be collected; the token fails on expiry anyway.
	now = exp
	if ok, _ := set.Contains(ctx, "jti-1"); ok {
		t.Fatal("expected garbage collection at expiry")
	}
}

func TestMemoryRevocationsConcurrentAdds(t *testing.T) {
	set := NewMemoryRevocations()
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = set.Add(ctx, "shared-jti", exp)
		}()
	}
	wg.Wait()

	if ok, _ := set.Contains(ctx, "shared-jti"); !ok {
		t.Fatal("expected membership after concurrent idempotent adds")
	}
}

func TestStaticProviderRejectsUnknownKid(t *testing.T) {
	p, err := NewStaticProvider("k1", testKey)
	if err != nil {
		t.Fatalf("NewStaticProvider: %v", err)
	}
	if _, err := p.VerifyingKey("k2"); err != ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}
