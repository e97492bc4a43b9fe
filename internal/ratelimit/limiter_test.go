package ratelimit

import (
	"context"
	"testing"
)

func TestLocalRateLimiterAllow(t *testing.T) {
	t.Parallel()

	limiter, err := NewLocalRateLimiter(2)
	if err != nil {
		t.Fatalf("NewLocalRateLimiter() error = %v", err)
	}
	ctx := context.Background()

	// The bucket starts full with burst == limit.
	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "news")
		if err != nil {
			t.Fatalf("Allow() #%d error = %v", i+1, err)
		}
		if !allowed {
			t.Fatalf("Allow() #%d = false, want true", i+1)
		}
	}

	allowed, err := limiter.Allow(ctx, "news")
	if err != nil {
		t.Fatalf("Allow() over limit error = %v", err)
	}
	if allowed {
		t.Fatal("Allow() over limit = true, want false")
	}

	// Categories get independent buckets.
	allowed, err = limiter.Allow(ctx, "greeting")
	if err != nil {
		t.Fatalf("Allow() other category error = %v", err)
	}
	if !allowed {
		t.Fatal("Allow() other category = false, want true")
	}
}

func TestLocalRateLimiterValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewLocalRateLimiter(0); err == nil {
		t.Fatal("expected error for zero limit")
	}

	limiter, err := NewLocalRateLimiter(1)
	if err != nil {
		t.Fatalf("NewLocalRateLimiter() error = %v", err)
	}
	if _, err := limiter.Allow(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty category")
	}
}
