package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter controls push throughput per category.
type RateLimiter interface {
	Allow(ctx context.Context, category string) (bool, error)
	Wait(ctx context.Context, category string) error
}

// LocalRateLimiter is the single-process limiter. One token bucket per
// category, all sharing the same per-second rate. The Redis limiter is the
// distributed counterpart.
type LocalRateLimiter struct {
	limitPerSec int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func NewLocalRateLimiter(limitPerSec int) (*LocalRateLimiter, error) {
	if limitPerSec <= 0 {
		return nil, fmt.Errorf("limit per second must be positive, got %d", limitPerSec)
	}
	return &LocalRateLimiter{
		limitPerSec: limitPerSec,
		buckets:     make(map[string]*rate.Limiter),
	}, nil
}

func (l *LocalRateLimiter) Allow(ctx context.Context, category string) (bool, error) {
	bucket, err := l.bucket(category)
	if err != nil {
		return false, err
	}
	return bucket.Allow(), nil
}

func (l *LocalRateLimiter) Wait(ctx context.Context, category string) error {
	bucket, err := l.bucket(category)
	if err != nil {
		return err
	}
	return bucket.Wait(ctx)
}

func (l *LocalRateLimiter) bucket(category string) (*rate.Limiter, error) {
	normalized := strings.ToLower(strings.TrimSpace(category))
	if normalized == "" {
		return nil, fmt.Errorf("category is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[normalized]
	if !ok {
		bucket = rate.NewLimiter(rate.Limit(l.limitPerSec), l.limitPerSec)
		l.buckets[normalized] = bucket
	}
	return bucket, nil
}
