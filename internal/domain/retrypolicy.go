package domain

import (
	"math"
	"time"
)

// RetryPolicy configures retry eligibility and backoff. It is immutable at
// runtime; construct once and share.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Exponential  bool

	// Retryable is an allow-list: a kind absent from both sets is treated as
	// non-retryable. NonRetryable exists so explicitly fatal kinds stay fatal
	// even if someone widens the allow-list later.
	Retryable    map[ErrorKind]bool
	NonRetryable map[ErrorKind]bool
}

// DefaultRetryPolicy returns the stock policy: 3 retries, 30s initial delay
// doubling up to one hour.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 30 * time.Second,
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
		Exponential:  true,
		Retryable: map[ErrorKind]bool{
			ErrorKindNetwork:   true,
			ErrorKindRateLimit: true,
			ErrorKindTimeout:   true,
			ErrorKindSystem:    true,
		},
		NonRetryable: map[ErrorKind]bool{
			ErrorKindInvalidUser: true,
			ErrorKindPermission:  true,
			ErrorKindContent:     true,
		},
	}
}

// ShouldRetry reports whether a delivery that has failed retryCount times
// with the given kind is eligible for another attempt. The count includes
// the failure being recorded, so the MaxRetries-th failure is final.
func (p RetryPolicy) ShouldRetry(kind ErrorKind, retryCount int) bool {
	if retryCount >= p.MaxRetries {
		return false
	}
	if p.NonRetryable[kind] {
		return false
	}
	return p.Retryable[kind]
}

// RetryDelay computes the backoff delay before the given retry. retryCount is
// 1-indexed: the first retry uses the initial delay unchanged.
func (p RetryPolicy) RetryDelay(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}

	delay := p.InitialDelay
	if p.Exponential {
		delay = time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(retryCount-1)))
	}

	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}
