// Package retry retries thread creation when the system reports it is
// temporarily out of thread resources
package retry

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Backoff computes the delay before a retry
type Backoff interface {
	// NextDelay returns the delay before the given attempt, starting at 1
	NextDelay(attempt int) time.Duration
}

// FixedBackoff waits the same delay before every retry
type FixedBackoff struct {
	delay  time.Duration
	jitter JitterFunc
}

// NewFixedBackoff creates a fixed backoff
func NewFixedBackoff(delay time.Duration, opts ...BackoffOption) *FixedBackoff {
	o := applyOptions(opts)
	return &FixedBackoff{delay: delay, jitter: o.jitter}
}

// NextDelay returns the fixed delay
func (b *FixedBackoff) NextDelay(int) time.Duration {
	if b.jitter != nil {
		return b.jitter(b.delay)
	}
	return b.delay
}

// ExponentialBackoff doubles (by default) the delay on each attempt
type ExponentialBackoff struct {
	initialDelay time.Duration
	multiplier   float64
	maxDelay     time.Duration
	jitter       JitterFunc
}

// NewExponentialBackoff creates an exponential backoff
func NewExponentialBackoff(initialDelay time.Duration, opts ...BackoffOption) *ExponentialBackoff {
	o := applyOptions(opts)
	return &ExponentialBackoff{
		initialDelay: initialDelay,
		multiplier:   o.multiplier,
		maxDelay:     o.maxDelay,
		jitter:       o.jitter,
	}
}

// NextDelay returns initialDelay * multiplier^(attempt-1), capped at the max delay
func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	delay := time.Duration(float64(b.initialDelay) * math.Pow(b.multiplier, float64(attempt-1)))
	if delay > b.maxDelay || delay < 0 {
		delay = b.maxDelay
	}

	if b.jitter != nil {
		delay = b.jitter(delay)
	}
	return delay
}

// Backoff kinds accepted by NewBackoff
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// NewBackoff creates a backoff of the named kind starting at initialDelay
func NewBackoff(kind string, initialDelay time.Duration, opts ...BackoffOption) (Backoff, error) {
	switch kind {
	case BackoffFixed:
		return NewFixedBackoff(initialDelay, opts...), nil
	case BackoffExponential, "":
		return NewExponentialBackoff(initialDelay, opts...), nil
	default:
		return nil, fmt.Errorf("unknown backoff kind %q, want %q or %q", kind, BackoffFixed, BackoffExponential)
	}
}

// JitterFunc randomizes a delay
type JitterFunc func(time.Duration) time.Duration

// EqualJitter returns a random delay in [delay/2, delay)
func EqualJitter(delay time.Duration) time.Duration {
	if delay <= 1 {
		return delay
	}
	half := delay / 2
	return half + time.Duration(rand.Int63n(int64(delay-half)))
}

type backoffOptions struct {
	multiplier float64
	maxDelay   time.Duration
	jitter     JitterFunc
}

// BackoffOption configures a backoff
type BackoffOption func(*backoffOptions)

func applyOptions(opts []BackoffOption) backoffOptions {
	o := backoffOptions{
		multiplier: 2.0,
		maxDelay:   time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithMultiplier sets the growth factor of an exponential backoff
func WithMultiplier(multiplier float64) BackoffOption {
	return func(o *backoffOptions) {
		if multiplier >= 1 {
			o.multiplier = multiplier
		}
	}
}

// WithMaxDelay caps the delay of an exponential backoff
func WithMaxDelay(maxDelay time.Duration) BackoffOption {
	return func(o *backoffOptions) {
		if maxDelay > 0 {
			o.maxDelay = maxDelay
		}
	}
}

// WithJitter randomizes every delay
func WithJitter(jitter JitterFunc) BackoffOption {
	return func(o *backoffOptions) {
		o.jitter = jitter
	}
}
