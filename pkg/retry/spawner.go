package retry

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jzx17/condprobe/pkg/primitive"
	"github.com/jzx17/condprobe/pkg/types"
)

const defaultInitialDelay = 10 * time.Millisecond

// Condition reports whether a failed spawn may be attempted again
type Condition func(error) bool

// SpawnerConfig defines configuration for a retrying spawner
type SpawnerConfig struct {
	// MaxAttempts is the total number of spawn attempts, at least 1
	MaxAttempts int

	// Backoff computes the wait between attempts (optional, defaults to exponential from 10ms)
	Backoff Backoff

	// Condition selects retryable errors (optional, defaults to types.IsRecoverable)
	Condition Condition

	// Clock for waiting (optional, defaults to real clock)
	Clock types.Clock

	// Logger for retry diagnostics (optional, defaults to slog.Default)
	Logger *slog.Logger
}

// SpawnStats counts spawn attempts
type SpawnStats struct {
	Attempts  int64
	Retries   int64
	Successes int64
	Failures  int64
}

// Spawner retries a wrapped spawner while it reports a retryable error
type Spawner struct {
	inner     primitive.Spawner
	attempts  int
	backoff   Backoff
	condition Condition
	clock     types.Clock
	logger    *slog.Logger

	attemptCount atomic.Int64
	retries      atomic.Int64
	successes    atomic.Int64
	failures     atomic.Int64
}

var _ primitive.Spawner = (*Spawner)(nil)

// NewSpawner wraps inner with retries
func NewSpawner(inner primitive.Spawner, config *SpawnerConfig) (*Spawner, error) {
	if inner == nil {
		return nil, fmt.Errorf("retry spawner needs an inner spawner")
	}
	if config == nil {
		config = &SpawnerConfig{MaxAttempts: 1}
	}
	if config.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be positive, got %d", config.MaxAttempts)
	}

	s := &Spawner{
		inner:     inner,
		attempts:  config.MaxAttempts,
		backoff:   config.Backoff,
		condition: config.Condition,
		clock:     config.Clock,
		logger:    config.Logger,
	}
	if s.backoff == nil {
		s.backoff = NewExponentialBackoff(defaultInitialDelay)
	}
	if s.condition == nil {
		s.condition = types.IsRecoverable
	}
	if s.clock == nil {
		s.clock = types.NewRealClock()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Spawn creates a thread, retrying retryable failures. The last error is
// returned wrapped when attempts run out, so its kind is preserved.
func (s *Spawner) Spawn(ctx context.Context, entry primitive.EntryFunc, arg any, stackSize int) (*primitive.Thread, error) {
	for attempt := 1; ; attempt++ {
		s.attemptCount.Add(1)

		t, err := s.inner.Spawn(ctx, entry, arg, stackSize)
		if err == nil {
			s.successes.Add(1)
			return t, nil
		}

		if !s.condition(err) {
			s.failures.Add(1)
			return nil, err
		}
		if attempt >= s.attempts {
			s.failures.Add(1)
			if attempt == 1 {
				return nil, err
			}
			return nil, fmt.Errorf("after %d attempts: %w", attempt, err)
		}

		delay := s.backoff.NextDelay(attempt)
		s.logger.Debug("retrying spawn",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err))
		s.retries.Add(1)

		if delay > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("spawn retry abandoned: %w", err)
			case <-s.clock.After(delay):
			}
		}
	}
}

// Stats returns the attempt counters
func (s *Spawner) Stats() SpawnStats {
	return SpawnStats{
		Attempts:  s.attemptCount.Load(),
		Retries:   s.retries.Load(),
		Successes: s.successes.Load(),
		Failures:  s.failures.Load(),
	}
}
