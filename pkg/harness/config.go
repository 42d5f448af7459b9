package harness

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	perrors "github.com/jzx17/condprobe/internal/errors"
	"github.com/jzx17/condprobe/pkg/primitive"
	"github.com/jzx17/condprobe/pkg/retry"
	"github.com/jzx17/condprobe/pkg/types"
)

const (
	// DefaultWorkerCount is the fixed number of workers per run
	DefaultWorkerCount = 5

	// DefaultStartupDelay is how long the controller lets workers reach wait
	DefaultStartupDelay = time.Second
)

// Config defines configuration for a harness run
type Config struct {
	// WorkerCount is the number of worker threads
	WorkerCount int

	// StartupDelay is the pause between starting the last worker and teardown
	StartupDelay time.Duration

	// StackSize is the stack size requested for every worker
	StackSize int

	// JoinTimeout bounds each join when the default spawner is used, 0 waits forever
	JoinTimeout time.Duration

	// MaxThreads bounds live threads when the default spawner is used, 0 is unbounded
	MaxThreads int

	// SpawnAttempts is how many times a spawn is tried while the system is
	// out of thread resources, 0 or 1 tries once
	SpawnAttempts int

	// SpawnBackoff is the initial wait between spawn attempts
	SpawnBackoff time.Duration

	// SpawnBackoffKind is retry.BackoffFixed or retry.BackoffExponential
	// (the default)
	SpawnBackoffKind string

	// CleanupOnSpawnFailure tears down already started workers when a spawn
	// fails instead of returning with them still waiting
	CleanupOnSpawnFailure bool

	// Spawner creates worker threads (optional, defaults to an OS thread spawner)
	Spawner primitive.Spawner

	// FatalHandler receives failed primitive operations (optional, defaults to abort)
	FatalHandler perrors.FatalHandler

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock

	// Logger for structured diagnostics (optional, defaults to slog.Default)
	Logger *slog.Logger

	// Output receives progress lines (optional, defaults to stdout)
	Output io.Writer

	// Observer is called for every event, from the controller and workers concurrently
	Observer func(Event)
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		WorkerCount:  DefaultWorkerCount,
		StartupDelay: DefaultStartupDelay,
		StackSize:    primitive.DefaultStackSize,
		Clock:        types.NewRealClock(),
		Output:       os.Stdout,
	}
}

// withDefaults validates config and returns a copy with optional fields filled
func (c *Config) withDefaults() (*Config, error) {
	if c == nil {
		c = DefaultConfig()
	}

	if c.WorkerCount <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", c.WorkerCount)
	}
	if c.StartupDelay < 0 {
		return nil, fmt.Errorf("startup delay must not be negative, got %v", c.StartupDelay)
	}
	if c.JoinTimeout < 0 {
		return nil, fmt.Errorf("join timeout must not be negative, got %v", c.JoinTimeout)
	}
	if c.MaxThreads < 0 {
		return nil, fmt.Errorf("max threads must not be negative, got %d", c.MaxThreads)
	}
	if c.SpawnAttempts < 0 {
		return nil, fmt.Errorf("spawn attempts must not be negative, got %d", c.SpawnAttempts)
	}
	if c.SpawnBackoff < 0 {
		return nil, fmt.Errorf("spawn backoff must not be negative, got %v", c.SpawnBackoff)
	}
	if _, err := retry.NewBackoff(c.SpawnBackoffKind, c.SpawnBackoff); err != nil {
		return nil, err
	}

	cfg := *c
	if cfg.StackSize == 0 {
		cfg.StackSize = primitive.DefaultStackSize
	}
	if cfg.Clock == nil {
		cfg.Clock = types.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.FatalHandler == nil {
		cfg.FatalHandler = perrors.NewAbortHandler(&perrors.AbortConfig{Logger: cfg.Logger})
	}
	if cfg.Spawner == nil {
		cfg.Spawner = primitive.NewOSSpawner(&primitive.OSSpawnerConfig{
			MaxThreads:  cfg.MaxThreads,
			JoinTimeout: cfg.JoinTimeout,
			Clock:       cfg.Clock,
		})
	}
	if cfg.SpawnAttempts > 1 {
		initial := cfg.SpawnBackoff
		if initial == 0 {
			initial = 10 * time.Millisecond
		}
		backoff, err := retry.NewBackoff(cfg.SpawnBackoffKind, initial, retry.WithJitter(retry.EqualJitter))
		if err != nil {
			return nil, err
		}
		spawner, err := retry.NewSpawner(cfg.Spawner, &retry.SpawnerConfig{
			MaxAttempts: cfg.SpawnAttempts,
			Backoff:     backoff,
			Clock:       cfg.Clock,
			Logger:      cfg.Logger,
		})
		if err != nil {
			return nil, err
		}
		// the copy may be passed through withDefaults again
		cfg.Spawner = spawner
		cfg.SpawnAttempts = 0
	}
	return &cfg, nil
}
