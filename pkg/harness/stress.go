package harness

import (
	"context"
	"fmt"
	"time"
)

// StressResult summarizes a sequence of runs
type StressResult struct {
	// Iterations is the number of runs that completed
	Iterations int
	// Elapsed is the total wall time of the completed runs
	Elapsed time.Duration
	// RunIDs lists the run id of each completed run
	RunIDs []string
}

// Stress repeats the scenario up to iterations times, each with a fresh
// WorkerSet, stopping at the first run that fails or when ctx is done.
func Stress(ctx context.Context, config *Config, iterations int) (result StressResult, err error) {
	if iterations <= 0 {
		return result, fmt.Errorf("iterations must be positive, got %d", iterations)
	}

	cfg, err := config.withDefaults()
	if err != nil {
		return result, err
	}

	start := cfg.Clock.Now()
	defer func() {
		result.Elapsed = cfg.Clock.Since(start)
	}()

	for i := 0; i < iterations; i++ {
		if err = ctx.Err(); err != nil {
			return result, err
		}

		var h *Harness
		if h, err = New(cfg); err != nil {
			return result, err
		}
		cfg.Logger.Debug("stress iteration", "iteration", i, "run_id", h.RunID())

		if err = h.Run(ctx); err != nil {
			return result, fmt.Errorf("iteration %d: %w", i, err)
		}
		result.Iterations++
		result.RunIDs = append(result.RunIDs, h.RunID())
	}
	return result, nil
}
