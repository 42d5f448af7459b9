// Package cli implements the condprobe command line
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	perrors "github.com/jzx17/condprobe/internal/errors"
	"github.com/jzx17/condprobe/pkg/harness"
	"github.com/jzx17/condprobe/pkg/primitive"
	"github.com/jzx17/condprobe/pkg/retry"
	"github.com/jzx17/condprobe/pkg/types"
)

// Exit codes
const (
	ExitOK      = 0
	ExitFailure = 1
)

// RootOptions holds the flags of the root command
type RootOptions struct {
	Iterations       int
	Delay            time.Duration
	JoinTimeout      time.Duration
	LockTimeout      time.Duration
	MaxThreads       int
	SpawnAttempts    int
	SpawnBackoff     time.Duration
	SpawnBackoffKind string
	CleanupOnFailure bool
	Verbose          bool
}

// ExitError carries a process exit code out of a command
type ExitError struct {
	Code int
	Err  error
}

// Error implements the error interface
func (e *ExitError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "condprobe",
		Short: "Stress condition wait, signal and cancellation across worker threads",
		Long: `condprobe starts a fixed set of worker threads, each waiting on its own
condition variable under its own mutex, then signals, cancels, joins and
destroys them one by one. Any failure of a synchronization primitive
aborts the process.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.Iterations, "iterations", 1, "number of runs, each with fresh workers")
	flags.DurationVar(&opts.Delay, "delay", harness.DefaultStartupDelay, "pause before teardown")
	flags.DurationVar(&opts.JoinTimeout, "join-timeout", 0, "abort if a join takes longer (0 waits forever)")
	flags.DurationVar(&opts.LockTimeout, "lock-timeout", 30*time.Second, "report a potential deadlock when a lock waits longer (0 disables)")
	flags.IntVar(&opts.MaxThreads, "max-threads", 0, "limit live worker threads (0 is unlimited)")
	flags.IntVar(&opts.SpawnAttempts, "spawn-attempts", 1, "attempts per worker while thread resources are exhausted")
	flags.DurationVar(&opts.SpawnBackoff, "spawn-backoff", 10*time.Millisecond, "initial wait between spawn attempts")
	flags.StringVar(&opts.SpawnBackoffKind, "spawn-backoff-kind", retry.BackoffExponential, "growth of the wait between spawn attempts: fixed or exponential")
	flags.BoolVar(&opts.CleanupOnFailure, "cleanup-on-failure", false, "tear down started workers when one fails to start")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	return cmd
}

func run(cmd *cobra.Command, opts *RootOptions) error {
	if opts.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", opts.Iterations)
	}

	stderr := cmd.ErrOrStderr()
	logger := newLogger(stderr, opts.Verbose)

	fatal := perrors.NewAbortHandler(&perrors.AbortConfig{
		Logger: logger,
		Output: stderr,
	})

	// the lock-wait limit is process wide; later runs only re-target the report
	if !primitive.ConfigureDetection(primitive.DetectionConfig{
		LockWaitLimit: opts.LockTimeout,
		Report:        stderr,
		Handler:       fatal,
	}) {
		logger.Debug("lock detection already configured, --lock-timeout ignored",
			slog.Duration("lock_timeout", opts.LockTimeout))
	}

	cfg := harness.DefaultConfig()
	cfg.StartupDelay = opts.Delay
	cfg.JoinTimeout = opts.JoinTimeout
	cfg.MaxThreads = opts.MaxThreads
	cfg.SpawnAttempts = opts.SpawnAttempts
	cfg.SpawnBackoff = opts.SpawnBackoff
	cfg.SpawnBackoffKind = opts.SpawnBackoffKind
	cfg.CleanupOnSpawnFailure = opts.CleanupOnFailure
	cfg.Logger = logger
	cfg.Output = cmd.OutOrStdout()
	cfg.FatalHandler = fatal

	result, err := harness.Stress(cmd.Context(), cfg, opts.Iterations)
	if err != nil {
		if errors.Is(err, types.ErrSpawnFailed) {
			return &ExitError{Code: ExitFailure, Err: err}
		}
		return err
	}

	if opts.Iterations > 1 {
		fmt.Fprintf(cmd.OutOrStdout(), "Completed %d iterations in %v\n",
			result.Iterations, result.Elapsed.Round(time.Millisecond))
	}
	return nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Execute runs the root command with args and returns the process exit code
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}
