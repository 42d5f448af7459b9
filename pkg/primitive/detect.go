package primitive

import (
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"

	perrors "github.com/jzx17/condprobe/internal/errors"
	"github.com/jzx17/condprobe/pkg/types"
)

// DetectionConfig configures the lock-wait and lock-order detector that
// backs every Mutex
type DetectionConfig struct {
	// LockWaitLimit reports a potential deadlock when a Lock blocks longer
	// than this, 0 disables the check
	LockWaitLimit time.Duration

	// Report receives the detector's report, nil means stderr
	Report io.Writer

	// Handler receives a "lock_wait" failure after each report. A nil
	// handler exits the process with perrors.ExitAbort.
	Handler perrors.FatalHandler

	// Disable turns detection off entirely
	Disable bool
}

type detectTarget struct {
	report  io.Writer
	handler perrors.FatalHandler
	limit   time.Duration
}

var (
	detectOnce    sync.Once
	currentTarget atomic.Pointer[detectTarget]
)

// ConfigureDetection points the detector at config.Report and
// config.Handler. The detector settings themselves (LockWaitLimit and
// Disable) are process wide and only the first call applies them, before
// any Mutex can have started a monitor; it reports whether this call did.
func ConfigureDetection(config DetectionConfig) bool {
	target := &detectTarget{report: config.Report, handler: config.Handler, limit: config.LockWaitLimit}
	if prev := currentTarget.Load(); prev != nil {
		target.limit = prev.limit
	}
	currentTarget.Store(target)

	applied := false
	detectOnce.Do(func() {
		deadlock.Opts.Disable = config.Disable
		deadlock.Opts.DeadlockTimeout = config.LockWaitLimit
		deadlock.Opts.PrintAllCurrentGoroutines = true
		deadlock.Opts.LogBuf = detectWriter{}
		deadlock.Opts.OnPotentialDeadlock = onPotentialDeadlock
		applied = true
	})
	return applied
}

// detectWriter forwards the detector's report to the current target
type detectWriter struct{}

func (detectWriter) Write(p []byte) (int, error) {
	if t := currentTarget.Load(); t != nil && t.report != nil {
		return t.report.Write(p)
	}
	return os.Stderr.Write(p)
}

func onPotentialDeadlock() {
	t := currentTarget.Load()
	if t == nil || t.handler == nil {
		os.Exit(perrors.ExitAbort)
	}

	err := types.NewSyncError("lock_wait", types.NoIndex, types.ErrLockWait).
		WithContext("limit", t.limit.String())
	errCtx := perrors.NewErrorContext(err, "lock_wait", types.NoIndex)
	for k, v := range err.Context {
		errCtx.Metadata[k] = v
	}
	t.handler.HandleFatal(errCtx)
}
