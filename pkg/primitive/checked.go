package primitive

import (
	"context"
	"errors"

	perrors "github.com/jzx17/condprobe/internal/errors"
	"github.com/jzx17/condprobe/pkg/types"
)

// Checked applies the fail-fast policy to the primitives: any error other
// than a cancelled wait or a recoverable spawn failure is handed to the
// FatalHandler together with the call site. Execution never continues past
// a failed call.
type Checked struct {
	handler perrors.FatalHandler
	index   int
}

// NewChecked creates a fail-fast facade. A nil handler aborts the process.
func NewChecked(handler perrors.FatalHandler) *Checked {
	if handler == nil {
		handler = perrors.NewAbortHandler(nil)
	}
	return &Checked{handler: handler, index: types.NoIndex}
}

// WithIndex returns a copy that tags diagnostics with a thread record index
func (c *Checked) WithIndex(index int) *Checked {
	return &Checked{handler: c.handler, index: index}
}

// Handler returns the fatal handler in use
func (c *Checked) Handler() perrors.FatalHandler {
	return c.handler
}

// InitCond initializes cv
func (c *Checked) InitCond(cv *Cond) {
	c.check("cond_init", cv.Init())
}

// DestroyCond destroys cv
func (c *Checked) DestroyCond(cv *Cond) {
	c.check("cond_destroy", cv.Destroy())
}

// InitMutex initializes m in error-checking mode
func (c *Checked) InitMutex(m *Mutex) {
	c.check("mutex_init", m.Init())
}

// DestroyMutex destroys m
func (c *Checked) DestroyMutex(m *Mutex) {
	c.check("mutex_destroy", m.Destroy())
}

// Lock acquires m
func (c *Checked) Lock(m *Mutex) {
	c.check("lock", m.Lock())
}

// Unlock releases m
func (c *Checked) Unlock(m *Mutex) {
	c.check("unlock", m.Unlock())
}

// Wait waits on cv with m held. It returns a non-nil error only when the
// wait was cancelled; m is held again in either case.
func (c *Checked) Wait(ctx context.Context, cv *Cond, m *Mutex) error {
	err := cv.Wait(ctx, m)
	if errors.Is(err, types.ErrCancelled) {
		return err
	}
	c.check("cond_wait", err)
	return nil
}

// Signal wakes one waiter of cv, if any
func (c *Checked) Signal(cv *Cond) {
	c.check("cond_signal", cv.Signal())
}

// Broadcast wakes every waiter of cv
func (c *Checked) Broadcast(cv *Cond) {
	c.check("cond_broadcast", cv.Broadcast())
}

// Spawn starts a thread through s. Exhausted thread resources are returned
// to the caller; any other failure, such as an invalid stack size, is fatal.
func (c *Checked) Spawn(ctx context.Context, s Spawner, entry EntryFunc, arg any, stackSize int) (*Thread, error) {
	t, err := s.Spawn(ctx, entry, arg, stackSize)
	if err != nil && types.IsRecoverable(err) {
		return nil, err
	}
	c.check("spawn", err)
	return t, nil
}

// Join waits for t to terminate
func (c *Checked) Join(t *Thread) ExitStatus {
	status, err := t.Join()
	c.check("join", err)
	return status
}

// RequestCancel asks t to stop at its next cancellation point
func (c *Checked) RequestCancel(t *Thread) {
	if t == nil {
		c.check("cancel", types.ErrInvalidThread)
		return
	}
	t.RequestCancel()
}

// Check applies the fail-fast policy to an error produced outside the
// primitives, such as a violated ordering invariant
func (c *Checked) Check(op string, err error) {
	c.check(op, err)
}

func (c *Checked) check(op string, err error) {
	if err == nil {
		return
	}

	errCtx := perrors.NewErrorContext(err, op, c.index).WithCaller(2)
	var syncErr *types.SyncError
	if errors.As(err, &syncErr) {
		for k, v := range syncErr.Context {
			errCtx.Metadata[k] = v
		}
	}

	c.handler.HandleFatal(errCtx)
	panic(&perrors.FatalError{Context: errCtx})
}
