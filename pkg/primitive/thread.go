package primitive

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/petermattis/goid"

	"github.com/jzx17/condprobe/pkg/types"
)

const (
	// MinStackSize is the smallest stack size a thread may be created with
	MinStackSize = 16 * 1024

	// DefaultStackSize is 128K pointer-sized words
	DefaultStackSize = 128 * (bits.UintSize / 8) * 1024
)

// errCancelRequested is the cause attached to a thread's context by RequestCancel
var errCancelRequested = errors.New("cancellation requested")

// EntryFunc is the body of a thread. ctx is cancelled when cancellation is
// requested for the thread; the value returned is reported by Join.
type EntryFunc func(ctx context.Context, arg any) any

// ExitStatus describes how a thread terminated
type ExitStatus struct {
	// Value is what the entry function returned
	Value any
	// Cancelled is true when cancellation had been requested before the thread exited
	Cancelled bool
	// Panic holds a recovered panic from the entry function
	Panic error
}

// Thread is a handle to a running thread of control
type Thread struct {
	id        uint64
	stackSize int
	goid      atomic.Int64

	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}
	status ExitStatus
	joined atomic.Bool

	clock       types.Clock
	joinTimeout time.Duration
	release     func()
}

// ID returns the spawner-assigned thread id
func (t *Thread) ID() uint64 {
	return t.id
}

// StackSize returns the stack size the thread was created with
func (t *Thread) StackSize() int {
	return t.stackSize
}

// Done returns a channel closed when the thread has terminated
func (t *Thread) Done() <-chan struct{} {
	return t.done
}

// Terminated reports whether the thread has exited
func (t *Thread) Terminated() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// RequestCancel asks the thread to stop at its next cancellation point.
// It does not block and does not wait for the thread to stop.
func (t *Thread) RequestCancel() {
	t.cancel(errCancelRequested)
}

// Join blocks until the thread terminates and returns its exit status.
// A thread can be joined once; joining it again, or joining from the
// thread itself, is an error.
func (t *Thread) Join() (ExitStatus, error) {
	if t == nil {
		return ExitStatus{}, types.NewSyncError("join", types.NoIndex, types.ErrInvalidThread)
	}
	if t.goid.Load() == goid.Get() {
		return ExitStatus{}, types.NewSyncError("join", types.NoIndex, types.ErrDeadlock)
	}
	if !t.joined.CompareAndSwap(false, true) {
		return ExitStatus{}, types.NewSyncError("join", types.NoIndex, types.ErrInvalidThread)
	}

	if t.joinTimeout <= 0 {
		<-t.done
		return t.status, nil
	}

	timer := t.clock.NewTimer(t.joinTimeout)
	defer timer.Stop()

	select {
	case <-t.done:
		return t.status, nil
	case <-timer.C():
		t.joined.Store(false)
		return ExitStatus{}, types.NewSyncError("join", types.NoIndex, types.ErrJoinTimeout).
			WithContext("timeout", t.joinTimeout.String())
	}
}

func (t *Thread) run(entry EntryFunc, arg any) {
	// Never unlocked: the OS thread exits together with this goroutine.
	runtime.LockOSThread()
	t.goid.Store(goid.Get())

	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case error:
				t.status.Panic = v
			default:
				t.status.Panic = fmt.Errorf("panic: %v", v)
			}
		}
		t.status.Cancelled = t.ctx.Err() != nil
		t.cancel(nil)
		if t.release != nil {
			t.release()
		}
		close(t.done)
	}()

	t.status.Value = entry(t.ctx, arg)
}

// Spawner creates threads
type Spawner interface {
	// Spawn starts entry(ctx, arg) on a new thread. Running out of thread
	// resources is reported as types.ErrAgain; every other error is a
	// misuse of the call.
	Spawn(ctx context.Context, entry EntryFunc, arg any, stackSize int) (*Thread, error)
}

// OSSpawnerConfig defines configuration for the OS thread spawner
type OSSpawnerConfig struct {
	// MaxThreads bounds the number of live threads, 0 means unbounded
	MaxThreads int

	// JoinTimeout bounds Join, 0 means wait forever
	JoinTimeout time.Duration

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock
}

// OSSpawner runs each thread on a goroutine locked to its own OS thread
type OSSpawner struct {
	config *OSSpawnerConfig
	live   atomic.Int64
	nextID atomic.Uint64
}

// NewOSSpawner creates a new OS thread spawner
func NewOSSpawner(config *OSSpawnerConfig) *OSSpawner {
	if config == nil {
		config = &OSSpawnerConfig{}
	}
	if config.Clock == nil {
		config.Clock = types.NewRealClock()
	}
	return &OSSpawner{config: config}
}

// Spawn implements Spawner
func (s *OSSpawner) Spawn(ctx context.Context, entry EntryFunc, arg any, stackSize int) (*Thread, error) {
	if stackSize < MinStackSize {
		return nil, types.NewSyncError("spawn", types.NoIndex, types.ErrInvalidStackSize).
			WithContext("stack_size", stackSize)
	}
	if entry == nil {
		return nil, types.NewSyncError("spawn", types.NoIndex, fmt.Errorf("nil entry function"))
	}
	if s.config.MaxThreads > 0 && s.live.Add(1) > int64(s.config.MaxThreads) {
		s.live.Add(-1)
		return nil, types.NewSyncError("spawn", types.NoIndex, types.ErrAgain).
			WithContext("max_threads", s.config.MaxThreads)
	} else if s.config.MaxThreads <= 0 {
		s.live.Add(1)
	}

	threadCtx, cancel := context.WithCancelCause(ctx)
	t := &Thread{
		id:          s.nextID.Add(1),
		stackSize:   stackSize,
		ctx:         threadCtx,
		cancel:      cancel,
		done:        make(chan struct{}),
		clock:       s.config.Clock,
		joinTimeout: s.config.JoinTimeout,
		release:     func() { s.live.Add(-1) },
	}

	go t.run(entry, arg)

	return t, nil
}

// Live returns the number of threads started and not yet terminated
func (s *OSSpawner) Live() int {
	return int(s.live.Load())
}
