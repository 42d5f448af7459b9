package types

import (
	"errors"
	"fmt"
)

// Predefined errors. The names follow the POSIX error numbers the thread
// primitives would report for the same misuse.
var (
	// ErrNotInitialized indicates use of a primitive before Init or after Destroy (EINVAL)
	ErrNotInitialized = errors.New("primitive not initialized")

	// ErrBusy indicates the primitive is still in use: a held mutex or a
	// condition with waiters that have not finished unwinding (EBUSY)
	ErrBusy = errors.New("primitive busy")

	// ErrDeadlock indicates the caller would deadlock on itself (EDEADLK)
	ErrDeadlock = errors.New("resource deadlock would occur")

	// ErrNotOwner indicates the caller does not own the mutex (EPERM)
	ErrNotOwner = errors.New("mutex not owned by caller")

	// ErrAgain indicates the system lacked resources to create a thread (EAGAIN)
	ErrAgain = errors.New("thread resources temporarily unavailable")

	// ErrInvalidStackSize indicates a stack size below the platform minimum
	ErrInvalidStackSize = errors.New("invalid thread stack size")

	// ErrInvalidThread indicates a thread handle that is not joinable (ESRCH)
	ErrInvalidThread = errors.New("no such joinable thread")

	// ErrJoinTimeout indicates a join did not complete within the configured bound
	ErrJoinTimeout = errors.New("join timeout")

	// ErrLockWait indicates a Lock blocked longer than the detection limit
	ErrLockWait = errors.New("lock wait exceeded limit")

	// ErrCancelled indicates a wait ended because cancellation was requested
	ErrCancelled = errors.New("thread cancelled")

	// ErrSpawnFailed indicates the harness could not start one of its workers
	ErrSpawnFailed = errors.New("failed to start worker thread")
)

// NoIndex marks a SyncError that is not tied to a thread record
const NoIndex = -1

// SyncError represents a failed synchronization primitive operation
type SyncError struct {
	// Op is the primitive operation that failed, e.g. "lock" or "cond_destroy"
	Op string

	// Index is the thread record index, or NoIndex
	Index int

	// Cause is the underlying error
	Cause error

	// Context contains error context information
	Context map[string]interface{}
}

// NewSyncError creates a new SyncError
func NewSyncError(op string, index int, cause error) *SyncError {
	return &SyncError{
		Op:      op,
		Index:   index,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *SyncError) Error() string {
	if e.Index == NoIndex {
		return fmt.Sprintf("%s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("%s (thread %d): %v", e.Op, e.Index, e.Cause)
}

// Unwrap returns the underlying error
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// WithContext adds error context
func (e *SyncError) WithContext(key string, value interface{}) *SyncError {
	e.Context[key] = value
	return e
}

// IsRecoverable reports whether err is the one failure a caller may handle
// instead of aborting: running out of thread resources at spawn time.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrAgain)
}
