/*
Package primitive provides thread and condition variable primitives with
explicit error reporting, plus a fail-fast facade over them.

# Primitives

  - Mutex: error-checking mutex. Relocking by the owner reports
    types.ErrDeadlock, unlocking by a non-owner reports types.ErrNotOwner,
    destroying a held mutex reports types.ErrBusy.
  - Cond: condition variable with a cancellable Wait. Destroy reports
    types.ErrBusy while any waiter has not finished unwinding.
  - Thread: handle to a goroutine locked to its own OS thread, created
    through a Spawner, joined once, cancelled cooperatively.

Zero values of Mutex and Cond must be initialized with Init before use and
released with Destroy.

# Cancellation

Cancellation is cooperative. RequestCancel cancels the thread's context;
Cond.Wait is the cancellation point and returns types.ErrCancelled with
the mutex re-acquired, so the caller's deferred Unlock runs on the same
path as a normal exit.

# Fail-fast

Checked wraps each operation and hands any unexpected error to an
internal/errors FatalHandler with the operation name, thread index and
call site:

	chk := primitive.NewChecked(nil) // aborts the process on failure

	var m primitive.Mutex
	var cv primitive.Cond
	chk.InitMutex(&m)
	chk.InitCond(&cv)

	chk.Lock(&m)
	chk.Signal(&cv)
	chk.Unlock(&m)

	chk.DestroyCond(&cv)
	chk.DestroyMutex(&m)

The only failure returned instead of aborting is types.ErrAgain from Spawn.
*/
package primitive
