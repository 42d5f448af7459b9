package primitive

import (
	"context"
	"fmt"
	"sync"

	"github.com/jzx17/condprobe/pkg/types"
)

// Cond is a condition variable whose Wait is a cancellation point: it
// returns early when the waiter's context is cancelled. The zero value
// must be initialized with Init.
type Cond struct {
	mu      sync.Mutex
	waiters []chan struct{} // FIFO, oldest first
	// inflight counts goroutines between enqueueing in Wait and
	// re-acquiring their mutex on the way out
	inflight int
	live     bool
}

// Init prepares the condition variable for use. Initializing a live
// condition variable is ErrBusy.
func (c *Cond) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.live {
		return types.NewSyncError("cond_init", types.NoIndex, types.ErrBusy)
	}
	c.waiters = nil
	c.inflight = 0
	c.live = true
	return nil
}

// Destroy releases the condition variable. It fails with ErrBusy while any
// goroutine is queued on it or has been woken but has not yet re-acquired
// its mutex.
func (c *Cond) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.live {
		return types.NewSyncError("cond_destroy", types.NoIndex, types.ErrNotInitialized)
	}
	if c.inflight > 0 {
		return types.NewSyncError("cond_destroy", types.NoIndex, types.ErrBusy).
			WithContext("queued", len(c.waiters)).
			WithContext("inflight", c.inflight)
	}
	c.live = false
	return nil
}

// Wait atomically releases m and suspends the calling goroutine until the
// condition is signaled or ctx is cancelled. m is re-acquired before Wait
// returns in both cases. A cancelled wait returns an error wrapping
// types.ErrCancelled. The caller must hold m.
//
// Wait may return without a matching Signal; callers re-check their
// predicate in a loop.
func (c *Cond) Wait(ctx context.Context, m *Mutex) error {
	c.mu.Lock()
	if !c.live {
		c.mu.Unlock()
		return types.NewSyncError("cond_wait", types.NoIndex, types.ErrNotInitialized)
	}
	if !m.HeldByCaller() {
		c.mu.Unlock()
		return types.NewSyncError("cond_wait", types.NoIndex, types.ErrNotOwner)
	}
	// Enqueue while m is still held so a signaler that takes m afterwards
	// always sees this waiter.
	ch := make(chan struct{}, 1)
	c.waiters = append(c.waiters, ch)
	c.inflight++
	c.mu.Unlock()

	if err := m.Unlock(); err != nil {
		c.mu.Lock()
		c.dequeue(ch)
		c.inflight--
		c.mu.Unlock()
		return err
	}

	var result error
	select {
	case <-ch:
	case <-ctx.Done():
		c.mu.Lock()
		c.dequeue(ch)
		c.mu.Unlock()
		result = fmt.Errorf("%w: %v", types.ErrCancelled, context.Cause(ctx))
	}

	lockErr := m.Lock()

	c.mu.Lock()
	c.inflight--
	c.mu.Unlock()

	if lockErr != nil {
		return lockErr
	}
	return result
}

// Signal wakes the oldest waiter, if any. With no waiters it is a no-op.
func (c *Cond) Signal() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.live {
		return types.NewSyncError("cond_signal", types.NoIndex, types.ErrNotInitialized)
	}
	if len(c.waiters) == 0 {
		return nil
	}
	ch := c.waiters[0]
	c.waiters = c.waiters[1:]
	ch <- struct{}{}
	return nil
}

// Broadcast wakes every current waiter
func (c *Cond) Broadcast() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.live {
		return types.NewSyncError("cond_broadcast", types.NoIndex, types.ErrNotInitialized)
	}
	for _, ch := range c.waiters {
		ch <- struct{}{}
	}
	c.waiters = nil
	return nil
}

// Waiters returns the number of goroutines queued on the condition
func (c *Cond) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// InFlight returns the number of goroutines inside Wait, queued or unwinding
func (c *Cond) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight
}

// dequeue removes ch if it is still queued. A waiter already popped by
// Signal is not found; its wakeup is consumed by the cancellation.
func (c *Cond) dequeue(ch chan struct{}) {
	for i, w := range c.waiters {
		if w == ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}
