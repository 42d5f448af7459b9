package primitive

import (
	"sync/atomic"

	"github.com/petermattis/goid"
	"github.com/sasha-s/go-deadlock"

	"github.com/jzx17/condprobe/pkg/types"
)

// Mutex is an error-checking mutex. Relocking by the owner and unlocking
// by a non-owner are reported as errors instead of deadlocking or
// corrupting state. The zero value must be initialized with Init.
type Mutex struct {
	mu    deadlock.Mutex
	owner atomic.Int64 // goroutine id of the holder, 0 when unlocked
	live  atomic.Bool
}

// Init prepares the mutex for use. Initializing a live mutex is ErrBusy.
func (m *Mutex) Init() error {
	if !m.live.CompareAndSwap(false, true) {
		return types.NewSyncError("mutex_init", types.NoIndex, types.ErrBusy)
	}
	m.owner.Store(0)
	return nil
}

// Destroy releases the mutex. It fails with ErrBusy while the mutex is held.
func (m *Mutex) Destroy() error {
	if !m.live.Load() {
		return types.NewSyncError("mutex_destroy", types.NoIndex, types.ErrNotInitialized)
	}
	if holder := m.owner.Load(); holder != 0 {
		return types.NewSyncError("mutex_destroy", types.NoIndex, types.ErrBusy).
			WithContext("owner", holder)
	}
	if !m.live.CompareAndSwap(true, false) {
		return types.NewSyncError("mutex_destroy", types.NoIndex, types.ErrNotInitialized)
	}
	return nil
}

// Lock acquires the mutex, blocking until it is available
func (m *Mutex) Lock() error {
	if !m.live.Load() {
		return types.NewSyncError("lock", types.NoIndex, types.ErrNotInitialized)
	}
	self := goid.Get()
	if m.owner.Load() == self {
		return types.NewSyncError("lock", types.NoIndex, types.ErrDeadlock)
	}
	m.mu.Lock()
	m.owner.Store(self)
	return nil
}

// Unlock releases the mutex. Only the owning goroutine may unlock it.
func (m *Mutex) Unlock() error {
	if !m.live.Load() {
		return types.NewSyncError("unlock", types.NoIndex, types.ErrNotInitialized)
	}
	if m.owner.Load() != goid.Get() {
		return types.NewSyncError("unlock", types.NoIndex, types.ErrNotOwner)
	}
	m.owner.Store(0)
	m.mu.Unlock()
	return nil
}

// Held reports whether any goroutine holds the mutex
func (m *Mutex) Held() bool {
	return m.owner.Load() != 0
}

// HeldByCaller reports whether the calling goroutine holds the mutex
func (m *Mutex) HeldByCaller() bool {
	return m.owner.Load() == goid.Get()
}

// Live reports whether the mutex is initialized and not destroyed
func (m *Mutex) Live() bool {
	return m.live.Load()
}
