package harness

import (
	"sync/atomic"

	"github.com/jzx17/condprobe/pkg/primitive"
	"github.com/jzx17/condprobe/pkg/types"
)

// ThreadState defines the state of a worker thread
type ThreadState int32

const (
	// StateCreated represents an initialized record whose thread has not started
	StateCreated ThreadState = iota
	// StateAcquiringLock represents a started thread taking its record lock
	StateAcquiringLock
	// StateWaiting represents a thread blocked on its condition variable
	StateWaiting
	// StateWoken represents a thread that returned from wait holding its lock
	StateWoken
	// StateCancelling represents a thread unwinding after cancellation
	StateCancelling
	// StateTerminated represents a thread that has released its lock and exited
	StateTerminated
)

// String returns the string representation of ThreadState
func (s ThreadState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAcquiringLock:
		return "acquiring-lock"
	case StateWaiting:
		return "waiting"
	case StateWoken:
		return "woken"
	case StateCancelling:
		return "cancelling"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ThreadRecord is the state owned by one worker: its condition variable,
// the mutex guarding it, and the handle of the thread waiting on it
type ThreadRecord struct {
	index  int
	cond   primitive.Cond
	lock   primitive.Mutex
	thread *primitive.Thread
	live   bool // primitives initialized and not yet destroyed

	state       atomic.Int32
	waitEntries atomic.Int64
	wakes       atomic.Int64
}

func newThreadRecord(index int) *ThreadRecord {
	return &ThreadRecord{index: index}
}

// Index returns the record index
func (r *ThreadRecord) Index() int {
	return r.index
}

// State returns the current thread state
func (r *ThreadRecord) State() ThreadState {
	return ThreadState(r.state.Load())
}

// WaitEntries returns how many times the worker has entered wait
func (r *ThreadRecord) WaitEntries() int64 {
	return r.waitEntries.Load()
}

// Wakes returns how many times the worker has returned from wait uncancelled
func (r *ThreadRecord) Wakes() int64 {
	return r.wakes.Load()
}

// LockHeld reports whether any goroutine holds the record lock
func (r *ThreadRecord) LockHeld() bool {
	return r.lock.Held()
}

func (r *ThreadRecord) setState(s ThreadState) {
	r.state.Store(int32(s))
}

func (r *ThreadRecord) init(chk *primitive.Checked) {
	chk.InitCond(&r.cond)
	chk.InitMutex(&r.lock)
	r.live = true
	r.setState(StateCreated)
}

// destroy releases the record's primitives. The worker must already have
// been joined and its handle cleared.
func (r *ThreadRecord) destroy(chk *primitive.Checked) {
	if r.thread != nil {
		chk.Check("record_destroy", types.NewSyncError("record_destroy", r.index, types.ErrBusy).
			WithContext("state", r.State().String()))
	}
	chk.DestroyCond(&r.cond)
	chk.DestroyMutex(&r.lock)
	r.live = false
}

// RecordStats is a snapshot of a ThreadRecord
type RecordStats struct {
	Index       int
	State       ThreadState
	WaitEntries int64
	Wakes       int64
}

// Stats returns a snapshot of the record
func (r *ThreadRecord) Stats() RecordStats {
	return RecordStats{
		Index:       r.index,
		State:       r.State(),
		WaitEntries: r.WaitEntries(),
		Wakes:       r.Wakes(),
	}
}

// WorkerSet is the fixed, ordered set of records for one run
type WorkerSet struct {
	records []*ThreadRecord
}

func newWorkerSet(n int) *WorkerSet {
	records := make([]*ThreadRecord, n)
	for i := range records {
		records[i] = newThreadRecord(i)
	}
	return &WorkerSet{records: records}
}

// Len returns the number of records
func (s *WorkerSet) Len() int {
	return len(s.records)
}

// Record returns the record at index i
func (s *WorkerSet) Record(i int) *ThreadRecord {
	return s.records[i]
}

// Stats returns a snapshot of every record
func (s *WorkerSet) Stats() []RecordStats {
	stats := make([]RecordStats, len(s.records))
	for i, r := range s.records {
		stats[i] = r.Stats()
	}
	return stats
}

// AllWaiting reports whether every record's worker has entered wait at least once
func (s *WorkerSet) AllWaiting() bool {
	for _, r := range s.records {
		if r.WaitEntries() == 0 {
			return false
		}
	}
	return true
}
