package harness

import (
	"context"
	"io"
	"sync"
	"testing"

	perrors "github.com/jzx17/condprobe/internal/errors"
	"github.com/jzx17/condprobe/internal/testutils"
	"github.com/jzx17/condprobe/pkg/primitive"
	"github.com/jzx17/condprobe/pkg/types"
)

// eventRecorder collects events from the controller and every worker
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) observe(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) controller() []Event {
	var out []Event
	for _, ev := range r.all() {
		if !ev.Kind.FromWorker() {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) seen(kind EventKind) bool {
	for _, ev := range r.all() {
		if ev.Kind == kind {
			return true
		}
	}
	return false
}

// position returns the index in the recorded sequence of the first event
// matching kind and index, or -1
func position(events []Event, kind EventKind, index int) int {
	for i, ev := range events {
		if ev.Kind == kind && ev.Index == index {
			return i
		}
	}
	return -1
}

// failingSpawner fails the spawn call with the given ordinal with ErrAgain
type failingSpawner struct {
	inner  primitive.Spawner
	failAt int
	mu     sync.Mutex
	calls  int
}

func (s *failingSpawner) Spawn(ctx context.Context, entry primitive.EntryFunc, arg any, stackSize int) (*primitive.Thread, error) {
	s.mu.Lock()
	call := s.calls
	s.calls++
	s.mu.Unlock()

	if call == s.failAt {
		return nil, types.NewSyncError("spawn", types.NoIndex, types.ErrAgain)
	}
	return s.inner.Spawn(ctx, entry, arg, stackSize)
}

// testConfig returns a quiet configuration whose fatal errors panic
func testConfig(rec *eventRecorder, out *testutils.SyncBuffer) *Config {
	cfg := &Config{
		WorkerCount:  DefaultWorkerCount,
		StackSize:    primitive.DefaultStackSize,
		FatalHandler: perrors.NewPanicHandler(),
		Logger:       testutils.DiscardLogger(),
		Output:       io.Discard,
	}
	if out != nil {
		cfg.Output = out
	}
	if rec != nil {
		cfg.Observer = rec.observe
	}
	return cfg
}

// fatalOf runs fn and returns the FatalError it panicked with, or nil
func fatalOf(fn func()) (fatal *perrors.FatalError) {
	defer func() {
		if r := recover(); r != nil {
			fatal, _ = r.(*perrors.FatalError)
		}
	}()
	fn()
	return nil
}

func newTestHarness(t *testing.T, cfg *Config) *Harness {
	t.Helper()
	h, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}
