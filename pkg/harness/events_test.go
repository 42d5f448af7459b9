package harness

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jzx17/condprobe/internal/testutils"
	"github.com/jzx17/condprobe/pkg/types"
)

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "starting", EventStarting.String())
	assert.Equal(t, "pausing", EventPausing.String())
	assert.Equal(t, "terminated", EventTerminated.String())
	assert.Equal(t, "unknown", EventKind(999).String())
}

func TestEventKind_FromWorker(t *testing.T) {
	workers := []EventKind{EventStarted, EventWaiting, EventWoken, EventCancelled}
	for _, k := range workers {
		assert.True(t, k.FromWorker(), k.String())
	}

	controller := []EventKind{
		EventStarting, EventSpawnFailed, EventPausing, EventSignaling, EventSignaled,
		EventCancelling, EventJoined, EventDestroyed, EventTerminated,
	}
	for _, k := range controller {
		assert.False(t, k.FromWorker(), k.String())
	}
}

func TestEvent_Line(t *testing.T) {
	tests := []struct {
		kind     EventKind
		expected string
	}{
		{EventStarting, "Starting thread 3..."},
		{EventSpawnFailed, "Failure starting thread 3!"},
		{EventStarted, "Started thread 3"},
		{EventWaiting, "Thread 3 waiting on condition."},
		{EventWoken, "Thread 3 woke (signaled or spurious)."},
		{EventCancelled, "Thread 3 cancelled."},
		{EventSignaling, "Signaling condition for thread 3..."},
		{EventSignaled, "Signaled thread 3"},
		{EventCancelling, "Cancelling thread 3..."},
		{EventTerminated, "Terminated 3."},
		{EventPausing, ""},
		{EventJoined, ""},
		{EventDestroyed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, Event{Kind: tt.kind, Index: 3}.Line())
		})
	}
}

func TestReporter_Emit(t *testing.T) {
	out := &testutils.SyncBuffer{}
	rec := &eventRecorder{}
	r := NewReporter("run-1", out, rec.observe, nil)

	r.Emit(EventStarting, 0)
	r.Emit(EventJoined, 0)
	r.Emit(EventTerminated, 0)

	assert.Equal(t, []string{"Starting thread 0...", "Terminated 0."}, out.Lines())

	events := rec.all()
	assert.Len(t, events, 3)
	for _, ev := range events {
		assert.Equal(t, "run-1", ev.RunID)
		assert.False(t, ev.Time.IsZero())
	}
}

func TestReporter_NilOutput(t *testing.T) {
	r := NewReporter("run-2", nil, nil, nil)
	assert.NotPanics(t, func() { r.Emit(EventStarting, types.NoIndex) })
}

func TestReporter_ConcurrentLinesDoNotInterleave(t *testing.T) {
	out := &testutils.SyncBuffer{}
	r := NewReporter("run-3", out, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Emit(EventWaiting, index)
			}
		}(i)
	}
	wg.Wait()

	lines := out.Lines()
	assert.Len(t, lines, 400)
	for _, line := range lines {
		assert.True(t, strings.HasSuffix(line, " waiting on condition."), line)
	}
}
