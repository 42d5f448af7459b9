package harness

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jzx17/condprobe/pkg/types"
)

// EventKind identifies a step of the choreography
type EventKind int

const (
	// EventStarting: controller initialized a record and is spawning its thread
	EventStarting EventKind = iota
	// EventSpawnFailed: controller could not start the thread
	EventSpawnFailed
	// EventStarted: worker thread is running
	EventStarted
	// EventWaiting: worker is about to wait on its condition
	EventWaiting
	// EventWoken: worker returned from wait uncancelled
	EventWoken
	// EventCancelled: worker observed cancellation and is unwinding
	EventCancelled
	// EventPausing: controller armed the startup delay; Index is types.NoIndex
	EventPausing
	// EventSignaling: controller is about to lock and signal
	EventSignaling
	// EventSignaled: controller signaled, still holding the lock
	EventSignaled
	// EventCancelling: controller is requesting cancellation
	EventCancelling
	// EventJoined: controller's join returned
	EventJoined
	// EventDestroyed: controller destroyed the record's primitives
	EventDestroyed
	// EventTerminated: controller finished with the record
	EventTerminated
)

var eventNames = map[EventKind]string{
	EventStarting:    "starting",
	EventSpawnFailed: "spawn-failed",
	EventStarted:     "started",
	EventWaiting:     "waiting",
	EventWoken:       "woken",
	EventCancelled:   "cancelled",
	EventPausing:     "pausing",
	EventSignaling:   "signaling",
	EventSignaled:    "signaled",
	EventCancelling:  "cancelling",
	EventJoined:      "joined",
	EventDestroyed:   "destroyed",
	EventTerminated:  "terminated",
}

// String returns the string representation of EventKind
func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// FromWorker reports whether the event is emitted by a worker thread
// rather than the controller
func (k EventKind) FromWorker() bool {
	switch k {
	case EventStarted, EventWaiting, EventWoken, EventCancelled:
		return true
	default:
		return false
	}
}

// Event is one observed step of a run
type Event struct {
	RunID string
	Kind  EventKind
	Index int
	Time  time.Time
}

// Line returns the progress line printed for the event, or "" for events
// that are not printed
func (e Event) Line() string {
	switch e.Kind {
	case EventStarting:
		return fmt.Sprintf("Starting thread %d...", e.Index)
	case EventSpawnFailed:
		return fmt.Sprintf("Failure starting thread %d!", e.Index)
	case EventStarted:
		return fmt.Sprintf("Started thread %d", e.Index)
	case EventWaiting:
		return fmt.Sprintf("Thread %d waiting on condition.", e.Index)
	case EventWoken:
		return fmt.Sprintf("Thread %d woke (signaled or spurious).", e.Index)
	case EventCancelled:
		return fmt.Sprintf("Thread %d cancelled.", e.Index)
	case EventSignaling:
		return fmt.Sprintf("Signaling condition for thread %d...", e.Index)
	case EventSignaled:
		return fmt.Sprintf("Signaled thread %d", e.Index)
	case EventCancelling:
		return fmt.Sprintf("Cancelling thread %d...", e.Index)
	case EventTerminated:
		return fmt.Sprintf("Terminated %d.", e.Index)
	default:
		return ""
	}
}

// Reporter prints progress lines and forwards events to an observer.
// It is called from the controller and every worker concurrently.
type Reporter struct {
	runID    string
	out      io.Writer
	observer func(Event)
	clock    types.Clock

	mu sync.Mutex
}

// NewReporter creates a reporter. A nil out discards progress lines.
func NewReporter(runID string, out io.Writer, observer func(Event), clock types.Clock) *Reporter {
	if out == nil {
		out = io.Discard
	}
	if clock == nil {
		clock = types.NewRealClock()
	}
	return &Reporter{
		runID:    runID,
		out:      out,
		observer: observer,
		clock:    clock,
	}
}

// Emit records one event
func (r *Reporter) Emit(kind EventKind, index int) {
	ev := Event{RunID: r.runID, Kind: kind, Index: index, Time: r.clock.Now()}

	r.mu.Lock()
	if line := ev.Line(); line != "" {
		fmt.Fprintln(r.out, line)
	}
	r.mu.Unlock()

	if r.observer != nil {
		r.observer(ev)
	}
}
