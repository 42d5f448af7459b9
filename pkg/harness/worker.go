package harness

import (
	"context"
)

// worker is the thread body bound to one ThreadRecord. It holds the record
// lock for its whole life except while inside wait, and waits again after
// every wake until cancelled. The deferred unlock runs on the cancellation
// path exactly as on any other exit.
func (h *Harness) worker(ctx context.Context, arg any) any {
	rec := arg.(*ThreadRecord)
	chk := h.chk.WithIndex(rec.index)

	h.reporter.Emit(EventStarted, rec.index)

	defer rec.setState(StateTerminated)

	rec.setState(StateAcquiringLock)
	chk.Lock(&rec.lock)
	defer chk.Unlock(&rec.lock)

	for {
		rec.setState(StateWaiting)
		rec.waitEntries.Add(1)
		h.reporter.Emit(EventWaiting, rec.index)

		if err := chk.Wait(ctx, &rec.cond, &rec.lock); err != nil {
			rec.setState(StateCancelling)
			h.reporter.Emit(EventCancelled, rec.index)
			return err
		}

		rec.setState(StateWoken)
		rec.wakes.Add(1)
		h.reporter.Emit(EventWoken, rec.index)
	}
}
