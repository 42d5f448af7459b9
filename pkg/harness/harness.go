package harness

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jzx17/condprobe/pkg/primitive"
	"github.com/jzx17/condprobe/pkg/types"
)

// Harness drives one run: start every worker, pause, then signal, cancel,
// join and destroy each worker in index order
type Harness struct {
	config   *Config
	chk      *primitive.Checked
	reporter *Reporter
	logger   *slog.Logger
	runID    string
	set      *WorkerSet
}

// New creates a harness for a single run
func New(config *Config) (*Harness, error) {
	cfg, err := config.withDefaults()
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	return &Harness{
		config:   cfg,
		chk:      primitive.NewChecked(cfg.FatalHandler),
		reporter: NewReporter(runID, cfg.Output, cfg.Observer, cfg.Clock),
		logger:   cfg.Logger.With(slog.String("run_id", runID)),
		runID:    runID,
		set:      newWorkerSet(cfg.WorkerCount),
	}, nil
}

// RunID returns the unique identifier of this run
func (h *Harness) RunID() string {
	return h.runID
}

// Workers returns the worker set of this run
func (h *Harness) Workers() *WorkerSet {
	return h.set
}

// Run executes the scenario. It returns an error wrapping
// types.ErrSpawnFailed when a worker cannot be started; failures of the
// primitives themselves go to the fatal handler and never return.
//
// Unless CleanupOnSpawnFailure is set, workers started before a failed
// spawn are left waiting; Shutdown releases them.
func (h *Harness) Run(ctx context.Context) error {
	start := h.config.Clock.Now()
	h.logger.Info("starting workers", slog.Int("count", h.set.Len()))

	if err := h.start(ctx); err != nil {
		return err
	}

	h.logger.Debug("pausing before teardown", slog.Duration("delay", h.config.StartupDelay))
	interrupted := h.pause(ctx)

	h.teardown(h.set.records)

	if interrupted {
		return ctx.Err()
	}
	h.logger.Info("run complete", slog.Duration("elapsed", h.config.Clock.Since(start)))
	return nil
}

// Shutdown tears down every record still holding a thread or live
// primitives, in index order
func (h *Harness) Shutdown() {
	h.teardown(h.set.records)
}

func (h *Harness) start(ctx context.Context) error {
	for _, rec := range h.set.records {
		chk := h.chk.WithIndex(rec.index)

		h.reporter.Emit(EventStarting, rec.index)
		rec.init(chk)

		th, err := chk.Spawn(ctx, h.config.Spawner, h.worker, rec, h.config.StackSize)
		if err != nil {
			h.reporter.Emit(EventSpawnFailed, rec.index)
			h.logger.Error("failed to start worker",
				slog.Int("thread", rec.index),
				slog.Any("error", err))

			if h.config.CleanupOnSpawnFailure {
				h.teardown(h.set.records[:rec.index+1])
			}
			return fmt.Errorf("thread %d: %w: %w", rec.index, types.ErrSpawnFailed, err)
		}
		rec.thread = th
		h.logger.Debug("worker spawned",
			slog.Int("thread", rec.index),
			slog.Uint64("tid", th.ID()))
	}
	return nil
}

// pause waits for the startup delay and reports whether ctx ended it early
func (h *Harness) pause(ctx context.Context) bool {
	if h.config.StartupDelay == 0 {
		h.reporter.Emit(EventPausing, types.NoIndex)
		return false
	}

	timer := h.config.Clock.NewTimer(h.config.StartupDelay)
	defer timer.Stop()
	h.reporter.Emit(EventPausing, types.NoIndex)

	select {
	case <-timer.C():
		return false
	case <-ctx.Done():
		h.logger.Warn("startup pause interrupted", slog.Any("cause", context.Cause(ctx)))
		return true
	}
}

// teardown signals, cancels, joins and destroys each record in order. The
// order is fixed and no synchronization is added between the steps.
func (h *Harness) teardown(records []*ThreadRecord) {
	for _, rec := range records {
		chk := h.chk.WithIndex(rec.index)

		if rec.thread == nil {
			if rec.live {
				rec.destroy(chk)
				h.reporter.Emit(EventDestroyed, rec.index)
			}
			continue
		}

		h.reporter.Emit(EventSignaling, rec.index)
		chk.Lock(&rec.lock)
		chk.Signal(&rec.cond)
		h.reporter.Emit(EventSignaled, rec.index)
		chk.Unlock(&rec.lock)

		h.reporter.Emit(EventCancelling, rec.index)
		chk.RequestCancel(rec.thread)

		status := chk.Join(rec.thread)
		rec.thread = nil
		h.reporter.Emit(EventJoined, rec.index)
		h.logger.Debug("worker joined",
			slog.Int("thread", rec.index),
			slog.Bool("cancelled", status.Cancelled))
		if status.Panic != nil {
			chk.Check("worker_exit", status.Panic)
		}

		rec.destroy(chk)
		h.reporter.Emit(EventDestroyed, rec.index)
		h.reporter.Emit(EventTerminated, rec.index)
	}
}
