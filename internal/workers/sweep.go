package workers

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"shipment-tracking/internal/database"
	"shipment-tracking/internal/reconcile"
)

// AgeSweepWorker periodically promotes stale shipment statuses and prunes
// old processed-email records.
type AgeSweepWorker struct {
	engine    *reconcile.Engine
	processed *database.ProcessedEmailStore
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger

	paused  atomic.Bool
	sweeps  atomic.Int64
	changed atomic.Int64
}

// NewAgeSweepWorker builds the sweep loop. Retention bounds how long
// processed-email records are kept; it should exceed the mailbox search
// lookback or messages would be reprocessed.
func NewAgeSweepWorker(engine *reconcile.Engine, processed *database.ProcessedEmailStore,
	interval, retention time.Duration, logger *slog.Logger) *AgeSweepWorker {
	return &AgeSweepWorker{
		engine:    engine,
		processed: processed,
		interval:  interval,
		retention: retention,
		logger:    logger,
	}
}

// Run blocks, sweeping once immediately and then on every tick, until the
// context is cancelled.
func (w *AgeSweepWorker) Run(ctx context.Context) {
	w.logger.Info("age sweep worker started", "interval", w.interval)
	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("age sweep worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep unless the worker is paused.
func (w *AgeSweepWorker) RunOnce(ctx context.Context) {
	if w.paused.Load() {
		return
	}
	now := time.Now().UTC()

	changed, err := w.engine.SweepAges(ctx, now)
	if err != nil {
		w.logger.Error("age sweep failed", "error", err)
		return
	}
	w.sweeps.Add(1)
	w.changed.Add(int64(changed))

	if w.retention > 0 {
		purged, err := w.processed.PurgeOlderThan(ctx, now.Add(-w.retention))
		if err != nil {
			w.logger.Error("processed email purge failed", "error", err)
		} else if purged > 0 {
			w.logger.Info("purged processed email records", "count", purged)
		}
	}
	if changed > 0 {
		w.logger.Info("age sweep completed", "promoted", changed)
	}
}

// Pause stops future sweeps until Resume; a sweep in flight finishes.
func (w *AgeSweepWorker) Pause() { w.paused.Store(true) }

// Resume restarts sweeping.
func (w *AgeSweepWorker) Resume() { w.paused.Store(false) }

// Stats returns lifetime sweep counters.
func (w *AgeSweepWorker) Stats() (sweeps, promoted int64, paused bool) {
	return w.sweeps.Load(), w.changed.Load(), w.paused.Load()
}
