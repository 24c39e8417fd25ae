package worker

import (
	"context"
	"sync"
	"time"

	"github.com/Hoang7604119/mmostore-sub003/internal/observability"
	"github.com/Hoang7604119/mmostore-sub003/internal/service"
	"go.uber.org/zap"
)

// ReleaseWorker sweeps matured holds on a fixed interval. Releases are
// idempotent, so overlapping sweeps (a manual trigger racing the scheduled
// one, or a second instance) are harmless.
type ReleaseWorker struct {
	holds     *service.HoldService
	interval  time.Duration
	batchSize int32
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewReleaseWorker constructs a worker with a default daily sweep.
func NewReleaseWorker(holds *service.HoldService) *ReleaseWorker {
	return &ReleaseWorker{
		holds:     holds,
		interval:  24 * time.Hour,
		batchSize: 100,
		stopCh:    make(chan struct{}),
	}
}

// WithInterval updates the sweep interval.
func (w *ReleaseWorker) WithInterval(interval time.Duration) *ReleaseWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// WithBatchSize updates the per-sweep hold limit.
func (w *ReleaseWorker) WithBatchSize(size int32) *ReleaseWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start blocks and sweeps at the configured interval until stopped.
func (w *ReleaseWorker) Start(ctx context.Context) {
	zap.L().Info("release worker starting",
		zap.Duration("interval", w.interval),
		zap.Int32("batch_size", w.batchSize),
	)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Sweep once immediately so holds matured while the process was down
	// release without waiting a full interval.
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("release worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("release worker stopped")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop signals the worker to stop.
func (w *ReleaseWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// Run starts the worker in a goroutine and returns its stop function.
func (w *ReleaseWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// RunOnce triggers a single sweep. Used by the admin surface.
func (w *ReleaseWorker) RunOnce(ctx context.Context) (released, attempted int, err error) {
	return w.holds.SweepDue(ctx, w.batchSize)
}

func (w *ReleaseWorker) runOnce(ctx context.Context) {
	released, attempted, err := w.holds.SweepDue(ctx, w.batchSize)
	if err != nil {
		observability.IncrementWorkerRun("release", "error")
		zap.L().Error("release sweep failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("release", "success")
	if attempted > 0 {
		zap.L().Info("release sweep completed",
			zap.Int("released", released),
			zap.Int("attempted", attempted),
		)
	}
}
