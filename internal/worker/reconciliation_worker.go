package worker

import (
	"context"
	"sync"
	"time"

	"github.com/Hoang7604119/mmostore-sub003/internal/observability"
	"github.com/Hoang7604119/mmostore-sub003/internal/service"
	"go.uber.org/zap"
)

const defaultReconcileInterval = 24 * time.Hour

// ReconciliationWorker periodically checks that every account's pending
// balance equals the sum of its open holds. A mismatch is reported, never
// auto-corrected.
type ReconciliationWorker struct {
	svc      *service.ReconciliationService
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewReconciliationWorker(svc *service.ReconciliationService) *ReconciliationWorker {
	return &ReconciliationWorker{
		svc:      svc,
		interval: defaultReconcileInterval,
		stopCh:   make(chan struct{}),
	}
}

func (w *ReconciliationWorker) WithInterval(interval time.Duration) *ReconciliationWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Run starts the loop in a goroutine and returns an idempotent stop function.
// The first check fires immediately so a fresh deployment gets a verdict
// without waiting a full interval.
func (w *ReconciliationWorker) Run(ctx context.Context) func() {
	go w.loop(ctx)
	return w.Stop
}

// Stop signals the loop to exit. Safe to call more than once.
func (w *ReconciliationWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *ReconciliationWorker) loop(ctx context.Context) {
	zap.L().Info("reconciliation worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.check(ctx)
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("reconciliation worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("reconciliation worker stopped")
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

func (w *ReconciliationWorker) check(ctx context.Context) {
	mismatches, err := w.svc.Run(ctx)
	if err != nil {
		observability.IncrementWorkerRun("reconciliation", "failed")
		zap.L().Error("reconciliation run failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("reconciliation", "success")
	if mismatches > 0 {
		zap.L().Warn("pending balances diverge from open holds", zap.Int("accounts", mismatches))
	}
}
