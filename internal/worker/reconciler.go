package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arvichandar/facemark-api/internal/service"
	"github.com/arvichandar/facemark-api/pkg/jobs"
)

// Reconciler periodically drains the fallback attendance queue into the
// primary store. The actual work runs on a jobs.Queue worker so a slow
// database never blocks the scheduling ticker.
type Reconciler struct {
	ledger   *service.LedgerService
	metrics  *service.MetricsService
	interval time.Duration
	queue    *jobs.Queue
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewReconciler builds a reconciler running at the given interval.
func NewReconciler(ledger *service.LedgerService, metrics *service.MetricsService, interval time.Duration, logger *zap.Logger) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	r := &Reconciler{
		ledger:   ledger,
		metrics:  metrics,
		interval: interval,
		logger:   logger,
	}
	r.queue = jobs.NewQueue("attendance-reconcile", r.handle, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 1,
		MaxRetries: 1,
		Logger:     logger,
	})
	return r
}

// Start launches the worker and the scheduling ticker.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	tickCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.queue.Start(ctx)

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				// A full buffer means a run is already queued; skip.
				if err := r.trigger(); err != nil {
					r.logger.Debug("reconcile tick skipped", zap.Error(err))
				}
			}
		}
	}()

	r.logger.Info("attendance reconciler started", zap.Duration("interval", r.interval))
}

// Stop halts the ticker and waits for in-flight work.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		r.queue.Stop()
	}
}

func (r *Reconciler) trigger() error {
	return r.queue.TryEnqueue(jobs.Job{Type: "reconcile"})
}

func (r *Reconciler) handle(ctx context.Context, _ jobs.Job) error {
	if err := r.ledger.Reconcile(ctx); err != nil {
		return err
	}
	r.metrics.SetPendingRecords(r.ledger.PendingCount(ctx))
	return nil
}
