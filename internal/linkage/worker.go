// Package linkage drains the thread-linkage outbox: for every order created,
// it ensures a buyer<->supplier conversation thread exists. Failures stay in
// the outbox and are retried on the next sweep, which decouples thread
// creation from order creation by construction.
package linkage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/supplyhub/marketplace/internal/domain/thread"
	"github.com/supplyhub/marketplace/internal/postgres"
)

// Outbox is the queue of pending linkage requests.
type Outbox interface {
	Pending(ctx context.Context, limit int) ([]postgres.PendingLink, error)
	MarkLinked(ctx context.Context, id int64, at time.Time) error
	RecordAttempt(ctx context.Context, id int64, cause string) error
}

// Worker periodically sweeps the outbox.
type Worker struct {
	outbox   Outbox
	threads  thread.Service
	lg       *zap.Logger
	interval time.Duration
	batch    int
}

// NewWorker creates a Worker sweeping at the given interval.
func NewWorker(outbox Outbox, threads thread.Service, lg *zap.Logger, interval time.Duration) *Worker {
	return &Worker{
		outbox:   outbox,
		threads:  threads,
		lg:       lg,
		interval: interval,
		batch:    50,
	}
}

// Run sweeps until ctx is cancelled. It always returns nil on cancellation so
// it can live in an errgroup next to the HTTP server.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep processes one batch of pending links.
func (w *Worker) sweep(ctx context.Context) {
	pending, err := w.outbox.Pending(ctx, w.batch)
	if err != nil {
		w.lg.Error("fetching pending thread links failed", zap.Error(err))
		return
	}

	for _, p := range pending {
		_, err := w.threads.GetOrCreate(ctx, p.Link.BuyerID, p.Link.SupplierID, thread.Ref{
			ProductID: p.Link.ProductID,
			OrderID:   p.Link.OrderID,
		})
		if err != nil {
			w.lg.Warn("thread linkage failed, will retry",
				zap.String("order_id", p.Link.OrderID),
				zap.Int("attempts", p.Attempts+1),
				zap.Error(err),
			)
			if recErr := w.outbox.RecordAttempt(ctx, p.ID, err.Error()); recErr != nil {
				w.lg.Error("recording link attempt failed", zap.Error(recErr))
			}
			continue
		}

		if err := w.outbox.MarkLinked(ctx, p.ID, time.Now().UTC()); err != nil {
			w.lg.Error("marking thread link done failed",
				zap.String("order_id", p.Link.OrderID),
				zap.Error(err),
			)
		}
	}
}
