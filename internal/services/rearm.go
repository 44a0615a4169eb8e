package services

import (
	"context"
	"time"

	"github.com/ocgroups/meetsync/internal/logging"
	"github.com/ocgroups/meetsync/internal/repositories"
)

// RearmWorker periodically retries owners whose last provider call failed.
type RearmWorker struct {
	rearmer  repositories.Rearmer
	after    time.Duration
	interval time.Duration
	logger   logging.Logger
	metrics  *Metrics
}

func NewRearmWorker(rearmer repositories.Rearmer, after, interval time.Duration, logger logging.Logger, metrics *Metrics) *RearmWorker {
	return &RearmWorker{
		rearmer:  rearmer,
		after:    after,
		interval: interval,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run re-arms every interval. A non-positive interval disables re-arming.
func (w *RearmWorker) Run(ctx context.Context) {
	if w.interval <= 0 {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.WithError(err).Error("failed to re-arm errored meetings")
			}
		}
	}
}

func (w *RearmWorker) RunOnce(ctx context.Context) (int64, error) {
	n, err := w.rearmer.RearmErrored(ctx, w.after)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		w.metrics.rearm(n)
		w.logger.WithField("count", n).Info("re-armed errored meetings")
	}
	return n, nil
}
