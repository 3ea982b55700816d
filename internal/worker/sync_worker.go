package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// SyncWorker runs the driver on a timer, on demand, and whenever the remote
// store comes back online. It is a single goroutine, so its own cycles never
// overlap.
type SyncWorker struct {
	driver     *SyncDriver
	interval   time.Duration
	maxBackoff time.Duration
	trigger    chan struct{}
	logger     *zap.Logger
}

func NewSyncWorker(
	driver *SyncDriver,
	interval time.Duration,
	maxBackoff time.Duration,
	logger *zap.Logger,
) *SyncWorker {
	if maxBackoff < interval {
		maxBackoff = interval
	}
	return &SyncWorker{
		driver:     driver,
		interval:   interval,
		maxBackoff: maxBackoff,
		trigger:    make(chan struct{}, 1),
		logger:     logger,
	}
}

// Trigger asks for a cycle as soon as possible. It never blocks; triggers
// that arrive while one is already pending are merged.
func (w *SyncWorker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled.
func (w *SyncWorker) Run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.interval
	bo.MaxInterval = w.maxBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.2

	w.logger.Info("sync worker started",
		zap.Duration("interval", w.interval),
		zap.Duration("max_backoff", w.maxBackoff))

	timer := time.NewTimer(w.runCycle(ctx, bo))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sync worker stopping")
			return
		case <-timer.C:
		case <-w.trigger:
		}
		timer.Reset(w.runCycle(ctx, bo))
	}
}

// runCycle runs one cycle and returns the delay before the next timed one.
func (w *SyncWorker) runCycle(ctx context.Context, bo *backoff.ExponentialBackOff) (delay time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("sync cycle panicked", zap.Error(fmt.Errorf("%v", r)))
			delay = w.nextBackoff(bo)
		}
	}()

	res, err := w.driver.Cycle(ctx)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return w.interval
	case err != nil:
		w.logger.Error("sync cycle failed", zap.Error(err))
		return w.nextBackoff(bo)
	}

	if res.Drained > 0 {
		w.logger.Info("sync cycle finished",
			zap.Int("drained", res.Drained),
			zap.Int("applied", res.Applied),
			zap.Int("requeued", res.Requeued),
			zap.Int("lost", res.Lost),
			zap.Duration("took", res.Duration))
	}

	if res.Requeued > 0 {
		return w.nextBackoff(bo)
	}
	bo.Reset()
	return w.interval
}

func (w *SyncWorker) nextBackoff(bo *backoff.ExponentialBackOff) time.Duration {
	d := bo.NextBackOff()
	if d <= 0 || d > w.maxBackoff {
		d = w.maxBackoff
	}
	return d
}
