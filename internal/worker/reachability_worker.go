package worker

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/plinko-sync/internal/gateway"
)

// ReachabilityWorker polls the remote store and calls onOnline each time it
// goes from unreachable to reachable, so queued work flushes as soon as the
// connection returns instead of waiting for the next timer.
type ReachabilityWorker struct {
	pinger   gateway.Pinger
	interval time.Duration
	onOnline func()
	logger   *zap.Logger

	online atomic.Bool
}

func NewReachabilityWorker(
	pinger gateway.Pinger,
	interval time.Duration,
	onOnline func(),
	logger *zap.Logger,
) *ReachabilityWorker {
	if onOnline == nil {
		onOnline = func() {}
	}
	rw := &ReachabilityWorker{pinger: pinger, interval: interval, onOnline: onOnline, logger: logger}
	// the sync worker runs a cycle at start-up anyway
	rw.online.Store(true)
	return rw
}

// Online reports the result of the last probe.
func (rw *ReachabilityWorker) Online() bool {
	return rw.online.Load()
}

// Run ticks every interval until ctx is cancelled.
func (rw *ReachabilityWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	rw.logger.Info("reachability worker started", zap.Duration("interval", rw.interval))

	for {
		select {
		case <-ctx.Done():
			rw.logger.Info("reachability worker stopping")
			return
		case <-ticker.C:
			rw.probe(ctx)
		}
	}
}

func (rw *ReachabilityWorker) probe(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, rw.interval)
	defer cancel()

	err := rw.pinger.Ping(pctx)
	if ctx.Err() != nil {
		return
	}

	now := err == nil
	was := rw.online.Swap(now)
	switch {
	case !was && now:
		rw.logger.Info("remote store reachable again, triggering sync")
		rw.onOnline()
	case was && !now:
		rw.logger.Warn("remote store unreachable", zap.Error(err))
	}
}
