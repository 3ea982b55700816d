package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/plinko-sync/internal/domain"
	"github.com/ricirt/plinko-sync/internal/gateway"
	"github.com/ricirt/plinko-sync/internal/queue"
)

// ErrApplyPanicked is recorded against an item whose gateway call panicked.
var ErrApplyPanicked = errors.New("gateway panicked while applying item")

// Reasons a mutation can be lost.
const (
	LostPermanent = "permanent"
	LostExhausted = "attempts_exhausted"
)

// LostMutation describes a pending item that was dropped and will never
// reach the remote store.
type LostMutation struct {
	Item   domain.QueueItem
	Reason string
	Err    error
}

// SyncHooks carries the callbacks injected by main. All are optional.
type SyncHooks struct {
	OnApplied  func(item domain.QueueItem)
	OnRequeued func(item domain.QueueItem)
	OnLost     func(lost LostMutation)
	OnCycle    func(res CycleResult)
}

// CycleResult summarizes one pass over the queue. Drained counts the items the
// pass picked up; Requeued counts those still pending when it ended.
type CycleResult struct {
	Drained  int           `json:"drained"`
	Applied  int           `json:"applied"`
	Requeued int           `json:"requeued"`
	Lost     int           `json:"lost"`
	Deferred int           `json:"deferred"`
	Duration time.Duration `json:"duration_ns"`
}

// SyncDriver replays the queue against the remote store.
type SyncDriver struct {
	// one cycle at a time, whoever calls
	mu sync.Mutex

	q           *queue.Queue
	gw          gateway.Gateway
	maxAttempts int
	logger      *zap.Logger

	onApplied  func(domain.QueueItem)
	onRequeued func(domain.QueueItem)
	onLost     func(LostMutation)
	onCycle    func(CycleResult)
}

// NewSyncDriver builds a driver. maxAttempts is the number of gateway calls a
// mutation gets before a transient failure drops it; <= 0 retries forever.
func NewSyncDriver(
	q *queue.Queue,
	gw gateway.Gateway,
	maxAttempts int,
	logger *zap.Logger,
	hooks SyncHooks,
) *SyncDriver {
	d := &SyncDriver{
		q: q, gw: gw, maxAttempts: maxAttempts, logger: logger,
		onApplied:  hooks.OnApplied,
		onRequeued: hooks.OnRequeued,
		onLost:     hooks.OnLost,
		onCycle:    hooks.OnCycle,
	}
	if d.onApplied == nil {
		d.onApplied = func(domain.QueueItem) {}
	}
	if d.onRequeued == nil {
		d.onRequeued = func(domain.QueueItem) {}
	}
	if d.onLost == nil {
		d.onLost = func(LostMutation) {}
	}
	if d.onCycle == nil {
		d.onCycle = func(CycleResult) {}
	}
	return d
}

// Cycle applies every pending item in order.
//
// Items stay in the store while they are applied and are only settled once
// the pass ends, so a process that dies mid-cycle replays them on the next
// start. Applied and permanently failed items are removed; transient
// failures stay in place with their attempt count bumped, and any later item
// for the same row is skipped until a later cycle. Settling runs on every
// exit path, including cancellation and a panicking gateway. Items not
// attempted yet are left untouched.
//
// The returned error is the context error when the cycle was interrupted, or
// the storage error when the outcome could not be written. In the latter
// case every item stays pending and nothing is reported lost.
func (d *SyncDriver) Cycle(ctx context.Context) (res CycleResult, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	items := d.q.PeekAll()
	res.Drained = len(items)

	var (
		done    []string
		retry   []domain.QueueItem
		lost    []LostMutation
		settled = make(map[string]struct{})
		blocked = make(map[string]struct{})
	)

	finish := func(it domain.QueueItem) {
		done = append(done, it.ID)
		settled[it.ID] = struct{}{}
	}
	drop := func(it domain.QueueItem, reason string, cause error) {
		finish(it)
		lost = append(lost, LostMutation{Item: it, Reason: reason, Err: cause})
		res.Lost++
	}
	// failed records a transient failure and reports whether the item will
	// be retried; it is dropped once it has used up its attempts.
	failed := func(it domain.QueueItem, cause error) bool {
		if d.maxAttempts > 0 && it.Attempts+1 >= d.maxAttempts {
			drop(it, LostExhausted, cause)
			return false
		}
		it.Attempts++
		retry = append(retry, it)
		return true
	}

	var inflight *domain.QueueItem

	defer func() {
		// only set here when the gateway call panicked
		if inflight != nil {
			d.logger.Error("gateway panicked while applying item",
				zap.String("item_id", inflight.ID), zap.Int("attempts", inflight.Attempts+1))
			failed(*inflight, ErrApplyPanicked)
		}
		if serr := d.q.Settle(done, retry); serr != nil {
			d.logger.Error("failed to record sync outcome, items stay pending",
				zap.Int("done", len(done)), zap.Int("retry", len(retry)), zap.Error(serr))
			res.Lost = 0
			res.Requeued = len(items)
			err = errors.Join(err, serr)
		} else {
			for _, l := range lost {
				d.onLost(l)
			}
			for _, it := range items {
				if _, ok := settled[it.ID]; !ok {
					d.onRequeued(it)
				}
			}
			res.Requeued = len(items) - len(done)
		}
		res.Duration = time.Since(start)
		d.onCycle(res)
	}()

	for _, item := range items {
		if cerr := ctx.Err(); cerr != nil {
			return res, cerr
		}

		row := item.RowKey()
		log := d.logger.With(
			zap.String("item_id", item.ID),
			zap.String("table", string(item.Table)),
			zap.String("op", string(item.Op)),
		)

		if _, ok := blocked[row]; ok {
			log.Debug("deferring item behind an earlier failure for the same row")
			res.Deferred++
			continue
		}

		inflight = &item
		applyErr := d.gw.Apply(ctx, item)
		inflight = nil

		switch {
		case applyErr == nil:
			finish(item)
			res.Applied++
			d.onApplied(item)

		case ctx.Err() != nil:
			// interrupted mid-call: the item is kept as it was
			return res, ctx.Err()

		case gateway.IsPermanent(applyErr):
			log.Error("dropping mutation rejected by remote store", zap.Error(applyErr))
			drop(item, LostPermanent, applyErr)

		default:
			if !failed(item, applyErr) {
				log.Error("dropping mutation after too many transient failures",
					zap.Int("attempts", item.Attempts+1), zap.Error(applyErr))
				continue
			}
			log.Warn("transient apply failure, will retry",
				zap.Int("attempts", item.Attempts+1), zap.Error(applyErr))
			blocked[row] = struct{}{}
		}
	}

	return res, nil
}
