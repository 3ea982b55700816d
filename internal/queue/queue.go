package queue

import (
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/ricirt/plinko-sync/internal/domain"
)

// Hooks carries the metric callbacks injected by main.
// Both are optional (nil = no-op).
type Hooks struct {
	OnEnqueued func(item domain.QueueItem)
	OnDepth    func(depth int)
}

// Queue exposes the operations producers and the sync driver use on the
// durable pending list. Every operation is a read-modify-write of the Store
// under one mutex, so goroutines in this process never interleave; other
// processes sharing the slot must coordinate on their own.
type Queue struct {
	mu     sync.Mutex
	store  *Store
	logger *zap.Logger

	onEnqueued func(domain.QueueItem)
	onDepth    func(int)
}

func New(store *Store, logger *zap.Logger, hooks Hooks) *Queue {
	if hooks.OnEnqueued == nil {
		hooks.OnEnqueued = func(domain.QueueItem) {}
	}
	if hooks.OnDepth == nil {
		hooks.OnDepth = func(int) {}
	}
	return &Queue{
		store:      store,
		logger:     logger,
		onEnqueued: hooks.OnEnqueued,
		onDepth:    hooks.OnDepth,
	}
}

// Enqueue appends item at the tail. When it returns nil the item is durable.
// A storage failure is returned wrapped in domain.ErrNotRecorded: the
// mutation was not captured and will never sync.
func (q *Queue) Enqueue(item domain.QueueItem) error {
	if err := item.Validate(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.store.ReadStrict()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNotRecorded, err)
	}
	if slices.ContainsFunc(items, func(it domain.QueueItem) bool { return it.ID == item.ID }) {
		return domain.ErrDuplicateItem
	}
	items = append(items, item)
	if err := q.store.Write(items); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNotRecorded, err)
	}

	q.onEnqueued(item)
	q.onDepth(len(items))
	return nil
}

// DequeueAll claims every pending item and leaves the store empty. The caller
// becomes responsible for applying or requeueing what it receives.
//
// It never fails outward. If the store cannot be cleared nothing is claimed
// and an empty list is returned, leaving the items pending for a later drain.
func (q *Queue) DequeueAll() []domain.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.store.Read()
	if len(items) == 0 {
		return items
	}
	if err := q.store.Write(nil); err != nil {
		q.logger.Error("failed to clear queue, leaving items pending",
			zap.Int("count", len(items)), zap.Error(err))
		return []domain.QueueItem{}
	}

	q.onDepth(0)
	return items
}

// PeekAll returns the pending items without removing them.
func (q *Queue) PeekAll() []domain.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.Read()
}

// ReplaceAll overwrites the pending list with items, in the given order.
func (q *Queue) ReplaceAll(items []domain.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Write(slices.Clone(items)); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNotRecorded, err)
	}
	q.onDepth(len(items))
	return nil
}

// Requeue puts items back at the head of the queue, ahead of anything
// enqueued since they were drained. With nothing enqueued in between it is
// the same as ReplaceAll(items).
func (q *Queue) Requeue(items []domain.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	current, err := q.store.ReadStrict()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNotRecorded, err)
	}
	merged := make([]domain.QueueItem, 0, len(items)+len(current))
	merged = append(merged, items...)
	merged = append(merged, current...)

	if err := q.store.Write(merged); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNotRecorded, err)
	}
	q.onDepth(len(merged))
	return nil
}

// Settle records the outcome of a sync pass without removing anything it was
// not told about. Items whose id is in done are removed; items in retry
// replace the stored item with the same id in place. Pending items that are
// in neither, including ones enqueued after the pass started, are kept
// where they are. Unknown ids are ignored.
func (q *Queue) Settle(done []string, retry []domain.QueueItem) error {
	if len(done) == 0 && len(retry) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	drop := make(map[string]struct{}, len(done))
	for _, id := range done {
		drop[id] = struct{}{}
	}
	updated := make(map[string]domain.QueueItem, len(retry))
	for _, it := range retry {
		updated[it.ID] = it
	}

	current, err := q.store.ReadStrict()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNotRecorded, err)
	}
	next := make([]domain.QueueItem, 0, len(current))
	for _, it := range current {
		if _, ok := drop[it.ID]; ok {
			continue
		}
		if u, ok := updated[it.ID]; ok {
			it = u
		}
		next = append(next, it)
	}

	if err := q.store.Write(next); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNotRecorded, err)
	}
	q.onDepth(len(next))
	return nil
}

// Len returns the number of pending items.
func (q *Queue) Len() int {
	return len(q.PeekAll())
}
