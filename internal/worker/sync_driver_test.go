package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ricirt/plinko-sync/internal/domain"
	"github.com/ricirt/plinko-sync/internal/gateway"
	"github.com/ricirt/plinko-sync/internal/queue"
	"github.com/ricirt/plinko-sync/internal/slot"
	"github.com/ricirt/plinko-sync/internal/worker"
)

var errOffline = errors.New("connection refused")

func newQueue(t *testing.T) (*queue.Queue, *slot.MemorySlot) {
	t.Helper()
	s := slot.NewMemorySlot()
	store := queue.NewStore(s, queue.DefaultKey, zap.NewNop(), nil)
	return queue.New(store, zap.NewNop(), queue.Hooks{}), s
}

func update(id string, rowID int, points int) domain.QueueItem {
	return domain.QueueItem{
		ID:        id,
		Op:        domain.OpUpdate,
		Table:     domain.TablePeriods,
		Payload:   domain.Payload{"id": rowID, "points": points},
		CreatedAt: 1700000000000,
	}
}

func enqueue(t *testing.T, q *queue.Queue, items ...domain.QueueItem) {
	t.Helper()
	for _, it := range items {
		if err := q.Enqueue(it); err != nil {
			t.Fatalf("enqueue %s: %v", it.ID, err)
		}
	}
}

func ids(items []domain.QueueItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func assertIDs(t *testing.T, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

// TestCycle_TransientFailureRequeued: A ok, B transient, C ok leaves exactly
// [B] pending and the gateway saw A, B, C in order.
func TestCycle_TransientFailureRequeued(t *testing.T) {
	q, _ := newQueue(t)
	gw := gateway.NewMockGateway()
	gw.SetErr("B", gateway.Transient(errOffline))
	enqueue(t, q, update("A", 1, 10), update("B", 2, 20), update("C", 3, 30))

	d := worker.NewSyncDriver(q, gw, 0, zap.NewNop(), worker.SyncHooks{})
	res, err := d.Cycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertIDs(t, gw.CallIDs(), "A", "B", "C")
	pending := q.PeekAll()
	assertIDs(t, ids(pending), "B")
	if pending[0].Attempts != 1 {
		t.Fatalf("expected attempts=1, got %d", pending[0].Attempts)
	}
	if res.Drained != 3 || res.Applied != 2 || res.Requeued != 1 || res.Lost != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestCycle_EmptyQueue(t *testing.T) {
	q, _ := newQueue(t)
	gw := gateway.NewMockGateway()

	var cycles int
	d := worker.NewSyncDriver(q, gw, 0, zap.NewNop(), worker.SyncHooks{
		OnCycle: func(worker.CycleResult) { cycles++ },
	})
	res, err := d.Cycle(context.Background())
	if err != nil || res.Drained != 0 {
		t.Fatalf("unexpected result %+v, %v", res, err)
	}
	if len(gw.Calls()) != 0 {
		t.Fatal("gateway should not be called for an empty queue")
	}
	if cycles != 1 {
		t.Fatalf("expected one cycle observation, got %d", cycles)
	}
}

func TestCycle_PermanentFailureDropped(t *testing.T) {
	q, _ := newQueue(t)
	gw := gateway.NewMockGateway()
	gw.SetErr("B", gateway.Permanent(domain.ErrNotFound))
	enqueue(t, q, update("A", 1, 10), update("B", 2, 20))

	var lost []worker.LostMutation
	d := worker.NewSyncDriver(q, gw, 0, zap.NewNop(), worker.SyncHooks{
		OnLost: func(l worker.LostMutation) { lost = append(lost, l) },
	})
	res, err := d.Cycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %v", ids(q.PeekAll()))
	}
	if res.Lost != 1 || len(lost) != 1 {
		t.Fatalf("expected one lost mutation, got %+v / %v", res, lost)
	}
	if lost[0].Item.ID != "B" || lost[0].Reason != worker.LostPermanent || !errors.Is(lost[0].Err, domain.ErrNotFound) {
		t.Fatalf("unexpected lost mutation %+v", lost[0])
	}
}

// Later items for a row that failed transiently must not overtake it.
func TestCycle_PerRowOrderingPreserved(t *testing.T) {
	q, _ := newQueue(t)
	gw := gateway.NewMockGateway()
	gw.SetErr("row1-a", gateway.Transient(errOffline))
	enqueue(t, q,
		update("row1-a", 1, 10),
		update("row2-a", 2, 5),
		update("row1-b", 1, 20),
		update("row2-b", 2, 6),
	)

	d := worker.NewSyncDriver(q, gw, 0, zap.NewNop(), worker.SyncHooks{})
	res, err := d.Cycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	assertIDs(t, gw.CallIDs(), "row1-a", "row2-a", "row2-b")
	pending := q.PeekAll()
	assertIDs(t, ids(pending), "row1-a", "row1-b")
	if pending[1].Attempts != 0 {
		t.Fatalf("deferred item should keep its attempt count, got %d", pending[1].Attempts)
	}
	if res.Deferred != 1 || res.Requeued != 2 {
		t.Fatalf("unexpected result %+v", res)
	}

	// Once the remote store recovers both row1 items apply in order.
	gw.SetErr("row1-a", nil)
	gw.Reset()
	if _, err := d.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	assertIDs(t, gw.CallIDs(), "row1-a", "row1-b")
	if q.Len() != 0 {
		t.Fatal("expected queue to be empty")
	}
}

func TestCycle_KeylessInsertsAreIndependentRows(t *testing.T) {
	q, _ := newQueue(t)
	gw := gateway.NewMockGateway()
	gw.SetErr("ins-1", gateway.Transient(errOffline))

	ins := func(id string) domain.QueueItem {
		return domain.QueueItem{
			ID: id, Op: domain.OpInsert, Table: domain.TablePeriods,
			Payload: domain.Payload{"nickname": id}, CreatedAt: 1,
		}
	}
	enqueue(t, q, ins("ins-1"), ins("ins-2"))

	d := worker.NewSyncDriver(q, gw, 0, zap.NewNop(), worker.SyncHooks{})
	if _, err := d.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	assertIDs(t, gw.CallIDs(), "ins-1", "ins-2")
	assertIDs(t, ids(q.PeekAll()), "ins-1")
}

// A limit of N allows exactly N gateway calls for an item that keeps failing.
func TestCycle_AttemptLimitDemotesToPermanent(t *testing.T) {
	q, _ := newQueue(t)
	gw := gateway.NewMockGateway()
	gw.SetErr("A", gateway.Transient(errOffline))
	enqueue(t, q, update("A", 1, 10))

	var lost []worker.LostMutation
	d := worker.NewSyncDriver(q, gw, 3, zap.NewNop(), worker.SyncHooks{
		OnLost: func(l worker.LostMutation) { lost = append(lost, l) },
	})

	for i := 1; i <= 2; i++ {
		if _, err := d.Cycle(context.Background()); err != nil {
			t.Fatal(err)
		}
		pending := q.PeekAll()
		if len(pending) != 1 || pending[0].Attempts != i {
			t.Fatalf("cycle %d: expected A with attempts=%d, got %+v", i, i, pending)
		}
	}

	res, err := d.Cycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if q.Len() != 0 || res.Lost != 1 {
		t.Fatalf("expected A to be dropped, result %+v", res)
	}
	if n := len(gw.Calls()); n != 3 {
		t.Fatalf("expected 3 gateway calls, got %d", n)
	}
	if len(lost) != 1 || lost[0].Reason != worker.LostExhausted {
		t.Fatalf("unexpected lost mutations %+v", lost)
	}

	// Further cycles have nothing left to send.
	if _, err := d.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(gw.Calls()); n != 3 {
		t.Fatalf("expected no more gateway calls, got %d", n)
	}
}

func TestCycle_SingleAttemptDropsOnFirstFailure(t *testing.T) {
	q, _ := newQueue(t)
	gw := gateway.NewMockGateway()
	gw.SetErr("A", gateway.Transient(errOffline))
	enqueue(t, q, update("A", 1, 10))

	d := worker.NewSyncDriver(q, gw, 1, zap.NewNop(), worker.SyncHooks{})
	res, err := d.Cycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Lost != 1 || q.Len() != 0 || len(gw.Calls()) != 1 {
		t.Fatalf("expected A dropped after one call, result %+v", res)
	}
}

func TestCycle_CancellationRequeuesRemainder(t *testing.T) {
	q, _ := newQueue(t)
	gw := gateway.NewMockGateway()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw.ErrFunc = func(ctx context.Context, item domain.QueueItem) error {
		if item.ID == "B" {
			cancel()
			return ctx.Err()
		}
		return nil
	}
	enqueue(t, q, update("A", 1, 1), update("B", 2, 2), update("C", 3, 3))

	d := worker.NewSyncDriver(q, gw, 0, zap.NewNop(), worker.SyncHooks{})
	res, err := d.Cycle(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	assertIDs(t, gw.CallIDs(), "A", "B")
	pending := q.PeekAll()
	assertIDs(t, ids(pending), "B", "C")
	for _, it := range pending {
		if it.Attempts != 0 {
			t.Fatalf("interrupted item %s should keep attempts=0, got %d", it.ID, it.Attempts)
		}
	}
	if res.Applied != 1 || res.Requeued != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func cyclePanics(t *testing.T, d *worker.SyncDriver) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic to propagate")
		}
	}()
	_, _ = d.Cycle(context.Background())
}

func TestCycle_PanicStillRequeues(t *testing.T) {
	q, _ := newQueue(t)
	gw := gateway.NewMockGateway()
	gw.ErrFunc = func(_ context.Context, item domain.QueueItem) error {
		if item.ID == "B" {
			panic("driver bug")
		}
		return nil
	}
	enqueue(t, q, update("A", 1, 1), update("B", 2, 2), update("C", 3, 3))

	d := worker.NewSyncDriver(q, gw, 0, zap.NewNop(), worker.SyncHooks{})
	cyclePanics(t, d)

	pending := q.PeekAll()
	assertIDs(t, ids(pending), "B", "C")
	if pending[0].Attempts != 1 || pending[1].Attempts != 0 {
		t.Fatalf("expected the panicking item charged one attempt, got %d, %d",
			pending[0].Attempts, pending[1].Attempts)
	}
}

// An item that always panics the gateway is eventually dropped so the items
// behind it get their turn.
func TestCycle_PanickingItemHitsAttemptLimit(t *testing.T) {
	q, _ := newQueue(t)
	gw := gateway.NewMockGateway()
	gw.ErrFunc = func(_ context.Context, item domain.QueueItem) error {
		if item.ID == "B" {
			panic("driver bug")
		}
		return nil
	}
	enqueue(t, q, update("B", 2, 2), update("C", 3, 3))

	var lost []worker.LostMutation
	d := worker.NewSyncDriver(q, gw, 2, zap.NewNop(), worker.SyncHooks{
		OnLost: func(l worker.LostMutation) { lost = append(lost, l) },
	})
	cyclePanics(t, d)
	cyclePanics(t, d)

	if len(lost) != 1 || lost[0].Item.ID != "B" || !errors.Is(lost[0].Err, worker.ErrApplyPanicked) {
		t.Fatalf("expected B lost after two panics, got %+v", lost)
	}
	assertIDs(t, ids(q.PeekAll()), "C")

	if _, err := d.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if q.Len() != 0 {
		t.Fatalf("expected C applied, got %v", ids(q.PeekAll()))
	}
}

// Items enqueued while a cycle is in flight stay behind the retried ones.
func TestCycle_ConcurrentEnqueueKept(t *testing.T) {
	q, _ := newQueue(t)
	gw := gateway.NewMockGateway()
	gw.ErrFunc = func(_ context.Context, item domain.QueueItem) error {
		if item.ID == "A" {
			if err := q.Enqueue(update("new", 9, 9)); err != nil {
				t.Errorf("enqueue during cycle: %v", err)
			}
			return gateway.Transient(errOffline)
		}
		return nil
	}
	enqueue(t, q, update("A", 1, 1))

	d := worker.NewSyncDriver(q, gw, 0, zap.NewNop(), worker.SyncHooks{})
	if _, err := d.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	assertIDs(t, ids(q.PeekAll()), "A", "new")
}

// A store that cannot record the outcome keeps every item pending and reports
// nothing lost; the next cycle replays them.
func TestCycle_SettleWriteFailureKeepsItems(t *testing.T) {
	q, s := newQueue(t)
	gw := gateway.NewMockGateway()
	writeErr := errors.New("disk full")
	gw.ErrFunc = func(_ context.Context, item domain.QueueItem) error {
		s.SetErr = writeErr
		if item.ID == "B" {
			return gateway.Permanent(domain.ErrNotFound)
		}
		return nil
	}
	enqueue(t, q, update("A", 1, 1), update("B", 2, 2))

	var lost []worker.LostMutation
	d := worker.NewSyncDriver(q, gw, 0, zap.NewNop(), worker.SyncHooks{
		OnLost: func(l worker.LostMutation) { lost = append(lost, l) },
	})
	res, err := d.Cycle(context.Background())
	if !errors.Is(err, writeErr) {
		t.Fatalf("expected write error, got %v", err)
	}
	if res.Lost != 0 || len(lost) != 0 || res.Requeued != 2 {
		t.Fatalf("unexpected result %+v / %+v", res, lost)
	}

	s.SetErr = nil
	assertIDs(t, ids(q.PeekAll()), "A", "B")

	gw.ErrFunc = nil
	gw.SetErr("B", gateway.Permanent(domain.ErrNotFound))
	gw.Reset()
	if _, err := d.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	assertIDs(t, gw.CallIDs(), "A", "B")
	if q.Len() != 0 || len(lost) != 1 {
		t.Fatalf("expected queue settled with one loss, got %v / %+v", ids(q.PeekAll()), lost)
	}
}

// Items stay in the store while they are being applied so a crash mid-cycle
// cannot lose them.
func TestCycle_ItemsStayStoredWhileApplying(t *testing.T) {
	q, _ := newQueue(t)
	gw := gateway.NewMockGateway()
	var seen []int
	gw.ErrFunc = func(context.Context, domain.QueueItem) error {
		seen = append(seen, q.Len())
		return nil
	}
	enqueue(t, q, update("A", 1, 1), update("B", 2, 2))

	d := worker.NewSyncDriver(q, gw, 0, zap.NewNop(), worker.SyncHooks{})
	if _, err := d.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != 2 || seen[1] != 2 {
		t.Fatalf("expected both items stored during apply, saw %v", seen)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}

func TestCycle_HooksObserveOutcomes(t *testing.T) {
	q, _ := newQueue(t)
	gw := gateway.NewMockGateway()
	gw.SetErr("B", gateway.Transient(errOffline))
	enqueue(t, q, update("A", 1, 1), update("B", 2, 2))

	var mu sync.Mutex
	var applied, requeued []string
	var last worker.CycleResult
	d := worker.NewSyncDriver(q, gw, 0, zap.NewNop(), worker.SyncHooks{
		OnApplied:  func(it domain.QueueItem) { mu.Lock(); applied = append(applied, it.ID); mu.Unlock() },
		OnRequeued: func(it domain.QueueItem) { mu.Lock(); requeued = append(requeued, it.ID); mu.Unlock() },
		OnCycle:    func(r worker.CycleResult) { last = r },
	})
	if _, err := d.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	assertIDs(t, applied, "A")
	assertIDs(t, requeued, "B")
	if last.Drained != 2 || last.Applied != 1 || last.Requeued != 1 {
		t.Fatalf("unexpected cycle observation %+v", last)
	}
}

func TestCycle_SerializedAcrossCallers(t *testing.T) {
	q, _ := newQueue(t)
	gw := gateway.NewMockGateway()

	var inFlight, maxInFlight int
	var mu sync.Mutex
	gw.ErrFunc = func(context.Context, domain.QueueItem) error {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	}

	d := worker.NewSyncDriver(q, gw, 0, zap.NewNop(), worker.SyncHooks{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if err := q.Enqueue(update(fmt.Sprintf("%d-%d", i, j), i+1, j)); err != nil {
					t.Errorf("enqueue: %v", err)
				}
				_, _ = d.Cycle(context.Background())
			}
		}()
	}
	wg.Wait()

	if maxInFlight > 1 {
		t.Fatalf("cycles overlapped: %d concurrent applies", maxInFlight)
	}
}
