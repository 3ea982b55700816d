package gateway

import (
	"context"
	"sync"

	"github.com/ricirt/plinko-sync/internal/domain"
)

// MockGateway is a hand-written, in-memory Gateway used in unit tests.
// It records every call in order and returns scripted errors.
type MockGateway struct {
	mu    sync.Mutex
	calls []domain.QueueItem

	// Errs maps an item id to the error Apply returns for it.
	Errs map[string]error
	// ErrFunc, when set, is consulted after Errs.
	ErrFunc func(ctx context.Context, item domain.QueueItem) error
	PingErr error
}

func NewMockGateway() *MockGateway {
	return &MockGateway{Errs: make(map[string]error)}
}

func (m *MockGateway) Apply(ctx context.Context, item domain.QueueItem) error {
	m.mu.Lock()
	m.calls = append(m.calls, item)
	err, ok := m.Errs[item.ID]
	fn := m.ErrFunc
	m.mu.Unlock()

	if ok {
		return err
	}
	if fn != nil {
		return fn(ctx, item)
	}
	return nil
}

func (m *MockGateway) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PingErr
}

// SetErr scripts the error for one item id.
func (m *MockGateway) SetErr(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errs[id] = err
}

// SetPingErr changes the reachability answer.
func (m *MockGateway) SetPingErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PingErr = err
}

// Calls returns the items applied so far, in call order.
func (m *MockGateway) Calls() []domain.QueueItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.QueueItem(nil), m.calls...)
}

// CallIDs returns the ids of the items applied so far, in call order.
func (m *MockGateway) CallIDs() []string {
	calls := m.Calls()
	ids := make([]string, len(calls))
	for i, c := range calls {
		ids[i] = c.ID
	}
	return ids
}

// Reset forgets recorded calls.
func (m *MockGateway) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

var (
	_ Gateway = (*MockGateway)(nil)
	_ Pinger  = (*MockGateway)(nil)
)
