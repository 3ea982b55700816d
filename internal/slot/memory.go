package slot

import "sync"

// MemorySlot is an in-memory Slot used in unit tests and for ephemeral runs.
type MemorySlot struct {
	mu   sync.RWMutex
	data map[string][]byte

	// Optional error overrides, set in tests to simulate storage failures.
	GetErr error
	SetErr error
}

func NewMemorySlot() *MemorySlot {
	return &MemorySlot{data: make(map[string][]byte)}
}

func (m *MemorySlot) Get(key string) ([]byte, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemorySlot) Set(key string, value []byte) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	if err := validateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemorySlot) Close() error { return nil }

var _ Slot = (*MemorySlot)(nil)
