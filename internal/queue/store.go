package queue

import (
	"bytes"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ricirt/plinko-sync/internal/domain"
	"github.com/ricirt/plinko-sync/internal/slot"
)

// DefaultKey is the storage key the pending list lives under.
const DefaultKey = "plinko_sync_queue_v1"

// Store persists the ordered list of pending items as one JSON array under a
// single slot key. It is the only code that touches that key.
type Store struct {
	slot      slot.Slot
	key       string
	logger    *zap.Logger
	onCorrupt func()
}

// NewStore returns a Store over s. onCorrupt is optional (nil = no-op) and is
// called whenever stored data has to be discarded as unreadable.
func NewStore(s slot.Slot, key string, logger *zap.Logger, onCorrupt func()) *Store {
	if key == "" {
		key = DefaultKey
	}
	if onCorrupt == nil {
		onCorrupt = func() {}
	}
	return &Store{slot: s, key: key, logger: logger, onCorrupt: onCorrupt}
}

// Read returns the stored items in insertion order.
//
// A missing key, an unreadable slot and unparsable data all read as an empty
// list: a corrupted buffer is treated as drained so it can never block the
// application. The loss is logged and reported through onCorrupt.
func (s *Store) Read() []domain.QueueItem {
	items, err := s.ReadStrict()
	if err != nil {
		s.logger.Warn("queue slot unreadable, treating as empty",
			zap.String("key", s.key), zap.Error(err))
		s.onCorrupt()
		return []domain.QueueItem{}
	}
	return items
}

// ReadStrict is Read for callers that write the list back. Unparsable data
// still reads as empty, but a slot that cannot be read at all is returned as
// an error so the stored items are not overwritten.
func (s *Store) ReadStrict() ([]domain.QueueItem, error) {
	raw, err := s.slot.Get(s.key)
	if errors.Is(err, slot.ErrNotFound) {
		return []domain.QueueItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queue: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []domain.QueueItem{}, nil
	}

	items, err := decode(raw)
	if err != nil {
		s.logger.Warn("queue slot corrupted, discarding contents",
			zap.String("key", s.key), zap.Int("bytes", len(raw)), zap.Error(err))
		s.onCorrupt()
		return []domain.QueueItem{}, nil
	}
	return items, nil
}

// Write replaces the stored list with exactly items. Storage failures are
// returned to the caller, never swallowed.
func (s *Store) Write(items []domain.QueueItem) error {
	if items == nil {
		items = []domain.QueueItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}
	if err := s.slot.Set(s.key, raw); err != nil {
		return fmt.Errorf("write queue: %w", err)
	}
	return nil
}

// Key returns the slot key this store owns.
func (s *Store) Key() string { return s.key }

func decode(raw []byte) ([]domain.QueueItem, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var items []domain.QueueItem
	if err := dec.Decode(&items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.QueueItem{}
	}
	return items, nil
}
