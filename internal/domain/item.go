package domain

import (
	"fmt"
	"time"
)

// Operation is the row-level mutation a queue item carries.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

func (o Operation) IsValid() bool {
	switch o {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Payload is the row data of a mutation, keyed by column name.
// Numbers decoded from storage are json.Number so their text survives a
// round trip unchanged.
type Payload map[string]any

// QueueItem is one pending mutation of the remote store.
type QueueItem struct {
	ID        string    `json:"id"`
	Op        Operation `json:"op"`
	Table     Table     `json:"table"`
	Payload   Payload   `json:"payload"`
	CreatedAt int64     `json:"createdAt"`

	// Attempts counts transient apply failures seen so far.
	Attempts int `json:"attempts,omitempty"`
}

// NewQueueItem stamps an item with the given id and the current time.
func NewQueueItem(id string, op Operation, table Table, payload Payload) QueueItem {
	return QueueItem{
		ID:        id,
		Op:        op,
		Table:     table,
		Payload:   payload,
		CreatedAt: time.Now().UnixMilli(),
	}
}

// Validate checks the item against the schema of its target table.
// Every returned error matches ErrInvalidItem as well as the specific cause.
func (it QueueItem) Validate() error {
	if it.ID == "" {
		return invalid(ErrInvalidItemID)
	}
	if !it.Op.IsValid() {
		return invalid(ErrInvalidOperation)
	}
	schema, ok := SchemaFor(it.Table)
	if !ok {
		return invalid(ErrUnknownTable)
	}
	if len(it.Payload) == 0 {
		return invalid(ErrEmptyPayload)
	}
	if it.CreatedAt <= 0 {
		return invalid(ErrInvalidTimestamp)
	}
	for col := range it.Payload {
		if !schema.HasColumn(col) {
			return fmt.Errorf("%w: %w %q", ErrInvalidItem, ErrUnknownColumn, col)
		}
	}
	if it.Op != OpInsert {
		if _, ok := it.Key(); !ok {
			return invalid(ErrMissingKey)
		}
	}
	return nil
}

// Key returns the primary key value carried in the payload.
func (it QueueItem) Key() (any, bool) {
	schema, ok := SchemaFor(it.Table)
	if !ok {
		return nil, false
	}
	v, ok := it.Payload[schema.PrimaryKey]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// RowKey identifies the remote row an item addresses, in a form comparable
// across items ("periods/1"). Items with no key in their payload get a key
// unique to the item.
func (it QueueItem) RowKey() string {
	if v, ok := it.Key(); ok {
		return fmt.Sprintf("%s/%v", it.Table, v)
	}
	return fmt.Sprintf("%s/#%s", it.Table, it.ID)
}

// Age reports how long ago the item was enqueued.
func (it QueueItem) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(it.CreatedAt))
}

func invalid(cause error) error {
	return fmt.Errorf("%w: %w", ErrInvalidItem, cause)
}
