package slot

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound is returned by Get when nothing is stored under the key.
	ErrNotFound = errors.New("slot: key not found")

	ErrInvalidKey = errors.New("slot: key must be a non-empty name without path separators")
)

// Slot is a durable, process-surviving key/value cell scoped to this device.
// Implementations must make Set all-or-nothing: a reader never observes a
// partially written value.
type Slot interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Close() error
}

// Backend selects a Slot implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
)

func (b Backend) IsValid() bool {
	switch b {
	case BackendMemory, BackendFile, BackendSQLite:
		return true
	}
	return false
}

// Open builds the slot for backend, storing its data under dir.
func Open(backend Backend, dir string) (Slot, error) {
	switch backend {
	case BackendMemory:
		return NewMemorySlot(), nil
	case BackendFile:
		return NewFileSlot(dir)
	case BackendSQLite:
		return OpenSQLiteSlot(filepath.Join(dir, "slots.db"))
	default:
		return nil, fmt.Errorf("unknown slot backend %q", backend)
	}
}

func validateKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return ErrInvalidKey
	}
	return nil
}
