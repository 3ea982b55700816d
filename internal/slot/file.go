package slot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// FileSlot stores each key as a JSON document in its own file.
//
// Writes go to a temp file in the same directory, are fsynced, then renamed
// over the target and the directory is fsynced, so a crash leaves either the
// old or the new document.
// The flock serialises writers from other processes sharing the directory
// (the daemon and syncctl); mu does the same for goroutines in this process.
type FileSlot struct {
	dir  string
	mu   sync.Mutex
	lock *flock.Flock
}

// NewFileSlot creates dir if needed and returns a slot rooted there.
func NewFileSlot(dir string) (*FileSlot, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create slot dir: %w", err)
	}
	return &FileSlot{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, ".slots.lock")),
	}, nil
}

func (s *FileSlot) Get(key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read slot %q: %w", key, err)
	}
	return data, nil
}

func (s *FileSlot) Set(key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock slot dir: %w", err)
	}
	defer s.lock.Unlock() //nolint:errcheck

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write slot %q: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync slot %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close slot %q: %w", key, err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		return fmt.Errorf("commit slot %q: %w", key, err)
	}
	committed = true
	if err := syncDir(s.dir); err != nil {
		return fmt.Errorf("sync slot %q: %w", key, err)
	}
	return nil
}

// syncDir flushes the directory entry so a rename survives power loss.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return err
	}
	return d.Close()
}

func (s *FileSlot) Close() error {
	return s.lock.Close()
}

// Dir returns the directory holding the slot files.
func (s *FileSlot) Dir() string { return s.dir }

func (s *FileSlot) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

var _ Slot = (*FileSlot)(nil)
