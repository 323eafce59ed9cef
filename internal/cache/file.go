package cache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	appLog "shabbatcal/internal/log"
)

// FileBackend keeps one entry in a single JSON file. Writes go to a temp
// file in the same directory and are renamed over the target.
type FileBackend struct {
	mu   sync.Mutex
	path string
}

// NewFileBackend returns a backend writing to path.
func NewFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		return nil, errors.New("cache: file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return &FileBackend{path: path}, nil
}

func (b *FileBackend) Get(_ context.Context, key string) ([]byte, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	value, version, err := decodeEntry(key, data)
	if err != nil && !errors.Is(err, ErrNotFound) {
		appLog.Warn("cache file unreadable; treating as empty", "path", b.path, "err", err.Error())
		return nil, 0, ErrNotFound
	}
	return value, version, err
}

func (b *FileBackend) Set(_ context.Context, key string, value []byte, version int) error {
	data, err := encodeEntry(key, value, version)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	dir := filepath.Dir(b.path)
	tmp, err := os.CreateTemp(dir, ".shabbatcal-cache-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, b.path)
}

func (b *FileBackend) Close() error { return nil }
