package docstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// File stores each document as <dir>/<name>.json and replaces it atomically
// through a temp file and rename. The process must be the only writer of dir.
type File struct {
	dir string
	mu  sync.Mutex
}

func NewFile(dir string) *File {
	return &File{dir: filepath.Clean(strings.TrimSpace(dir))}
}

func (f *File) Kind() string { return "file" }

// Ping checks that the data directory exists and is writable.
func (f *File) Ping(context.Context) error {
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return fmt.Errorf("ensure dir %s: %w", f.dir, err)
	}
	tmp, err := os.CreateTemp(f.dir, ".ping.*")
	if err != nil {
		return fmt.Errorf("write check %s: %w", f.dir, err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	return os.Remove(name)
}

func (f *File) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ensureNotCanceled(ctx); err != nil {
		return nil, err
	}
	return f.read(name)
}

func (f *File) Update(ctx context.Context, name string, fn Mutator) error {
	if err := ensureNotCanceled(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.read(name)
	if err != nil {
		return err
	}
	next, write, err := fn(current)
	if err != nil || !write {
		return err
	}
	return writeBytesAtomic(f.path(name), next)
}

func (f *File) path(name string) string {
	return filepath.Join(f.dir, name+".json")
}

func (f *File) read(name string) ([]byte, error) {
	data, err := os.ReadFile(f.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return normalize(data), nil
}

func writeBytesAtomic(path string, data []byte) error {
	parentDir := filepath.Dir(path)
	if err := os.MkdirAll(parentDir, 0o700); err != nil {
		return fmt.Errorf("ensure dir %s: %w", parentDir, err)
	}

	tmp, err := os.CreateTemp(parentDir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("chmod temp for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp for %s: %w", path, err)
	}
	return nil
}
