package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FilePrefix starts every file name the application allocates.
const FilePrefix = "audio_"

// DefaultExt is the container extension used for recordings.
const DefaultExt = ".m4a"

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the audio directory

	mu    sync.Mutex
	last  int64 // last allocated stamp, keeps names unique within one process
	clock func() time.Time
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs, clock: time.Now}, nil
}

// Root returns the audio directory.
func (f *FS) Root() string {
	return f.root
}

// Owns reports whether path resolves to a file inside the audio directory.
func (f *FS) Owns(path string) bool {
	if path == "" || !filepath.IsAbs(path) {
		return false
	}
	abs := filepath.Clean(path)
	return strings.HasPrefix(abs, f.root+string(os.PathSeparator))
}

// Allocate returns a fresh path named audio_<unix ms><ext>. When two
// allocations land on the same millisecond, or a file with that name already
// exists, the stamp is bumped until the name is free.
func (f *FS) Allocate(ext string) (string, error) {
	if ext == "" {
		ext = DefaultExt
	}
	if !strings.HasPrefix(ext, ".") || strings.ContainsRune(ext, os.PathSeparator) {
		return "", fmt.Errorf("storage: invalid extension %q", ext)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	stamp := f.clock().UnixMilli()
	if stamp <= f.last {
		stamp = f.last + 1
	}
	for {
		p := filepath.Join(f.root, fmt.Sprintf("%s%d%s", FilePrefix, stamp, ext))
		_, err := os.Stat(p)
		if errors.Is(err, os.ErrNotExist) {
			f.last = stamp
			return p, nil
		}
		if err != nil {
			return "", fmt.Errorf("storage: stat candidate: %w", err)
		}
		stamp++
	}
}

// Save atomically writes r: tmp file → fsync → rename into an allocated name.
func (f *FS) Save(r io.Reader, ext string) (string, error) {
	dst, err := f.Allocate(ext)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(f.root, ".ansuz-tmp-*")
	if err != nil {
		return "", fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		return "", fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return "", fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return dst, nil
}

// Delete removes an app-owned file. Paths outside the audio directory are
// rejected.
func (f *FS) Delete(path string) error {
	if !f.Owns(path) {
		return fmt.Errorf("storage: refusing to delete file outside audio dir: %s", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("storage: delete %s: %w", filepath.Base(path), err)
	}
	return nil
}
