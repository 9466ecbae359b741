// Package atomicfile replaces files atomically and serializes
// read-modify-write cycles per path within the process.
//
// A write lands in a temp file next to the target, is synced, and is then
// renamed over the target, so readers observe either the old or the new
// document, never a partial one.
package atomicfile

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"
)

// Result describes the outcome of a write.
type Result struct {
	Path    string `json:"path"`
	Digest  string `json:"digest"`
	Changed bool   `json:"changed"`
}

var (
	locksMu sync.Mutex
	locks   = map[string]*sync.Mutex{}
)

func lockFor(path string) *sync.Mutex {
	key := filepath.Clean(path)
	if abs, err := filepath.Abs(key); err == nil {
		key = abs
	}
	locksMu.Lock()
	defer locksMu.Unlock()
	mu, ok := locks[key]
	if !ok {
		mu = &sync.Mutex{}
		locks[key] = mu
	}
	return mu
}

// Digest returns the hex blake3-256 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Read returns the file content, or exists=false when it is missing.
func Read(path string) (data []byte, exists bool, err error) {
	data, err = os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Write atomically replaces path with data. Parent directories are created.
// When the file already holds exactly data nothing is written.
func Write(path string, data []byte, perm fs.FileMode) (Result, error) {
	mu := lockFor(path)
	mu.Lock()
	defer mu.Unlock()
	return writeLocked(path, data, perm)
}

// Update runs fn on the current content of path and atomically stores what
// it returns. The per-path lock is held for the whole cycle, so concurrent
// updates of one file are serialized. fn returning a nil slice leaves the
// file untouched.
func Update(path string, perm fs.FileMode, fn func(current []byte, exists bool) ([]byte, error)) (Result, error) {
	mu := lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	current, exists, err := Read(path)
	if err != nil {
		return Result{Path: path}, err
	}
	next, err := fn(current, exists)
	if err != nil {
		return Result{Path: path}, err
	}
	if next == nil {
		return Result{Path: path, Digest: Digest(current)}, nil
	}
	return writeLocked(path, next, perm)
}

func writeLocked(path string, data []byte, perm fs.FileMode) (Result, error) {
	res := Result{Path: path, Digest: Digest(data)}

	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
		if current, err := os.ReadFile(path); err == nil && Digest(current) == res.Digest {
			return res, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return res, fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return res, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return res, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return res, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return res, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return res, fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return res, fmt.Errorf("replace %s: %w", path, err)
	}
	res.Changed = true
	return res, nil
}
