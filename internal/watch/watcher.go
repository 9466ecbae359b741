// Package watch reports edits made to tool configuration files outside
// provsync, so a running server can refresh what it has discovered.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/memohai/provsync/internal/adapters"
	"github.com/memohai/provsync/internal/atomicfile"
)

const defaultDebounce = 300 * time.Millisecond

// Change is one settled modification of an adapter-owned file.
type Change struct {
	Tool    adapters.Tool `json:"tool"`
	Path    string        `json:"path"`
	Digest  string        `json:"digest"`
	Removed bool          `json:"removed"`
}

type Handler func(Change)

// Watcher watches the parent directories of every adapter-owned file.
// Atomic replacement shows up as a rename in the directory, so watching the
// files themselves would lose track after the first write.
type Watcher struct {
	fs       *fsnotify.Watcher
	targets  map[string]adapters.Tool
	debounce time.Duration
	handler  Handler
	logger   *slog.Logger

	mu      sync.Mutex
	digests map[string]string
	timers  map[string]*time.Timer
}

func New(log *slog.Logger, registry *adapters.Registry, debounce time.Duration, handler Handler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	w := &Watcher{
		fs:       fsw,
		targets:  map[string]adapters.Tool{},
		debounce: debounce,
		handler:  handler,
		logger:   log.With(slog.String("service", "watch")),
		digests:  map[string]string{},
		timers:   map[string]*time.Timer{},
	}
	for _, a := range registry.List() {
		for _, scope := range a.Scopes() {
			for _, p := range a.Paths(scope) {
				w.targets[filepath.Clean(p)] = a.Tool()
			}
		}
	}
	return w, nil
}

// Start registers the directories that exist and processes events until ctx
// is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	dirs := map[string]struct{}{}
	for path := range w.targets {
		dirs[filepath.Dir(path)] = struct{}{}
		w.digests[path] = w.digest(path)
	}
	watched := 0
	for dir := range dirs {
		if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
			w.logger.Debug("skipping missing directory", slog.String("dir", dir))
			continue
		}
		if err := w.fs.Add(dir); err != nil {
			w.logger.Warn("watch directory failed", slog.String("dir", dir), slog.Any("error", err))
			continue
		}
		watched++
	}
	w.logger.Info("watching tool configuration", slog.Int("directories", watched), slog.Int("files", len(w.targets)))
	go w.processEvents(ctx)
	return nil
}

func (w *Watcher) Stop() error {
	w.mu.Lock()
	for key, t := range w.timers {
		t.Stop()
		delete(w.timers, key)
	}
	w.mu.Unlock()
	return w.fs.Close()
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if _, ok := w.targets[path]; !ok {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() { w.settle(path) })
}

// settle fires once a path has been quiet for the debounce window and
// reports it when its content actually changed.
func (w *Watcher) settle(path string) {
	digest := w.digest(path)
	w.mu.Lock()
	delete(w.timers, path)
	previous := w.digests[path]
	w.digests[path] = digest
	w.mu.Unlock()
	if digest == previous {
		return
	}
	change := Change{Tool: w.targets[path], Path: path, Digest: digest, Removed: digest == ""}
	w.logger.Info("tool configuration changed", slog.String("tool", change.Tool.String()), slog.String("path", path))
	if w.handler != nil {
		w.handler(change)
	}
}

func (w *Watcher) digest(path string) string {
	data, exists, err := atomicfile.Read(path)
	if err != nil || !exists {
		return ""
	}
	return atomicfile.Digest(data)
}
