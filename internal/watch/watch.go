// Package watch follows template and function directories and tells the
// engine when files change, so edits show up without a restart.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Handler receives the slash-separated path of a changed file relative to
// the watched directory.
type Handler func(name string)

type dir struct {
	path     string
	handle   Handler
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// Watcher dispatches file system events to per-directory handlers.
type Watcher struct {
	dirs   []*dir
	logger *slog.Logger
}

// New creates a watcher with no directories.
func New(logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{logger: logger}
}

// Add watches path and its subdirectories. With a zero debounce handle runs
// once per event; otherwise bursts of events collapse into one call with
// the last name.
func (w *Watcher) Add(path string, debounce time.Duration, handle Handler) {
	w.dirs = append(w.dirs, &dir{path: filepath.Clean(path), handle: handle, debounce: debounce})
}

// Run watches until ctx is done. Directories that do not exist are skipped.
func (w *Watcher) Run(ctx context.Context, ready chan<- struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	for _, d := range w.dirs {
		if _, err := os.Stat(d.path); os.IsNotExist(err) {
			w.logger.Debug("not watching missing directory", "dir", d.path)
			continue
		}
		if err := addRecursive(watcher, d.path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", d.path, err)
		}
		w.logger.Debug("watching", "dir", d.path)
	}
	if ready != nil {
		close(ready)
	}

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handle(watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(watcher *fsnotify.Watcher, event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := addRecursive(watcher, event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "dir", event.Name, "error", err)
			}
			return
		}
	}

	for _, d := range w.dirs {
		rel, err := filepath.Rel(d.path, event.Name)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		name := filepath.ToSlash(rel)
		w.logger.Debug("file changed", "name", name, "op", event.Op.String())
		d.fire(name)
		return
	}
}

func (d *dir) fire(name string) {
	if d.debounce <= 0 {
		d.handle(name)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.debounce, func() { d.handle(name) })
}

func (w *Watcher) stopTimers() {
	for _, d := range w.dirs {
		d.mu.Lock()
		if d.timer != nil {
			d.timer.Stop()
		}
		d.mu.Unlock()
	}
}

// addRecursive adds dir and its subdirectories, skipping hidden ones.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(entry.Name(), ".") {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
