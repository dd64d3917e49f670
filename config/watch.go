package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Catalog's definition file whenever it changes on
// disk. It watches the containing directory rather than the file
// itself (some filesystems don't support watching a single file),
// debounces rapid writes, and retries the watch if the file is briefly
// removed (editors that write via rename-over-original).
type Watcher struct {
	path    string
	catalog *Catalog
	logger  *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

// NewWatcher builds a Watcher for path, targeting catalog. Watch must
// be called to actually start watching.
func NewWatcher(path string, catalog *Catalog, logger *slog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{path: abs, catalog: catalog, logger: logger}, nil
}

// Watch starts watching in the background. stop cancels the watch and
// releases the underlying fsnotify handle.
func (w *Watcher) Watch() (stop func(), err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, os.ErrClosed
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(w.path)
	file := filepath.Base(w.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	w.watcher = watcher

	done := make(chan struct{})
	go w.loop(watcher, file, done)

	return func() {
		close(done)
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		watcher.Close()
	}, nil
}

func (w *Watcher) loop(watcher *fsnotify.Watcher, file string, done chan struct{}) {
	var debounce *time.Timer
	const debounceDelay = 100 * time.Millisecond

	reload := func() {
		if _, err := w.catalog.LoadFile(w.path); err != nil {
			w.logger.Error("config reload failed", "path", w.path, "error", err)
			return
		}
		w.logger.Info("config reloaded", "path", w.path)
	}

	for {
		select {
		case <-done:
			if debounce != nil {
				debounce.Stop()
			}
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != file {
				continue
			}
			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, reload)
			case event.Op&fsnotify.Remove != 0:
				w.logger.Warn("config file removed, waiting for it to reappear", "path", w.path)
				go w.tryRewatch(watcher, file, done)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

// tryRewatch polls for up to 5s for a deleted definition file to
// reappear (an editor doing rename-over-original looks like a delete
// followed by a create of a new inode), re-adding the directory watch
// and triggering one reload once it does.
func (w *Watcher) tryRewatch(watcher *fsnotify.Watcher, file string, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	dir := filepath.Dir(w.path)
	for i := 0; i < 10; i++ {
		select {
		case <-done:
			return
		case <-ticker.C:
			if _, err := os.Stat(w.path); err == nil {
				if err := watcher.Add(dir); err == nil {
					w.logger.Info("config watch re-established", "path", w.path)
					if _, err := w.catalog.LoadFile(w.path); err != nil {
						w.logger.Error("config reload failed", "path", w.path, "error", err)
					}
					return
				}
			}
		}
	}
	w.logger.Warn("config file did not reappear, giving up on rewatch", "path", w.path)
}
