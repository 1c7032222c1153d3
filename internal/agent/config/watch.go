package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher tracks the last time the configuration file changed on disk,
// feeding the "configUpdateTime" the reload timer compares against
// configLoadTime. It watches the file's parent directory rather than the
// file itself since editors and config-management tools commonly replace a
// file via rename rather than in-place write.
type Watcher struct {
	path     string
	fileName string
	logger   *slog.Logger

	fsWatcher *fsnotify.Watcher

	updatedAt atomic.Value // time.Time

	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

// NewWatcher creates a Watcher for the file at path. It does not start
// watching until Start is called.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	w := &Watcher{
		path:      path,
		fileName:  filepath.Base(path),
		logger:    logger.With("component", "config_watcher"),
		fsWatcher: fsWatcher,
		done:      make(chan struct{}),
	}
	w.updatedAt.Store(time.Time{})
	return w, nil
}

// Start runs the watch loop in a goroutine until Close is called.
func (w *Watcher) Start() {
	go w.loop()
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.fileName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.updatedAt.Store(time.Now().UTC())
			w.logger.Debug("configuration file changed", "path", w.path, "op", event.Op.String())

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("configuration watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

// UpdatedAt returns the last time a change to the watched file was
// observed. The zero value means no change has been observed yet.
func (w *Watcher) UpdatedAt() time.Time {
	return w.updatedAt.Load().(time.Time)
}

// Close stops the watch loop. Safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)
	return w.fsWatcher.Close()
}
