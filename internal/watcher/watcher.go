// Package watcher reloads the stored credential when its file changes out
// from under the running server, e.g. after a login in another terminal.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// debounceWindow coalesces the bursts of writes editors and atomic renames
// produce into a single reload.
const debounceWindow = 250 * time.Millisecond

// Watcher observes a single file and invokes a callback after changes settle.
type Watcher struct {
	path     string
	onChange func()

	mu    sync.Mutex
	timer *time.Timer
}

// New constructs a watcher for path. onChange runs on the watcher goroutine
// after each debounced change.
func New(path string, onChange func()) *Watcher {
	return &Watcher{path: path, onChange: onChange}
}

// Run watches until ctx is cancelled. The parent directory is watched rather
// than the file itself so atomic rename-into-place is observed.
func (w *Watcher) Run(ctx context.Context) error {
	fsWatcher, errNew := fsnotify.NewWatcher()
	if errNew != nil {
		return errNew
	}
	defer func() {
		if errClose := fsWatcher.Close(); errClose != nil {
			log.Warnf("watcher: close: %v", errClose)
		}
	}()

	dir := filepath.Dir(w.path)
	if errAdd := fsWatcher.Add(dir); errAdd != nil {
		return errAdd
	}
	log.Debugf("watcher: watching %s for changes to %s", dir, filepath.Base(w.path))

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return ctx.Err()
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case errWatch, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("watcher: %v", errWatch)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceWindow, w.onChange)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
