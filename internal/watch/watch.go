// Package watch triggers regeneration when schema sources change on disk.
package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 300 * time.Millisecond

// Watcher observes a set of source directories recursively and emits one
// trigger per burst of filesystem events. Bursts are coalesced with a
// debounce timer, since editors and checkouts touch many files at once.
type Watcher struct {
	watcher  *fsnotify.Watcher
	trigger  chan struct{}
	debounce time.Duration
	logger   *zap.Logger
}

func New(dirs []string, logger *zap.Logger) (*Watcher, error) {
	return newWatcher(dirs, defaultDebounce, logger)
}

func newWatcher(dirs []string, debounce time.Duration, logger *zap.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		watcher:  fsWatcher,
		trigger:  make(chan struct{}, 1),
		debounce: debounce,
		logger:   logger,
	}

	for _, dir := range dirs {
		if err := w.addRecursive(dir); err != nil {
			fsWatcher.Close()
			return nil, err
		}
	}

	go w.loop()
	return w, nil
}

// Triggers yields one value per debounced burst of changes.
func (w *Watcher) Triggers() <-chan struct{} {
	return w.trigger
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) addRecursive(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		w.logger.Warn("watch directory does not exist, skipping",
			zap.String("dir", dir))
		return nil
	}

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				return fmt.Errorf("adding %s to watcher: %w", path, err)
			}
		}
		return nil
	})
}

func (w *Watcher) loop() {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// New directories must be watched as they appear.
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watcher.Add(event.Name); err != nil {
						w.logger.Error("adding new directory to watcher", zap.Error(err))
					}
				}
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", zap.Error(err))

		case <-timer.C:
			select {
			case w.trigger <- struct{}{}:
			default:
			}
		}
	}
}
